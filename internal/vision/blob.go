package vision

import "math"

// blob is a 4-connected region of a binary mask with its raw moments.
type blob struct {
	area                   int
	minX, minY, maxX, maxY int
	sumX, sumY             float64
	sumXX, sumYY, sumXY    float64
}

func (b blob) centroid() (float64, float64) {
	n := float64(b.area)
	return b.sumX / n, b.sumY / n
}

// orientation is the major axis angle in degrees from the second central
// moments.
func (b blob) orientation() float64 {
	n := float64(b.area)
	cx, cy := b.centroid()
	mu20 := b.sumXX/n - cx*cx
	mu02 := b.sumYY/n - cy*cy
	mu11 := b.sumXY/n - cx*cy
	return 0.5 * math.Atan2(2*mu11, mu20-mu02) * 180 / math.Pi
}

func (b blob) width() int  { return b.maxX - b.minX + 1 }
func (b blob) height() int { return b.maxY - b.minY + 1 }

// blobs labels the set pixels of a w*h row-major mask.
func blobs(mask []bool, w, h int) []blob {
	seen := make([]bool, len(mask))
	var out []blob
	stack := make([]int, 0, 64)
	for start := range mask {
		if !mask[start] || seen[start] {
			continue
		}
		b := blob{minX: w, minY: h, maxX: -1, maxY: -1}
		seen[start] = true
		stack = append(stack[:0], start)
		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x, y := i%w, i/w
			fx, fy := float64(x), float64(y)
			b.area++
			b.sumX += fx
			b.sumY += fy
			b.sumXX += fx * fx
			b.sumYY += fy * fy
			b.sumXY += fx * fy
			b.minX, b.maxX = min(b.minX, x), max(b.maxX, x)
			b.minY, b.maxY = min(b.minY, y), max(b.maxY, y)

			for _, n := range [4]int{i - 1, i + 1, i - w, i + w} {
				if n < 0 || n >= len(mask) || seen[n] || !mask[n] {
					continue
				}
				if (n == i-1 && x == 0) || (n == i+1 && x == w-1) {
					continue
				}
				seen[n] = true
				stack = append(stack, n)
			}
		}
		out = append(out, b)
	}
	return out
}
