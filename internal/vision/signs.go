package vision

import (
	"image/color"
	"math"

	"PicarNav/internal/model"
)

// HSVRange is an inclusive range in 8-bit HSV: hue 0-179, saturation and
// value 0-255.
type HSVRange struct {
	Lo, Hi [3]uint8
}

func (r HSVRange) contains(h, s, v uint8) bool {
	return h >= r.Lo[0] && h <= r.Hi[0] &&
		s >= r.Lo[1] && s <= r.Hi[1] &&
		v >= r.Lo[2] && v <= r.Hi[2]
}

// ColorRange maps a colour name to its HSV range.
type ColorRange struct {
	Color string
	Range HSVRange
}

// DefaultColorRanges are the red, blue and yellow sign colours.
var DefaultColorRanges = []ColorRange{
	{"red", HSVRange{Lo: [3]uint8{0, 100, 100}, Hi: [3]uint8{10, 255, 255}}},
	{"blue", HSVRange{Lo: [3]uint8{100, 100, 100}, Hi: [3]uint8{130, 255, 255}}},
	{"yellow", HSVRange{Lo: [3]uint8{20, 100, 100}, Hi: [3]uint8{30, 255, 255}}},
}

// ColorSignDetector reports solid colour regions as signs. The colour
// decides the class; confidence is how much of its bounding box the region
// fills.
type ColorSignDetector struct {
	Ranges  []ColorRange
	MinArea int
}

// NewColorSignDetector returns a detector over DefaultColorRanges with a
// 100 pixel minimum area.
func NewColorSignDetector() *ColorSignDetector {
	return &ColorSignDetector{Ranges: DefaultColorRanges, MinArea: 100}
}

// DetectSigns implements SignDetector. Detections are ordered by colour
// range, then by scan order.
func (d *ColorSignDetector) DetectSigns(f *Frame) []model.SignDetection {
	if f == nil || f.Image == nil {
		return nil
	}
	bounds := f.Image.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return nil
	}

	hsv := make([][3]uint8, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.NRGBAModel.Convert(f.Image.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
			hsv[y*w+x] = toHSV(c.R, c.G, c.B)
		}
	}

	var out []model.SignDetection
	mask := make([]bool, w*h)
	for _, cr := range d.Ranges {
		class, ok := model.SignClassFromColor(cr.Color)
		if !ok {
			continue
		}
		for i, p := range hsv {
			mask[i] = cr.Range.contains(p[0], p[1], p[2])
		}
		for _, b := range blobs(mask, w, h) {
			if b.area <= d.MinArea {
				continue
			}
			out = append(out, model.SignDetection{
				Class:      class,
				X:          b.minX + b.width()/2,
				Y:          b.minY + b.height()/2,
				Width:      b.width(),
				Height:     b.height(),
				Confidence: float64(b.area) / float64(b.width()*b.height()),
			})
		}
	}
	return out
}

// toHSV converts RGB to 8-bit HSV with hue halved into 0-179.
func toHSV(r8, g8, b8 uint8) [3]uint8 {
	r, g, b := float64(r8), float64(g8), float64(b8)
	maxC := math.Max(r, math.Max(g, b))
	minC := math.Min(r, math.Min(g, b))
	delta := maxC - minC

	var hue float64
	switch {
	case delta == 0:
		hue = 0
	case maxC == r:
		hue = 60 * (g - b) / delta
	case maxC == g:
		hue = 60*(b-r)/delta + 120
	default:
		hue = 60*(r-g)/delta + 240
	}
	if hue < 0 {
		hue += 360
	}
	var sat float64
	if maxC > 0 {
		sat = delta / maxC * 255
	}
	return [3]uint8{uint8(math.Round(hue / 2)), uint8(math.Round(sat)), uint8(maxC)}
}
