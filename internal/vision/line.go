package vision

import (
	"image/color"

	"PicarNav/internal/model"
)

// ThresholdLineDetector finds a dark line in the bottom third of the frame.
// Pixels darker than Threshold are line pixels; the largest region above
// MinArea is the line.
type ThresholdLineDetector struct {
	Threshold uint8
	MinArea   int
}

// NewThresholdLineDetector returns a detector with threshold 127 and a
// minimum region of 100 pixels.
func NewThresholdLineDetector() *ThresholdLineDetector {
	return &ThresholdLineDetector{Threshold: 127, MinArea: 100}
}

// Detect implements LineDetector. Position is in full-frame pixels.
func (d *ThresholdLineDetector) Detect(f *Frame) model.LineDetection {
	if f == nil || f.Image == nil {
		return model.LineDetection{}
	}
	bounds := f.Image.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	roiH := h / 3
	if w == 0 || roiH == 0 {
		return model.LineDetection{}
	}
	top := bounds.Max.Y - roiH

	mask := make([]bool, w*roiH)
	for y := 0; y < roiH; y++ {
		for x := 0; x < w; x++ {
			g := color.GrayModel.Convert(f.Image.At(bounds.Min.X+x, top+y)).(color.Gray)
			mask[y*w+x] = g.Y < d.Threshold
		}
	}

	best := -1
	regions := blobs(mask, w, roiH)
	for i, b := range regions {
		if b.area <= d.MinArea {
			continue
		}
		if best < 0 || b.area > regions[best].area {
			best = i
		}
	}
	if best < 0 {
		return model.LineDetection{}
	}
	b := regions[best]
	cx, cy := b.centroid()
	return model.LineDetection{
		Detected:   true,
		X:          int(cx),
		Y:          int(cy) + h - roiH,
		Angle:      b.orientation(),
		Confidence: float64(b.area) / float64(roiH*w),
	}
}
