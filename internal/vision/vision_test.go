package vision

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PicarNav/internal/model"
)

func TestScriptedReplay(t *testing.T) {
	stop := model.SignDetection{Class: model.SignStop, Confidence: 0.9}
	cam := NewScripted([]Step{
		{Annotations: Annotations{Line: model.LineDetection{Detected: true, X: 100}}, Repeat: 2},
		{Annotations: Annotations{Signs: []model.SignDetection{stop}}},
	}, false)
	ctx := context.Background()

	var frames []*Frame
	for i := 0; i < 4; i++ {
		f, err := cam.Capture(ctx)
		require.NoError(t, err)
		frames = append(frames, f)
	}
	require.NotNil(t, frames[2])
	assert.Equal(t, 100, frames[0].Annotations.Line.X)
	assert.Equal(t, 100, frames[1].Annotations.Line.X)
	assert.Equal(t, []model.SignDetection{stop}, frames[2].Annotations.Signs)
	assert.Equal(t, uint64(3), frames[2].Seq)
	assert.Nil(t, frames[3])

	frames[2].Annotations.Signs[0].Class = model.SignTurnLeft
	looping := NewScripted(cam.steps, true)
	for i := 0; i < 5; i++ {
		f, err := looping.Capture(ctx)
		require.NoError(t, err)
		require.NotNil(t, f)
	}
	f, _ := looping.Capture(ctx)
	assert.Equal(t, model.SignStop, f.Annotations.Signs[0].Class)
}

func TestLoadScript(t *testing.T) {
	path := filepath.Join(t.TempDir(), "script.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
- line: {detected: true, x: 320, y: 400}
  repeat: 30
- signs:
    - {class: turn_left, confidence: 0.95}
`), 0o644))

	steps, err := LoadScript(path)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, 30, steps[0].Repeat)
	assert.Equal(t, 320, steps[0].Line.X)
	assert.Equal(t, model.SignTurnLeft, steps[1].Signs[0].Class)
}

func TestAnnotatedDelegates(t *testing.T) {
	a := Annotated{Line: NewThresholdLineDetector(), Signs: NewColorSignDetector()}
	assert.False(t, a.Detect(nil).Detected)
	assert.Nil(t, a.DetectSigns(&Frame{}))

	ann := &Annotations{Line: model.LineDetection{Detected: true, X: 5}}
	assert.Equal(t, 5, a.Detect(&Frame{Annotations: ann}).X)

	img := stripeImage()
	assert.True(t, a.Detect(&Frame{Image: img}).Detected)
}

func stripeImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 640, 480))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(300, 0, 340, 480), image.NewUniform(color.Black), image.Point{}, draw.Src)
	return img
}

func TestThresholdLineDetector(t *testing.T) {
	d := NewThresholdLineDetector()

	got := d.Detect(&Frame{Image: stripeImage()})
	require.True(t, got.Detected)
	assert.InDelta(t, 319, got.X, 1)
	assert.GreaterOrEqual(t, got.Y, 320)
	assert.InDelta(t, 90, abs(got.Angle), 1)
	assert.InDelta(t, 40.0/640, got.Confidence, 1e-9)

	blank := image.NewGray(image.Rect(0, 0, 64, 48))
	draw.Draw(blank, blank.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	assert.False(t, d.Detect(&Frame{Image: blank}).Detected)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func TestColorSignDetector(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 320, 240))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(100, 100, 140, 140), image.NewUniform(color.RGBA{255, 0, 0, 255}), image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(200, 20, 230, 50), image.NewUniform(color.RGBA{0, 0, 255, 255}), image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(10, 10, 15, 15), image.NewUniform(color.RGBA{255, 0, 0, 255}), image.Point{}, draw.Src)

	signs := NewColorSignDetector().DetectSigns(&Frame{Image: img})
	require.Len(t, signs, 2)
	assert.Equal(t, model.SignDetection{Class: model.SignStop, X: 120, Y: 120, Width: 40, Height: 40, Confidence: 1}, signs[0])
	assert.Equal(t, model.SignTurnLeft, signs[1].Class)
	assert.Equal(t, 30, signs[1].Width)
}

func TestToHSV(t *testing.T) {
	assert.Equal(t, [3]uint8{0, 255, 255}, toHSV(255, 0, 0))
	assert.Equal(t, [3]uint8{120, 255, 255}, toHSV(0, 0, 255))
	assert.Equal(t, [3]uint8{30, 255, 255}, toHSV(255, 255, 0))
	assert.Equal(t, uint8(0), toHSV(200, 200, 200)[1])
}

func TestDirCamera(t *testing.T) {
	dir := t.TempDir()
	f, err := os.Create(filepath.Join(dir, "0001.png"))
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, stripeImage()))
	require.NoError(t, f.Close())
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	cam, err := NewDirCamera(dir, false)
	require.NoError(t, err)
	frame, err := cam.Capture(context.Background())
	require.NoError(t, err)
	require.NotNil(t, frame)
	assert.Equal(t, 640, frame.Image.Bounds().Dx())

	frame, err = cam.Capture(context.Background())
	require.NoError(t, err)
	assert.Nil(t, frame)

	_, err = NewDirCamera(t.TempDir(), false)
	assert.Error(t, err)
}
