package inference

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rps-forge/internal/compute"
	"rps-forge/internal/model"
)

// recordingClassifier returns a fixed distribution and remembers the input
// shape it was handed. It allocates a scratch tensor to prove cleanup.
type recordingClassifier struct {
	probs []float32
	shape []int
	err   error
}

func (c *recordingClassifier) Predict(_ context.Context, x *compute.Tensor) (*compute.Tensor, error) {
	c.shape = x.Shape()
	rt := x.Runtime()
	if _, err := rt.NewFloat32(make([]float32, 8), 8); err != nil {
		return nil, err
	}
	if c.err != nil {
		return nil, c.err
	}
	return rt.NewFloat32(append([]float32(nil), c.probs...), 1, len(c.probs))
}

func frame(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestPredictReturnsFixedClassOrder(t *testing.T) {
	rt := compute.NewRuntime(1)
	clf := &recordingClassifier{probs: []float32{0.2, 0.7, 0.1}}

	before := rt.Live()
	preds, err := Predict(context.Background(), rt, clf, frame(320, 240, color.White), Options{})
	require.NoError(t, err)
	assert.Equal(t, before, rt.Live())

	require.Len(t, preds, 3)
	assert.Equal(t, []Prediction{
		{ClassName: "Rock", Probability: 0.2},
		{ClassName: "Paper", Probability: 0.7},
		{ClassName: "Scissors", Probability: 0.1},
	}, preds)
	assert.Equal(t, []int{1, 64, 64, 3}, clf.shape)
}

func TestPredictWithLinearSumsToOne(t *testing.T) {
	rt := compute.NewRuntime(1)
	clf := model.NewLinear(3, 8*8*3, 0.1, 3)

	preds, err := Predict(context.Background(), rt, clf, frame(33, 17, color.RGBA{R: 200, A: 255}), Options{Width: 8, Height: 8})
	require.NoError(t, err)
	var sum float32
	for i, p := range preds {
		assert.Equal(t, ClassNames[i], p.ClassName)
		sum += p.Probability
	}
	assert.InDelta(t, 1, sum, 1e-5)
	assert.Equal(t, 0, rt.Live())
}

func TestPredictGrayscaleCollapsesChannels(t *testing.T) {
	rt := compute.NewRuntime(1)
	clf := &recordingClassifier{probs: []float32{1, 0, 0}}

	feedback := image.NewRGBA(image.Rect(0, 0, 16, 16))
	_, err := Predict(context.Background(), rt, clf, frame(40, 30, color.RGBA{R: 255, G: 0, B: 0, A: 255}),
		Options{Width: 16, Height: 16, Channels: 1, Feedback: feedback})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 16, 16, 1}, clf.shape)
	assert.Equal(t, color.RGBA{85, 85, 85, 255}, feedback.RGBAAt(3, 3))
	assert.Equal(t, 0, rt.Live())
}

func TestPredictRendersFeedback(t *testing.T) {
	rt := compute.NewRuntime(1)
	clf := &recordingClassifier{probs: []float32{0, 0, 1}}
	feedback := image.NewRGBA(image.Rect(0, 0, 64, 64))

	_, err := Predict(context.Background(), rt, clf, frame(100, 50, color.RGBA{R: 10, G: 120, B: 250, A: 255}),
		Options{Feedback: feedback})
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{10, 120, 250, 255}, feedback.RGBAAt(0, 0))
	assert.Equal(t, color.RGBA{10, 120, 250, 255}, feedback.RGBAAt(63, 63))
}

func TestPredictFailuresReleaseAndSkipFeedback(t *testing.T) {
	rt := compute.NewRuntime(1)
	feedback := image.NewRGBA(image.Rect(0, 0, 64, 64))
	opts := Options{Feedback: feedback}

	_, err := Predict(context.Background(), rt, nil, frame(8, 8, color.White), opts)
	assert.ErrorIs(t, err, ErrNoClassifier)

	clf := &recordingClassifier{probs: []float32{1, 0, 0}}
	_, err = Predict(context.Background(), rt, clf, nil, opts)
	assert.ErrorIs(t, err, ErrUnreadableImage)
	_, err = Predict(context.Background(), rt, clf, image.NewRGBA(image.Rect(0, 0, 0, 0)), opts)
	assert.ErrorIs(t, err, ErrUnreadableImage)

	boom := errors.New("forward failed")
	_, err = Predict(context.Background(), rt, &recordingClassifier{err: boom}, frame(8, 8, color.White), opts)
	assert.ErrorIs(t, err, boom)

	_, err = Predict(context.Background(), rt, &recordingClassifier{probs: []float32{1}}, frame(8, 8, color.White), opts)
	require.Error(t, err)

	assert.Equal(t, 0, rt.Live())
	assert.Equal(t, color.RGBA{}, feedback.RGBAAt(10, 10), "no partial feedback on failure")
}

func TestPredictFullWidthTopCrop(t *testing.T) {
	rt := compute.NewRuntime(1)
	top := frame(8, 8, color.White).SubImage(image.Rect(0, 0, 8, 4))
	clf := &recordingClassifier{probs: []float32{0.2, 0.3, 0.5}}

	preds, err := Predict(context.Background(), rt, clf, top, Options{})
	require.NoError(t, err)
	require.Len(t, preds, 3)
	assert.Equal(t, []int{1, 64, 64, 3}, clf.shape)
	assert.Equal(t, 0, rt.Live())
}

func TestPredictTypedNilClassifier(t *testing.T) {
	rt := compute.NewRuntime(1)
	var clf *model.Linear
	_, err := Predict(context.Background(), rt, clf, frame(8, 8, color.White), Options{})
	require.Error(t, err)
	assert.Equal(t, 0, rt.Live())
}
