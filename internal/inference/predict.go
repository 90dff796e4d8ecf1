// Package inference classifies single frames with a trained classifier and
// post-processes object-detector output.
package inference

import (
	"context"
	"errors"
	"fmt"
	"image"

	"golang.org/x/image/draw"

	"rps-forge/internal/compute"
	"rps-forge/internal/model"
)

// ClassNames is the fixed output order of the rock/paper/scissors classifier.
var ClassNames = []string{"Rock", "Paper", "Scissors"}

var (
	// ErrNoClassifier is returned when Predict is called without a classifier.
	ErrNoClassifier = errors.New("inference: no classifier")
	// ErrUnreadableImage is returned when the frame cannot be read as pixels.
	ErrUnreadableImage = errors.New("inference: image cannot be read")
)

// Prediction is one class and the probability the classifier assigned it.
type Prediction struct {
	ClassName   string
	Probability float32
}

// Options tunes Predict. Zero values select the 64x64 RGB model input.
type Options struct {
	Width    int
	Height   int
	Channels int
	// Feedback, when set, receives the resized frame the classifier saw.
	Feedback draw.Image
}

func (o Options) withDefaults() Options {
	if o.Width <= 0 {
		o.Width = 64
	}
	if o.Height <= 0 {
		o.Height = 64
	}
	if o.Channels <= 0 {
		o.Channels = 3
	}
	return o
}

// Predict resizes img to the model input, runs clf and returns one
// prediction per class in ClassNames order. Every tensor allocated on rt
// during the call is released before it returns.
func Predict(ctx context.Context, rt *compute.Runtime, clf model.Classifier, img image.Image, opts Options) ([]Prediction, error) {
	if clf == nil {
		return nil, ErrNoClassifier
	}
	opts = opts.withDefaults()
	if opts.Channels != 1 && opts.Channels != 3 {
		return nil, fmt.Errorf("inference: unsupported channel count %d", opts.Channels)
	}

	resized, err := rt.Tidy(func() (*compute.Tensor, error) {
		px, err := rt.FromImage(img)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnreadableImage, err)
		}
		if opts.Channels == 1 {
			gray, err := rt.Mean(px, 2)
			if err != nil {
				return nil, err
			}
			if px, err = rt.ExpandDims(gray, 2); err != nil {
				return nil, err
			}
		}
		return rt.ResizeBilinear(px, opts.Height, opts.Width, true)
	})
	if err != nil {
		return nil, err
	}
	defer resized.Release()

	probs, err := rt.Tidy(func() (*compute.Tensor, error) {
		batched, err := rt.Reshape(resized, 1, opts.Height, opts.Width, opts.Channels)
		if err != nil {
			return nil, err
		}
		return clf.Predict(ctx, batched)
	})
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}
	defer probs.Release()

	values, err := probs.Float32s()
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}
	if len(values) < len(ClassNames) {
		return nil, fmt.Errorf("classify: got %d probabilities, want %d", len(values), len(ClassNames))
	}

	if opts.Feedback != nil {
		if err := compute.DrawTo(opts.Feedback, resized, 255); err != nil {
			return nil, fmt.Errorf("feedback: %w", err)
		}
	}

	out := make([]Prediction, len(ClassNames))
	for i, name := range ClassNames {
		out[i] = Prediction{ClassName: name, Probability: values[i]}
	}
	return out, nil
}
