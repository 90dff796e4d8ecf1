package model

import (
	"context"

	"rps-forge/internal/compute"
)

// Classifier maps a batch of inputs to per-class probabilities. The result
// is a [batch, classes] float32 tensor allocated on the input's runtime and
// owned by the caller.
type Classifier interface {
	Predict(ctx context.Context, x *compute.Tensor) (*compute.Tensor, error)
}

// Trainable is a classifier the training loop can fit.
type Trainable interface {
	Classifier
	TrainStep(xs, ys *compute.Tensor) (float64, error)
	Evaluate(xs, ys *compute.Tensor) (Eval, error)
}

// Eval is the outcome of scoring one labeled batch.
type Eval struct {
	Loss     float64
	Accuracy float64
	Samples  int
}
