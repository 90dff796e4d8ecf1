package model

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"

	"rps-forge/internal/compute"
)

// Linear is a softmax-regression classifier over flattened inputs trained
// with plain SGD on cross-entropy.
type Linear struct {
	numClasses int
	inputSize  int
	weights    []float64
	bias       []float64
	lr         float64
}

// NewLinear constructs the model with small random weights.
func NewLinear(numClasses, inputSize int, lr float64, seed int64) *Linear {
	if numClasses <= 0 {
		numClasses = 3
	}
	if inputSize <= 0 {
		inputSize = 64
	}
	if lr <= 0 {
		lr = 0.01
	}
	rng := rand.New(rand.NewSource(seed))
	weights := make([]float64, numClasses*inputSize)
	for i := range weights {
		weights[i] = (rng.Float64()*2 - 1) * 0.01
	}
	return &Linear{
		numClasses: numClasses,
		inputSize:  inputSize,
		weights:    weights,
		bias:       make([]float64, numClasses),
		lr:         lr,
	}
}

// Predict implements Classifier.
func (m *Linear) Predict(ctx context.Context, x *compute.Tensor) (*compute.Tensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, n, err := m.rows(x)
	if err != nil {
		return nil, err
	}
	out := make([]float32, n*m.numClasses)
	input := make([]float64, m.inputSize)
	for i := 0; i < n; i++ {
		widen(input, rows[i*m.inputSize:(i+1)*m.inputSize])
		probs := m.forward(input)
		for c, p := range probs {
			out[i*m.numClasses+c] = float32(p)
		}
	}
	return x.Runtime().NewFloat32(out, n, m.numClasses)
}

// TrainStep executes one SGD pass over the batch and returns the mean loss.
func (m *Linear) TrainStep(xs, ys *compute.Tensor) (float64, error) {
	rows, n, err := m.rows(xs)
	if err != nil {
		return 0, err
	}
	labels, err := m.labels(ys, n)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}

	total := 0.0
	input := make([]float64, m.inputSize)
	for i := 0; i < n; i++ {
		widen(input, rows[i*m.inputSize:(i+1)*m.inputSize])
		label := labels[i]
		probs := m.forward(input)
		total += -math.Log(math.Max(probs[label], 1e-9))

		probs[label] -= 1
		for c, grad := range probs {
			m.bias[c] -= m.lr * grad
			floats.AddScaled(m.weights[c*m.inputSize:(c+1)*m.inputSize], -m.lr*grad, input)
		}
	}
	return total / float64(n), nil
}

// Evaluate scores the batch without updating weights.
func (m *Linear) Evaluate(xs, ys *compute.Tensor) (Eval, error) {
	rows, n, err := m.rows(xs)
	if err != nil {
		return Eval{}, err
	}
	labels, err := m.labels(ys, n)
	if err != nil {
		return Eval{}, err
	}
	if n == 0 {
		return Eval{}, nil
	}

	var loss float64
	correct := 0
	input := make([]float64, m.inputSize)
	for i := 0; i < n; i++ {
		widen(input, rows[i*m.inputSize:(i+1)*m.inputSize])
		probs := m.forward(input)
		loss += -math.Log(math.Max(probs[labels[i]], 1e-9))
		if floats.MaxIdx(probs) == labels[i] {
			correct++
		}
	}
	return Eval{
		Loss:     loss / float64(n),
		Accuracy: float64(correct) / float64(n),
		Samples:  n,
	}, nil
}

func (m *Linear) forward(input []float64) []float64 {
	logits := make([]float64, m.numClasses)
	for c := range logits {
		logits[c] = m.bias[c] + floats.Dot(m.weights[c*m.inputSize:(c+1)*m.inputSize], input)
	}
	return softmax(logits)
}

// rows validates x as [batch, ...] with inputSize values per row.
func (m *Linear) rows(x *compute.Tensor) ([]float32, int, error) {
	if m == nil {
		return nil, 0, errors.New("model: nil classifier")
	}
	if x == nil {
		return nil, 0, errors.New("model: nil input")
	}
	shape := x.Shape()
	if len(shape) < 2 {
		return nil, 0, fmt.Errorf("model: input shape %v has no sample axis", shape)
	}
	n := shape[0]
	per := 1
	for _, d := range shape[1:] {
		per *= d
	}
	if per != m.inputSize {
		return nil, 0, fmt.Errorf("model: input has %d values per sample, want %d", per, m.inputSize)
	}
	if n == 0 {
		return nil, 0, nil
	}
	data, err := x.Float32s()
	if err != nil {
		return nil, 0, err
	}
	return data, n, nil
}

// labels decodes one-hot rows into class indices.
func (m *Linear) labels(ys *compute.Tensor, n int) ([]int, error) {
	if ys == nil {
		return nil, errors.New("model: nil labels")
	}
	shape := ys.Shape()
	if len(shape) != 2 || shape[0] != n || shape[1] != m.numClasses {
		return nil, fmt.Errorf("model: labels shape %v, want [%d %d]", shape, n, m.numClasses)
	}
	if n == 0 {
		return nil, nil
	}
	data, err := ys.Uint8s()
	if err != nil {
		return nil, err
	}
	out := make([]int, n)
	for i := range out {
		row := data[i*m.numClasses : (i+1)*m.numClasses]
		out[i] = -1
		for c, v := range row {
			if v != 0 {
				out[i] = c
				break
			}
		}
		if out[i] < 0 {
			return nil, fmt.Errorf("model: label row %d has no hot entry", i)
		}
	}
	return out, nil
}

func widen(dst []float64, src []float32) {
	for i, v := range src {
		dst[i] = float64(v)
	}
}

func softmax(logits []float64) []float64 {
	out := append([]float64(nil), logits...)
	floats.AddConst(-floats.Max(out), out)
	for i, v := range out {
		out[i] = math.Exp(v)
	}
	floats.Scale(1/floats.Sum(out), out)
	return out
}
