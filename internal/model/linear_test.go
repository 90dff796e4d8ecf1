package model

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rps-forge/internal/compute"
)

func batch(t *testing.T, rt *compute.Runtime) (*compute.Tensor, *compute.Tensor) {
	t.Helper()
	xs, err := rt.NewFloat32([]float32{
		0.1, 0.2, 0.3, 0.4,
		0.4, 0.3, 0.2, 0.1,
	}, 2, 2, 2)
	require.NoError(t, err)
	ys, err := rt.NewUint8([]uint8{0, 1, 0, 0, 0, 1}, 2, 3)
	require.NoError(t, err)
	return xs, ys
}

func TestLinearTrainStepReducesLoss(t *testing.T) {
	rt := compute.NewRuntime(1)
	m := NewLinear(3, 4, 0.1, 1)
	xs, ys := batch(t, rt)

	loss1, err := m.TrainStep(xs, ys)
	require.NoError(t, err)
	loss2, err := m.TrainStep(xs, ys)
	require.NoError(t, err)
	if loss2 > loss1 {
		t.Fatalf("expected loss to decrease; loss1=%f loss2=%f", loss1, loss2)
	}
}

func TestLinearLearnsBatch(t *testing.T) {
	rt := compute.NewRuntime(1)
	m := NewLinear(3, 4, 0.5, 1)
	xs, ys := batch(t, rt)
	for i := 0; i < 200; i++ {
		_, err := m.TrainStep(xs, ys)
		require.NoError(t, err)
	}
	eval, err := m.Evaluate(xs, ys)
	require.NoError(t, err)
	assert.Equal(t, 1.0, eval.Accuracy)
	assert.Equal(t, 2, eval.Samples)
}

func TestLinearPredictIsDistribution(t *testing.T) {
	rt := compute.NewRuntime(1)
	m := NewLinear(3, 4, 0.1, 1)
	xs, _ := batch(t, rt)

	probs, err := m.Predict(context.Background(), xs)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, probs.Shape())
	vals, _ := probs.Float32s()
	for row := 0; row < 2; row++ {
		var sum float32
		for _, p := range vals[row*3 : row*3+3] {
			assert.GreaterOrEqual(t, p, float32(0))
			sum += p
		}
		assert.InDelta(t, 1, sum, 1e-5)
	}
}

func TestLinearRejectsBadShapes(t *testing.T) {
	rt := compute.NewRuntime(1)
	m := NewLinear(3, 4, 0.1, 1)
	xs, err := rt.NewFloat32(make([]float32, 6), 2, 3)
	require.NoError(t, err)
	_, err = m.Predict(context.Background(), xs)
	require.Error(t, err)

	good, _ := batch(t, rt)
	cold, _ := rt.NewUint8(make([]uint8, 6), 2, 3)
	_, err = m.TrainStep(good, cold)
	require.Error(t, err)
}

func TestLinearPredictCanceled(t *testing.T) {
	rt := compute.NewRuntime(1)
	m := NewLinear(3, 4, 0.1, 1)
	xs, _ := batch(t, rt)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.Predict(ctx, xs)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLinearNilReceiver(t *testing.T) {
	rt := compute.NewRuntime(1)
	xs, ys := batch(t, rt)
	var m *Linear
	_, err := m.Predict(context.Background(), xs)
	require.Error(t, err)
	_, err = m.TrainStep(xs, ys)
	require.Error(t, err)
	_, err = m.Evaluate(xs, ys)
	require.Error(t, err)
}
