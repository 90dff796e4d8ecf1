package compute

import (
	"fmt"

	"gorgonia.org/tensor"
)

// Tensor is a runtime-tracked dense value. Tensors with a zero-sized
// dimension carry no gorgonia backing.
type Tensor struct {
	id       uint64
	rt       *Runtime
	shape    []int
	data     any
	dense    *tensor.Dense
	released bool
}

// Shape returns a copy of the tensor's dimensions.
func (t *Tensor) Shape() []int {
	return append([]int(nil), t.shape...)
}

// Size is the number of elements.
func (t *Tensor) Size() int {
	size, _ := shapeSize(t.shape)
	return size
}

// Runtime returns the runtime that allocated t.
func (t *Tensor) Runtime() *Runtime { return t.rt }

// Released reports whether t has been freed.
func (t *Tensor) Released() bool {
	t.rt.mu.Lock()
	defer t.rt.mu.Unlock()
	return t.released
}

// Release frees t.
func (t *Tensor) Release() {
	if t == nil {
		return
	}
	t.rt.Release(t)
}

// Float32s exposes the backing slice of a float32 tensor.
func (t *Tensor) Float32s() ([]float32, error) {
	if t.released {
		return nil, fmt.Errorf("compute: tensor %d used after release", t.id)
	}
	v, ok := t.data.([]float32)
	if !ok {
		return nil, fmt.Errorf("compute: tensor %d is %T, not []float32", t.id, t.data)
	}
	return v, nil
}

// Uint8s exposes the backing slice of a uint8 tensor.
func (t *Tensor) Uint8s() ([]uint8, error) {
	if t.released {
		return nil, fmt.Errorf("compute: tensor %d used after release", t.id)
	}
	v, ok := t.data.([]uint8)
	if !ok {
		return nil, fmt.Errorf("compute: tensor %d is %T, not []uint8", t.id, t.data)
	}
	return v, nil
}

// Dense exposes the gorgonia tensor behind t, nil for empty tensors.
func (t *Tensor) Dense() *tensor.Dense { return t.dense }

func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor(%d, %v)", t.id, t.shape)
}
