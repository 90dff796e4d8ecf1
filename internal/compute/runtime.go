// Package compute is the tensor runtime the dataset and inference code call
// into. Storage and reductions are backed by gorgonia dense tensors; the
// runtime adds allocation tracking, scoped release and backend switching.
package compute

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"gorgonia.org/tensor"
)

// BackendCPU is the backend every runtime starts on.
const BackendCPU = "cpu"

// ErrUnknownBackend is returned when switching to a backend that was never registered.
var ErrUnknownBackend = errors.New("compute: unknown backend")

// Runtime owns every tensor it allocates until the tensor is released.
type Runtime struct {
	mu      sync.Mutex
	engines map[string]tensor.Engine
	backend string
	live    map[uint64]*Tensor
	nextID  uint64
	rng     *rand.Rand
}

// NewRuntime builds a runtime on the cpu backend. A zero seed seeds the
// permutation generator from the clock.
func NewRuntime(seed int64) *Runtime {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Runtime{
		engines: map[string]tensor.Engine{BackendCPU: tensor.StdEng{}},
		backend: BackendCPU,
		live:    make(map[uint64]*Tensor),
		nextID:  1,
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// RegisterBackend makes engine selectable under name.
func (r *Runtime) RegisterBackend(name string, engine tensor.Engine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[name] = engine
}

// Backend reports the active backend name.
func (r *Runtime) Backend() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.backend
}

// SetBackend switches the engine used for new tensors.
func (r *Runtime) SetBackend(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.engines[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownBackend, name)
	}
	r.backend = name
	return nil
}

// WithBackend runs fn on the named backend and restores the previous one on
// every exit path, including a panic inside fn.
func (r *Runtime) WithBackend(name string, fn func() error) error {
	prev := r.Backend()
	if err := r.SetBackend(name); err != nil {
		return err
	}
	defer func() { _ = r.SetBackend(prev) }()
	return fn()
}

// Live is the number of allocated, unreleased tensors.
func (r *Runtime) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}

// Release frees each tensor. Releasing twice, or releasing nil, is a no-op.
func (r *Runtime) Release(ts ...*Tensor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range ts {
		r.releaseLocked(t)
	}
}

// Tidy runs fn and releases every tensor allocated while it ran, except the
// tensor fn returns. When fn fails or panics nothing is kept. A scope claims
// every allocation made on r while fn runs, so concurrent callers must not
// share a runtime across Tidy scopes.
func (r *Runtime) Tidy(fn func() (*Tensor, error)) (kept *Tensor, err error) {
	r.mu.Lock()
	mark := r.nextID
	r.mu.Unlock()

	defer func() {
		if err != nil {
			kept = nil
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		for id, t := range r.live {
			if id >= mark && t != kept {
				r.releaseLocked(t)
			}
		}
	}()
	return fn()
}

// ShuffledIndices returns a uniform random permutation of [0, n).
func (r *Runtime) ShuffledIndices(n int) []int {
	if n <= 0 {
		return []int{}
	}
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rng.Shuffle(n, func(i, j int) {
		order[i], order[j] = order[j], order[i]
	})
	return order
}

// NewFloat32 wraps data as a tensor of the given shape. data is not copied.
func (r *Runtime) NewFloat32(data []float32, shape ...int) (*Tensor, error) {
	return r.alloc(data, len(data), shape)
}

// NewUint8 wraps data as a tensor of the given shape. data is not copied.
func (r *Runtime) NewUint8(data []uint8, shape ...int) (*Tensor, error) {
	return r.alloc(data, len(data), shape)
}

func (r *Runtime) alloc(data any, n int, shape []int) (*Tensor, error) {
	size, err := shapeSize(shape)
	if err != nil {
		return nil, err
	}
	if size != n {
		return nil, fmt.Errorf("compute: shape %v wants %d values, got %d", shape, size, n)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	t := &Tensor{
		id:    r.nextID,
		rt:    r,
		shape: append([]int(nil), shape...),
		data:  data,
	}
	if size > 0 {
		t.dense = tensor.New(
			tensor.WithShape(shape...),
			tensor.WithBacking(data),
			tensor.WithEngine(r.engines[r.backend]),
		)
	}
	r.nextID++
	r.live[t.id] = t
	return t, nil
}

func (r *Runtime) releaseLocked(t *Tensor) {
	if t == nil || t.rt != r || t.released {
		return
	}
	t.released = true
	t.dense = nil
	t.data = nil
	delete(r.live, t.id)
}

func shapeSize(shape []int) (int, error) {
	size := 1
	for _, d := range shape {
		if d < 0 {
			return 0, fmt.Errorf("compute: negative dimension in shape %v", shape)
		}
		size *= d
	}
	return size, nil
}
