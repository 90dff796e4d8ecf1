// Package dataset loads the packed sprite corpus, splits it into train and
// test partitions and serves shuffled mini-batches from each.
package dataset

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"rps-forge/internal/compute"
)

// Split names a corpus partition.
type Split int

const (
	SplitTrain Split = iota
	SplitTest
)

func (s Split) String() string {
	switch s {
	case SplitTrain:
		return "train"
	case SplitTest:
		return "test"
	default:
		return fmt.Sprintf("split(%d)", int(s))
	}
}

// Options configures Load.
type Options struct {
	Layout     Layout
	SpriteName string
	LabelsName string
	Logger     *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Layout == (Layout{}) {
		o.Layout = DefaultLayout()
	}
	if o.SpriteName == "" {
		o.SpriteName = DefaultSpriteName
	}
	if o.LabelsName == "" {
		o.LabelsName = DefaultLabelsName
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Batch is a freshly gathered group of samples. Images is
// [n, W*H, C] float32 and Labels is [n, K] uint8. Indices holds the
// split-relative sample drawn for each row. The caller releases the batch.
type Batch struct {
	Images  *compute.Tensor
	Labels  *compute.Tensor
	Indices []int
}

// Size is the number of rows in the batch.
func (b *Batch) Size() int { return len(b.Indices) }

// Release frees both tensors.
func (b *Batch) Release() {
	if b == nil {
		return
	}
	b.Images.Release()
	b.Labels.Release()
}

type partition struct {
	lo, hi int
	images []float32
	labels []uint8
	cursor *Cursor
}

// Manager serves batches from a loaded corpus. The corpus buffers are
// read-only after Load; each split's cursor is mutated by every draw, so
// draws on one split must not run concurrently.
type Manager struct {
	rt     *compute.Runtime
	layout Layout
	logger *slog.Logger
	images []float32
	labels []uint8
	train  partition
	test   partition
}

// Load fetches the sprite and label file concurrently, decodes and splits
// them. Any failure fails the whole load.
func Load(ctx context.Context, rt *compute.Runtime, src Source, opts Options) (*Manager, error) {
	opts = opts.withDefaults()
	l := opts.Layout
	if err := l.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()

	var (
		images []float32
		labels []uint8
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rc, err := src.Open(gctx, opts.SpriteName)
		if err != nil {
			return fmt.Errorf("load sprite: %w", err)
		}
		defer rc.Close()
		images, err = decodeSprite(rc, l, opts.Logger)
		return err
	})
	g.Go(func() error {
		rc, err := src.Open(gctx, opts.LabelsName)
		if err != nil {
			return fmt.Errorf("load labels: %w", err)
		}
		defer rc.Close()
		labels, err = readLabels(rc, l)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	nTrain := l.TrainCount()
	stride := l.SampleStride()
	m := &Manager{
		rt:     rt,
		layout: l,
		logger: opts.Logger,
		images: images,
		labels: labels,
		train: partition{
			lo:     0,
			hi:     nTrain,
			images: images[: nTrain*stride : nTrain*stride],
			labels: labels[: nTrain*l.Classes : nTrain*l.Classes],
			cursor: NewCursor(rt.ShuffledIndices(nTrain)),
		},
		test: partition{
			lo:     nTrain,
			hi:     l.Elements,
			images: images[nTrain*stride:],
			labels: labels[nTrain*l.Classes:],
			cursor: NewCursor(rt.ShuffledIndices(l.TestCount())),
		},
	}

	opts.Logger.Info("corpus loaded",
		"elements", l.Elements,
		"train", nTrain,
		"test", l.TestCount(),
		"chunk_rows", l.ChunkRows(),
		"elapsed", time.Since(start),
	)
	return m, nil
}

// Layout reports the corpus geometry.
func (m *Manager) Layout() Layout { return m.layout }

// Range is the corpus index range [lo, hi) of a split.
func (m *Manager) Range(s Split) (lo, hi int) {
	p := m.partition(s)
	return p.lo, p.hi
}

// Cursor exposes a split's shuffle cursor.
func (m *Manager) Cursor(s Split) *Cursor { return m.partition(s).cursor }

// NextTrainBatch draws n samples from the train split.
func (m *Manager) NextTrainBatch(n int) (*Batch, error) {
	return m.nextBatch(&m.train, n)
}

// NextTestBatch draws n samples from the test split.
func (m *Manager) NextTestBatch(n int) (*Batch, error) {
	return m.nextBatch(&m.test, n)
}

func (m *Manager) partition(s Split) *partition {
	if s == SplitTest {
		return &m.test
	}
	return &m.train
}

// nextBatch gathers n cursor draws. n is not validated: values past the
// split length repeat samples once the cursor wraps.
func (m *Manager) nextBatch(p *partition, n int) (*Batch, error) {
	if n < 0 {
		n = 0
	}
	stride := m.layout.SampleStride()
	k := m.layout.Classes

	images := make([]float32, n*stride)
	labels := make([]uint8, n*k)
	indices := make([]int, n)
	for i := 0; i < n; i++ {
		idx := p.cursor.Next()
		indices[i] = idx
		copy(images[i*stride:(i+1)*stride], p.images[idx*stride:(idx+1)*stride])
		copy(labels[i*k:(i+1)*k], p.labels[idx*k:(idx+1)*k])
	}

	xs, err := m.rt.NewFloat32(images, n, m.layout.ImageSize(), m.layout.Channels)
	if err != nil {
		return nil, fmt.Errorf("batch images: %w", err)
	}
	ys, err := m.rt.NewUint8(labels, n, k)
	if err != nil {
		xs.Release()
		return nil, fmt.Errorf("batch labels: %w", err)
	}
	return &Batch{Images: xs, Labels: ys, Indices: indices}, nil
}

// SplitStats summarizes one partition.
type SplitStats struct {
	Split       string
	Lo, Hi      int
	ClassCounts []int
}

// Stats reports per-split sizes and label histograms. A row with no hot
// entry counts toward no class.
func (m *Manager) Stats() []SplitStats {
	k := m.layout.Classes
	out := make([]SplitStats, 0, 2)
	for _, s := range []Split{SplitTrain, SplitTest} {
		p := m.partition(s)
		counts := make([]int, k)
		for i := 0; i < p.hi-p.lo; i++ {
			row := p.labels[i*k : (i+1)*k]
			for c, v := range row {
				if v != 0 {
					counts[c]++
					break
				}
			}
		}
		out = append(out, SplitStats{Split: s.String(), Lo: p.lo, Hi: p.hi, ClassCounts: counts})
	}
	return out
}
