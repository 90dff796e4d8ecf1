package dataset

import (
	"errors"
	"fmt"
	"math"
)

// ErrLayoutMismatch indicates corpus files whose size disagrees with the layout.
var ErrLayoutMismatch = errors.New("dataset: corpus does not match layout")

// chunkRatio sizes sprite decode chunks as a fraction of the test split.
const chunkRatio = 0.15

// Layout fixes the geometry of a packed corpus.
//
// Sample i occupies [i*W*H*C, (i+1)*W*H*C) of the image buffer and
// [i*K, (i+1)*K) of the label buffer. The sprite is W*H pixels wide and
// Elements pixels tall, one sample per row.
type Layout struct {
	Width      int
	Height     int
	Channels   int
	Classes    int
	Elements   int
	TrainRatio float64
}

// DefaultLayout is the rock/paper/scissors corpus: 2520 64x64 RGB images, 3 classes.
func DefaultLayout() Layout {
	return Layout{
		Width:      64,
		Height:     64,
		Channels:   3,
		Classes:    3,
		Elements:   2520,
		TrainRatio: 5.0 / 6.0,
	}
}

// ImageSize is the pixel count of one sample.
func (l Layout) ImageSize() int { return l.Width * l.Height }

// SampleStride is the number of image values per sample.
func (l Layout) SampleStride() int { return l.Width * l.Height * l.Channels }

// TrainCount is floor(TrainRatio * Elements).
func (l Layout) TrainCount() int { return int(math.Floor(l.TrainRatio * float64(l.Elements))) }

// TestCount is whatever the train split leaves.
func (l Layout) TestCount() int { return l.Elements - l.TrainCount() }

// ChunkRows is the number of sprite rows decoded per pass. It is derived from
// the test split even though decoding walks the whole sprite.
func (l Layout) ChunkRows() int {
	rows := int(math.Floor(float64(l.TestCount()) * chunkRatio))
	if rows < 1 {
		return 1
	}
	return rows
}

// Validate rejects layouts that cannot produce two non-empty splits.
func (l Layout) Validate() error {
	if l.Width <= 0 || l.Height <= 0 {
		return fmt.Errorf("dataset: image size must be > 0 (got %dx%d)", l.Width, l.Height)
	}
	if l.Channels != 1 && l.Channels != 3 {
		return fmt.Errorf("dataset: channels must be 1 or 3 (got %d)", l.Channels)
	}
	if l.Classes <= 0 {
		return fmt.Errorf("dataset: classes must be > 0 (got %d)", l.Classes)
	}
	if l.Elements <= 0 {
		return fmt.Errorf("dataset: elements must be > 0 (got %d)", l.Elements)
	}
	if l.TrainCount() <= 0 || l.TestCount() <= 0 {
		return fmt.Errorf("dataset: ratio %.3f leaves an empty split of %d elements", l.TrainRatio, l.Elements)
	}
	return nil
}
