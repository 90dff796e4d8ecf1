package dataset

import (
	"fmt"
	"image"
	_ "image/png"
	"io"
	"log/slog"

	"golang.org/x/image/draw"
)

// decodeSprite turns a packed sprite into the master image buffer. Rows are
// copied through a chunk-sized surface so only one chunk of RGBA bytes is
// live besides the decoded sprite.
func decodeSprite(r io.Reader, l Layout, logger *slog.Logger) ([]float32, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode sprite: %w", err)
	}
	b := img.Bounds()
	if b.Dx() != l.ImageSize() || b.Dy() != l.Elements {
		return nil, fmt.Errorf("%w: sprite is %dx%d, want %dx%d",
			ErrLayoutMismatch, b.Dx(), b.Dy(), l.ImageSize(), l.Elements)
	}

	stride := l.SampleStride()
	out := make([]float32, l.Elements*stride)
	chunk := l.ChunkRows()
	surface := image.NewRGBA(image.Rect(0, 0, b.Dx(), chunk))

	for row := 0; row < l.Elements; row += chunk {
		rows := min(chunk, l.Elements-row)
		draw.Draw(surface, image.Rect(0, 0, b.Dx(), rows), img, image.Pt(b.Min.X, b.Min.Y+row), draw.Src)

		view := out[row*stride : (row+rows)*stride]
		pix := surface.Pix[:rows*surface.Stride]
		x := 0
		for j := 0; j < len(pix); j += 4 {
			for c := 0; c < l.Channels; c++ {
				view[x] = float32(pix[j+c]) / 255
				x++
			}
		}
		logger.Debug("decoded sprite chunk", "first_row", row, "rows", rows)
	}
	return out, nil
}

func readLabels(r io.Reader, l Layout) ([]uint8, error) {
	want := l.Elements * l.Classes
	labels, err := io.ReadAll(io.LimitReader(r, int64(want)+1))
	if err != nil {
		return nil, fmt.Errorf("read labels: %w", err)
	}
	if len(labels) != want {
		return nil, fmt.Errorf("%w: label file has %d bytes, want %d", ErrLayoutMismatch, len(labels), want)
	}
	return labels, nil
}
