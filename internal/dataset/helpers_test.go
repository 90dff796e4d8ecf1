package dataset

import (
	"archive/tar"
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// tinyLayout is small enough to build in memory: 12 samples, 10 train, 2 test.
func tinyLayout() Layout {
	return Layout{Width: 2, Height: 2, Channels: 3, Classes: 3, Elements: 12, TrainRatio: 5.0 / 6.0}
}

// spriteBytes encodes sample i with red = i and blue = 255 - i on every pixel
// and green = pixel position * 10, so copied slices can be traced back.
func spriteBytes(t *testing.T, l Layout) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, l.ImageSize(), l.Elements))
	for y := 0; y < l.Elements; y++ {
		for x := 0; x < l.ImageSize(); x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(y), G: uint8(x * 10), B: uint8(255 - y), A: 255})
		}
	}
	buf := &bytes.Buffer{}
	require.NoError(t, png.Encode(buf, img))
	return buf.Bytes()
}

// labelBytes assigns sample i to class i % K.
func labelBytes(l Layout) []byte {
	out := make([]byte, l.Elements*l.Classes)
	for i := 0; i < l.Elements; i++ {
		out[i*l.Classes+i%l.Classes] = 1
	}
	return out
}

func writeCorpus(t *testing.T, dir string, l Layout) {
	t.Helper()
	mustWriteFile(t, filepath.Join(dir, DefaultSpriteName), spriteBytes(t, l))
	mustWriteFile(t, filepath.Join(dir, DefaultLabelsName), labelBytes(l))
}

func mustWriteFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func tarBytes(t *testing.T, files map[string][]byte) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	tw := tar.NewWriter(buf)
	for name, data := range files {
		hdr := &tar.Header{Name: name, Size: int64(len(data)), Mode: 0o644}
		require.NoError(t, tw.WriteHeader(hdr))
		_, err := tw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	return buf.Bytes()
}
