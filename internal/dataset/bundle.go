package dataset

import (
	"archive/tar"
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ErrNotInBundle is returned when a tar bundle lacks the requested file.
var ErrNotInBundle = errors.New("dataset: file not in bundle")

// TarSource serves corpus files packed together in one tar archive.
// Each Open scans the archive from the start on its own file handle.
type TarSource struct {
	Path string
}

// Open implements Source.
func (s *TarSource) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open bundle: %w", err)
	}

	tr := tar.NewReader(bufio.NewReader(f))
	for {
		if err := ctx.Err(); err != nil {
			f.Close()
			return nil, err
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("read tar: %w", err)
		}
		if hdr.FileInfo().IsDir() {
			continue
		}
		if filepath.Base(hdr.Name) == name {
			return &bundleEntry{Reader: tr, f: f}, nil
		}
	}
	f.Close()
	return nil, fmt.Errorf("%w: %s in %s", ErrNotInBundle, name, s.Path)
}

type bundleEntry struct {
	io.Reader
	f *os.File
}

func (e *bundleEntry) Close() error { return e.f.Close() }
