package dataset

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// Default corpus file names.
const (
	DefaultSpriteName = "data.png"
	DefaultLabelsName = "labels_uint8"
)

// Source opens named corpus files.
type Source interface {
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// DirSource reads corpus files from a local directory tree.
type DirSource struct {
	Root  string
	paths map[string]string
}

// NewDirSource locates each of names beneath root.
func NewDirSource(root string, names ...string) (*DirSource, error) {
	paths, err := DiscoverFiles(root, names...)
	if err != nil {
		return nil, err
	}
	return &DirSource{Root: root, paths: paths}, nil
}

// Open implements Source.
func (s *DirSource) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, ok := s.paths[name]
	if !ok {
		path = filepath.Join(s.Root, name)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return f, nil
}

// HTTPSource fetches corpus files relative to BaseURL.
type HTTPSource struct {
	BaseURL string
	Client  *http.Client
}

// Open implements Source. Any non-2xx response is an error.
func (s *HTTPSource) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	url := strings.TrimSuffix(s.BaseURL, "/") + "/" + strings.TrimPrefix(name, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", name, err)
	}
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", name, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("fetch %s: %s", url, resp.Status)
	}
	return resp.Body, nil
}
