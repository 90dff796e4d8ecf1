package dataset

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rps-forge/internal/compute"
)

func TestDiscoverFilesNested(t *testing.T) {
	dir := t.TempDir()
	mustWriteFile(t, filepath.Join(dir, "public", "data.png"), []byte("png"))
	mustWriteFile(t, filepath.Join(dir, "public", "labels_uint8"), []byte{1})
	mustWriteFile(t, filepath.Join(dir, "zz", "data.png"), []byte("later"))
	mustWriteFile(t, filepath.Join(dir, "ignore.txt"), nil)

	found, err := DiscoverFiles(dir, DefaultSpriteName, DefaultLabelsName)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		DefaultSpriteName: filepath.Join(dir, "public", "data.png"),
		DefaultLabelsName: filepath.Join(dir, "public", "labels_uint8"),
	}, found)
}

func TestDiscoverFilesMissing(t *testing.T) {
	dir := t.TempDir()
	mustWriteFile(t, filepath.Join(dir, "data.png"), []byte("png"))
	_, err := DiscoverFiles(dir, DefaultSpriteName, DefaultLabelsName)
	require.Error(t, err)
}

func TestHTTPSourceLoad(t *testing.T) {
	l := tinyLayout()
	sprite := spriteBytes(t, l)
	labels := labelBytes(l)

	mux := http.NewServeMux()
	mux.HandleFunc("/corpus/data.png", func(w http.ResponseWriter, r *http.Request) { w.Write(sprite) })
	mux.HandleFunc("/corpus/labels_uint8", func(w http.ResponseWriter, r *http.Request) { w.Write(labels) })
	srv := httptest.NewServer(mux)
	defer srv.Close()

	src := &HTTPSource{BaseURL: srv.URL + "/corpus/", Client: srv.Client()}
	m, err := Load(context.Background(), compute.NewRuntime(5), src, Options{Layout: l, Logger: quietLogger()})
	require.NoError(t, err)
	b, err := m.NextTrainBatch(2)
	require.NoError(t, err)
	assert.Equal(t, []int{2, l.ImageSize(), l.Channels}, b.Images.Shape())
	b.Release()
}

func TestHTTPSourceStatusError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	src := &HTTPSource{BaseURL: srv.URL}
	_, err := src.Open(context.Background(), DefaultLabelsName)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")

	_, err = Load(context.Background(), compute.NewRuntime(1), src, Options{Layout: tinyLayout(), Logger: quietLogger()})
	require.Error(t, err)
}

func TestTarSourceOpens(t *testing.T) {
	l := tinyLayout()
	bundle := filepath.Join(t.TempDir(), "corpus.tar")
	mustWriteFile(t, bundle, tarBytes(t, map[string][]byte{
		"public/" + DefaultSpriteName: spriteBytes(t, l),
		"public/" + DefaultLabelsName: labelBytes(l),
	}))

	src := &TarSource{Path: bundle}
	rc, err := src.Open(context.Background(), DefaultLabelsName)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, labelBytes(l), data)

	_, err = src.Open(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotInBundle)

	m, err := Load(context.Background(), compute.NewRuntime(9), src, Options{Layout: l, Logger: quietLogger()})
	require.NoError(t, err)
	lo, hi := m.Range(SplitTest)
	assert.Equal(t, 2, hi-lo)
}

func TestSourceHonorsCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := (&DirSource{Root: t.TempDir()}).Open(ctx, DefaultSpriteName)
	assert.ErrorIs(t, err, context.Canceled)
}
