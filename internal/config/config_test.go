package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rps.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
# corpus served by the demo app
source: http
location: "http://localhost:3000"
epochs: 3
batch_size: 64
seed: 9
layout:
  width: 8
  height: 8
  elements: 120
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, SourceHTTP, cfg.Source)
	assert.Equal(t, "http://localhost:3000", cfg.Location)
	assert.Equal(t, 3, cfg.Epochs)
	assert.Equal(t, 64, cfg.BatchSize)
	assert.Equal(t, int64(9), cfg.Seed)
	assert.Equal(t, "data.png", cfg.Sprite)
	assert.Equal(t, 420, cfg.EvalBatchSize)
	assert.Equal(t, Layout{Width: 8, Height: 8, Channels: 3, Classes: 3, Elements: 120, TrainRatio: 5.0 / 6.0}, cfg.Layout)
}

func TestLoadRejectsUnknownKey(t *testing.T) {
	_, err := Load(writeConfig(t, "train_root_a: /data\n"))
	require.Error(t, err)
}

func TestLoadEmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestApplyOverrides(t *testing.T) {
	cfg := Default()
	cfg.ApplyOverrides(Overrides{Source: SourceTar, Location: "corpus.tar", Epochs: 2, Seed: 4, LearningRate: 0.2})
	assert.Equal(t, SourceTar, cfg.Source)
	assert.Equal(t, "corpus.tar", cfg.Location)
	assert.Equal(t, 2, cfg.Epochs)
	assert.Equal(t, int64(4), cfg.Seed)
	assert.Equal(t, 0.2, cfg.LearningRate)
	assert.Equal(t, 512, cfg.BatchSize)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.LogEvery = 0
	cfg.EvalBatchSize = 0
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 50, cfg.LogEvery)
	assert.Equal(t, cfg.BatchSize, cfg.EvalBatchSize)

	bad := Default()
	bad.Source = "s3"
	assert.Error(t, bad.Validate())

	bad = Default()
	bad.Layout.Channels = 4
	assert.Error(t, bad.Validate())

	bad = Default()
	bad.Layout.TrainRatio = 1
	assert.Error(t, bad.Validate())

	bad = Default()
	bad.Epochs = 0
	assert.Error(t, bad.Validate())

	var nilCfg *Config
	assert.Error(t, nilCfg.Validate())
}
