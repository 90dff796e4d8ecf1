package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Source kinds understood by the loader.
const (
	SourceDir  = "dir"
	SourceHTTP = "http"
	SourceTar  = "tar"
)

// Config captures the runtime knobs for a training run.
type Config struct {
	Source        string  `yaml:"source"`
	Location      string  `yaml:"location"`
	Sprite        string  `yaml:"sprite"`
	Labels        string  `yaml:"labels"`
	Epochs        int     `yaml:"epochs"`
	BatchSize     int     `yaml:"batch_size"`
	EvalBatchSize int     `yaml:"eval_batch_size"`
	LearningRate  float64 `yaml:"learning_rate"`
	Seed          int64   `yaml:"seed"`
	LogEvery      int     `yaml:"log_every"`
	Backend       string  `yaml:"backend"`
	Layout        Layout  `yaml:"layout"`
}

// Layout describes the packed sprite geometry.
type Layout struct {
	Width      int     `yaml:"width"`
	Height     int     `yaml:"height"`
	Channels   int     `yaml:"channels"`
	Classes    int     `yaml:"classes"`
	Elements   int     `yaml:"elements"`
	TrainRatio float64 `yaml:"train_ratio"`
}

// Overrides captures CLI supplied values.
type Overrides struct {
	Source        string
	Location      string
	Epochs        int
	BatchSize     int
	EvalBatchSize int
	LearningRate  float64
	Seed          int64
	LogEvery      int
}

// Default mirrors the browser demo: 12 epochs of 512-sample batches.
func Default() *Config {
	return &Config{
		Source:        SourceDir,
		Location:      "public",
		Sprite:        "data.png",
		Labels:        "labels_uint8",
		Epochs:        12,
		BatchSize:     512,
		EvalBatchSize: 420,
		LearningRate:  0.05,
		LogEvery:      5,
		Backend:       "cpu",
		Layout: Layout{
			Width:      64,
			Height:     64,
			Channels:   3,
			Classes:    3,
			Elements:   2520,
			TrainRatio: 5.0 / 6.0,
		},
	}
}

// Load reads a Config from YAML on top of Default. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg, err := parseYAML(f)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// ApplyOverrides updates cfg using any non-zero override.
func (c *Config) ApplyOverrides(o Overrides) {
	if o.Source != "" {
		c.Source = o.Source
	}
	if o.Location != "" {
		c.Location = o.Location
	}
	if o.Epochs > 0 {
		c.Epochs = o.Epochs
	}
	if o.BatchSize > 0 {
		c.BatchSize = o.BatchSize
	}
	if o.EvalBatchSize > 0 {
		c.EvalBatchSize = o.EvalBatchSize
	}
	if o.LearningRate > 0 {
		c.LearningRate = o.LearningRate
	}
	if o.Seed != 0 {
		c.Seed = o.Seed
	}
	if o.LogEvery > 0 {
		c.LogEvery = o.LogEvery
	}
}

// Validate verifies the config is runnable.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	switch c.Source {
	case SourceDir, SourceHTTP, SourceTar:
	default:
		return fmt.Errorf("source must be one of dir, http, tar (got %q)", c.Source)
	}
	if c.Location == "" {
		return errors.New("location must be set")
	}
	if c.Sprite == "" || c.Labels == "" {
		return errors.New("sprite and labels file names must be set")
	}
	if c.Epochs <= 0 {
		return fmt.Errorf("epochs must be > 0 (got %d)", c.Epochs)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be > 0 (got %d)", c.BatchSize)
	}
	if c.LearningRate <= 0 {
		return fmt.Errorf("learning_rate must be > 0 (got %g)", c.LearningRate)
	}
	if c.Layout.Width <= 0 || c.Layout.Height <= 0 || c.Layout.Classes <= 0 || c.Layout.Elements <= 0 {
		return fmt.Errorf("layout dimensions must be > 0 (got %+v)", c.Layout)
	}
	if c.Layout.Channels != 1 && c.Layout.Channels != 3 {
		return fmt.Errorf("layout.channels must be 1 or 3 (got %d)", c.Layout.Channels)
	}
	if c.Layout.TrainRatio <= 0 || c.Layout.TrainRatio >= 1 {
		return fmt.Errorf("layout.train_ratio must be in (0, 1) (got %g)", c.Layout.TrainRatio)
	}
	if c.EvalBatchSize <= 0 {
		c.EvalBatchSize = c.BatchSize
	}
	if c.LogEvery <= 0 {
		c.LogEvery = 50
	}
	if c.Backend == "" {
		c.Backend = "cpu"
	}
	return nil
}

func parseYAML(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return cfg, nil
}
