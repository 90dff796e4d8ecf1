package main

import (
	"context"
	"fmt"
	"log/slog"

	"rps-forge/internal/compute"
	"rps-forge/internal/config"
	"rps-forge/internal/dataset"
)

func newSource(cfg *config.Config) (dataset.Source, error) {
	switch cfg.Source {
	case config.SourceHTTP:
		return &dataset.HTTPSource{BaseURL: cfg.Location}, nil
	case config.SourceTar:
		return &dataset.TarSource{Path: cfg.Location}, nil
	default:
		src, err := dataset.NewDirSource(cfg.Location, cfg.Sprite, cfg.Labels)
		if err != nil {
			return nil, err
		}
		return src, nil
	}
}

func layoutOf(cfg *config.Config) dataset.Layout {
	return dataset.Layout{
		Width:      cfg.Layout.Width,
		Height:     cfg.Layout.Height,
		Channels:   cfg.Layout.Channels,
		Classes:    cfg.Layout.Classes,
		Elements:   cfg.Layout.Elements,
		TrainRatio: cfg.Layout.TrainRatio,
	}
}

// openCorpus builds the runtime and loads the corpus described by cfg.
func openCorpus(ctx context.Context, cfg *config.Config) (*dataset.Manager, *compute.Runtime, error) {
	src, err := newSource(cfg)
	if err != nil {
		return nil, nil, err
	}

	rt := compute.NewRuntime(cfg.Seed)
	if err := rt.SetBackend(cfg.Backend); err != nil {
		return nil, nil, err
	}

	m, err := dataset.Load(ctx, rt, src, dataset.Options{
		Layout:     layoutOf(cfg),
		SpriteName: cfg.Sprite,
		LabelsName: cfg.Labels,
		Logger:     slog.Default(),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("load corpus from %s: %w", cfg.Location, err)
	}
	return m, rt, nil
}
