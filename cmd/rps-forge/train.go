package main

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"rps-forge/internal/compute"
	"rps-forge/internal/dataset"
	"rps-forge/internal/inference"
	"rps-forge/internal/model"
	"rps-forge/internal/trainer"
)

// TrainHandler fits the classifier on the corpus and classifies any --predict frames.
func TrainHandler(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	m, rt, err := openCorpus(ctx, cfg)
	if err != nil {
		return err
	}

	l := m.Layout()
	lo, hi := m.Range(dataset.SplitTrain)
	clf := model.NewLinear(l.Classes, l.SampleStride(), cfg.LearningRate, cfg.Seed)

	summary, err := trainer.Run(ctx, trainer.RunConfig{
		Epochs:        cfg.Epochs,
		BatchSize:     cfg.BatchSize,
		EvalBatchSize: cfg.EvalBatchSize,
		TrainSize:     hi - lo,
		LogEvery:      cfg.LogEvery,
		Logger:        slog.Default(),
	}, m, clf)
	if err != nil {
		return fmt.Errorf("training failed: %w", err)
	}
	final := summary.Final()
	slog.Info("training complete", "steps", summary.Steps, "test_acc", fmt.Sprintf("%.3f", final.TestAccuracy))

	frames, _ := cmd.Flags().GetStringSlice("predict")
	if len(frames) == 0 {
		return nil
	}
	feedbackPath, _ := cmd.Flags().GetString("feedback")
	return classifyFrames(ctx, cmd.OutOrStdout(), rt, clf, l, frames, feedbackPath)
}

func classifyFrames(ctx context.Context, out io.Writer, rt *compute.Runtime, clf model.Classifier, l dataset.Layout, frames []string, feedbackPath string) error {
	var feedback *image.RGBA
	if feedbackPath != "" {
		feedback = image.NewRGBA(image.Rect(0, 0, l.Width, l.Height))
	}
	opts := inference.Options{Width: l.Width, Height: l.Height, Channels: l.Channels}
	if feedback != nil {
		opts.Feedback = feedback
	}

	var data [][]string
	for _, path := range frames {
		img, err := decodeFrame(path)
		if err != nil {
			return err
		}
		preds, err := inference.Predict(ctx, rt, clf, img, opts)
		if err != nil {
			return fmt.Errorf("classify %s: %w", path, err)
		}
		for _, p := range preds {
			data = append(data, []string{path, p.ClassName, strconv.FormatFloat(float64(p.Probability), 'f', 4, 32)})
		}
	}

	table := newTable(out, []string{"FRAME", "CLASS", "PROBABILITY"})
	table.AppendBulk(data)
	table.Render()

	if feedback == nil {
		return nil
	}
	return writePNG(feedbackPath, feedback)
}

func decodeFrame(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open frame: %w", err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create feedback: %w", err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encode feedback: %w", err)
	}
	return f.Close()
}
