package trainer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"rps-forge/internal/dataset"
	"rps-forge/internal/metrics"
	"rps-forge/internal/model"
)

// Batcher serves shuffled train and test batches.
type Batcher interface {
	NextTrainBatch(n int) (*dataset.Batch, error)
	NextTestBatch(n int) (*dataset.Batch, error)
}

// RunConfig captures the knobs required by the training loop.
type RunConfig struct {
	Epochs        int
	BatchSize     int
	EvalBatchSize int
	// TrainSize is the train split length; an epoch is ceil(TrainSize/BatchSize) steps.
	TrainSize int
	LogEvery  int
	Logger    *slog.Logger
}

// Summary reports a finished run.
type Summary struct {
	Steps  int
	Epochs []metrics.EpochResult
}

// Final returns the last epoch's result.
func (s Summary) Final() metrics.EpochResult {
	if len(s.Epochs) == 0 {
		return metrics.EpochResult{}
	}
	return s.Epochs[len(s.Epochs)-1]
}

// Run fits mdl on batches from data. ctx is checked between steps.
func Run(ctx context.Context, cfg RunConfig, data Batcher, mdl model.Trainable) (Summary, error) {
	if cfg.Epochs <= 0 {
		return Summary{}, errors.New("trainer: epochs must be > 0")
	}
	if cfg.BatchSize <= 0 {
		return Summary{}, errors.New("trainer: batch size must be > 0")
	}
	if cfg.TrainSize <= 0 {
		return Summary{}, errors.New("trainer: train size must be > 0")
	}
	if cfg.EvalBatchSize <= 0 {
		cfg.EvalBatchSize = cfg.BatchSize
	}
	if cfg.LogEvery <= 0 {
		cfg.LogEvery = 50
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	stepsPerEpoch := (cfg.TrainSize + cfg.BatchSize - 1) / cfg.BatchSize
	var (
		window  metrics.Window
		summary Summary
		step    int
	)

	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		var epochLoss float64
		for i := 0; i < stepsPerEpoch; i++ {
			if err := ctx.Err(); err != nil {
				return summary, err
			}
			step++

			startData := time.Now()
			batch, err := data.NextTrainBatch(cfg.BatchSize)
			if err != nil {
				return summary, fmt.Errorf("step %d: %w", step, err)
			}
			dataTime := time.Since(startData)

			startCompute := time.Now()
			loss, err := mdl.TrainStep(batch.Images, batch.Labels)
			batch.Release()
			if err != nil {
				return summary, fmt.Errorf("step %d: %w", step, err)
			}
			computeTime := time.Since(startCompute)

			window.Record(cfg.BatchSize, dataTime, computeTime, loss)
			epochLoss += loss
			summary.Steps = step

			if step%cfg.LogEvery == 0 {
				snap := window.Snapshot()
				logger.Info("train",
					"step", step,
					"images_per_sec", fmt.Sprintf("%.1f", snap.ImagesPerSec),
					"data_ms", fmt.Sprintf("%.2f", snap.AvgDataMS),
					"compute_ms", fmt.Sprintf("%.2f", snap.AvgComputeMS),
					"loss", fmt.Sprintf("%.4f", snap.AvgLoss),
				)
			}
		}

		result, err := evaluate(data, mdl, cfg.EvalBatchSize)
		if err != nil {
			return summary, fmt.Errorf("epoch %d: %w", epoch, err)
		}
		result.Epoch = epoch
		result.TrainLoss = epochLoss / float64(stepsPerEpoch)
		summary.Epochs = append(summary.Epochs, result)

		logger.Info("epoch",
			"epoch", epoch,
			"train_loss", fmt.Sprintf("%.4f", result.TrainLoss),
			"test_loss", fmt.Sprintf("%.4f", result.TestLoss),
			"test_acc", fmt.Sprintf("%.3f", result.TestAccuracy),
		)
	}
	return summary, nil
}

func evaluate(data Batcher, mdl model.Trainable, n int) (metrics.EpochResult, error) {
	batch, err := data.NextTestBatch(n)
	if err != nil {
		return metrics.EpochResult{}, err
	}
	defer batch.Release()
	eval, err := mdl.Evaluate(batch.Images, batch.Labels)
	if err != nil {
		return metrics.EpochResult{}, err
	}
	return metrics.EpochResult{TestLoss: eval.Loss, TestAccuracy: eval.Accuracy}, nil
}
