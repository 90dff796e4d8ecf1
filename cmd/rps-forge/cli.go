package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"rps-forge/internal/config"
)

func newCLI() *cobra.Command {
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:           "rps-forge",
		Short:         "Train and run the rock/paper/scissors frame classifier",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			verbose, _ := cmd.Flags().GetBool("verbose")
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
			return nil
		},
	}

	rootCmd.PersistentFlags().String("config", "", "Path to YAML config")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
	addCorpusFlags(rootCmd)

	rootCmd.AddCommand(
		newTrainCmd(),
		newInspectCmd(),
	)
	return rootCmd
}

func addCorpusFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("source", "", "Corpus source: dir, http or tar")
	cmd.PersistentFlags().String("location", "", "Directory, base URL or tar path of the corpus")
	cmd.PersistentFlags().Int64("seed", 0, "PRNG seed for shuffles and weights")
}

func newTrainCmd() *cobra.Command {
	trainCmd := &cobra.Command{
		Use:   "train",
		Short: "Load the corpus, fit the classifier and optionally classify frames",
		Args:  cobra.NoArgs,
		RunE:  TrainHandler,
	}

	trainCmd.Flags().Int("epochs", 0, "Number of epochs")
	trainCmd.Flags().Int("batch-size", 0, "Train batch size")
	trainCmd.Flags().Int("eval-batch-size", 0, "Test batch size drawn after each epoch")
	trainCmd.Flags().Float64("lr", 0, "Learning rate")
	trainCmd.Flags().Int("log-every", 0, "Log every N steps")
	trainCmd.Flags().StringSlice("predict", nil, "Image files to classify after training")
	trainCmd.Flags().String("feedback", "", "Write the last classified frame, as the model saw it, to this PNG")
	return trainCmd
}

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Load the corpus and print split statistics",
		Args:  cobra.NoArgs,
		RunE:  InspectHandler,
	}
}

// loadConfig reads --config and applies every flag the command defines.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	var o config.Overrides
	o.Source, _ = cmd.Flags().GetString("source")
	o.Location, _ = cmd.Flags().GetString("location")
	o.Seed, _ = cmd.Flags().GetInt64("seed")
	if f := cmd.Flags().Lookup("epochs"); f != nil {
		o.Epochs, _ = cmd.Flags().GetInt("epochs")
		o.BatchSize, _ = cmd.Flags().GetInt("batch-size")
		o.EvalBatchSize, _ = cmd.Flags().GetInt("eval-batch-size")
		o.LearningRate, _ = cmd.Flags().GetFloat64("lr")
		o.LogEvery, _ = cmd.Flags().GetInt("log-every")
	}
	cfg.ApplyOverrides(o)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
