package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newRunCommand() *cobra.Command {
	var configPath string
	fc := &flagConfig{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a pipeline to completion",
		Long: `Run executes a pipeline from a YAML configuration file (--config) or
entirely from flags describing the source, sink, dead-letter queue, and
processor chain. A config file and flags are not combined: when --config
is set, the pipeline flags are ignored.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd.Context(), configPath, fc)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to a YAML pipeline configuration file")
	addPipelineFlags(cmd, fc)

	return cmd
}

func runPipeline(ctx context.Context, configPath string, fc *flagConfig) error {
	logger := slog.Default()

	cfg, err := loadPipelineConfig(configPath, fc)
	if err != nil {
		return fmt.Errorf("colstream: %w", err)
	}

	r, err := cfg.Build(logger, nil)
	if err != nil {
		return fmt.Errorf("colstream: build pipeline: %w", err)
	}

	runCtx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting pipeline run", "run_id", r.RunID)
	if err := r.Run(runCtx); err != nil {
		return fmt.Errorf("colstream: run %s: %w", r.RunID, err)
	}
	logger.Info("pipeline run completed", "run_id", r.RunID)
	return nil
}
