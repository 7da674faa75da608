package stager

import (
	"context"
	"fmt"
	"time"

	"github.com/systemml/systemml-stager/internal/config"
	"github.com/systemml/systemml-stager/internal/logger"
	"github.com/systemml/systemml-stager/internal/metrics"
	"github.com/systemml/systemml-stager/internal/service/common"
)

// Run executes a single staging run.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "stager")

	cfg, l, err := LoadLayout(ctx, opts)
	if err != nil {
		return err
	}

	marker, err := common.NewGuard().Acquire(ctx, l.PackageDir)
	if err != nil {
		return fmt.Errorf("acquire run marker: %w", err)
	}

	// Best-effort cleanup.
	defer func() {
		if releaseErr := marker.Release(); releaseErr != nil {
			logger.WarnKV(ctx, "Unable to release run marker", "error", releaseErr)
		}
	}()

	var recorder *metrics.Recorder
	if cfg.MetricsFile != "" {
		recorder = metrics.NewRecorder()
	}

	started := time.Now()
	result, err := New(l, WithRecorder(recorder)).Stage(ctx)
	finished := time.Now()

	recorder.ObserveRun(finished.Sub(started), finished, err == nil)

	if metricsErr := recorder.WriteTextfile(cfg.MetricsFile); metricsErr != nil {
		logger.WarnKV(ctx, "Unable to write metrics", "path", cfg.MetricsFile, "error", metricsErr)
	}

	if err != nil {
		return fmt.Errorf("stage failed: %w", err)
	}

	if opts != nil && opts.SaveConfig {
		if err = config.Save(opts.ConfigPath, cfg); err != nil {
			return fmt.Errorf("save settings: %w", err)
		}
	}

	logger.InfoKV(ctx, "Staging completed",
		"run_id", result.RunID,
		"archives", len(result.Archives),
		"scripts", result.Scripts,
		"native_files", len(result.NativeFiles),
		"duration", finished.Sub(started),
	)

	return nil
}
