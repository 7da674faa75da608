package watcher

import (
	"context"
	"fmt"
	"time"

	"github.com/systemml/systemml-stager/internal/logger"
	"github.com/systemml/systemml-stager/internal/metrics"
	"github.com/systemml/systemml-stager/internal/service/common"
	"github.com/systemml/systemml-stager/internal/service/stager"
)

// Run watches the staging inputs until ctx is cancelled.
func Run(ctx context.Context, opts *stager.Options) error {
	ctx = logger.WithName(ctx, "watcher")

	cfg, l, err := stager.LoadLayout(ctx, opts)
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

	onStaged := func(_ *stager.Result, took time.Duration, stageErr error) {
		recorder.ObserveRun(took, time.Now(), stageErr == nil)

		if metricsErr := recorder.WriteTextfile(cfg.MetricsFile); metricsErr != nil {
			logger.WarnKV(ctx, "Unable to write metrics", "path", cfg.MetricsFile, "error", metricsErr)
		}
	}

	w, err := New(stager.New(l, stager.WithRecorder(recorder)), cfg.WatchDebounce, WithOnStaged(onStaged))
	if err != nil {
		return err
	}

	defer func() {
		_ = w.Close()
	}()

	return w.Watch(ctx)
}
