package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/systemml/systemml-stager/internal/logger"
	"github.com/systemml/systemml-stager/internal/service/stager"
)

// Watcher monitors staging inputs and restages on change.
type Watcher struct {
	// stager performs the restages.
	stager *stager.Stager
	// fsw is the underlying filesystem watcher.
	fsw *fsnotify.Watcher
	// debounce is the quiet period before a restage.
	debounce time.Duration
	// onStaged is called after every staging attempt.
	onStaged func(*stager.Result, time.Duration, error)
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithOnStaged registers a callback invoked after every staging attempt.
func WithOnStaged(fn func(*stager.Result, time.Duration, error)) Option {
	return func(w *Watcher) {
		w.onStaged = fn
	}
}

// New creates a Watcher for s. Close it when done.
func New(s *stager.Stager, debounce time.Duration, opts ...Option) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}

	w := &Watcher{
		stager:   s,
		fsw:      fsw,
		debounce: debounce,
		onStaged: func(*stager.Result, time.Duration, error) {},
	}

	for _, opt := range opts {
		opt(w)
	}

	return w, nil
}

// Close releases the filesystem watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// Watch stages once, then restages after every debounced change until ctx is
// cancelled. Staging errors are logged and do not stop the loop.
func (w *Watcher) Watch(ctx context.Context) error {
	l := w.stager.Layout()

	for _, dir := range []string{l.BuildOutputDir, l.NativeSourceDir} {
		if err := w.fsw.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	if err := w.addTree(l.ScriptsDir); err != nil {
		return err
	}

	logger.InfoKV(ctx, "Watching staging inputs",
		"build_output", l.BuildOutputDir,
		"scripts", l.ScriptsDir,
		"native_sources", l.NativeSourceDir,
		"debounce", w.debounce,
	)

	w.restage(ctx)

	timer := time.NewTimer(w.debounce)
	timer.Stop()

	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "Stopping watcher")
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}

			if !w.relevant(ctx, event) {
				continue
			}

			logger.DebugKV(ctx, "Input change detected", "file", event.Name, "op", event.Op.String())
			timer.Reset(w.debounce)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}

			logger.ErrorKV(ctx, "File watcher error", "error", err)
		case <-timer.C:
			w.restage(ctx)
		}
	}
}

// relevant filters out attribute-only events and starts watching new
// directories created inside the scripts tree.
func (w *Watcher) relevant(ctx context.Context, event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}

	if event.Has(fsnotify.Create) && w.inScripts(event.Name) {
		if err := w.addTree(event.Name); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logger.WarnKV(ctx, "Unable to watch new directory", "path", event.Name, "error", err)
		}
	}

	return true
}

func (w *Watcher) inScripts(path string) bool {
	rel, err := filepath.Rel(w.stager.Layout().ScriptsDir, path)

	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// addTree watches root and every directory below it.
func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.IsDir() {
			return nil
		}

		if err = w.fsw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}

		return nil
	})
}

func (w *Watcher) restage(ctx context.Context) {
	started := time.Now()
	result, err := w.stager.Stage(ctx)
	if err != nil {
		logger.ErrorKV(ctx, "Restage failed", "error", err)
	} else {
		logger.InfoKV(ctx, "Restaged", "run_id", result.RunID, "archives", len(result.Archives))
	}

	w.onStaged(result, time.Since(started), err)
}
