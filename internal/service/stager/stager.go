package stager

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/magefile/mage/sh"
	"github.com/otiai10/copy"

	"github.com/systemml/systemml-stager/internal/domain/layout"
	"github.com/systemml/systemml-stager/internal/logger"
	"github.com/systemml/systemml-stager/internal/metrics"
	"github.com/systemml/systemml-stager/internal/repository/manifest"
	"github.com/systemml/systemml-stager/internal/repository/revision"
	"github.com/systemml/systemml-stager/internal/service/common"
	"github.com/systemml/systemml-stager/internal/version"
)

// DefaultDirMode is used for the staging directories.
const DefaultDirMode os.FileMode = 0o755

var (
	errNotRegular   = errors.New("not a regular file")
	errNotDirectory = errors.New("not a directory")
)

// Result summarises a successful staging run.
type Result struct {
	// RunID identifies the run in logs and in the manifest.
	RunID string
	// Archives are the archive names staged, in name order.
	Archives []string
	// Scripts is the number of regular files in the staged scripts tree.
	Scripts int
	// NativeFiles are the native file names staged.
	NativeFiles []string
	// Manifest is the manifest written for the run, nil when disabled.
	Manifest *manifest.Manifest
}

// Stager performs staging runs for one layout.
type Stager struct {
	// layout holds every path a run touches.
	layout *layout.Layout
	// recorder receives staging metrics; nil discards them.
	recorder *metrics.Recorder
	// now is the clock used for the manifest timestamp.
	now func() time.Time
	// remove deletes a staging directory tree.
	remove func(path string) error
}

// Option configures a Stager.
type Option func(*Stager)

// WithRecorder sets the metrics recorder.
func WithRecorder(r *metrics.Recorder) Option {
	return func(s *Stager) {
		s.recorder = r
	}
}

// WithClock overrides the clock used for manifest timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Stager) {
		if now != nil {
			s.now = now
		}
	}
}

// New returns a Stager for l.
func New(l *layout.Layout, opts ...Option) *Stager {
	s := &Stager{
		layout: l,
		now:    time.Now,
		remove: sh.Rm,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Layout returns the paths the stager works on.
func (s *Stager) Layout() *layout.Layout {
	return s.layout
}

// Stage runs every staging step in order. A failing step stops the run and
// leaves earlier steps' output in place.
func (s *Stager) Stage(ctx context.Context) (*Result, error) {
	result := &Result{RunID: uuid.NewString()}

	ctx = logger.WithKV(ctx, "run_id", result.RunID)
	logger.InfoKV(ctx, "Staging build artifacts", "root", s.layout.RootDir, "package_dir", s.layout.PackageDir)

	steps := []struct {
		name string
		run  func(context.Context, *Result) error
	}{
		{"reset java staging directory", func(ctx context.Context, _ *Result) error {
			return s.resetDir(ctx, s.layout.JavaStagingDir)
		}},
		{"stage archives", s.stageArchives},
		{"stage scripts", s.stageScripts},
		{"reset cpp staging directory", func(ctx context.Context, _ *Result) error {
			return s.resetDir(ctx, s.layout.CppStagingDir)
		}},
		{"stage native files", s.stageNativeFiles},
		{"write manifest", s.writeManifest},
	}

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		logger.DebugKV(ctx, "Running staging step", "step", step.name)

		if err := step.run(ctx, result); err != nil {
			return nil, fmt.Errorf("%s: %w", step.name, err)
		}
	}

	return result, nil
}

// resetDir removes dir best-effort and creates it again, empty. The parent
// must already exist.
func (s *Stager) resetDir(ctx context.Context, dir string) error {
	if _, err := os.Lstat(dir); err == nil {
		if err = s.remove(dir); err != nil {
			logger.WarnKV(ctx, "Unable to remove staging directory, continuing", "path", dir, "error", err)
			s.recorder.IncRemovalFailure()
		}
	}

	if err := os.Mkdir(dir, DefaultDirMode); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	return nil
}

// stageArchives copies every build-output entry matching the archive pattern.
func (s *Stager) stageArchives(ctx context.Context, result *Result) error {
	entries, err := os.ReadDir(s.layout.BuildOutputDir)
	if err != nil {
		return fmt.Errorf("list build output: %w", err)
	}

	for _, entry := range entries {
		matched, err := filepath.Match(s.layout.ArchivePattern, entry.Name())
		if err != nil {
			return fmt.Errorf("match %s: %w", entry.Name(), err)
		}

		if !matched {
			continue
		}

		src := filepath.Join(s.layout.BuildOutputDir, entry.Name())

		size, err := copyFile(src, filepath.Join(s.layout.JavaStagingDir, entry.Name()))
		if err != nil {
			return err
		}

		s.recorder.ObserveFile(metrics.KindArchive, size)
		result.Archives = append(result.Archives, entry.Name())

		logger.InfoKV(ctx, "Staged archive", "archive", entry.Name(), "bytes", size)
	}

	if len(result.Archives) == 0 {
		logger.WarnKV(ctx, "No archive matched, nothing staged",
			"dir", s.layout.BuildOutputDir,
			"pattern", s.layout.ArchivePattern,
		)
	}

	return nil
}

// stageScripts copies the scripts tree below the java staging directory.
func (s *Stager) stageScripts(ctx context.Context, result *Result) error {
	dest := s.layout.ScriptsStagingDir()

	info, err := os.Stat(s.layout.ScriptsDir)
	if err != nil {
		return fmt.Errorf("stat scripts: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("%s: %w", s.layout.ScriptsDir, errNotDirectory)
	}

	if _, err = os.Lstat(dest); err == nil {
		return fmt.Errorf("%s: %w", dest, fs.ErrExist)
	}

	err = copy.Copy(s.layout.ScriptsDir, dest, copy.Options{
		OnSymlink: func(string) copy.SymlinkAction {
			return copy.Deep
		},
		PreserveTimes: true,
	})
	if err != nil {
		return fmt.Errorf("copy %s: %w", s.layout.ScriptsDir, err)
	}

	err = filepath.WalkDir(dest, func(_ string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil || !d.Type().IsRegular() {
			return walkErr
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		result.Scripts++
		s.recorder.ObserveFile(metrics.KindScript, info.Size())

		return nil
	})
	if err != nil {
		return fmt.Errorf("inspect staged scripts: %w", err)
	}

	logger.InfoKV(ctx, "Staged scripts", "files", result.Scripts, "dest", dest)

	return nil
}

// stageNativeFiles copies the native files into the cpp staging directory.
func (s *Stager) stageNativeFiles(ctx context.Context, result *Result) error {
	for _, name := range s.layout.NativeFiles {
		size, err := copyFile(
			filepath.Join(s.layout.NativeSourceDir, name),
			filepath.Join(s.layout.CppStagingDir, filepath.Base(name)),
		)
		if err != nil {
			return err
		}

		s.recorder.ObserveFile(metrics.KindNative, size)
		result.NativeFiles = append(result.NativeFiles, filepath.Base(name))
	}

	logger.InfoKV(ctx, "Staged native files", "files", result.NativeFiles)

	return nil
}

// writeManifest checksums the staging directories and saves the manifest.
func (s *Stager) writeManifest(ctx context.Context, result *Result) error {
	if s.layout.ManifestPath == "" {
		return nil
	}

	m := manifest.New(result.RunID, version.Short())
	m.Root = s.layout.RootDir

	if err := Collect(s.layout, m.Add); err != nil {
		return err
	}

	if actor, err := common.DetectActor(); err != nil {
		logger.WarnKV(ctx, "Unable to detect actor", "error", err)
	} else {
		m.StagedBy = actor
	}

	if rev, err := revision.Head(s.layout.RootDir); err != nil {
		logger.WarnKV(ctx, "Unable to read source revision", "error", err)
	} else {
		m.SourceRevision = rev
	}

	m.StagedAt = s.now().UTC()

	if err := manifest.NewFileRepository(s.layout.ManifestPath).Save(ctx, m); err != nil {
		return err
	}

	result.Manifest = m

	logger.InfoKV(ctx, "Saved staging manifest", "path", s.layout.ManifestPath, "files", len(m.Files))

	return nil
}

// Collect calls visit for every regular file inside the staging directories
// with its path relative to the package directory. Missing staging
// directories are skipped.
func Collect(l *layout.Layout, visit func(rel, path string) error) error {
	for _, dir := range l.StagingDirs() {
		if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
			continue
		}

		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}

			if d.IsDir() {
				return nil
			}

			rel, err := filepath.Rel(l.PackageDir, path)
			if err != nil {
				return err
			}

			return visit(filepath.ToSlash(rel), path)
		})
		if err != nil {
			return fmt.Errorf("walk %s: %w", dir, err)
		}
	}

	return nil
}

// copyFile copies the contents of the regular file src to dst and returns the
// number of bytes copied.
func copyFile(src, dst string) (int64, error) {
	info, err := os.Stat(src)
	if err != nil {
		return 0, fmt.Errorf("stat source: %w", err)
	}

	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("%s: %w", src, errNotRegular)
	}

	if err = sh.Copy(dst, src); err != nil {
		return 0, fmt.Errorf("copy %s: %w", filepath.Base(src), err)
	}

	return info.Size(), nil
}
