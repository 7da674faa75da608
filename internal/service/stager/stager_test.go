package stager

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/systemml/systemml-stager/internal/config"
	"github.com/systemml/systemml-stager/internal/domain/layout"
	"github.com/systemml/systemml-stager/internal/logger"
	"github.com/systemml/systemml-stager/internal/metrics"
	"github.com/systemml/systemml-stager/internal/repository/manifest"
)

const snapshotJar = "systemml-1.0.0-incubating-SNAPSHOT.jar"

// fixture is a throwaway source tree shaped like the SystemML repository.
type fixture struct {
	root   string
	work   string
	layout *layout.Layout
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	root := t.TempDir()
	work := filepath.Join(root, "src", "main", "python")

	writeFile(t, filepath.Join(root, "target", snapshotJar), "jar-bytes")
	writeFile(t, filepath.Join(root, "target", "systemml-1.0.0.jar"), "release")
	writeFile(t, filepath.Join(root, "target", "classes", "Main.class"), "class")
	writeFile(t, filepath.Join(root, "scripts", "algorithms", "LinearRegDS.dml"), "X = read($X)\n")
	writeFile(t, filepath.Join(root, "scripts", "nn", "layers", "affine.dml"), "forward = function() {}\n")
	writeFile(t, filepath.Join(root, "scripts", "README.md"), "# scripts\n")
	writeFile(t, filepath.Join(root, "src", "main", "cpp", "systemml.cpp"), "#include \"systemml.h\"\n")
	writeFile(t, filepath.Join(root, "src", "main", "cpp", "systemml.h"), "#pragma once\n")
	writeFile(t, filepath.Join(root, "src", "main", "cpp", "CMakeLists.txt"), "project(systemml)\n")
	writeFile(t, filepath.Join(root, "src", "main", "cpp", "unrelated.cpp"), "int x;\n")
	require.NoError(t, os.MkdirAll(filepath.Join(work, "systemml"), 0o755))

	l, err := layout.Resolve(work, config.Default())
	require.NoError(t, err)

	return &fixture{root: root, work: work, layout: l}
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
}

// snapshot maps slash-separated relative paths of regular files to their contents.
func snapshot(t *testing.T, dir string) map[string]string {
	t.Helper()

	files := make(map[string]string)

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}

		contents, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		files[filepath.ToSlash(rel)] = string(contents)

		return nil
	})
	require.NoError(t, err)

	return files
}

// TestStage_CopiesEverything checks the full layout produced by a run.
func TestStage_CopiesEverything(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	result, err := New(f.layout).Stage(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, result.RunID)
	require.Equal(t, []string{snapshotJar}, result.Archives)
	require.Equal(t, 3, result.Scripts)
	require.Equal(t, []string{"systemml.cpp", "systemml.h", "CMakeLists.txt"}, result.NativeFiles)

	scripts := snapshot(t, filepath.Join(f.root, "scripts"))
	java := snapshot(t, f.layout.JavaStagingDir)

	want := map[string]string{snapshotJar: "jar-bytes"}
	for rel, contents := range scripts {
		want["scripts/"+rel] = contents
	}

	require.Equal(t, want, java)

	require.Equal(t, map[string]string{
		"systemml.cpp":   "#include \"systemml.h\"\n",
		"systemml.h":     "#pragma once\n",
		"CMakeLists.txt": "project(systemml)\n",
	}, snapshot(t, f.layout.CppStagingDir))

	require.NotNil(t, result.Manifest)
	require.Len(t, result.Manifest.Files, 7)
	require.Contains(t, result.Manifest.Files, "systemml-java/scripts/nn/layers/affine.dml")
	require.Equal(t, f.root, result.Manifest.Root)
	require.FileExists(t, f.layout.ManifestPath)
}

// TestStage_RemovesLeftovers ensures prior staging contents never survive a run.
func TestStage_RemovesLeftovers(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	writeFile(t, filepath.Join(f.layout.JavaStagingDir, "systemml-0.9.0-incubating-SNAPSHOT.jar"), "old")
	writeFile(t, filepath.Join(f.layout.JavaStagingDir, "scripts", "gone.dml"), "old")
	writeFile(t, filepath.Join(f.layout.CppStagingDir, "systemml.o"), "old")

	_, err := New(f.layout).Stage(context.Background())
	require.NoError(t, err)

	require.NoFileExists(t, filepath.Join(f.layout.JavaStagingDir, "systemml-0.9.0-incubating-SNAPSHOT.jar"))
	require.NoFileExists(t, filepath.Join(f.layout.JavaStagingDir, "scripts", "gone.dml"))
	require.NoFileExists(t, filepath.Join(f.layout.CppStagingDir, "systemml.o"))
}

// TestStage_NoArchive ensures a missing archive is a silent no-op.
func TestStage_NoArchive(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	require.NoError(t, os.Remove(filepath.Join(f.root, "target", snapshotJar)))

	result, err := New(f.layout).Stage(context.Background())
	require.NoError(t, err)
	require.Empty(t, result.Archives)

	entries, err := os.ReadDir(f.layout.JavaStagingDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "scripts", entries[0].Name())
}

// TestStage_MultipleArchives ensures every match is staged.
func TestStage_MultipleArchives(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	writeFile(t, filepath.Join(f.root, "target", "systemml-1.1.0-incubating-SNAPSHOT.jar"), "newer")
	writeFile(t, filepath.Join(f.root, "target", "Systemml-1.2.0-incubating-SNAPSHOT.jar"), "wrong case")

	result, err := New(f.layout).Stage(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{snapshotJar, "systemml-1.1.0-incubating-SNAPSHOT.jar"}, result.Archives)
	require.FileExists(t, filepath.Join(f.layout.JavaStagingDir, "systemml-1.1.0-incubating-SNAPSHOT.jar"))
	require.NoFileExists(t, filepath.Join(f.layout.JavaStagingDir, "Systemml-1.2.0-incubating-SNAPSHOT.jar"))
}

// TestStage_Idempotent ensures two runs over unchanged inputs yield identical staging contents.
func TestStage_Idempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	s := New(f.layout)

	first, err := s.Stage(context.Background())
	require.NoError(t, err)

	javaBefore := snapshot(t, f.layout.JavaStagingDir)
	cppBefore := snapshot(t, f.layout.CppStagingDir)

	second, err := s.Stage(context.Background())
	require.NoError(t, err)

	require.Equal(t, javaBefore, snapshot(t, f.layout.JavaStagingDir))
	require.Equal(t, cppBefore, snapshot(t, f.layout.CppStagingDir))
	require.Equal(t, first.Manifest.Files, second.Manifest.Files)
	require.NotEqual(t, first.RunID, second.RunID)
}

// TestStage_FollowsSymlinks ensures linked scripts are staged as regular files.
func TestStage_FollowsSymlinks(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	target := filepath.Join(f.root, "scripts", "README.md")

	if err := os.Symlink(target, filepath.Join(f.root, "scripts", "LINK.md")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	_, err := New(f.layout).Stage(context.Background())
	require.NoError(t, err)

	staged := filepath.Join(f.layout.ScriptsStagingDir(), "LINK.md")
	info, err := os.Lstat(staged)
	require.NoError(t, err)
	require.True(t, info.Mode().IsRegular())

	contents, err := os.ReadFile(staged)
	require.NoError(t, err)
	require.Equal(t, "# scripts\n", string(contents))
}

// TestStage_MissingPackageDir ensures the package directory is not created implicitly.
func TestStage_MissingPackageDir(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	require.NoError(t, os.Remove(f.layout.PackageDir))

	_, err := New(f.layout).Stage(context.Background())
	require.ErrorIs(t, err, fs.ErrNotExist)
	require.NoDirExists(t, f.layout.PackageDir)
}

// TestStage_MissingBuildOutput ensures an absent build-output directory aborts the run.
func TestStage_MissingBuildOutput(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	require.NoError(t, os.RemoveAll(filepath.Join(f.root, "target")))

	_, err := New(f.layout).Stage(context.Background())
	require.ErrorIs(t, err, fs.ErrNotExist)
}

// TestStage_MissingScriptsLeavesPartialState ensures no rollback happens on failure.
func TestStage_MissingScriptsLeavesPartialState(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	require.NoError(t, os.RemoveAll(filepath.Join(f.root, "scripts")))

	_, err := New(f.layout).Stage(context.Background())
	require.ErrorIs(t, err, fs.ErrNotExist)
	require.ErrorContains(t, err, "stage scripts")

	require.FileExists(t, filepath.Join(f.layout.JavaStagingDir, snapshotJar))
	require.NoDirExists(t, f.layout.CppStagingDir)
	require.NoFileExists(t, f.layout.ManifestPath)
}

// TestStage_MissingNativeFile ensures each native file is required.
func TestStage_MissingNativeFile(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	require.NoError(t, os.Remove(filepath.Join(f.root, "src", "main", "cpp", "systemml.h")))

	_, err := New(f.layout).Stage(context.Background())
	require.ErrorIs(t, err, fs.ErrNotExist)
	require.FileExists(t, filepath.Join(f.layout.CppStagingDir, "systemml.cpp"))
}

// TestStage_DirectoryMatchingPattern ensures a matching directory is rejected.
func TestStage_DirectoryMatchingPattern(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	require.NoError(t, os.Mkdir(filepath.Join(f.root, "target", "systemml-2.0.0-incubating-SNAPSHOT.jar"), 0o755))

	_, err := New(f.layout).Stage(context.Background())
	require.ErrorIs(t, err, errNotRegular)
}

// TestStage_Cancelled ensures a cancelled context stops before touching the filesystem.
func TestStage_Cancelled(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(f.layout).Stage(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.NoDirExists(t, f.layout.JavaStagingDir)
}

// TestStage_ManifestDisabled ensures no manifest is written without a path.
func TestStage_ManifestDisabled(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.layout.ManifestPath = ""

	result, err := New(f.layout).Stage(context.Background())
	require.NoError(t, err)
	require.Nil(t, result.Manifest)
	require.NoFileExists(t, filepath.Join(f.layout.PackageDir, config.DefaultManifestFile))
}

// TestStage_ManifestContents checks the persisted manifest against the staged files.
func TestStage_ManifestContents(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	stagedAt := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

	_, err := New(f.layout, WithClock(func() time.Time { return stagedAt })).Stage(context.Background())
	require.NoError(t, err)

	m, err := manifest.NewFileRepository(f.layout.ManifestPath).Load(context.Background())
	require.NoError(t, err)
	require.True(t, stagedAt.Equal(m.StagedAt))
	require.Empty(t, m.SourceRevision)

	want, err := manifest.EncodedChecksum(filepath.Join(f.root, "src", "main", "cpp", "CMakeLists.txt"))
	require.NoError(t, err)
	require.Equal(t, want, m.Files["systemml-cpp/CMakeLists.txt"])
}

// TestStage_RecordsMetrics ensures every staged file is counted.
func TestStage_RecordsMetrics(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	recorder := metrics.NewRecorder()

	_, err := New(f.layout, WithRecorder(recorder)).Stage(context.Background())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "stager.prom")
	require.NoError(t, recorder.WriteTextfile(path))

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(contents), `systemml_stager_staged_files_total{kind="archive"} 1`)
	require.Contains(t, string(contents), `systemml_stager_staged_files_total{kind="script"} 3`)
	require.Contains(t, string(contents), `systemml_stager_staged_files_total{kind="native"} 3`)
}

// TestStage_RemovalFailure ensures a staging dir that cannot be removed is
// logged, counted and then reported by mkdir as already existing.
func TestStage_RemovalFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	require.NoError(t, os.Mkdir(f.layout.JavaStagingDir, 0o755))
	writeFile(t, filepath.Join(f.layout.JavaStagingDir, "stale.jar"), "old")

	var logs bytes.Buffer

	ctx := logger.ToContext(context.Background(), logger.New(zapcore.DebugLevel, &logs))
	recorder := metrics.NewRecorder()

	s := New(f.layout, WithRecorder(recorder))
	s.remove = func(string) error {
		return errors.New("device or resource busy")
	}

	_, err := s.Stage(ctx)
	require.ErrorIs(t, err, fs.ErrExist)
	require.Contains(t, logs.String(), "Unable to remove staging directory, continuing")
	require.Contains(t, logs.String(), "device or resource busy")
	require.FileExists(t, filepath.Join(f.layout.JavaStagingDir, "stale.jar"))

	path := filepath.Join(t.TempDir(), "stager.prom")
	require.NoError(t, recorder.WriteTextfile(path))

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(contents), "systemml_stager_removal_failures_total 1")
}
