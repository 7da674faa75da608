package verifier

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/systemml/systemml-stager/internal/config"
	"github.com/systemml/systemml-stager/internal/domain/layout"
	"github.com/systemml/systemml-stager/internal/repository/manifest"
	"github.com/systemml/systemml-stager/internal/service/stager"
)

func stagedLayout(t *testing.T) *layout.Layout {
	t.Helper()

	root := t.TempDir()
	files := map[string]string{
		"target/systemml-1.0.0-incubating-SNAPSHOT.jar": "jar",
		"scripts/algorithms/Kmeans.dml":                 "k = 3\n",
		"src/main/cpp/systemml.cpp":                     "cpp",
		"src/main/cpp/systemml.h":                       "h",
		"src/main/cpp/CMakeLists.txt":                   "cmake",
	}

	for rel, contents := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	}

	cfg := config.Default()
	cfg.RootDir = root
	cfg.PackageDir = filepath.Join(root, "pkg")
	require.NoError(t, os.Mkdir(cfg.PackageDir, 0o755))

	l, err := layout.Resolve(root, cfg)
	require.NoError(t, err)

	_, err = stager.New(l).Stage(context.Background())
	require.NoError(t, err)

	return l
}

// TestVerify_Clean ensures a fresh staging run verifies.
func TestVerify_Clean(t *testing.T) {
	t.Parallel()

	l := stagedLayout(t)

	report, err := Verify(context.Background(), l)
	require.NoError(t, err)
	require.True(t, report.OK())
	require.Equal(t, 5, report.Checked)
	require.NotEmpty(t, report.RunID)
}

// TestVerify_DetectsDrift tampers with the staging directories.
func TestVerify_DetectsDrift(t *testing.T) {
	t.Parallel()

	l := stagedLayout(t)

	require.NoError(t, os.Remove(filepath.Join(l.CppStagingDir, "systemml.h")))
	require.NoError(t, os.WriteFile(filepath.Join(l.ScriptsStagingDir(), "algorithms", "Kmeans.dml"), []byte("k = 4\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(l.JavaStagingDir, "extra.txt"), []byte("x"), 0o644))

	report, err := Verify(context.Background(), l)
	require.NoError(t, err)
	require.False(t, report.OK())
	require.Equal(t, []string{"systemml-cpp/systemml.h"}, report.Missing)
	require.Equal(t, []string{"systemml-java/scripts/algorithms/Kmeans.dml"}, report.Modified)
	require.Equal(t, []string{"systemml-java/extra.txt"}, report.Unexpected)
}

// TestVerify_MissingStagingDir reports every file of a removed directory as missing.
func TestVerify_MissingStagingDir(t *testing.T) {
	t.Parallel()

	l := stagedLayout(t)
	require.NoError(t, os.RemoveAll(l.CppStagingDir))

	report, err := Verify(context.Background(), l)
	require.NoError(t, err)
	require.Len(t, report.Missing, 3)
}

// TestVerify_NoManifest reports a missing or disabled manifest.
func TestVerify_NoManifest(t *testing.T) {
	t.Parallel()

	l := stagedLayout(t)
	require.NoError(t, os.Remove(l.ManifestPath))

	_, err := Verify(context.Background(), l)
	require.ErrorIs(t, err, manifest.ErrNotFound)

	l.ManifestPath = ""
	_, err = Verify(context.Background(), l)
	require.ErrorIs(t, err, errManifestDisabled)
}

// TestRun_ReturnsVerificationError drives the entry point over a tampered tree.
func TestRun_ReturnsVerificationError(t *testing.T) {
	t.Parallel()

	l := stagedLayout(t)
	configPath := filepath.Join(t.TempDir(), "stager.yaml")
	require.NoError(t, config.Save(configPath, config.Default()))

	opts := &stager.Options{
		ConfigPath: configPath,
		EnvFile:    filepath.Join(t.TempDir(), "absent.env"),
		WorkDir:    l.RootDir,
		RootDir:    l.RootDir,
		PackageDir: l.PackageDir,
	}

	require.NoError(t, Run(context.Background(), opts))

	require.NoError(t, os.Remove(filepath.Join(l.JavaStagingDir, "systemml-1.0.0-incubating-SNAPSHOT.jar")))
	require.ErrorIs(t, Run(context.Background(), opts), ErrVerificationFailed)
}
