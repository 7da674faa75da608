package layout

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/systemml/systemml-stager/internal/config"
)

// Layout is the set of absolute paths a staging run reads from and writes to.
type Layout struct {
	// RootDir is the project root holding build outputs and sources.
	RootDir string
	// BuildOutputDir is scanned non-recursively for archives.
	BuildOutputDir string
	// ScriptsDir is copied recursively into the java staging directory.
	ScriptsDir string
	// NativeSourceDir holds the native files.
	NativeSourceDir string
	// PackageDir is the destination package root. It must exist before staging.
	PackageDir string
	// JavaStagingDir receives archives and scripts. Recreated on every run.
	JavaStagingDir string
	// CppStagingDir receives the native files. Recreated on every run.
	CppStagingDir string
	// ManifestPath is where the staging manifest goes. Empty disables it.
	ManifestPath string
	// ArchivePattern is the shell glob for archive names.
	ArchivePattern string
	// NativeFiles are file names inside NativeSourceDir.
	NativeFiles []string
}

// ScriptsStagingDir returns the destination of the scripts tree.
func (l *Layout) ScriptsStagingDir() string {
	return filepath.Join(l.JavaStagingDir, filepath.Base(l.ScriptsDir))
}

// StagingDirs returns the directories recreated by a run, in staging order.
func (l *Layout) StagingDirs() []string {
	return []string{l.JavaStagingDir, l.CppStagingDir}
}

var errWorkDirRequired = errors.New("working directory must be provided")

// Resolve builds a Layout from workDir and cfg. Relative settings are anchored
// at workDir (package side) or at the root (source side).
func Resolve(workDir string, cfg *config.Config) (*Layout, error) {
	if workDir == "" {
		return nil, errWorkDirRequired
	}

	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	workDir, err := filepath.Abs(workDir)
	if err != nil {
		return nil, fmt.Errorf("resolve working directory: %w", err)
	}

	root := cfg.RootDir
	if root == "" {
		root = Ancestor(workDir, cfg.RootDepth)
	} else if !filepath.IsAbs(root) {
		root = filepath.Join(workDir, root)
	}

	packageDir := anchor(workDir, cfg.PackageDir)

	l := &Layout{
		RootDir:         filepath.Clean(root),
		BuildOutputDir:  anchor(root, cfg.BuildOutputDir),
		ScriptsDir:      anchor(root, cfg.ScriptsDir),
		NativeSourceDir: anchor(root, cfg.NativeSourceDir),
		PackageDir:      packageDir,
		JavaStagingDir:  filepath.Join(packageDir, cfg.JavaDir),
		CppStagingDir:   filepath.Join(packageDir, cfg.CppDir),
		ArchivePattern:  cfg.ArchivePattern,
		NativeFiles:     append([]string(nil), cfg.NativeFiles...),
	}

	if cfg.ManifestFile != "" {
		l.ManifestPath = anchor(packageDir, cfg.ManifestFile)
	}

	return l, nil
}

// Ancestor returns the directory depth levels above dir. Climbing stops at the
// filesystem root.
func Ancestor(dir string, depth int) string {
	dir = filepath.Clean(dir)
	for i := 0; i < depth; i++ {
		dir = filepath.Dir(dir)
	}

	return dir
}

func anchor(base, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}

	return filepath.Join(base, path)
}
