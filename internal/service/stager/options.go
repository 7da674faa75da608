package stager

import (
	"context"
	"fmt"
	"os"

	"github.com/systemml/systemml-stager/internal/config"
	"github.com/systemml/systemml-stager/internal/domain/layout"
	"github.com/systemml/systemml-stager/internal/logger"
)

// Options contains inputs shared by the stage, verify and watch entry points.
// Empty fields keep the value from the configuration file or environment.
type Options struct {
	// ConfigPath is an optional path to the YAML settings (defaults to systemml-stager.yaml).
	ConfigPath string
	// EnvFile is an optional dotenv file read before environment overrides (defaults to .env).
	EnvFile string
	// WorkDir is the directory the layout is resolved from (defaults to the process working directory).
	WorkDir string
	// RootDir overrides the project root.
	RootDir string
	// PackageDir overrides the package directory.
	PackageDir string
	// MetricsFile overrides the Prometheus textfile destination.
	MetricsFile string
	// LogLevel overrides the configured log level.
	LogLevel string
	// SaveConfig persists the effective settings to ConfigPath after a successful run.
	SaveConfig bool
}

// LoadLayout merges file, environment and option settings, applies the log
// level and resolves the staging layout.
func LoadLayout(ctx context.Context, opts *Options) (*config.Config, *layout.Layout, error) {
	if opts == nil {
		opts = new(Options)
	}

	if err := config.LoadEnvFile(opts.EnvFile); err != nil {
		return nil, nil, err
	}

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, nil, err
	}

	if err = config.ApplyEnv(cfg); err != nil {
		return nil, nil, err
	}

	applyOverrides(cfg, opts)

	if lvl, ok := logger.ParseLogLevel(cfg.LogLevel); ok {
		logger.SetLevel(lvl)
	} else {
		logger.WarnKV(ctx, "Unknown log level, keeping current", "log_level", cfg.LogLevel)
	}

	workDir := opts.WorkDir
	if workDir == "" {
		if workDir, err = os.Getwd(); err != nil {
			return nil, nil, fmt.Errorf("get working directory: %w", err)
		}
	}

	l, err := layout.Resolve(workDir, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve layout: %w", err)
	}

	logger.DebugKV(ctx, "Resolved staging layout",
		"root", l.RootDir,
		"package_dir", l.PackageDir,
		"java_dir", l.JavaStagingDir,
		"cpp_dir", l.CppStagingDir,
	)

	return cfg, l, nil
}

func applyOverrides(cfg *config.Config, opts *Options) {
	if opts.RootDir != "" {
		cfg.RootDir = opts.RootDir
	}

	if opts.PackageDir != "" {
		cfg.PackageDir = opts.PackageDir
	}

	if opts.MetricsFile != "" {
		cfg.MetricsFile = opts.MetricsFile
	}

	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}
}
