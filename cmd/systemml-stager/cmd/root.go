package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/systemml/systemml-stager/internal/config"
	"github.com/systemml/systemml-stager/internal/logger"
	"github.com/systemml/systemml-stager/internal/service/stager"
	"github.com/systemml/systemml-stager/internal/version"
)

var (
	// options collects the flags shared by every subcommand.
	options stager.Options

	// rootCmd stages the package directory when run without a subcommand.
	rootCmd = &cobra.Command{
		Use:   "systemml-stager",
		Short: "Stage build artifacts into the python package directory",
		Long: `Copies build outputs into the python package directory before distribution.

Run from src/main/python: the project root is three levels up. The java staging
directory (systemml/systemml-java) receives every target/systemml-*-incubating-SNAPSHOT.jar
and a copy of scripts/, the cpp staging directory (systemml/systemml-cpp) receives
src/main/cpp/systemml.cpp, systemml.h and CMakeLists.txt. Both staging directories
are recreated on every run.`,
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(_ *cobra.Command, _ []string) error {
			return withSignals(func(ctx context.Context) error {
				return stager.Run(ctx, &options)
			})
		},
	}
)

// Execute runs the systemml-stager CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		logger.ErrorKV(context.Background(), "systemml-stager failed", "error", err)
		os.Exit(1)
	}
}

// withSignals runs fn with a context cancelled on SIGINT or SIGTERM.
func withSignals(fn func(ctx context.Context) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	return fn(ctx)
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&options.ConfigPath, "config", "c", "",
		"path to configuration file (default "+config.DefaultConfigFilename+" if present)")
	flags.StringVar(&options.EnvFile, "env-file", config.DefaultEnvFilename, "dotenv file with SYSTEMML_STAGER_* overrides")
	flags.StringVarP(&options.RootDir, "root", "r", "", "project root (default: three levels above the working directory)")
	flags.StringVarP(&options.PackageDir, "package-dir", "p", "", "package directory holding the staging directories")
	flags.StringVar(&options.MetricsFile, "metrics-file", "", "write Prometheus metrics to this textfile")
	flags.StringVarP(&options.LogLevel, "log-level", "l", "", "log level: debug, info, warn, error")

	rootCmd.AddCommand(stageCmd, verifyCmd, watchCmd)
}
