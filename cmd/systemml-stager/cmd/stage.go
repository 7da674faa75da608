package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/systemml/systemml-stager/internal/service/stager"
)

// stageCmd is the explicit form of the root command.
var stageCmd = &cobra.Command{
	Use:   "stage",
	Short: "Recreate the staging directories and copy build artifacts into them",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		return withSignals(func(ctx context.Context) error {
			return stager.Run(ctx, &options)
		})
	},
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	stageCmd.Flags().BoolVar(&options.SaveConfig, "save-config", false, "persist the effective settings to --config")
}
