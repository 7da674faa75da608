package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/systemml/systemml-stager/internal/service/watcher"
)

// watchCmd restages whenever the inputs change, until interrupted.
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Restage whenever build outputs, scripts or native sources change",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		return withSignals(func(ctx context.Context) error {
			return watcher.Run(ctx, &options)
		})
	},
}
