package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/systemml/systemml-stager/internal/service/verifier"
)

// verifyCmd checks the staging directories against the last manifest.
var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check staged files against the staging manifest",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		return withSignals(func(ctx context.Context) error {
			return verifier.Run(ctx, &options)
		})
	},
}
