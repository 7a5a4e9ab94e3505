package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/fr0stylo/photomigrate/internal/config"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", color.New(color.FgRed).Sprint("photomigrate:"), err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "photomigrate",
		Short: "Move account photos from their current URLs into S3",
		Long: `photomigrate reads a CSV of (Child External ID, Child Photo URL) rows, resolves each
identifier to a Salesforce record, downloads the photo and uploads it to S3 under
<record id>/<file name>.

Every row ends in exactly one of the success or failure ledgers. The failure ledger
can be fed back as --input to retry only what failed.

Credentials come from the environment (or a .env file):
  SF_USERNAME, SF_PASSWORD, SF_SECURITY_TOKEN, AWS_ACCESS_KEY, AWS_SECRET_KEY, AWS_REGION, AWS_BUCKET`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), cmd.Flags(), cmd.OutOrStdout())
		},
	}
	config.RegisterFlags(cmd.Flags())
	return cmd
}
