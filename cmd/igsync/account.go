package main

import (
	"github.com/spf13/cobra"

	"igsync/pkg/ingest"
	"igsync/pkg/ui"
)

func newAccountCmd(o *rootOptions) *cobra.Command {
	var (
		dryRun  bool
		content bool
	)

	cmd := &cobra.Command{
		Use:   "account <username>",
		Short: "Sync a single account",
		Long: `Fetch one account and write it back to its row in the accounts table.

The username may be a handle, an @handle or a profile URL. With --dry-run the
account is fetched and printed but nothing is written, and the row need not
exist.`,
		Example: `  igsync account natgeo
  igsync account https://www.instagram.com/natgeo/ --dry-run --content`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			extra := map[string]interface{}{}
			if cmd.Flags().Changed("content") {
				extra["scrape-content"] = content
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			a, err := o.newApp(ctx, extra, ingest.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.orch.SyncAccount(ctx, args[0], dryRun)
			ui.PrintAccountResult(res)
			return err
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "fetch and print without writing")
	cmd.Flags().BoolVar(&content, "content", false, "also fetch posts")
	return cmd
}
