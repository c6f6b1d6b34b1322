package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"igsync/pkg/ingest"
	"igsync/pkg/ui"
)

func newSnapshotCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot",
		Short: "Copy current views and followers into the Previous columns",
		Long: `Copy "Views" (or "View Count") into "Previous Views" on every content row and
"Followers" into "Previous Followers" on every active account.

A cycle with content enabled does this automatically before it starts. The
content table is skipped when airtable.content_table is not configured.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			a, err := o.newApp(ctx, nil, ingest.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			if a.cfg.Airtable.ContentTable != "" {
				n, err := a.store.SnapshotViews(ctx)
				if err != nil {
					return err
				}
				ui.PrintInfo("Content rows snapshotted", fmt.Sprintf("%d", n))
			} else {
				ui.PrintWarning("No content table configured, skipping views")
			}

			n, err := a.store.SnapshotFollowers(ctx)
			if err != nil {
				return err
			}
			ui.PrintInfo("Account rows snapshotted", fmt.Sprintf("%d", n))
			return nil
		},
	}
}
