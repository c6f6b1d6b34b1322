package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"igsync/pkg/ingest"
	"igsync/pkg/ui"
)

func newRunCmd(o *rootOptions) *cobra.Command {
	var (
		resume       bool
		forceRestart bool
		maxRecords   int
		content      bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one sync cycle over all active accounts",
		Long: `Run one sync cycle: list the active accounts, fetch each one and write the
results back to Airtable.

A failing account is recorded in its "API Error" field and the cycle moves on.
Listing failures and authentication failures abort the cycle with a non-zero
exit code. An interrupted cycle leaves a checkpoint; pass --resume to skip the
accounts it already completed.`,
		Example: `  # Sync every active account
  igsync run

  # Also fetch posts into the content table
  igsync run --content

  # Only the first 10 active accounts
  igsync run --max-records 10

  # Continue an interrupted cycle
  igsync run --resume`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if resume && forceRestart {
				return errors.New("--resume and --force-restart are mutually exclusive")
			}

			extra := map[string]interface{}{}
			if cmd.Flags().Changed("max-records") {
				extra["max-records"] = maxRecords
			}
			if cmd.Flags().Changed("content") {
				extra["scrape-content"] = content
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			a, err := o.newApp(ctx, extra, ingest.Options{Resume: resume, ForceRestart: forceRestart})
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.orch.RunCycle(ctx)
			ui.PrintCycleReport(report)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return fmt.Errorf("cycle interrupted, rerun with --resume to continue: %w", err)
				}
				return err
			}
			ui.PrintSuccess("Sync cycle complete")
			return nil
		},
	}

	cmd.Flags().BoolVar(&resume, "resume", false, "resume the interrupted cycle from its checkpoint")
	cmd.Flags().BoolVar(&forceRestart, "force-restart", false, "discard an existing checkpoint and start fresh")
	cmd.Flags().IntVar(&maxRecords, "max-records", 0, "process at most N active accounts")
	cmd.Flags().BoolVar(&content, "content", false, "also fetch posts into the content table")
	return cmd
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
