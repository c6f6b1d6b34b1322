package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"igsync/internal/server"
	"igsync/pkg/ingest"
	"igsync/pkg/logger"
)

func newDaemonCmd(o *rootOptions) *cobra.Command {
	var (
		interval time.Duration
		addr     string
	)

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run sync cycles periodically and serve status over HTTP",
		Long: `Run a sync cycle immediately and then once per interval until interrupted.

A cycle never overlaps the previous one. An interrupted cycle is resumed by
the next one. The status server answers:
  GET /health   liveness
  GET /status   orchestrator state and the last cycle report
  GET /cycles   journaled cycles (only when journal.database_url is set)`,
		Example: `  igsync daemon --interval 30m --addr :9090`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			extra := map[string]interface{}{}
			if cmd.Flags().Changed("interval") {
				extra["interval"] = interval
			}
			if cmd.Flags().Changed("addr") {
				extra["addr"] = addr
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			a, err := o.newApp(ctx, extra, ingest.Options{Resume: true})
			if err != nil {
				return err
			}
			defer a.Close()

			return runDaemon(ctx, a)
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 0, "time between cycle starts (default from sync.interval)")
	cmd.Flags().StringVar(&addr, "addr", "", "status server listen address (default from server.addr)")
	return cmd
}

// runDaemon runs the status server next to the cycle loop. A server that
// cannot listen stops the loop.
func runDaemon(ctx context.Context, a *app) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts := []server.Option{server.WithLogger(a.log.WithField("component", "server"))}
	if a.journal != nil {
		opts = append(opts, server.WithHistory(a.journal))
	}
	srv := server.New(a.cfg.Server.Addr, a.orch, opts...)

	srvErr := make(chan error, 1)
	go func() {
		err := srv.Run(ctx)
		if err != nil {
			a.log.WithError(err).Error("Status server failed")
			cancel()
		}
		srvErr <- err
	}()

	logger.LogComponentStart(a.log, "daemon", map[string]interface{}{
		"interval": a.cfg.Sync.Interval.String(),
		"addr":     a.cfg.Server.Addr,
	})
	loopErr := a.orch.RunEvery(ctx, a.cfg.Sync.Interval)
	cancel()

	err := <-srvErr
	logger.LogComponentStop(a.log, "daemon", "interrupted")
	if loopErr != nil {
		return loopErr
	}
	return err
}
