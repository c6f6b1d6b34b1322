package ingest

import (
	"context"
	"time"
)

// RunEvery runs a cycle immediately and then once per interval until ctx is
// cancelled. Cycles never overlap: a tick that arrives while a cycle is
// running is dropped. Cycle errors are logged and the loop carries on.
func (o *Orchestrator) RunEvery(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		report, err := o.RunCycle(ctx)
		if err != nil && ctx.Err() == nil {
			fields := map[string]interface{}{"error": err.Error()}
			if report != nil {
				fields["cycle_id"] = report.CycleID
			}
			o.logger.ErrorWithFields("Sync cycle failed", fields)
		}

		select {
		case <-ctx.Done():
			o.logger.Info("Stopping periodic sync")
			return nil
		case <-ticker.C:
		}
	}
}
