// Package logger provides the structured logging interface used across igsync.
//
// It wraps zerolog. Console output is colored for humans; when
// logging.file_path is set, JSON lines are also written to that file and
// rotated by lumberjack once they exceed logging.max_size bytes, keeping
// logging.backup_count old files.
//
//	log, err := logger.New(&cfg.Logging)
//	log.WithField("account", "acme").Info("Account synced")
//	log.InfoWithFields("Cycle finished", map[string]interface{}{
//	    "succeeded": 12,
//	    "failed":    1,
//	})
//
// Tests use NewTestLogger to capture messages or NewNopLogger to drop them.
package logger
