// Package logger provides the structured logging interface used across twtracker.
//
// It wraps zerolog. Console output is colored for humans; when a log file is
// configured, JSON lines are also written there and the file is rotated by size
// (MaxSize MB, MaxBackups old files, MaxAge days).
//
//	if err := logger.Initialize(&cfg.Logging); err != nil {
//	    return err
//	}
//	log := logger.GetLogger().WithField("component", "dispatcher")
//	log.InfoWithFields("Unit completed", map[string]interface{}{
//	    "target":   "42",
//	    "since_id": int64(1234567890),
//	})
//
// Tests use NewNopLogger or NewTestLogger, which records messages in memory.
package logger
