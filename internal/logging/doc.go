// Package logging provides structured diagnostics for shmchat processes.
//
// Chat output owns stdout, so the logger never writes there. It emits
// JSON lines through log/slog to shmchat.log in the configured directory,
// or to stderr when no directory is set.
//
// Child loggers carry persistent attributes:
//
//	logger := logging.NopLogger().
//	    WithSegment("shared_memory").
//	    WithParticipant("3f1c…", "alice")
//	logger.Info("attached", "participants", 2)
//
// The file rotates by size when RotationConfig.MaxSizeMB is positive.
// All types are safe for concurrent use.
package logging
