// Package logging provides structured logging for cc2538-bd.
//
// This package wraps a zap logger. Logging is silent unless a level is
// given on the command line (--verbose) or through CC2538_BD_LOG_LEVEL, so
// normal CLI output is never interleaved with log lines.
//
// # Log Levels
//
//   - Debug: every byte on the wire and every decoded frame
//   - Info: session state changes, page progress
//   - Warn: recoverable oddities (unknown chip flash size)
//   - Error: the failure that ended a run
//
// # Components
//
// Library packages never call the global helpers directly. They accept a
// *zap.Logger (usually logging.Named("session") or similar) so tests can
// pass zap.NewNop() or an observer:
//
//	s := bootloader.NewSession(t, bootloader.WithLogger(logging.Named("session")))
//
// # Frame Logging
//
//	logging.LogFrame(logger, "tx", cmd.String(), frame.Bytes())
//	logging.LogBytes(logger, "rx", buf[:n])
//
// Both are no-ops unless the logger has debug enabled.
//
// # Output Format
//
// Logs go to stderr in console format:
//
//	2026-10-18T10:30:45.123+0100  DEBUG  session  Bootloader frame  {"direction": "tx", "frame": "PING"}
package logging
