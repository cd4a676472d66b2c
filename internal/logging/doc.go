// Package logging provides structured logging for imd-cfg.
//
// This package wraps a global zap logger. The wizard talks to the operator
// on stdout, so logging is silent by default and only switched on with
// --log-level or IMDCFG_LOG_LEVEL; entries then go to stderr and,
// optionally, to a rotating file (--log-file).
//
// # Log Levels
//
//   - Debug: every IMD API call with its retCode and timing
//   - Info: retries, state file saves and loads
//   - Warn: failed calls, passphrase retries
//   - Error: aborted runs
//
// # Structured Logging
//
//	logging.Info("State saved",
//	    zap.String("path", store.Path()),
//	    zap.Int("items", len(items)),
//	)
//
// Passwords and passphrases are never passed to the logger.
package logging
