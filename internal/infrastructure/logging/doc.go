// Package logging provides structured logging for fancontrold.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the daemon.
//
// # Features
//
//   - Text output by default, JSON on request
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error); error by default
//   - Optional companion file via lumberjack, rotated on every start
//   - Thread-safe for concurrent use
//
// # Configuration
//
//	logging:
//	  level: "error"     # debug, info, warn, error
//	  format: "text"     # json, text
//	  output: "stderr"   # stdout, stderr, none
//	  file:
//	    path: "/var/log/fancontrol.fancontrold.log"
//	    max_size: 10
//	    rotate_on_start: true
//
// FANCONTROL_LOG_FILE sets file.path to "<value>.fancontrold.log".
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	defer logger.Close()
//	logger.Info("listening", "port", port)
package logging
