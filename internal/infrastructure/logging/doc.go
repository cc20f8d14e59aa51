// Package logging provides structured logging for the W215 bridge.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the entire application.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//
// # Configuration
//
//	logging:
//	  level: "debug"     # debug shows every polling decision
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Security
//
// Never log device pins, broker passwords or InfluxDB tokens. Use Redact:
//
//	logger.Debug("opening session", "pin", logging.Redact(pin))
package logging
