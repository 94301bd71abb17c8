// Package logging provides structured logging for logix-uplink.
//
// It wraps log/slog so every component logs with the same handler,
// level filtering and default fields (service, version).
//
// Configuration lives in the logging section of config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("pass complete", "batches", 3)
//
// Never log upstream credentials. Token values are reduced to their
// length before they reach a log line.
package logging
