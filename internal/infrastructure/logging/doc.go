// Package logging provides structured logging for the Things runner.
//
// It wraps log/slog so every component logs with the same default fields
// (service, version) and level filtering.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	mgr.SetLogger(logger.Component("manager"))
//	logger.Error("store unavailable", "store", "redis", "error", err)
//
// Never log secrets, tokens or passwords.
package logging
