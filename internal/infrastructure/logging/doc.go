// Package logging provides structured logging for the gateway.
//
// It wraps log/slog so every component logs through the same handler with
// the service name and version attached.
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
//	logger := logging.New(cfg.Logging, version)
//	gw.SetLogger(logger.Component("gateway"))
//	logger.Info("listening", "port", 6004)
//
// Never log auth tokens or client secrets.
package logging
