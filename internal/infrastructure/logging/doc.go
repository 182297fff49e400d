// Package logging provides structured logging for govee2mqtt.
//
// It wraps Go's log/slog so every component logs with the same
// handler, level and default fields.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error (DEBUG=true forces debug)
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	log := logger.Component("bridge")
//	log.Info("device added", "device_id", id, "sku", sku)
//
// Attributes keyed api_key, password or token are replaced with
// "[redacted]" before they are written.
package logging
