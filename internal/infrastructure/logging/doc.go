// Package logging provides structured logging for the sensor gateway.
//
// It wraps log/slog with JSON (production) or text (development) output,
// level filtering and default service/version fields on every entry.
//
// Configuration:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("gateway connected", "transport", "serial")
//
// Never log MQTT passwords or InfluxDB tokens.
package logging
