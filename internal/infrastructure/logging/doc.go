// Package logging wraps log/slog for avrbridge.
//
// Every record carries the service name and version. Output format
// (JSON or text), level, and destination come from the logging section
// of config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Typical use:
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("receiver connected", "host", cfg.AVR.Host)
//
// Broker passwords and InfluxDB tokens must never appear in log
// fields; log their presence, not their value.
package logging
