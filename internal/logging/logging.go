// Package logging provides structured logging configuration.
package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds logging configuration options.
type Config struct {
	Level  string // debug|info|warn|error
	Format string // json|console
}

// New creates a new configured zap logger.
func New(cfg Config) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.Set(strings.ToLower(cfg.Level)); err != nil {
			return nil, err
		}
	}

	format := strings.ToLower(cfg.Format)
	if format == "" {
		format = "json"
	}

	var zcfg zap.Config
	if format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}

	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.EncoderConfig.TimeKey = "ts"
	zcfg.EncoderConfig.LevelKey = "level"
	zcfg.EncoderConfig.MessageKey = "msg"
	zcfg.EncoderConfig.CallerKey = "caller"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zcfg.Build(zap.AddCaller())
	if err != nil {
		return nil, err
	}

	logger = logger.With(zap.String("service", "blindspot"))

	return logger, nil
}

// Sync flushes any buffered log entries.
func Sync(logger *zap.Logger) {
	_ = logger.Sync()
}

// FromEnv creates a Config from environment variables.
func FromEnv() Config {
	return Config{
		Level:  getenv("BLINDSPOT_LOG_LEVEL", "info"),
		Format: getenv("BLINDSPOT_LOG_FORMAT", "json"),
	}
}

func getenv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// Component returns a zap field for the component name.
func Component(name string) zap.Field { return zap.String("component", name) }

// Port returns a zap field for the port number.
func Port(port int) zap.Field { return zap.Int("port", port) }

// Addr returns a zap field for an address.
func Addr(addr string) zap.Field { return zap.String("addr", addr) }

// Host returns a zap field for a host name.
func Host(host string) zap.Field { return zap.String("host", host) }

// Method returns a zap field for an HTTP method.
func Method(method string) zap.Field { return zap.String("method", method) }

// Path returns a zap field for a URL path.
func Path(path string) zap.Field { return zap.String("path", path) }

// URL returns a zap field for a full URL.
func URL(url string) zap.Field { return zap.String("url", url) }

// SourceIP returns a zap field for a resolved source address.
func SourceIP(ip string) zap.Field { return zap.String("source_ip", ip) }

// TrackingID returns a zap field for a tracking identifier.
func TrackingID(id string) zap.Field { return zap.String("tracking_id", id) }

// AlertID returns a zap field for an alert identifier.
func AlertID(id int64) zap.Field { return zap.Int64("alert_id", id) }

// Channel returns a zap field for a notification channel name.
func Channel(name string) zap.Field { return zap.String("channel", name) }

// Severity returns a zap field for a classified alert severity.
func Severity(s string) zap.Field { return zap.String("severity", s) }

// RequestID returns a zap field for a per-request correlation ID.
func RequestID(id string) zap.Field { return zap.String("request_id", id) }

// Domain returns a zap field for a domain name.
func Domain(domain string) zap.Field { return zap.String("domain", domain) }

// TLSMode returns a zap field for TLS mode.
func TLSMode(mode string) zap.Field { return zap.String("tls_mode", mode) }
