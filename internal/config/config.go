// Package config loads spamwatch settings from SPAMWATCH_* environment
// variables and builds the process logger.
package config

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultURL is the spammer's control endpoint when SPAMWATCH_URL is unset.
const DefaultURL = "ws://localhost:8080/api/spammer"

type Config struct {
	URL       string // SPAMWATCH_URL (default DefaultURL)
	AuthToken string // SPAMWATCH_TOKEN (optional, empty = auth disabled)
	NATSURL   string // SPAMWATCH_NATS_URL (optional, empty = no relay)
	HTTPAddr  string // SPAMWATCH_HTTP_ADDR (default ":9090")
	GRPCAddr  string // SPAMWATCH_GRPC_ADDR (default ":9091")

	PingInterval time.Duration // SPAMWATCH_PING_INTERVAL (default 10s; 0 = off)
	ReadTimeout  time.Duration // SPAMWATCH_READ_TIMEOUT (default 30s; 0 = none)
	WriteTimeout time.Duration // SPAMWATCH_WRITE_TIMEOUT (default 5s)
	Retention    int           // SPAMWATCH_RETENTION (default 0 = unbounded)

	// Export settings
	ExportInterval   time.Duration // SPAMWATCH_EXPORT_INTERVAL (default 0 = disabled)
	ExportFile       string        // SPAMWATCH_EXPORT_FILE (enables file export when set)
	ExportS3Bucket   string        // SPAMWATCH_EXPORT_S3_BUCKET (enables S3 when set)
	ExportS3Key      string        // SPAMWATCH_EXPORT_S3_KEY (default "spamwatch/export.jsonl")
	ExportS3Region   string        // SPAMWATCH_EXPORT_S3_REGION (default "us-east-1")
	ExportS3Endpoint string        // SPAMWATCH_EXPORT_S3_ENDPOINT (custom endpoint for MinIO)

	TLSSkipVerify bool   // SPAMWATCH_TLS_SKIP_VERIFY
	TLSCAPath     string // SPAMWATCH_TLS_CA_PATH

	LogLevel string // SPAMWATCH_LOG_LEVEL (debug, info, warn, error; default info)
	LogJSON  bool   // SPAMWATCH_LOG_JSON
}

func Load() (*Config, error) {
	c := &Config{
		URL:              envOrDefault("SPAMWATCH_URL", DefaultURL),
		AuthToken:        os.Getenv("SPAMWATCH_TOKEN"),
		NATSURL:          os.Getenv("SPAMWATCH_NATS_URL"),
		HTTPAddr:         envOrDefault("SPAMWATCH_HTTP_ADDR", ":9090"),
		GRPCAddr:         envOrDefault("SPAMWATCH_GRPC_ADDR", ":9091"),
		ExportFile:       os.Getenv("SPAMWATCH_EXPORT_FILE"),
		ExportS3Bucket:   os.Getenv("SPAMWATCH_EXPORT_S3_BUCKET"),
		ExportS3Key:      envOrDefault("SPAMWATCH_EXPORT_S3_KEY", "spamwatch/export.jsonl"),
		ExportS3Region:   envOrDefault("SPAMWATCH_EXPORT_S3_REGION", "us-east-1"),
		ExportS3Endpoint: os.Getenv("SPAMWATCH_EXPORT_S3_ENDPOINT"),
		TLSCAPath:        os.Getenv("SPAMWATCH_TLS_CA_PATH"),
		LogLevel:         strings.ToLower(envOrDefault("SPAMWATCH_LOG_LEVEL", "info")),
	}

	var errs []error
	c.PingInterval = envDuration("SPAMWATCH_PING_INTERVAL", 10*time.Second, &errs)
	c.ReadTimeout = envDuration("SPAMWATCH_READ_TIMEOUT", 30*time.Second, &errs)
	c.WriteTimeout = envDuration("SPAMWATCH_WRITE_TIMEOUT", 5*time.Second, &errs)
	c.ExportInterval = envDuration("SPAMWATCH_EXPORT_INTERVAL", 0, &errs)
	c.Retention = envInt("SPAMWATCH_RETENTION", 0, &errs)
	c.TLSSkipVerify = envBool("SPAMWATCH_TLS_SKIP_VERIFY", false, &errs)
	c.LogJSON = envBool("SPAMWATCH_LOG_JSON", false, &errs)
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks values that parse but make no sense.
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.URL, "ws://") && !strings.HasPrefix(c.URL, "wss://") {
		return fmt.Errorf("SPAMWATCH_URL must be a ws:// or wss:// URL, got %q", c.URL)
	}
	for name, d := range map[string]time.Duration{
		"SPAMWATCH_PING_INTERVAL":   c.PingInterval,
		"SPAMWATCH_READ_TIMEOUT":    c.ReadTimeout,
		"SPAMWATCH_WRITE_TIMEOUT":   c.WriteTimeout,
		"SPAMWATCH_EXPORT_INTERVAL": c.ExportInterval,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	if c.Retention < 0 {
		return errors.New("SPAMWATCH_RETENTION must not be negative")
	}
	if c.ReadTimeout > 0 && c.PingInterval > 0 && c.PingInterval >= c.ReadTimeout {
		return errors.New("SPAMWATCH_PING_INTERVAL must be shorter than SPAMWATCH_READ_TIMEOUT")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("SPAMWATCH_LOG_LEVEL: unknown level %q", c.LogLevel)
	}
	return nil
}

// ExportEnabled reports whether any export destination is configured.
func (c *Config) ExportEnabled() bool {
	return c.ExportFile != "" || c.ExportS3Bucket != ""
}

// TLSConfig returns the client TLS settings for wss:// connections, or nil
// when the defaults apply.
func (c *Config) TLSConfig() (*tls.Config, error) {
	if !c.TLSSkipVerify && c.TLSCAPath == "" {
		return nil, nil
	}
	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: c.TLSSkipVerify}
	if c.TLSCAPath != "" {
		caBytes, err := os.ReadFile(c.TLSCAPath)
		if err != nil {
			return nil, fmt.Errorf("read CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caBytes) {
			return nil, errors.New("append CA cert failed")
		}
		tlsCfg.RootCAs = pool
	}
	return tlsCfg, nil
}

// BuildLogger returns a logger writing to w at the configured level, as
// JSON when LogJSON is set.
func (c *Config) BuildLogger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch c.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	hOpts := &slog.HandlerOptions{Level: level}
	if c.LogJSON {
		return slog.New(slog.NewJSONHandler(w, hOpts))
	}
	return slog.New(slog.NewTextHandler(w, hOpts))
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration, errs *[]error) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return d
}

func envInt(key string, fallback int, errs *[]error) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return i
}

func envBool(key string, fallback bool, errs *[]error) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch v {
	case "":
		return fallback
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		*errs = append(*errs, fmt.Errorf("%s: invalid boolean %q", key, v))
		return fallback
	}
}
