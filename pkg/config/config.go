// Package config loads tool settings from the environment. A .env file
// in the working directory is loaded first when present, so local
// setups can keep their APSTRA_* variables next to the playbooks that
// use them.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds API connection and tool settings.
type Config struct {
	APIURL             string        `envconfig:"APSTRA_API_URL"`
	AuthToken          string        `envconfig:"APSTRA_AUTH_TOKEN"`
	Username           string        `envconfig:"APSTRA_USERNAME"`
	Password           string        `envconfig:"APSTRA_PASSWORD"`
	VerifyCertificates LenientBool   `envconfig:"APSTRA_VERIFY_CERTIFICATES" default:"true"`
	Timeout            time.Duration `envconfig:"CTC_HTTP_TIMEOUT" default:"30s"`
	APIRate            float64       `envconfig:"CTC_API_RATE" default:"10"`
	LogLevel           string        `envconfig:"CTC_LOG_LEVEL" default:"info"`
	SnapshotDB         string        `envconfig:"CTC_SNAPSHOT_DB" default:"ctc-snapshots.db"`
	OTLPEndpoint       string        `envconfig:"CTC_OTLP_ENDPOINT"`
}

// LenientBool accepts the loose spellings automation environments use
// for APSTRA_VERIFY_CERTIFICATES. Anything that is not an explicit
// "no" spelling counts as true.
type LenientBool bool

var falseSpellings = map[string]bool{
	"0": true, "false": true, "False": true, "FALSE": true,
	"no": true, "No": true, "NO": true,
}

// Decode implements envconfig.Decoder.
func (b *LenientBool) Decode(value string) error {
	*b = LenientBool(!falseSpellings[value])
	return nil
}

// Load reads configuration from the environment, preceded by .env in
// the working directory when one exists.
func Load() (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}
	return &cfg, nil
}

// RequireAPI checks that enough is configured to reach the API: a URL
// plus either a token or a username and password pair.
func (c *Config) RequireAPI() error {
	if c.APIURL == "" {
		return fmt.Errorf("missing required configuration: APSTRA_API_URL")
	}
	if c.AuthToken == "" && (c.Username == "" || c.Password == "") {
		return fmt.Errorf("missing required configuration: APSTRA_AUTH_TOKEN or APSTRA_USERNAME and APSTRA_PASSWORD")
	}
	return nil
}

// SlogLevel maps the configured log level to a slog.Level, defaulting
// to info for unknown values.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug", "DEBUG":
		return slog.LevelDebug
	case "warn", "WARN", "warning":
		return slog.LevelWarn
	case "error", "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds a text logger writing to w at the configured level.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: c.SlogLevel()}))
}
