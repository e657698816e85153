// Package config provides envelope protocol configuration through
// environment variables.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/allisson/go-env"
	"github.com/joho/godotenv"

	"github.com/cryptexq/cryptexq-go/internal/constants"
	qerrors "github.com/cryptexq/cryptexq-go/internal/errors"
)

// Config holds all envelope protocol configuration.
type Config struct {
	// IntegritySecret is the raw key material for the HMAC integrity
	// layer. Required; absence is a startup failure.
	IntegritySecret []byte

	// ReplayWindow is the acceptance window for message timestamps.
	ReplayWindow time.Duration
	// SkewTolerance is the tolerated sender clock skew into the future.
	SkewTolerance time.Duration

	// KeyExchangeMode selects the simulated key agreement
	// ("classical_dh", "hybrid_pqc", or "qkd_simulated").
	KeyExchangeMode string

	// QKDNoiseRate is the simulated quantum channel noise for the
	// qkd_simulated mode.
	QKDNoiseRate float64

	// SessionLifetime bounds session key validity.
	SessionLifetime time.Duration
	// SessionIdleTimeout tears down sessions with no traffic.
	SessionIdleTimeout time.Duration

	// BlobDir is the directory for persisted session key blobs.
	// Empty disables persistence.
	BlobDir string

	// LogLevel is the logging level ("debug", "info", "warn", "error").
	LogLevel string
}

// Load loads configuration from environment variables and .env file.
// It returns an error if INTEGRITY_SECRET is absent or a value is out of
// range; there is no silent fallback for secrets.
func Load() (*Config, error) {
	loadDotEnv()

	secret := env.GetString("INTEGRITY_SECRET", "")
	if secret == "" {
		return nil, qerrors.ErrMissingIntegritySecret
	}

	cfg := &Config{
		IntegritySecret: []byte(secret),

		ReplayWindow:  env.GetDuration("REPLAY_WINDOW_MS", constants.DefaultReplayWindowMillis, time.Millisecond),
		SkewTolerance: env.GetDuration("REPLAY_SKEW_MS", constants.DefaultSkewToleranceMillis, time.Millisecond),

		KeyExchangeMode: env.GetString("KEY_EXCHANGE_MODE", "hybrid_pqc"),
		QKDNoiseRate:    env.GetFloat64("QKD_NOISE_RATE", constants.QKDDefaultNoiseRate),

		SessionLifetime:    env.GetDuration("SESSION_LIFETIME_SECONDS", constants.DefaultSessionLifetimeSeconds, time.Second),
		SessionIdleTimeout: env.GetDuration("SESSION_IDLE_TIMEOUT_SECONDS", constants.DefaultIdleTimeoutSeconds, time.Second),

		BlobDir: env.GetString("SESSION_BLOB_DIR", ""),

		LogLevel: env.GetString("LOG_LEVEL", "info"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.ReplayWindow <= 0 || c.SkewTolerance < 0 {
		return qerrors.ErrInvalidConfig
	}
	if c.QKDNoiseRate < 0 || c.QKDNoiseRate >= 1 {
		return qerrors.ErrInvalidConfig
	}
	if c.SessionLifetime <= 0 {
		return qerrors.ErrInvalidConfig
	}
	switch c.KeyExchangeMode {
	case "classical_dh", "hybrid_pqc", "qkd_simulated":
	default:
		return qerrors.ErrInvalidConfig
	}
	return nil
}

// loadDotEnv walks up from the working directory looking for a .env file.
// Missing files are fine; environment variables always win.
func loadDotEnv() {
	dir, err := os.Getwd()
	if err != nil {
		return
	}
	for {
		path := filepath.Join(dir, ".env")
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}
