package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/osama-ammar/ray-scripts/internal/db"
)

// Config holds all configuration values.
type Config struct {
	// Planning application bridge
	BridgeURL string `env:"AUTOPLAN_BRIDGE_URL" envDefault:"ws://localhost:8765/bridge"`
	// Zero leaves bridge calls unbounded.
	BridgeTimeout time.Duration `env:"AUTOPLAN_BRIDGE_TIMEOUT" envDefault:"0s"`

	// Protocol and preference files are resolved against this directory.
	ProtocolRoot    string `env:"AUTOPLAN_PROTOCOL_ROOT" envDefault:"."`
	MaxNameAttempts int    `env:"AUTOPLAN_MAX_NAME_ATTEMPTS" envDefault:"100"`

	// Logging
	LogFile      string     `env:"AUTOPLAN_LOG_FILE" envDefault:"/tmp/autoplan.log"`
	LogLevelName string     `env:"AUTOPLAN_LOG_LEVEL" envDefault:"INFO"`
	LogLevel     slog.Level `env:"-"`

	// Run ledger; an empty URL disables it.
	SurrealDBURL       string `env:"SURREALDB_URL"`
	SurrealDBNamespace string `env:"SURREALDB_NAMESPACE" envDefault:"autoplan"`
	SurrealDBDatabase  string `env:"SURREALDB_DATABASE" envDefault:"ledger"`
	SurrealDBUser      string `env:"SURREALDB_USER" envDefault:"root"`
	SurrealDBPass      string `env:"SURREALDB_PASS" envDefault:"root"`
	SurrealDBAuthLevel string `env:"SURREALDB_AUTH_LEVEL" envDefault:"root"`

	// Session lock; an empty URL disables it.
	RedisURL string        `env:"REDIS_URL"`
	LockTTL  time.Duration `env:"AUTOPLAN_LOCK_TTL" envDefault:"30s"`
	LockKey  string        `env:"AUTOPLAN_LOCK_KEY" envDefault:"autoplan:session"`
}

// LedgerEnabled reports whether runs are recorded in SurrealDB.
func (c Config) LedgerEnabled() bool {
	return c.SurrealDBURL != ""
}

// LockEnabled reports whether the session lock is taken.
func (c Config) LockEnabled() bool {
	return c.RedisURL != ""
}

// Load reads configuration from the environment, after loading a .env file
// from the working directory if there is one.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return Config{}, fmt.Errorf("load .env file: %w", err)
		}
	}
	return parse(env.Options{})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if cfg.MaxNameAttempts <= 0 {
		return cfg, fmt.Errorf("AUTOPLAN_MAX_NAME_ATTEMPTS must be positive, got %d", cfg.MaxNameAttempts)
	}
	cfg.LogLevel = parseLogLevel(cfg.LogLevelName)
	return cfg, nil
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// DB returns the ledger connection settings.
func (c Config) DB() db.Config {
	return db.Config{
		URL:       c.SurrealDBURL,
		Namespace: c.SurrealDBNamespace,
		Database:  c.SurrealDBDatabase,
		Username:  c.SurrealDBUser,
		Password:  c.SurrealDBPass,
		AuthLevel: c.SurrealDBAuthLevel,
	}
}
