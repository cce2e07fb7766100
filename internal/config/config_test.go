package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := parse(env.Options{Environment: map[string]string{}})

	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8765/bridge", cfg.BridgeURL)
	assert.Zero(t, cfg.BridgeTimeout)
	assert.Equal(t, ".", cfg.ProtocolRoot)
	assert.Equal(t, 100, cfg.MaxNameAttempts)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, 30*time.Second, cfg.LockTTL)
	assert.False(t, cfg.LedgerEnabled())
	assert.False(t, cfg.LockEnabled())
}

func TestParse_Overrides(t *testing.T) {
	cfg, err := parse(env.Options{Environment: map[string]string{
		"AUTOPLAN_BRIDGE_URL":        "ws://planning-host:9000/bridge",
		"AUTOPLAN_BRIDGE_TIMEOUT":    "45s",
		"AUTOPLAN_PROTOCOL_ROOT":     `/mnt/protocols`,
		"AUTOPLAN_MAX_NAME_ATTEMPTS": "10",
		"AUTOPLAN_LOG_LEVEL":         "debug",
		"SURREALDB_URL":              "ws://ledger:8000/rpc",
		"REDIS_URL":                  "redis://cache:6379/2",
		"AUTOPLAN_LOCK_TTL":          "1m",
	}})

	require.NoError(t, err)
	assert.Equal(t, "ws://planning-host:9000/bridge", cfg.BridgeURL)
	assert.Equal(t, 45*time.Second, cfg.BridgeTimeout)
	assert.Equal(t, "/mnt/protocols", cfg.ProtocolRoot)
	assert.Equal(t, 10, cfg.MaxNameAttempts)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.True(t, cfg.LedgerEnabled())
	assert.True(t, cfg.LockEnabled())
	assert.Equal(t, time.Minute, cfg.LockTTL)
}

func TestParse_Invalid(t *testing.T) {
	_, err := parse(env.Options{Environment: map[string]string{"AUTOPLAN_BRIDGE_TIMEOUT": "soon"}})
	require.Error(t, err)

	_, err = parse(env.Options{Environment: map[string]string{"AUTOPLAN_MAX_NAME_ATTEMPTS": "0"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be positive")
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"Warning": slog.LevelWarn,
		"ERROR":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLogLevel(in), in)
	}
}

func TestSetupLoggerWithWriters(t *testing.T) {
	var stderr, file bytes.Buffer
	logger := SetupLoggerWithWriters(&stderr, &file, slog.LevelInfo)

	logger.Debug("hidden")
	logger.Info("row finished", "line", 2, "status", "success")

	assert.Contains(t, stderr.String(), "row finished")
	assert.NotContains(t, stderr.String(), "hidden")

	var record map[string]any
	require.NoError(t, json.Unmarshal(file.Bytes(), &record))
	assert.Equal(t, "row finished", record["msg"])
	assert.Equal(t, float64(2), record["line"])
}

func TestSetupQuietLogger(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "autoplan.log")
	logger, cleanup := SetupQuietLogger(logFile, slog.LevelInfo)

	logger.Info("row finished")
	logger.Warn("row failed")
	require.NoError(t, cleanup())

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 2)
}

func TestConfig_DB(t *testing.T) {
	cfg, err := parse(env.Options{Environment: map[string]string{
		"SURREALDB_URL":        "ws://ledger:8000/rpc",
		"SURREALDB_AUTH_LEVEL": "database",
	}})
	require.NoError(t, err)

	dbCfg := cfg.DB()
	assert.Equal(t, "ws://ledger:8000/rpc", dbCfg.URL)
	assert.Equal(t, "autoplan", dbCfg.Namespace)
	assert.Equal(t, "ledger", dbCfg.Database)
	assert.Equal(t, "database", dbCfg.AuthLevel)
}

func TestSetupLogger_SplitLevels(t *testing.T) {
	var stderr bytes.Buffer
	logFile := filepath.Join(t.TempDir(), "autoplan.log")
	logger, cleanup := setupLogger(&stderr, logFile, slog.LevelWarn, slog.LevelDebug)

	logger.Debug("stage timing")
	logger.Warn("row failed")
	require.NoError(t, cleanup())

	assert.NotContains(t, stderr.String(), "stage timing")
	assert.Contains(t, stderr.String(), "row failed")
	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"stage timing"`)
	assert.Contains(t, string(data), `"msg":"row failed"`)
}

func TestSetupLogger_FileFallsBackToStderr(t *testing.T) {
	var stderr bytes.Buffer
	logFile := filepath.Join(t.TempDir(), "missing", "autoplan.log")
	logger, cleanup := setupLogger(&stderr, logFile, slog.LevelInfo)

	logger.Info("batch started")
	require.NoError(t, cleanup())

	assert.Contains(t, stderr.String(), "failed to open log file")
	assert.Contains(t, stderr.String(), "batch started")
	assert.NoFileExists(t, logFile)
}
