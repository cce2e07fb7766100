package config

import (
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

// SetupLogger logs text to stderr and JSON to logFile.
// If the file cannot be opened only stderr is used. The cleanup closes the file.
func SetupLogger(logFile string, level slog.Level) (*slog.Logger, func() error) {
	return setupLogger(os.Stderr, logFile, level)
}

// SetupQuietLogger is SetupLogger with stderr limited to warnings, for when a
// progress display owns the terminal.
func SetupQuietLogger(logFile string, level slog.Level) (*slog.Logger, func() error) {
	return setupLogger(os.Stderr, logFile, max(level, slog.LevelWarn), level)
}

func setupLogger(stderr io.Writer, logFile string, levels ...slog.Level) (*slog.Logger, func() error) {
	// One level applies to both outputs, a second one to the file
	stderrLevel, fileLevel := levels[0], levels[0]
	if len(levels) > 1 {
		fileLevel = levels[1]
	}
	// Stderr handler (text for the operator)
	stderrHandler := slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: stderrLevel})

	if logFile == "" {
		return slog.New(stderrHandler), func() error { return nil }
	}
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		// Keep going on stderr alone
		slog.New(stderrHandler).Error("failed to open log file, using stderr only", "error", err, "file", logFile)
		return slog.New(stderrHandler), func() error { return nil }
	}

	// File handler (JSON, one record per line)
	fileHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: fileLevel})

	// Fanout to both handlers
	return slog.New(slogmulti.Fanout(stderrHandler, fileHandler)), file.Close
}

// SetupLoggerWithWriters creates a logger with custom writers (for testing).
func SetupLoggerWithWriters(stderr, file io.Writer, level slog.Level) *slog.Logger {
	stderrHandler := slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level})
	fileHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level})
	return slog.New(slogmulti.Fanout(stderrHandler, fileHandler))
}
