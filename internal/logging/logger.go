// Package logging provides structured logging configuration using log/slog.
//
// Log output goes to stdout and, when a writable directory can be found, to a
// timestamped append-only file. The file mirrors what operators attach to
// support tickets, so it is always written even when stdout is captured by a
// supervisor.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Setup configures the global slog logger based on level and format.
//
// Level values: "debug", "info", "warn", "error" (default: "info")
// Format values: "text", "json" (default: "text")
//
// dirOverride, when non-empty, replaces the default log directory search
// order. Returns the path of the log file, or "" if no directory was
// writable (logging then goes to stdout only).
func Setup(level, format, dirOverride string) string {
	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}

	out := io.Writer(os.Stdout)
	logPath := ""

	if f := openLogFile(dirOverride); f != nil {
		logPath = f.Name()
		out = io.MultiWriter(os.Stdout, f)
	}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	slog.SetDefault(slog.New(handler))
	return logPath
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// candidateDirs returns the log directory search order: ./logs, the working
// directory, ~/logs, $TMPDIR/logs, $TMPDIR.
func candidateDirs() []string {
	dirs := []string{"logs", "."}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, "logs"))
	}
	tmp := os.TempDir()
	dirs = append(dirs, filepath.Join(tmp, "logs"), tmp)
	return dirs
}

// openLogFile opens a timestamped append-only log file in the first writable
// candidate directory. Returns nil if none is writable.
func openLogFile(dirOverride string) *os.File {
	dirs := candidateDirs()
	if dirOverride != "" {
		dirs = []string{dirOverride}
	}

	name := fmt.Sprintf("ingest_%s.log", time.Now().UTC().Format("20060102_150405"))

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			continue
		}
		f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			continue
		}
		return f
	}
	return nil
}

// WithFields returns a logger with additional structured fields.
//
// This is useful for creating load-specific loggers that carry consistent
// context through a multi-step pipeline:
//
//	loadLogger := logging.WithFields("load_id", loadID, "kind", kind)
//	loadLogger.Info("load started")
func WithFields(args ...any) *slog.Logger {
	return slog.Default().With(args...)
}
