// Package logger builds the supervisor's own structured logger. It has
// nothing to do with the programs it supervises: each program's
// stdout_log/stderr_log are plain append-only files opened directly by
// internal/process, never rotated.
package logger

import (
	"io"
	"log/slog"
	"os"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation parameters for the supervisor's own log file.
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

// Config describes where and how the supervisor's own operational log is
// written. An empty Path logs to stderr with no rotation.
type Config struct {
	Path       string // destination file; "" means stderr
	MaxSizeMB  int    // megabytes before rotation (default 10)
	MaxBackups int    // number of backups to keep (default 3)
	MaxAgeDays int    // days to keep (default 7)
	Compress   bool   // gzip rotated files
	Level      slog.Level
}

// New builds the supervisor's logger per Config. When Path is set, the
// destination rotates via lumberjack; this is the one log in the system
// allowed to rotate, since it is the supervisor's own, not a program's.
func New(cfg Config) *slog.Logger {
	var w io.Writer = os.Stderr
	if cfg.Path != "" {
		w = &lj.Logger{
			Filename:   cfg.Path,
			MaxSize:    valOr(cfg.MaxSizeMB, DefaultMaxSizeMB),
			MaxBackups: valOr(cfg.MaxBackups, DefaultMaxBackups),
			MaxAge:     valOr(cfg.MaxAgeDays, DefaultMaxAgeDays),
			Compress:   cfg.Compress,
		}
	}
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: cfg.Level})
	return slog.New(h)
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
