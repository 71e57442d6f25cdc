package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/Swind/go-batch-scheduler/core"
	"gopkg.in/natefinch/lumberjack.v2"
)

func parseSeverity(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("logging.severity must be debug, info, warn or error, got %q", s)
	}
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// NewLogger builds the logger described by c. When c.File is set, records
// go to a size-rotated file; the returned closer releases it.
func (c LoggingConfig) NewLogger() (core.Logger, io.Closer, error) {
	level, err := parseSeverity(c.Severity)
	if err != nil {
		return nil, nil, err
	}

	var w io.WriteCloser = nopCloser{os.Stderr}
	if c.File != "" {
		w = &lumberjack.Logger{
			Filename:   c.File,
			MaxSize:    c.LogRotate.MaxFileSizeMB,
			MaxBackups: c.LogRotate.BackupFileCount,
			Compress:   c.LogRotate.Compress,
		}
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if c.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return core.NewSlogLogger(slog.New(handler)), w, nil
}
