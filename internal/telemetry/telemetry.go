// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package telemetry sets up structured logging for the localchat engine.
//
// Logs are written as JSON through a size-rotated file so a long-running
// desktop session cannot fill the disk. Nothing is written to stdout; the
// interactive surface owns that stream.
package telemetry

import (
	"io"
	"log/slog"

	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Options controls log destination and verbosity.
type Options struct {
	// File is the log file path. Empty disables logging entirely.
	File string

	// Level is one of "debug", "info", "warn", "error" (default: "info").
	Level string

	// MaxSizeMB is the rotation threshold in megabytes (default: 10).
	MaxSizeMB int

	// MaxBackups is the number of rotated files to keep (default: 3).
	MaxBackups int
}

// NewLogger creates a JSON logger writing through lumberjack rotation.
func NewLogger(opts Options) *slog.Logger {
	if opts.File == "" {
		return Discard()
	}
	if opts.MaxSizeMB == 0 {
		opts.MaxSizeMB = 10
	}
	if opts.MaxBackups == 0 {
		opts.MaxBackups = 3
	}

	out := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     28,
		Compress:   true,
	}

	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: parseLevel(opts.Level),
	})

	return slog.New(handler)
}

// Discard returns a logger that drops everything. Used in tests and when
// logging is disabled.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
