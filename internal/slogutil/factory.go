package slogutil

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Format selects the console encoding
type Format string

const (
	FormatHuman Format = "human"
	FormatJSON  Format = "json"
)

// Options describes where and how a process logs. Console output always
// goes to the writer passed to Build; File adds a rotated log file.
type Options struct {
	Format     Format
	Level      slog.Level
	File       string
	FileLevel  slog.Level
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// nopCloser is returned when no file was opened
type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Build creates the process logger. The returned closer flushes and closes
// the log file, if any.
func Build(console io.Writer, opts Options) (*slog.Logger, io.Closer, error) {
	consoleHandler, err := newConsoleHandler(console, opts.Format, opts.Level)
	if err != nil {
		return nil, nil, err
	}
	if opts.File == "" {
		return slog.New(consoleHandler), nopCloser{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log directory: %w", err)
	}
	rotated := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   opts.Compress,
	}
	fileHandler := NewHandler(rotated, &slog.HandlerOptions{Level: opts.FileLevel})
	return slog.New(NewTeeHandler(consoleHandler, fileHandler)), rotated, nil
}

func newConsoleHandler(w io.Writer, format Format, level slog.Level) (slog.Handler, error) {
	switch format {
	case FormatHuman, "":
		return NewHandler(w, &slog.HandlerOptions{Level: level}), nil
	case FormatJSON:
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}), nil
	}
	return nil, fmt.Errorf("unknown log format %q", format)
}
