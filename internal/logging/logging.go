// Package logging builds the structured JSON-line log shared by every component.
// Console output stays in package ui; this log is for after-the-fact debugging
// (API calls, ffmpeg failures, queue transitions).
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/jmagar/cloudie-cli/internal/model"
)

// Options configures the log file.
type Options struct {
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Debug      bool
}

// OptionsFromConfig fills Options from the user config, applying defaults.
func OptionsFromConfig(cfg *model.Config) Options {
	opts := Options{
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	}
	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = model.DefaultLogMaxSizeMB
	}
	if opts.MaxBackups <= 0 {
		opts.MaxBackups = model.DefaultLogMaxBackups
	}
	if opts.MaxAgeDays <= 0 {
		opts.MaxAgeDays = model.DefaultLogMaxAgeDays
	}
	return opts
}

// DefaultLogPath returns ~/.cloudie/cloudie.log.
func DefaultLogPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".cloudie", "cloudie.log"), nil
}

// New opens the rotated log file and returns a logger writing to it together
// with the closer for the file. An empty File falls back to DefaultLogPath.
func New(opts Options) (zerolog.Logger, io.Closer, error) {
	path := opts.File
	if path == "" {
		var err error
		path, err = DefaultLogPath()
		if err != nil {
			return zerolog.Nop(), nil, err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("logging: mkdir %s: %w", filepath.Dir(path), err)
	}
	w := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   true,
	}
	return NewWithWriter(w, opts.Debug), w, nil
}

// NewWithWriter builds a logger on an arbitrary writer.
func NewWithWriter(w io.Writer, debug bool) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}
