// Package logging builds the structured loggers used across the simulator.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"github.com/najoast/roadsim/config"
)

// New returns a logger writing to w, configured from cfg. prefix is
// usually the application name.
func New(cfg config.LogConfig, prefix string, w io.Writer) (*log.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	formatter := log.TextFormatter
	switch cfg.Format {
	case "", "text":
	case "json":
		formatter = log.JSONFormatter
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrInvalidLogFormat, cfg.Format)
	}

	return log.NewWithOptions(w, log.Options{
		Level:           level,
		Prefix:          prefix,
		Formatter:       formatter,
		ReportTimestamp: cfg.Timestamps,
		ReportCaller:    cfg.Caller,
		TimeFormat:      time.TimeOnly,
	}), nil
}

// ParseLevel maps a configured level onto the logger's levels.
func ParseLevel(level config.LogLevel) (log.Level, error) {
	if !level.Valid() {
		return 0, fmt.Errorf("%w: %q", config.ErrInvalidLogLevel, level)
	}
	return log.ParseLevel(string(level))
}

// SetLevel retunes a running logger.
func SetLevel(logger *log.Logger, level config.LogLevel) error {
	l, err := ParseLevel(level)
	if err != nil {
		return err
	}
	logger.SetLevel(l)
	return nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// Open resolves a configured output to a writer. stdout and stderr are
// never closed; anything else is a file opened for append.
func Open(output string) (io.WriteCloser, error) {
	switch output {
	case "", "stderr":
		return nopCloser{os.Stderr}, nil
	case "stdout":
		return nopCloser{os.Stdout}, nil
	}

	if dir := filepath.Dir(output); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
	}
	f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}
