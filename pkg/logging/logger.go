// Copyright (C) 2025 Dealdesk Labs (eng@dealdesk.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging provides structured logging setup for boardroom
// components, built on log/slog.
//
// The service logs JSON to stdout for container collectors; an optional
// log directory adds a per-service daily file alongside it. The CLI uses
// text to stderr instead.
//
//	logger := logging.New(logging.Config{
//	    Level:   slog.LevelInfo,
//	    LogDir:  "/var/log/boardroom",
//	    Service: "board",
//	})
//	defer logger.Close()
//	slog.SetDefault(logger.Slog())
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Config controls logger construction. The zero value logs JSON to stdout
// at info level.
type Config struct {
	Level   slog.Level
	LogDir  string // empty disables file logging
	Service string // file name prefix, defaults to "boardroom"
	Text    bool   // text handler to stderr instead of JSON to stdout
}

// Logger owns the slog handler and the optional log file.
type Logger struct {
	slogger *slog.Logger
	file    *os.File
}

// New builds a logger from cfg. File-logging problems degrade to
// stdout-only with a warning rather than failing startup.
func New(cfg Config) *Logger {
	if cfg.Service == "" {
		cfg.Service = "boardroom"
	}

	var base io.Writer = os.Stdout
	if cfg.Text {
		base = os.Stderr
	}

	var file *os.File
	out := base
	if cfg.LogDir != "" {
		f, err := openLogFile(cfg.LogDir, cfg.Service)
		if err != nil {
			fmt.Fprintf(os.Stderr, "logging: file output disabled: %v\n", err)
		} else {
			file = f
			out = io.MultiWriter(base, f)
		}
	}

	opts := &slog.HandlerOptions{Level: cfg.Level}
	var handler slog.Handler
	if cfg.Text {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	return &Logger{slogger: slog.New(handler), file: file}
}

// Default returns a stdout JSON logger at info level.
func Default() *Logger {
	return New(Config{})
}

// Slog exposes the underlying slog.Logger for slog.SetDefault.
func (l *Logger) Slog() *slog.Logger { return l.slogger }

// Close flushes and closes the log file, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

func openLogFile(dir, service string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir %s: %w", dir, err)
	}
	name := fmt.Sprintf("%s_%s.log", service, time.Now().Format("2006-01-02"))
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}
