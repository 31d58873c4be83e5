// Copyright (C) 2025 Harbor AI (oss@harborai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging provides structured logging setup for Lectern components.
//
// The package is a thin layer over Go's standard slog:
//
//   - Default: stderr text output (follows Unix conventions)
//   - Optional: JSON output for container deployments
//   - Optional: file logging with automatic directory creation
//
// # Basic Usage
//
//	logger := logging.Default()
//	logger.Info("search complete", "strategy", "hybrid", "hits", 5)
//
// Or install as the process default so components using slog directly
// pick it up:
//
//	logging.Setup(logging.Config{Service: "lectern", Format: "json"})
//
// # Log Levels
//
// Levels follow slog conventions and are read from LOG_LEVEL
// (debug|info|warn|error) when not set explicitly.
//
// # Thread Safety
//
// The returned loggers are safe for concurrent use.
//
// # Security Considerations
//
// This package does NOT redact sensitive data. Callers must never log
// credentials; log presence only ("key_present", key != "").
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Config controls logger construction.
type Config struct {
	// Service names the component; added as a "service" attribute to
	// every record when non-empty.
	Service string

	// Level is the minimum severity. Zero value means read LOG_LEVEL,
	// defaulting to info.
	Level slog.Level

	// Format selects the handler: "json" or "text".
	// Empty means read LOG_FORMAT, defaulting to text.
	Format string

	// LogDir, when non-empty, additionally writes JSON logs to
	// {LogDir}/{Service}.log. The directory is created if missing.
	LogDir string
}

// Default returns a stderr text logger at the LOG_LEVEL severity.
func Default() *slog.Logger {
	return New(Config{})
}

// New constructs a logger from cfg without installing it globally.
func New(cfg Config) *slog.Logger {
	level := cfg.Level
	if level == 0 {
		level = levelFromEnv()
	}

	format := cfg.Format
	if format == "" {
		format = os.Getenv("LOG_FORMAT")
	}

	var out io.Writer = os.Stderr
	if cfg.LogDir != "" {
		if f, err := openLogFile(cfg.LogDir, cfg.Service); err == nil {
			out = io.MultiWriter(os.Stderr, f)
		} else {
			fmt.Fprintf(os.Stderr, "logging: file output disabled: %v\n", err)
		}
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	logger := slog.New(handler)
	if cfg.Service != "" {
		logger = logger.With(slog.String("service", cfg.Service))
	}
	return logger
}

// Setup constructs a logger from cfg and installs it as the slog default.
func Setup(cfg Config) *slog.Logger {
	logger := New(cfg)
	slog.SetDefault(logger)
	return logger
}

func levelFromEnv() slog.Level {
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
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

func openLogFile(dir, service string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	if service == "" {
		service = "lectern"
	}
	path := filepath.Join(dir, service+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0640)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}
