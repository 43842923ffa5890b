// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package logging builds the loggers shared by the CLI, the session and the
// communication interfaces.
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Thermoquad/parhelion/internal/config"
)

// Logger is a standard logger that owns its rotating file, if any
type Logger struct {
	*log.Logger
	file *lumberjack.Logger
}

// New creates a logger writing to stderr, and additionally to a rotating
// file when cfg.File is set. Without Verbose, stderr stays quiet and only
// the file receives output.
func New(cfg config.LoggingConfig) *Logger {
	return newLogger(cfg, os.Stderr)
}

func newLogger(cfg config.LoggingConfig, console io.Writer) *Logger {
	var writers []io.Writer
	if cfg.Verbose {
		writers = append(writers, console)
	}

	l := &Logger{}
	if cfg.File != "" {
		l.file = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		}
		writers = append(writers, l.file)
	}

	out := io.Discard
	switch len(writers) {
	case 0:
	case 1:
		out = writers[0]
	default:
		out = io.MultiWriter(writers...)
	}
	l.Logger = log.New(out, "", log.LstdFlags|log.Lmicroseconds)
	return l
}

// Close flushes and closes the log file
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}
