// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging builds the application logger. Components take a logr.Logger;
// the concrete sink is zap.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options controls logger construction.
type Options struct {
	// Verbosity is the number of -v flags given on the command line.
	Verbosity int
	// File, when set, receives a copy of every log line.
	File string
	// Output is the console sink. Defaults to os.Stderr.
	Output io.Writer
}

// Level maps a verbosity count to a zap level. 0 logs info and above,
// each additional -v enables one more logr V-level.
func Level(verbosity int) zapcore.Level {
	if verbosity <= 0 {
		return zapcore.InfoLevel
	}
	return zapcore.Level(-verbosity)
}

// New creates a logr.Logger backed by zap. The returned func flushes the sink
// and closes the log file.
func New(opts Options) (logr.Logger, func(), error) {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	level := zap.NewAtomicLevelAt(Level(opts.Verbosity))
	encoder := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	console := zapcore.AddSync(out)
	cores := []zapcore.Core{zapcore.NewCore(encoder, console, level)}

	var file *os.File
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return logr.Discard(), func() {}, fmt.Errorf("creating log directory: %w", err)
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return logr.Discard(), func() {}, fmt.Errorf("opening log file: %w", err)
		}
		file = f
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(f), level))
	}

	zapLog := zap.New(zapcore.NewTee(cores...), zap.Development(), zap.ErrorOutput(console))
	flush := func() {
		_ = zapLog.Sync()
		if file != nil {
			_ = file.Close()
		}
	}
	return zapr.NewLogger(zapLog), flush, nil
}
