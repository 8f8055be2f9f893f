// SPDX-License-Identifier: AGPL-3.0-or-later

// Package script runs webstore scripts: line-oriented files of variable
// assignments and builtin calls that sequence archive and store operations.
//
//	# comments and blank lines are skipped
//	version = 1.4.0
//	chrome.init ${env.CLIENT_ID} ${env.CLIENT_SECRET} ${env.REFRESH_TOKEN}
//	chrome.setapp abcdefghijklmnop
//	zip extension build.zip
//	chrome.update build.zip
//	chrome.check_version ${version}
//	chrome.publish trusted
package script

import (
	"context"
	"fmt"
	"maps"
	"os"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/bartekus/webstore/internal/archive"
)

// Func is a builtin. It validates its own arguments.
type Func func(ctx context.Context, in *Interpreter, args ...string) error

// State tracks the chrome builtins' store client.
type State int

const (
	StateUninitialized State = iota
	StateInitialized
	StateAppBound
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateAppBound:
		return "app bound"
	default:
		return "unknown"
	}
}

// Interpreter executes the lines of one script. It is not safe for
// concurrent use.
type Interpreter struct {
	lines     []string
	vars      map[string]string
	dirs      *DirStack
	functions map[string]Func

	state  State
	chrome ChromeStore

	logger        logr.Logger
	lookupEnv     func(string) (string, bool)
	chromeFactory ChromeFactory
	archiver      archive.Archiver
	now           func() time.Time
	sleep         func(time.Duration)

	executed int
}

// Option configures an Interpreter.
type Option func(*Interpreter)

func WithLogger(logger logr.Logger) Option { return func(in *Interpreter) { in.logger = logger } }

// WithEnv replaces the process environment for ${env.NAME} lookups.
func WithEnv(lookup func(string) (string, bool)) Option {
	return func(in *Interpreter) { in.lookupEnv = lookup }
}

// WithChromeFactory sets how chrome.init builds its store client.
func WithChromeFactory(f ChromeFactory) Option { return func(in *Interpreter) { in.chromeFactory = f } }

func WithArchiver(a archive.Archiver) Option { return func(in *Interpreter) { in.archiver = a } }

// WithClock replaces the time source and sleep used by chrome.check_version.
func WithClock(now func() time.Time, sleep func(time.Duration)) Option {
	return func(in *Interpreter) {
		in.now = now
		in.sleep = sleep
	}
}

// New creates an interpreter for lines with the default builtins registered.
func New(lines []string, opts ...Option) *Interpreter {
	in := &Interpreter{
		lines:     lines,
		vars:      map[string]string{},
		dirs:      NewDirStack(),
		functions: map[string]Func{},
		logger:    logr.Discard(),
		lookupEnv: os.LookupEnv,
		now:       time.Now,
		sleep:     time.Sleep,
	}
	for _, opt := range opts {
		opt(in)
	}
	if in.archiver == nil {
		in.archiver = archive.New(in.logger)
	}
	if in.chromeFactory == nil {
		in.chromeFactory = DefaultChromeFactory(in.logger)
	}
	for name, fn := range builtins() {
		in.functions[name] = fn
	}
	return in
}

// FromFile reads a script file and creates an interpreter for it.
func FromFile(path string, opts ...Option) (*Interpreter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading script %s: %w", path, err)
	}
	return New(strings.Split(string(data), "\n"), opts...), nil
}

// Register adds or replaces a builtin.
func (in *Interpreter) Register(name string, fn Func) {
	in.functions[name] = fn
}

// Variables returns a copy of the assigned variables.
func (in *Interpreter) Variables() map[string]string {
	return maps.Clone(in.vars)
}

// Variable returns an assigned variable.
func (in *Interpreter) Variable(name string) (string, bool) {
	v, ok := in.vars[name]
	return v, ok
}

func (in *Interpreter) State() State    { return in.state }
func (in *Interpreter) Dirs() *DirStack { return in.dirs }

// Executed is the number of non-blank, non-comment lines that succeeded.
func (in *Interpreter) Executed() int { return in.executed }

// Execute runs every line in order and stops at the first failure, which
// is returned as a *LineError.
func (in *Interpreter) Execute(ctx context.Context) error {
	for i, line := range in.lines {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := in.ExecuteLine(ctx, line); err != nil {
			return &LineError{Line: i + 1, Text: strings.TrimSpace(line), Err: err}
		}
	}
	return nil
}

// ExecuteLine runs a single line.
func (in *Interpreter) ExecuteLine(ctx context.Context, line string) error {
	tokens := Tokenize(line)
	if tokens == nil {
		in.logger.V(2).Info("Skipping line", "line", strings.TrimSpace(line))
		return nil
	}
	in.logger.V(1).Info("Executing line", "line", strings.TrimSpace(line))

	assignment, valid := isAssignment(tokens)
	if assignment && !valid {
		return fmt.Errorf("%w: assignment has to be 'var = value', parsed tokens: %q", ErrSyntax, tokens)
	}

	args, err := in.resolveAll(tokens[1:])
	if err != nil {
		return err
	}

	if assignment {
		in.vars[tokens[0]] = args[1]
		in.logger.V(1).Info("Assigning", "name", tokens[0], "value", args[1])
		in.executed++
		return nil
	}

	fn, ok := in.functions[tokens[0]]
	if !ok {
		return fmt.Errorf("%w: %s", ErrFunctionNotDefined, tokens[0])
	}
	if err := fn(ctx, in, args...); err != nil {
		return err
	}
	in.executed++
	return nil
}
