// SPDX-License-Identifier: AGPL-3.0-or-later
package script

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/go-logr/logr"

	"github.com/bartekus/webstore/internal/apperrors"
	"github.com/bartekus/webstore/internal/store/chrome"
)

const (
	checkVersionInterval       = 5 * time.Second
	defaultCheckVersionTimeout = 30 * time.Second
)

// ChromeStore is what the chrome builtins need from a Chrome Web Store client.
type ChromeStore interface {
	UploadNew(ctx context.Context, filename string) (string, error)
	UploadUpdate(ctx context.Context, filename string) (string, error)
	Publish(ctx context.Context, target chrome.Target) (string, error)
	UploadedVersion(ctx context.Context) (string, error)
	SetAppID(appID string)
}

// ChromeFactory builds the client used by chrome.init.
type ChromeFactory func(clientID, clientSecret, refreshToken string) ChromeStore

// DefaultChromeFactory builds real Chrome Web Store clients.
func DefaultChromeFactory(logger logr.Logger, opts ...chrome.Option) ChromeFactory {
	opts = append(slices.Clip(opts), chrome.WithLogger(logger))
	return func(clientID, clientSecret, refreshToken string) ChromeStore {
		return chrome.New(clientID, clientSecret, refreshToken, opts...)
	}
}

func (in *Interpreter) chromeStore(verb string) (ChromeStore, error) {
	if in.state == StateUninitialized || in.chrome == nil {
		return nil, fmt.Errorf("%w: chrome.init must run before %s", ErrInvalidState, verb)
	}
	return in.chrome, nil
}

func chromeInit(_ context.Context, in *Interpreter, args ...string) error {
	if err := arity("chrome.init", args, 3, 3); err != nil {
		return err
	}
	in.vars["client_id"] = args[0]
	in.vars["client_secret"] = args[1]
	in.vars["refresh_token"] = args[2]
	delete(in.vars, "app_id")

	in.chrome = in.chromeFactory(args[0], args[1], args[2])
	in.state = StateInitialized
	return nil
}

func chromeSetApp(_ context.Context, in *Interpreter, args ...string) error {
	if err := arity("chrome.setapp", args, 1, 1); err != nil {
		return err
	}
	cs, err := in.chromeStore("chrome.setapp")
	if err != nil {
		return err
	}
	in.vars["app_id"] = args[0]
	cs.SetAppID(args[0])
	in.state = StateAppBound
	return nil
}

func chromeNew(ctx context.Context, in *Interpreter, args ...string) error {
	if err := arity("chrome.new", args, 1, 1); err != nil {
		return err
	}
	cs, err := in.chromeStore("chrome.new")
	if err != nil {
		return err
	}
	id, err := cs.UploadNew(ctx, args[0])
	if err != nil {
		return err
	}
	in.vars["app_id"] = id
	in.state = StateAppBound
	return nil
}

func chromeUpdate(ctx context.Context, in *Interpreter, args ...string) error {
	if err := arity("chrome.update", args, 1, 1); err != nil {
		return err
	}
	cs, err := in.chromeStore("chrome.update")
	if err != nil {
		return err
	}
	_, err = cs.UploadUpdate(ctx, args[0])
	return err
}

func chromePublish(ctx context.Context, in *Interpreter, args ...string) error {
	if err := arity("chrome.publish", args, 1, 1); err != nil {
		return err
	}
	cs, err := in.chromeStore("chrome.publish")
	if err != nil {
		return err
	}
	target, err := chrome.ParseTarget(args[0])
	if err != nil {
		return err
	}
	_, err = cs.Publish(ctx, target)
	return err
}

// chromeCheckVersion polls the uploaded draft version until it matches or
// the timeout (seconds, default 30) elapses.
func chromeCheckVersion(ctx context.Context, in *Interpreter, args ...string) error {
	if err := arity("chrome.check_version", args, 1, 2); err != nil {
		return err
	}
	cs, err := in.chromeStore("chrome.check_version")
	if err != nil {
		return err
	}
	expected := args[0]
	timeout := defaultCheckVersionTimeout
	if len(args) == 2 {
		secs, err := strconv.Atoi(args[1])
		if err != nil || secs < 0 {
			return apperrors.Invalidf("timeout must be a non-negative number of seconds, got %q", args[1])
		}
		timeout = time.Duration(secs) * time.Second
	}

	version := ""
	start := in.now()
	for in.now().Sub(start) < timeout {
		if err := ctx.Err(); err != nil {
			return err
		}
		version, err = cs.UploadedVersion(ctx)
		if err != nil {
			return err
		}
		if version == expected {
			in.logger.Info("Uploaded version matches", "version", version)
			return nil
		}
		in.logger.Info("Unexpected uploaded version, retrying",
			"expected", expected, "obtained", version, "timeout", timeout.String())
		in.sleep(checkVersionInterval)
	}
	return fmt.Errorf("%w: expected version %s, server reports %q", ErrVersionMismatch, expected, version)
}

func chromeUnpack(_ context.Context, in *Interpreter, args ...string) error {
	if err := arity("chrome.unpack", args, 2, 2); err != nil {
		return err
	}
	if _, err := in.chromeStore("chrome.unpack"); err != nil {
		return err
	}
	target, err := filepath.Abs(args[1])
	if err != nil {
		return err
	}
	if err := os.MkdirAll(target, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", target, err)
	}
	return in.archiver.Extract(args[0], target)
}
