// SPDX-License-Identifier: AGPL-3.0-or-later
package script

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

func builtins() map[string]Func {
	return map[string]Func{
		"cd":                   cd,
		"pushd":                pushd,
		"popd":                 popd,
		"zip":                  zipFolder,
		"chrome.init":          chromeInit,
		"chrome.setapp":        chromeSetApp,
		"chrome.new":           chromeNew,
		"chrome.update":        chromeUpdate,
		"chrome.publish":       chromePublish,
		"chrome.check_version": chromeCheckVersion,
		"chrome.unpack":        chromeUnpack,
	}
}

func cd(_ context.Context, in *Interpreter, args ...string) error {
	if err := arity("cd", args, 1, 1); err != nil {
		return err
	}
	in.logger.V(1).Info("Changing directory", "dir", args[0])
	return os.Chdir(args[0])
}

// pushd records the current directory only once the change succeeded.
func pushd(_ context.Context, in *Interpreter, args ...string) error {
	if err := arity("pushd", args, 1, 1); err != nil {
		return err
	}
	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("reading working directory: %w", err)
	}
	if err := os.Chdir(args[0]); err != nil {
		return err
	}
	in.dirs.Push(wd)
	in.logger.V(1).Info("Pushed directory", "from", wd, "to", args[0], "depth", in.dirs.Len())
	return nil
}

func popd(_ context.Context, in *Interpreter, args ...string) error {
	if err := arity("popd", args, 0, 0); err != nil {
		return err
	}
	dir, err := in.dirs.Pop()
	if err != nil {
		return err
	}
	in.logger.V(1).Info("Popped directory", "dir", dir, "depth", in.dirs.Len())
	return os.Chdir(dir)
}

// zipFolder archives folder into zipname, both relative to the working directory.
func zipFolder(_ context.Context, in *Interpreter, args ...string) error {
	if err := arity("zip", args, 2, 2); err != nil {
		return err
	}
	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("reading working directory: %w", err)
	}
	out, err := in.archiver.Create(filepath.Join(wd, args[0]), filepath.Join(wd, args[1]))
	if err != nil {
		return err
	}
	in.logger.Info("Created archive", "path", out)
	return nil
}
