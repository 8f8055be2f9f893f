// SPDX-License-Identifier: AGPL-3.0-or-later

/*
webstore - deploys browser extensions to the Chrome Web Store and addons.mozilla.org.

Copyright (C) 2025  Bartek Kus

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.

*/

package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Execute runs the CLI. Resources opened by a command are released even
// when it fails, which PersistentPostRun alone does not guarantee.
func Execute() error {
	a := &app{}
	defer a.teardown()
	return newRootCmd(a).Execute()
}

// NewRootCmd constructs the webstore root Cobra command.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&app{})
}

func newRootCmd(a *app) *cobra.Command {
	version := os.Getenv("WEBSTORE_VERSION")
	if version == "" {
		version = "0.0.0-dev"
	}

	cmd := &cobra.Command{
		Use:   "webstore",
		Short: "webstore - browser extension store deployment",
		Long: `webstore uploads, publishes and signs browser extensions through the
Chrome Web Store and addons.mozilla.org APIs, and runs deployment scripts
that sequence these steps.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd.ErrOrStderr())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.teardown()
		},
	}

	// Global flags
	cmd.PersistentFlags().CountVarP(&a.verbosity, "verbose", "v", "more verbose logging, may be repeated")
	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "configuration file (default $WEBSTORE_CONFIG or the user config dir)")
	cmd.PersistentFlags().StringVar(&a.logFile, "log-file", "", "also write logs to this file")
	cmd.PersistentFlags().BoolVar(&a.noCache, "no-cache", false, "do not cache access tokens on disk")

	// Version command
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number of webstore",
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "webstore version %s\n", version)
		},
	})

	cmd.AddCommand(newScriptCommand(a))
	cmd.AddCommand(newChromeCommand(a))
	cmd.AddCommand(newFirefoxCommand(a))

	return cmd
}
