// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"

	"github.com/bartekus/webstore/cmd/webstore/commands"
	"github.com/bartekus/webstore/cmd/webstore/internal/clierr"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error:"), err)
		os.Exit(clierr.ExitCodeOf(err))
	}
}
