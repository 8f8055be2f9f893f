// SPDX-License-Identifier: AGPL-3.0-or-later
package commands

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/bartekus/webstore/cmd/webstore/internal/clierr"
	"github.com/bartekus/webstore/internal/runstate"
	"github.com/bartekus/webstore/internal/script"
)

func newScriptCommand(a *app) *cobra.Command {
	var stateDir string

	cmd := &cobra.Command{
		Use:   "script <file>",
		Short: "Execute a deployment script",
		Long: `Execute a webstore script line by line, stopping at the first failing line.
The outcome is recorded in the state directory and shown by 'webstore script report'.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Scripts may cd away; anchor the state directory first.
			dir, err := filepath.Abs(stateDir)
			if err != nil {
				return err
			}
			return runScript(cmd, a, args[0], runstate.NewStateStore(dir))
		},
	}
	cmd.PersistentFlags().StringVar(&stateDir, "state-dir", runstate.DefaultDir, "Directory to store run state")

	cmd.AddCommand(newScriptReportCommand(&stateDir), newScriptResetCommand(&stateDir))
	return cmd
}

func runScript(cmd *cobra.Command, a *app, path string, states *runstate.StateStore) error {
	a.logger.Info("Executing script", "file", path)

	in, err := script.FromFile(path,
		script.WithLogger(a.logger),
		script.WithChromeFactory(func(clientID, clientSecret, refreshToken string) script.ChromeStore {
			return a.chromeClient(clientID, clientSecret, refreshToken)
		}),
	)
	if err != nil {
		return clierr.Wrap(clierr.CodeInvalidArgument, "cannot load script", err)
	}

	run := runstate.NewRun(path, time.Now())
	execErr := in.Execute(cmd.Context())
	run.Finish(in.Executed(), execErr, clierr.ExitCodeOf(execErr), time.Now())
	if err := states.WriteRun(*run); err != nil {
		a.logger.Error(err, "writing run state")
	} else {
		a.logger.V(1).Info("Recorded run", "id", run.ID)
	}

	if execErr != nil {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%d lines executed)\n", failLabel("FAIL"), path, run.ExecutedLines)
		return execErr
	}
	printOK(cmd.OutOrStdout(), "%s (%d lines executed in %s)", path, run.ExecutedLines, run.Duration().Round(time.Millisecond))
	return nil
}

func newScriptReportCommand(stateDir *string) *cobra.Command {
	var (
		asJSON bool
		runID  string
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show last script run status",
		Long:  "Show the last recorded script run, or the run given by --run.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			states := runstate.NewStateStore(*stateDir)
			var (
				last *runstate.Run
				err  error
			)
			if runID != "" {
				last, err = states.ReadRun(runID)
				if err == nil && last == nil {
					return clierr.Newf(clierr.CodeInvalidArgument, "no run %q recorded in %s", runID, *stateDir)
				}
			} else {
				last, err = states.ReadLastRun()
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				encoder := json.NewEncoder(out)
				encoder.SetIndent("", "  ")
				return encoder.Encode(last)
			}

			if last == nil {
				_, _ = fmt.Fprintln(out, "No run state found.")
				return nil
			}

			status := okLabel(string(last.Status))
			if last.Status != runstate.StatusPass {
				status = failLabel(string(last.Status))
			}
			_, _ = fmt.Fprintf(out, "Status: %s\n", status)
			printField(out, "script", last.Script)
			printField(out, "executed lines", fmt.Sprint(last.ExecutedLines))
			printField(out, "finished", last.FinishedAt.Format(time.RFC3339))
			if last.Status != runstate.StatusPass {
				if last.FailedLine > 0 {
					printField(out, "failed line", fmt.Sprintf("%d: %s", last.FailedLine, last.FailedText))
				}
				printField(out, "error", last.Error)
				printField(out, "exit code", fmt.Sprint(last.ExitCode))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output results in JSON")
	cmd.Flags().StringVar(&runID, "run", "", "Report the run with this id instead of the last one")
	return cmd
}

func newScriptResetCommand(stateDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Delete recorded script runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := runstate.NewStateStore(*stateDir).Reset(); err != nil {
				return fmt.Errorf("clearing run state: %w", err)
			}
			printOK(cmd.OutOrStdout(), "Cleared run state in %s", *stateDir)
			return nil
		},
	}
}
