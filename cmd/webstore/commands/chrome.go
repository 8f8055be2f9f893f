// SPDX-License-Identifier: AGPL-3.0-or-later
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bartekus/webstore/internal/apperrors"
	"github.com/bartekus/webstore/internal/archive"
	"github.com/bartekus/webstore/internal/store/chrome"
)

// newChromeCommand returns the `webstore chrome` command.
func newChromeCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chrome",
		Short: "Chrome Web Store operations",
	}

	cmd.AddCommand(newChromeInitCommand(a))
	cmd.AddCommand(newChromeAuthCommand(a))
	cmd.AddCommand(newChromeGenTokenCommand(a))
	cmd.AddCommand(newChromeUploadCommand(a))
	cmd.AddCommand(newChromeCreateCommand(a))
	cmd.AddCommand(newChromePublishCommand(a))
	cmd.AddCommand(newChromeRepackCommand(a))

	return cmd
}

func newChromeInitCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init <client_id>",
		Short: "Print the consent URL for an OAuth2 client. Run this first.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintln(out, "Open this URL in your browser, accept the permission request and copy the given code:")
			_, _ = fmt.Fprintf(out, "    %s\n\n", chrome.AuthURL(args[0]))
			_, _ = fmt.Fprintln(out, "Then run: webstore chrome auth <client_id> <client_secret> <code>")
			return nil
		},
	}
}

func newChromeAuthCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "auth <client_id> <client_secret> <code>",
		Short: "Exchange a consent code for tokens. Run this after init.",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := a.chromeClient(args[0], args[1], "")
			access, refresh, err := c.RedeemCode(cmd.Context(), args[2])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printOK(out, "Received tokens")
			printField(out, "access_token", access)
			printField(out, "refresh_token", refresh)
			return nil
		},
	}
}

func newChromeGenTokenCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "gen-token <client_id> <client_secret> <refresh_token>",
		Short: "Generate an access token from a refresh token",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := a.chromeClient(args[0], args[1], args[2]).AccessToken(cmd.Context())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Access token: %s\n", token)
			return nil
		},
	}
}

// packageFile returns the zip to upload, repacking a crx first.
func packageFile(a *app, filename, filetype string) (string, error) {
	switch filetype {
	case "zip":
		return filename, nil
	case "crx":
		return archive.New(a.logger).RepackCRX(filename, "")
	default:
		return "", apperrors.Invalidf("unknown file type %q, expected crx or zip", filetype)
	}
}

func newChromeUploadCommand(a *app) *cobra.Command {
	var filetype string

	cmd := &cobra.Command{
		Use:   "upload <client_id> <client_secret> <refresh_token> <app_id> <file>",
		Short: "Upload a new version of an existing extension",
		Args:  cobra.ExactArgs(5),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.logger.V(1).Info("upload", "clientID", args[0], "appID", args[3], "file", args[4], "filetype", filetype)
			filename, err := packageFile(a, args[4], filetype)
			if err != nil {
				return err
			}
			c := a.chromeClient(args[0], args[1], args[2], chrome.WithAppID(args[3]))
			id, err := c.UploadUpdate(cmd.Context(), filename)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	cmd.Flags().StringVarP(&filetype, "filetype", "t", "crx", "type of the uploaded file: crx or zip")
	return cmd
}

func newChromeCreateCommand(a *app) *cobra.Command {
	var filetype string

	cmd := &cobra.Command{
		Use:   "create <client_id> <client_secret> <refresh_token> <file>",
		Short: "Upload a brand new extension",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.logger.V(1).Info("create", "clientID", args[0], "file", args[3], "filetype", filetype)
			filename, err := packageFile(a, args[3], filetype)
			if err != nil {
				return err
			}
			id, err := a.chromeClient(args[0], args[1], args[2]).UploadNew(cmd.Context(), filename)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	cmd.Flags().StringVarP(&filetype, "filetype", "t", "crx", "type of the uploaded file: crx or zip")
	return cmd
}

func newChromePublishCommand(a *app) *cobra.Command {
	var target string

	cmd := &cobra.Command{
		Use:   "publish <client_id> <client_secret> <refresh_token> <app_id>",
		Short: "Publish an extension to the public or trusted testers",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := chrome.ParseTarget(target)
			if err != nil {
				return err
			}
			c := a.chromeClient(args[0], args[1], args[2], chrome.WithAppID(args[3]))
			id, err := c.Publish(cmd.Context(), t)
			if err != nil {
				return err
			}
			printOK(cmd.OutOrStdout(), "Published %s to %s", id, t)
			return nil
		},
	}
	cmd.Flags().StringVar(&target, "target", "", "publish target: public or trusted")
	_ = cmd.MarkFlagRequired("target")
	return cmd
}

func newChromeRepackCommand(a *app) *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "repack <file>",
		Short: "Create a zip from a .crx archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := archive.New(a.logger).RepackCRX(args[0], outDir)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "directory to write the zip into")
	return cmd
}
