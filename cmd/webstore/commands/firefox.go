// SPDX-License-Identifier: AGPL-3.0-or-later
package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bartekus/webstore/internal/store"
)

// newFirefoxCommand returns the `webstore firefox` command.
func newFirefoxCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "firefox",
		Short: "addons.mozilla.org signing operations",
	}

	cmd.AddCommand(newFirefoxUploadCommand(a))
	cmd.AddCommand(newFirefoxDownloadCommand(a))
	cmd.AddCommand(newFirefoxSignCommand(a))
	cmd.AddCommand(newFirefoxGenTokenCommand(a))

	return cmd
}

type jwtFlags struct {
	issuer string
	secret string
}

func (f *jwtFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.issuer, "id", "", "JWT issuer of the API credentials in the Mozilla developer hub")
	cmd.Flags().StringVar(&f.secret, "secret", "", "JWT secret of the API credentials in the Mozilla developer hub")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("secret")
}

type uploadFlags struct {
	filename string
	addonID  string
	version  string
}

func (f *uploadFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.filename, "filename", "", "file to sign")
	cmd.Flags().StringVar(&f.addonID, "addon-id", "", "ID of the extension, parsed from the file when omitted")
	cmd.Flags().StringVar(&f.version, "version", "", "version of the extension, parsed from the file when omitted")
	_ = cmd.MarkFlagRequired("filename")
}

type downloadFlags struct {
	folder     string
	attempts   int
	interval   int
	targetName string
}

func (f *downloadFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.folder, "folder", "", "target folder for the download")
	cmd.Flags().IntVar(&f.attempts, "attempts", 10, "number of polling attempts (default from config)")
	cmd.Flags().IntVar(&f.interval, "interval", 30, "polling interval in seconds (default from config)")
	cmd.Flags().StringVar(&f.targetName, "target-name", "",
		"file name to save the extension as; only used when the download is a single file")
}

// options applies config defaults to flags the user did not set.
func (f *downloadFlags) options(cmd *cobra.Command, a *app) store.DownloadOptions {
	attempts, interval := f.attempts, time.Duration(f.interval)*time.Second
	if !cmd.Flags().Changed("attempts") {
		attempts = a.cfg.Poll.Attempts
	}
	if !cmd.Flags().Changed("interval") {
		interval = a.cfg.Poll.Interval()
	}
	return store.DownloadOptions{
		Folder:     f.folder,
		Attempts:   attempts,
		Interval:   interval,
		TargetName: f.targetName,
	}
}

func printDownloads(cmd *cobra.Command, files []string) {
	out := cmd.OutOrStdout()
	printOK(out, "Downloaded %d file(s)", len(files))
	for _, f := range files {
		_, _ = fmt.Fprintf(out, "  %s\n", f)
	}
}

func newFirefoxUploadCommand(a *app) *cobra.Command {
	var creds jwtFlags
	var up uploadFlags

	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Upload an xpi extension to the Mozilla store for signing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, version, err := a.firefoxClient(creds.issuer, creds.secret).Upload(cmd.Context(), up.filename, up.addonID, up.version)
			if err != nil {
				return err
			}
			printOK(cmd.OutOrStdout(), "Uploaded %s %s for signing", id, version)
			return nil
		},
	}
	creds.register(cmd)
	up.register(cmd)
	return cmd
}

func newFirefoxDownloadCommand(a *app) *cobra.Command {
	var creds jwtFlags
	var dl downloadFlags
	var addonID, version string

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download a signed xpi extension from the Mozilla store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := a.firefoxClient(creds.issuer, creds.secret).Download(cmd.Context(), addonID, version, dl.options(cmd, a))
			if err != nil {
				return err
			}
			printDownloads(cmd, files)
			return nil
		},
	}
	creds.register(cmd)
	cmd.Flags().StringVar(&addonID, "addon-id", "", "ID of the extension")
	cmd.Flags().StringVar(&version, "version", "", "version of the extension")
	_ = cmd.MarkFlagRequired("addon-id")
	_ = cmd.MarkFlagRequired("version")
	dl.register(cmd)
	return cmd
}

func newFirefoxSignCommand(a *app) *cobra.Command {
	var creds jwtFlags
	var up uploadFlags
	var dl downloadFlags

	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Sign an xpi extension on the Mozilla store and download the signed file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := a.firefoxClient(creds.issuer, creds.secret)
			id, version, err := c.Upload(cmd.Context(), up.filename, up.addonID, up.version)
			if err != nil {
				return err
			}
			files, err := c.Download(cmd.Context(), id, version, dl.options(cmd, a))
			if err != nil {
				return err
			}
			printDownloads(cmd, files)
			return nil
		},
	}
	creds.register(cmd)
	up.register(cmd)
	dl.register(cmd)
	return cmd
}

func newFirefoxGenTokenCommand(a *app) *cobra.Command {
	var creds jwtFlags

	cmd := &cobra.Command{
		Use:   "gen-token",
		Short: "Generate a JWT used to authenticate with the Mozilla store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := a.firefoxClient(creds.issuer, creds.secret).GenerateToken()
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	creds.register(cmd)
	return cmd
}
