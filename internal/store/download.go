// SPDX-License-Identifier: AGPL-3.0-or-later
package store

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/bartekus/webstore/internal/apperrors"
	"github.com/bartekus/webstore/internal/fsutil"
)

// DownloadOptions controls the poll loop and where results are written.
type DownloadOptions struct {
	Folder     string
	Attempts   int
	Interval   time.Duration
	TargetName string
}

// Downloader runs the publish/poll/download workflow against a Client.
type Downloader struct {
	Logger logr.Logger
	// Sleep blocks between poll attempts. Defaults to time.Sleep.
	Sleep func(time.Duration)
}

// NewDownloader returns a Downloader that sleeps with time.Sleep.
func NewDownloader(logger logr.Logger) *Downloader {
	return &Downloader{Logger: logger, Sleep: time.Sleep}
}

// Download polls c until the item version is processed and has file URLs,
// then writes every file into opts.Folder.
//
// A failed validation aborts at once. Processed without URLs counts as not
// ready: AMO has been seen reporting processed=true before the file list is
// populated. If exactly one URL is returned and opts.TargetName is set, the
// file is saved under that name; otherwise names come from the URL paths.
func (d *Downloader) Download(ctx context.Context, c Client, id, version string, opts DownloadOptions) ([]string, error) {
	if opts.Attempts < 1 {
		return nil, apperrors.Invalidf("attempts must be at least 1, got %d", opts.Attempts)
	}
	sleep := d.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	d.Logger.Info("Downloading extension", "id", id, "version", version,
		"interval", opts.Interval.String(), "attempts", opts.Attempts)

	var urls []string
	ready := false
	for attempt := 1; attempt <= opts.Attempts; attempt++ {
		st, err := c.Status(ctx, id, version)
		if err != nil {
			return nil, err
		}

		if st.Validation.Failed() {
			return nil, validationError(id, version, st.Validation)
		}
		if v := st.Validation; v != nil && len(v.Warnings) > 0 {
			for _, w := range v.Warnings {
				d.Logger.Info("validation warning", "id", id, "message", w.Message, "file", w.File)
			}
		}

		if st.Processed && len(st.URLs) > 0 {
			urls = st.URLs
			ready = true
			break
		}

		if attempt == opts.Attempts {
			break
		}
		d.Logger.Info("Item not processed or no URLs yet, retrying",
			"attempt", attempt, "attempts", opts.Attempts, "retryIn", opts.Interval.String())
		sleep(opts.Interval)
	}

	if !ready {
		return nil, fmt.Errorf("%w: %s %s after %d attempts; consider increasing attempts or interval",
			apperrors.ErrNotProcessedInTime, id, version, opts.Attempts)
	}
	d.Logger.V(1).Info("Item processed, downloading", "urls", urls)

	folder := opts.Folder
	if folder == "" {
		folder = "."
	}
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return nil, fmt.Errorf("creating download folder %s: %w", folder, err)
	}

	written := make([]string, 0, len(urls))
	for _, u := range urls {
		var name string
		if len(urls) == 1 && opts.TargetName != "" {
			d.Logger.Info("Single file download, saving under target name", "target", opts.TargetName)
			name = opts.TargetName
		} else {
			var err error
			if name, err = FileName(u); err != nil {
				return written, err
			}
		}

		data, err := c.Fetch(ctx, u)
		if err != nil {
			return written, err
		}

		full := filepath.Join(folder, name)
		d.Logger.Info("Writing file", "path", full, "bytes", len(data))
		if err := fsutil.AtomicWrite(full, data); err != nil {
			return written, err
		}
		written = append(written, full)
	}
	return written, nil
}

// FileName derives the local file name of a download URL from its path.
func FileName(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", apperrors.Vendorf("invalid download url %q: %v", rawURL, err)
	}
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return "", apperrors.Vendorf("download url %q has no file name", rawURL)
	}
	return name, nil
}

func validationError(id, version string, v *ValidationResult) error {
	msgs := make([]string, 0, len(v.Errors))
	for _, e := range v.Errors {
		msgs = append(msgs, e.Message)
	}
	detail := ""
	if len(msgs) > 0 {
		detail = ": " + strings.Join(msgs, "; ")
	}
	return fmt.Errorf("%w: %s %s (%d errors, %d warnings)%s",
		apperrors.ErrValidationFailed, id, version, len(v.Errors), len(v.Warnings), detail)
}
