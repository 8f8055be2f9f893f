// SPDX-License-Identifier: AGPL-3.0-or-later

// Package firefox is a client for the addons.mozilla.org (AMO) signing API.
package firefox

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/valyala/fasthttp"

	"github.com/bartekus/webstore/internal/apperrors"
	"github.com/bartekus/webstore/internal/config"
	"github.com/bartekus/webstore/internal/httpx"
	"github.com/bartekus/webstore/internal/store"
)

// Client signs add-ons through AMO with one API key pair.
type Client struct {
	issuer string
	secret string
	apiURL string

	http       *httpx.Client
	downloader *store.Downloader
	logger     logr.Logger
	now        func() time.Time
}

// Option configures a Client.
type Option func(*Client)

func WithAPIURL(u string) Option            { return func(c *Client) { c.apiURL = strings.TrimRight(u, "/") } }
func WithHTTPClient(h *httpx.Client) Option { return func(c *Client) { c.http = h } }
func WithLogger(logger logr.Logger) Option  { return func(c *Client) { c.logger = logger } }
func WithClock(now func() time.Time) Option { return func(c *Client) { c.now = now } }

// WithDownloader sets the workflow used by Download.
func WithDownloader(d *store.Downloader) Option { return func(c *Client) { c.downloader = d } }

// New creates a Client for the JWT issuer and secret from the AMO developer hub.
func New(issuer, secret string, opts ...Option) *Client {
	c := &Client{
		issuer: issuer,
		secret: secret,
		apiURL: config.DefaultFirefoxAPIURL,
		logger: logr.Discard(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = httpx.New(httpx.WithLogger(c.logger))
	}
	if c.downloader == nil {
		c.downloader = store.NewDownloader(c.logger)
	}
	return c
}

func (c *Client) versionURL(id, version string) string {
	return fmt.Sprintf("%s/api/v3/addons/%s/versions/%s/", c.apiURL, url.PathEscape(id), url.PathEscape(version))
}

type uploadResponse struct {
	GUID    *string `json:"guid"`
	Version string  `json:"version"`
}

// Upload sends an xpi for signing. Signing happens asynchronously; poll with
// Status or wait with Download. Empty id or version are read from the
// package manifest. It returns the id and version used.
func (c *Client) Upload(ctx context.Context, filename, id, version string) (string, string, error) {
	if id == "" || version == "" {
		parsedID, parsedVersion, err := ParseManifest(filename)
		if err != nil {
			return "", "", err
		}
		if id == "" {
			id = parsedID
		}
		if version == "" {
			version = parsedVersion
		}
	}
	c.logger.Info("Uploading file", "file", filename, "id", id, "version", version)

	data, err := os.ReadFile(filename)
	if err != nil {
		return "", "", fmt.Errorf("reading %s: %w", filename, err)
	}
	body, contentType, err := httpx.MultipartFile("upload", filepath.Base(filename), data)
	if err != nil {
		return "", "", fmt.Errorf("building upload of %s: %w", filename, err)
	}
	header, err := c.authHeaders()
	if err != nil {
		return "", "", err
	}

	var res uploadResponse
	err = c.http.SendJSON(httpx.Request{
		Method:      fasthttp.MethodPut,
		URL:         c.versionURL(id, version),
		Header:      header,
		ContentType: contentType,
		Body:        body,
	}, &res)
	if err != nil {
		return "", "", err
	}
	if res.GUID == nil {
		return "", "", apperrors.Vendorf("key 'guid' not found in upload response")
	}
	if *res.GUID != id {
		return "", "", fmt.Errorf("%w: returned guid %s is not equal to addon id %s", apperrors.ErrIDMismatch, *res.GUID, id)
	}

	c.logger.Info("File uploaded for signing", "file", filename)
	return id, version, nil
}

type statusFile struct {
	DownloadURL string `json:"download_url"`
}

type validationResults struct {
	Success  bool            `json:"success"`
	Messages []store.Message `json:"messages"`
}

type statusResponse struct {
	Processed         *bool              `json:"processed"`
	Files             []statusFile       `json:"files"`
	ValidationResults *validationResults `json:"validation_results"`
}

// Status implements store.Client.
func (c *Client) Status(ctx context.Context, id, version string) (store.Status, error) {
	header, err := c.authHeaders()
	if err != nil {
		return store.Status{}, err
	}
	var res statusResponse
	if err := c.http.SendJSON(httpx.Request{Method: fasthttp.MethodGet, URL: c.versionURL(id, version), Header: header}, &res); err != nil {
		return store.Status{}, err
	}
	if res.Processed == nil {
		return store.Status{}, apperrors.Vendorf("key 'processed' not found in status response")
	}

	st := store.Status{Processed: *res.Processed}
	if st.Processed {
		for _, f := range res.Files {
			if f.DownloadURL == "" {
				return store.Status{}, apperrors.Vendorf("key 'download_url' not found in file entry")
			}
			st.URLs = append(st.URLs, f.DownloadURL)
		}
	}
	if v := res.ValidationResults; v != nil {
		st.Validation = store.Partition(v.Success, v.Messages)
	}
	return st, nil
}

// Fetch implements store.Client. Signed files sit behind an authenticated
// endpoint that redirects to a CDN.
func (c *Client) Fetch(ctx context.Context, u string) ([]byte, error) {
	header, err := c.authHeaders()
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Send(httpx.Request{Method: fasthttp.MethodGet, URL: u, Header: header, FollowRedirects: true})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Download waits until the add-on version is signed and saves its files.
func (c *Client) Download(ctx context.Context, id, version string, opts store.DownloadOptions) ([]string, error) {
	return c.downloader.Download(ctx, c, id, version, opts)
}
