// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chrome is a client for the Chrome Web Store publishing API.
package chrome

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/go-logr/logr"
	"github.com/valyala/fasthttp"

	"github.com/bartekus/webstore/internal/apperrors"
	"github.com/bartekus/webstore/internal/config"
	"github.com/bartekus/webstore/internal/httpx"
	"github.com/bartekus/webstore/internal/store"
)

const (
	apiVersionHeader = "x-goog-api-version"
	uploadStateOK    = "SUCCESS"
	// prodVersion is the browser version announced to the CRX download endpoint.
	prodVersion = "9999.0.0.0"
)

// Client talks to the Chrome Web Store on behalf of one OAuth2 client.
type Client struct {
	clientID     string
	clientSecret string
	refreshToken string
	appID        string

	apiURL      string
	tokenURL    string
	downloadURL string

	http       *httpx.Client
	cache      TokenCache
	downloader *store.Downloader
	logger     logr.Logger
}

// Option configures a Client.
type Option func(*Client)

func WithAppID(appID string) Option          { return func(c *Client) { c.appID = appID } }
func WithAPIURL(u string) Option             { return func(c *Client) { c.apiURL = strings.TrimRight(u, "/") } }
func WithTokenURL(u string) Option           { return func(c *Client) { c.tokenURL = u } }
func WithDownloadURL(u string) Option        { return func(c *Client) { c.downloadURL = u } }
func WithHTTPClient(h *httpx.Client) Option  { return func(c *Client) { c.http = h } }
func WithTokenCache(cache TokenCache) Option { return func(c *Client) { c.cache = cache } }
func WithLogger(logger logr.Logger) Option   { return func(c *Client) { c.logger = logger } }

// WithDownloader sets the workflow used by Download.
func WithDownloader(d *store.Downloader) Option { return func(c *Client) { c.downloader = d } }

// New creates a Client. refreshToken may be empty when the client is only
// used to redeem a consent code.
func New(clientID, clientSecret, refreshToken string, opts ...Option) *Client {
	c := &Client{
		clientID:     clientID,
		clientSecret: clientSecret,
		refreshToken: refreshToken,
		apiURL:       config.DefaultChromeAPIURL,
		tokenURL:     config.DefaultChromeTokenURL,
		downloadURL:  config.DefaultChromeDownloadURL,
		logger:       logr.Discard(),
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

func (c *Client) AppID() string        { return c.appID }
func (c *Client) RefreshToken() string { return c.refreshToken }

// SetAppID binds the client to an existing item. Item URLs derive from it.
func (c *Client) SetAppID(appID string) { c.appID = appID }

func (c *Client) newItemURL() string {
	return c.apiURL + "/upload/chromewebstore/v1.1/items"
}

func (c *Client) updateItemURL() string {
	return c.newItemURL() + "/" + url.PathEscape(c.appID)
}

func (c *Client) itemURL(id string) string {
	return c.apiURL + "/chromewebstore/v1.1/items/" + url.PathEscape(id)
}

// sendJSON is httpx.Client.SendJSON for authorized store calls.
func (c *Client) sendJSON(req httpx.Request, out any) error {
	err := c.http.SendJSON(req, out)
	var se *httpx.StatusError
	if errors.As(err, &se) && se.StatusCode == fasthttp.StatusUnauthorized {
		c.forgetToken()
	}
	return err
}

func (c *Client) headers(ctx context.Context) (map[string]string, error) {
	token, err := c.AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"Authorization":  "Bearer " + token,
		apiVersionHeader: "2",
	}, nil
}

type itemError struct {
	Code   string `json:"error_code"`
	Detail string `json:"error_detail"`
}

type uploadResponse struct {
	ID          string      `json:"id"`
	UploadState string      `json:"uploadState"`
	ItemError   []itemError `json:"itemError"`
}

// UploadNew uploads filename as a brand new item and returns its ID.
func (c *Client) UploadNew(ctx context.Context, filename string) (string, error) {
	return c.Upload(ctx, filename, true)
}

// UploadUpdate uploads filename as a new version of the bound item.
func (c *Client) UploadUpdate(ctx context.Context, filename string) (string, error) {
	return c.Upload(ctx, filename, false)
}

// Upload uploads a zipped extension, either as a new item or as an update of
// the bound app. On success the client is bound to the returned item ID.
func (c *Client) Upload(ctx context.Context, filename string, newItem bool) (string, error) {
	if newItem {
		c.logger.Info("Uploading a new extension", "file", filename)
	} else {
		c.logger.Info("Uploading an update", "file", filename, "appID", c.appID)
		if c.appID == "" {
			return "", fmt.Errorf("%w: an app id is required to upload a new version of an extension", apperrors.ErrMissingAppID)
		}
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", filename, err)
	}
	header, err := c.headers(ctx)
	if err != nil {
		return "", err
	}

	req := httpx.Request{Header: header, Body: data}
	if newItem {
		req.Method, req.URL = fasthttp.MethodPost, c.newItemURL()
	} else {
		req.Method, req.URL = fasthttp.MethodPut, c.updateItemURL()
	}

	var res uploadResponse
	if err := c.sendJSON(req, &res); err != nil {
		return "", err
	}
	if res.UploadState == "" {
		return "", apperrors.Vendorf("key 'uploadState' not found in upload response")
	}
	if res.UploadState != uploadStateOK {
		details := make([]string, 0, len(res.ItemError))
		for _, ie := range res.ItemError {
			details = append(details, ie.Code+": "+ie.Detail)
		}
		return "", fmt.Errorf("%w: %s (%s)", apperrors.ErrUploadState, res.UploadState, strings.Join(details, "; "))
	}
	if !newItem && res.ID != c.appID {
		return "", fmt.Errorf("%w: uploaded to %s but store reports %s", apperrors.ErrIDMismatch, c.appID, res.ID)
	}

	c.appID = res.ID
	c.logger.Info("Upload completed", "itemID", c.appID)
	return c.appID, nil
}

type publishResponse struct {
	ItemID       string    `json:"item_id"`
	Status       *[]string `json:"status"`
	StatusDetail []string  `json:"statusDetail"`
}

// Publish publishes the bound item to target and returns its ID.
func (c *Client) Publish(ctx context.Context, target Target) (string, error) {
	if c.appID == "" {
		return "", fmt.Errorf("%w: publishing requires an app id", apperrors.ErrMissingAppID)
	}
	pt, err := target.publishTarget()
	if err != nil {
		return "", err
	}
	header, err := c.headers(ctx)
	if err != nil {
		return "", err
	}
	// The API documentation disagrees on whether the target goes in the
	// query or in a header; trusted testers get both.
	if target == TargetTrusted {
		header["publishTarget"] = pt
	}

	u := c.itemURL(c.appID) + "/publish?publishTarget=" + url.QueryEscape(pt)
	c.logger.V(1).Info("Making publish query", "url", u)

	var res publishResponse
	if err := c.sendJSON(httpx.Request{Method: fasthttp.MethodPost, URL: u, Header: header}, &res); err != nil {
		return "", err
	}
	if res.Status == nil {
		return "", apperrors.Vendorf("key 'status' not found in publish response")
	}
	status := *res.Status
	if !(len(status) == 0 || (len(status) == 1 && status[0] == "OK")) {
		return "", fmt.Errorf("%w: %s (%s)", apperrors.ErrPublishStatus,
			strings.Join(status, ","), strings.Join(res.StatusDetail, "; "))
	}

	if res.ItemID != "" {
		c.appID = res.ItemID
	}
	c.logger.Info("Publishing completed", "itemID", c.appID, "target", target.String())
	return c.appID, nil
}

type itemResponse struct {
	ID          string `json:"id"`
	CrxVersion  string `json:"crxVersion"`
	UploadState string `json:"uploadState"`
}

func (c *Client) draft(ctx context.Context, id string) (itemResponse, error) {
	var res itemResponse
	header, err := c.headers(ctx)
	if err != nil {
		return res, err
	}
	u := c.itemURL(id) + "?projection=DRAFT"
	c.logger.V(1).Info("Checking status", "url", u)
	if err := c.sendJSON(httpx.Request{Method: fasthttp.MethodGet, URL: u, Header: header}, &res); err != nil {
		return res, err
	}
	return res, nil
}

// UploadedVersion returns the version of the bound item's current draft.
func (c *Client) UploadedVersion(ctx context.Context) (string, error) {
	if c.appID == "" {
		return "", fmt.Errorf("%w: reading the uploaded version requires an app id", apperrors.ErrMissingAppID)
	}
	res, err := c.draft(ctx, c.appID)
	if err != nil {
		return "", err
	}
	if res.CrxVersion == "" {
		return "", apperrors.Vendorf("key 'crxVersion' not found in item response")
	}
	c.logger.Info("Status obtained", "itemID", c.appID, "version", res.CrxVersion, "state", res.UploadState)
	return res.CrxVersion, nil
}

// Status implements store.Client. An item version counts as processed once
// its draft upload succeeded with the expected version; the package is then
// offered through the store's CRX download endpoint.
func (c *Client) Status(ctx context.Context, id, version string) (store.Status, error) {
	res, err := c.draft(ctx, id)
	if err != nil {
		return store.Status{}, err
	}
	st := store.Status{Processed: res.UploadState == uploadStateOK && res.CrxVersion == version}
	if st.Processed {
		st.URLs = []string{c.crxURL(id)}
	}
	return st, nil
}

func (c *Client) crxURL(id string) string {
	q := url.Values{}
	q.Set("response", "redirect")
	q.Set("prodversion", prodVersion)
	q.Set("acceptformat", "crx2,crx3")
	q.Set("x", "id="+id+"&uc")
	return c.downloadURL + "?" + q.Encode()
}

// Fetch implements store.Client.
func (c *Client) Fetch(ctx context.Context, u string) ([]byte, error) {
	resp, err := c.http.Send(httpx.Request{Method: fasthttp.MethodGet, URL: u, FollowRedirects: true})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Download waits for version of the bound item to be processed and saves its
// CRX package. Without a target name the file is called <id>-<version>.crx.
func (c *Client) Download(ctx context.Context, version string, opts store.DownloadOptions) ([]string, error) {
	if c.appID == "" {
		return nil, fmt.Errorf("%w: downloading requires an app id", apperrors.ErrMissingAppID)
	}
	if opts.TargetName == "" {
		opts.TargetName = c.appID + "-" + version + ".crx"
	}
	return c.downloader.Download(ctx, c, c.appID, version, opts)
}
