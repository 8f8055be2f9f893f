// SPDX-License-Identifier: AGPL-3.0-or-later
package commands

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/go-logr/logr"

	"github.com/bartekus/webstore/internal/config"
	"github.com/bartekus/webstore/internal/httpx"
	"github.com/bartekus/webstore/internal/logging"
	"github.com/bartekus/webstore/internal/store"
	"github.com/bartekus/webstore/internal/store/chrome"
	"github.com/bartekus/webstore/internal/store/firefox"
	"github.com/bartekus/webstore/internal/tokencache"
)

// app holds what every command needs once the root flags are parsed.
type app struct {
	configPath string
	logFile    string
	verbosity  int
	noCache    bool

	cfg    config.Config
	logger logr.Logger
	flush  func()
	cache  *tokencache.Cache
}

func (a *app) setup(logOutput io.Writer) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logFile != "" {
		cfg.Log.File = a.logFile
	}
	if a.noCache {
		cfg.Cache.Disabled = true
	}
	a.cfg = cfg

	logger, flush, err := logging.New(logging.Options{Verbosity: a.verbosity, File: cfg.Log.File, Output: logOutput})
	if err != nil {
		return err
	}
	a.logger, a.flush = logger, flush
	if cfg.Log.File != "" {
		a.logger.Info("Logging into file", "path", cfg.Log.File)
	}
	return nil
}

func (a *app) teardown() {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Error(err, "closing token cache")
		}
		a.cache = nil
	}
	if a.flush != nil {
		a.flush()
		a.flush = nil
	}
}

// tokenCache opens the on-disk cache on first use. A cache that cannot be
// opened is logged and skipped; tokens are then fetched on every call.
func (a *app) tokenCache() chrome.TokenCache {
	if a.cache != nil {
		return a.cache
	}
	if a.cfg.Cache.Disabled || a.cfg.Cache.Dir == "" {
		return nil
	}
	c, err := tokencache.Open(a.cfg.Cache.Dir, a.logger)
	if err != nil {
		a.logger.Error(err, "token cache unavailable")
		return nil
	}
	a.cache = c
	return c
}

func (a *app) httpClient() *httpx.Client {
	return httpx.New(httpx.WithTimeout(a.cfg.HTTP.Timeout()), httpx.WithLogger(a.logger))
}

func (a *app) chromeOptions() []chrome.Option {
	opts := []chrome.Option{
		chrome.WithAPIURL(a.cfg.Chrome.APIURL),
		chrome.WithTokenURL(a.cfg.Chrome.TokenURL),
		chrome.WithDownloadURL(a.cfg.Chrome.DownloadURL),
		chrome.WithHTTPClient(a.httpClient()),
		chrome.WithLogger(a.logger),
	}
	if tc := a.tokenCache(); tc != nil {
		opts = append(opts, chrome.WithTokenCache(tc))
	}
	return opts
}

func (a *app) chromeClient(clientID, clientSecret, refreshToken string, opts ...chrome.Option) *chrome.Client {
	return chrome.New(clientID, clientSecret, refreshToken, append(a.chromeOptions(), opts...)...)
}

func (a *app) firefoxClient(issuer, secret string) *firefox.Client {
	return firefox.New(issuer, secret,
		firefox.WithAPIURL(a.cfg.Firefox.APIURL),
		firefox.WithHTTPClient(a.httpClient()),
		firefox.WithLogger(a.logger),
		firefox.WithDownloader(store.NewDownloader(a.logger)),
	)
}

var (
	okLabel   = color.New(color.FgGreen, color.Bold).SprintFunc()
	failLabel = color.New(color.FgRed, color.Bold).SprintFunc()
	keyLabel  = color.New(color.FgCyan).SprintFunc()
)

func printOK(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, "%s %s\n", okLabel("OK"), fmt.Sprintf(format, args...))
}

func printField(w io.Writer, key, value string) {
	_, _ = fmt.Fprintf(w, "  %s %s\n", keyLabel(key+":"), value)
}
