// SPDX-License-Identifier: AGPL-3.0-or-later
package chrome

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"

	"github.com/bartekus/webstore/internal/apperrors"
	"github.com/bartekus/webstore/internal/tokencache"
)

const (
	oauthScope     = "https://www.googleapis.com/auth/chromewebstore"
	oobRedirectURL = "urn:ietf:wg:oauth:2.0:oob"
	consentURL     = "https://accounts.google.com/o/oauth2/auth"

	// tokenSafetyMargin is subtracted from a token's lifetime before caching it.
	tokenSafetyMargin = time.Minute
)

// TokenCache stores access tokens between calls and runs.
type TokenCache interface {
	Get(key string) (string, bool, error)
	Set(key, value string, ttl time.Duration) error
	Delete(key string) error
}

func (c *Client) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.clientID,
		ClientSecret: c.clientSecret,
		RedirectURL:  oobRedirectURL,
		Scopes:       []string{oauthScope},
		Endpoint: oauth2.Endpoint{
			AuthURL:   consentURL,
			TokenURL:  c.tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// AuthURL returns the consent page a user opens to obtain a one-time code for clientID.
func AuthURL(clientID string) string {
	cfg := &oauth2.Config{
		ClientID:    clientID,
		RedirectURL: oobRedirectURL,
		Scopes:      []string{oauthScope},
		Endpoint:    oauth2.Endpoint{AuthURL: consentURL},
	}
	return cfg.AuthCodeURL("", oauth2.AccessTypeOffline)
}

// RedeemCode exchanges a one-time consent code for an access and a refresh
// token. The refresh token is kept on the client.
func (c *Client) RedeemCode(ctx context.Context, code string) (accessToken, refreshToken string, err error) {
	c.logger.V(1).Info("Requesting tokens", "clientID", c.clientID)

	tok, err := c.oauthConfig().Exchange(ctx, code)
	if err != nil {
		return "", "", oauthError(err, "redeem code")
	}
	if tok.RefreshToken == "" {
		return "", "", apperrors.Vendorf("token response of %s carries no refresh_token", c.tokenURL)
	}
	c.refreshToken = tok.RefreshToken
	return tok.AccessToken, tok.RefreshToken, nil
}

// AccessToken returns a valid access token, trading the refresh token for a
// new one when the cache has none.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	key := c.tokenKey()
	if c.cache != nil {
		if tok, ok, err := c.cache.Get(key); err != nil {
			c.logger.Error(err, "reading token cache")
		} else if ok {
			c.logger.V(1).Info("Using cached access token")
			return tok, nil
		}
	}

	if c.refreshToken == "" {
		return "", apperrors.Invalidf("a refresh token is required to generate an access token")
	}

	src := c.oauthConfig().TokenSource(ctx, &oauth2.Token{RefreshToken: c.refreshToken})
	tok, err := src.Token()
	if err != nil {
		return "", oauthError(err, "refresh access token")
	}
	c.logger.Info("Obtained an access token", "expiry", tok.Expiry)

	if c.cache != nil && !tok.Expiry.IsZero() {
		if err := c.cache.Set(key, tok.AccessToken, time.Until(tok.Expiry)-tokenSafetyMargin); err != nil {
			c.logger.Error(err, "writing token cache")
		}
	}
	return tok.AccessToken, nil
}

func (c *Client) tokenKey() string {
	return tokencache.Key("chrome", c.tokenURL, c.clientID, c.refreshToken)
}

// forgetToken drops the cached access token after the store rejected it.
func (c *Client) forgetToken() {
	if c.cache == nil {
		return
	}
	c.logger.Info("Access token rejected, dropping it from the cache")
	if err := c.cache.Delete(c.tokenKey()); err != nil {
		c.logger.Error(err, "deleting cached token")
	}
}

func oauthError(err error, context string) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		return apperrors.WrapVendor(err, fmt.Sprintf("%s: status %d", context, re.Response.StatusCode))
	}
	return apperrors.WrapVendor(err, context)
}
