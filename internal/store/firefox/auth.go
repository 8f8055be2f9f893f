// SPDX-License-Identifier: AGPL-3.0-or-later
package firefox

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/bartekus/webstore/internal/apperrors"
)

// tokenLifetime is the maximum AMO accepts.
const tokenLifetime = 60 * time.Second

// GenerateToken signs a short-lived HS256 JWT for the AMO API.
func (c *Client) GenerateToken() (string, error) {
	issuedAt := c.now()
	claims := jwt.RegisteredClaims{
		Issuer:    c.issuer,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(issuedAt.Add(tokenLifetime)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(c.secret))
	if err != nil {
		return "", apperrors.Invalidf("signing JWT for issuer %s: %v", c.issuer, err)
	}
	return signed, nil
}

func (c *Client) authHeaders() (map[string]string, error) {
	token, err := c.GenerateToken()
	if err != nil {
		return nil, err
	}
	return map[string]string{"Authorization": "JWT " + token}, nil
}
