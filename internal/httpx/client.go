// SPDX-License-Identifier: AGPL-3.0-or-later

// Package httpx is the transport shared by the vendor store clients. It wraps a
// fasthttp client and turns non-success responses into vendor request errors.
package httpx

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"time"

	"github.com/go-logr/logr"
	"github.com/valyala/fasthttp"

	"github.com/bartekus/webstore/internal/apperrors"
)

const (
	defaultTimeout = 120 * time.Second
	maxRedirects   = 10
	maxErrorBody   = 2048
)

// Request describes a single vendor API call.
type Request struct {
	Method      string
	URL         string
	Header      map[string]string
	ContentType string
	Body        []byte
	// FollowRedirects makes the client follow up to maxRedirects redirects.
	FollowRedirects bool
}

// Response is a detached copy of a vendor response.
type Response struct {
	StatusCode int
	Body       []byte
}

// StatusError reports a non-2xx vendor response.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// Is makes a StatusError match apperrors.ErrVendorRequest.
func (e *StatusError) Is(target error) bool {
	return target == apperrors.ErrVendorRequest
}

// Client executes vendor requests.
type Client struct {
	hc      *fasthttp.Client
	timeout time.Duration
	logger  logr.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(logger logr.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a Client.
func New(opts ...Option) *Client {
	c := &Client{
		timeout: defaultTimeout,
		logger:  logr.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.hc = &fasthttp.Client{
		Name:                "webstore",
		ReadTimeout:         c.timeout,
		WriteTimeout:        c.timeout,
		MaxResponseBodySize: 512 << 20,
	}
	return c
}

// Do executes r and returns the response regardless of its status code.
// Only transport failures are returned as errors.
func (c *Client) Do(r Request) (*Response, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	method := r.Method
	if method == "" {
		method = fasthttp.MethodGet
	}
	req.SetRequestURI(r.URL)
	req.Header.SetMethod(method)
	for k, v := range r.Header {
		req.Header.Set(k, v)
	}
	if r.ContentType != "" {
		req.Header.SetContentType(r.ContentType)
	}
	if r.Body != nil {
		req.SetBody(r.Body)
	}

	c.logger.V(1).Info("HTTP request", "method", method, "url", r.URL, "bytes", len(r.Body))

	var err error
	if r.FollowRedirects {
		err = c.hc.DoRedirects(req, resp, maxRedirects)
	} else {
		err = c.hc.DoTimeout(req, resp, c.timeout)
	}
	if err != nil {
		return nil, apperrors.WrapVendor(err, fmt.Sprintf("%s %s", method, r.URL))
	}

	out := &Response{
		StatusCode: resp.StatusCode(),
		Body:       append([]byte(nil), resp.Body()...),
	}
	c.logger.V(1).Info("HTTP response", "method", method, "url", r.URL, "status", out.StatusCode)
	return out, nil
}

// Send executes r and fails with a *StatusError unless the response is 2xx.
func (c *Client) Send(r Request) (*Response, error) {
	resp, err := c.Do(r)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		method := r.Method
		if method == "" {
			method = fasthttp.MethodGet
		}
		body := resp.Body
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return nil, &StatusError{Method: method, URL: r.URL, StatusCode: resp.StatusCode, Body: string(body)}
	}
	return resp, nil
}

// SendJSON executes r, requires a 2xx status and decodes the body into out.
func (c *Client) SendJSON(r Request, out any) error {
	resp, err := c.Send(r)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return apperrors.WrapVendor(err, fmt.Sprintf("response of %s could not be decoded as JSON", r.URL))
	}
	return nil
}

// MultipartFile builds a multipart/form-data body holding a single file field.
// It returns the body and its content type.
func MultipartFile(field, filename string, content []byte) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(field, filename)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(content); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
