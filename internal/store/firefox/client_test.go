// SPDX-License-Identifier: AGPL-3.0-or-later
package firefox

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/golang-jwt/jwt/v5"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bartekus/webstore/internal/apperrors"
	"github.com/bartekus/webstore/internal/httpx"
	"github.com/bartekus/webstore/internal/store"
	"github.com/bartekus/webstore/internal/testutil/storefake"
)

const installRDF = `<?xml version="1.0"?>
<RDF xmlns="http://www.w3.org/1999/02/22-rdf-syntax-ns#" xmlns:em="http://www.mozilla.org/2004/em-rdf#">
  <Description about="urn:mozilla:install-manifest">
    <em:id>addon@example.com</em:id>
    <em:version>1.2.3</em:version>
  </Description>
</RDF>`

func writeXPI(t *testing.T, files map[string]string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "addon.xpi")
	f, err := os.Create(p)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return p
}

func newTestClient(t *testing.T, fake *storefake.AMO, opts ...Option) *Client {
	t.Helper()
	d := store.NewDownloader(logr.Discard())
	d.Sleep = func(time.Duration) {}
	base := []Option{
		WithAPIURL(fake.URL()),
		WithHTTPClient(httpx.New(httpx.WithTimeout(5 * time.Second))),
		WithDownloader(d),
	}
	return New(fake.Issuer, fake.Secret, append(base, opts...)...)
}

func TestParseManifest(t *testing.T) {
	tests := []struct {
		name        string
		files       map[string]string
		wantID      string
		wantVersion string
		wantErr     bool
	}{
		{
			name:        "install.rdf",
			files:       map[string]string{"install.rdf": installRDF},
			wantID:      "addon@example.com",
			wantVersion: "1.2.3",
		},
		{
			name: "manifest.json browser_specific_settings",
			files: map[string]string{"manifest.json": `{"version":"2.0",
				"browser_specific_settings":{"gecko":{"id":"we@example.com"}}}`},
			wantID:      "we@example.com",
			wantVersion: "2.0",
		},
		{
			name:        "manifest.json applications",
			files:       map[string]string{"manifest.json": `{"version":"3.1","applications":{"gecko":{"id":"old@example.com"}}}`},
			wantID:      "old@example.com",
			wantVersion: "3.1",
		},
		{
			name:    "install.rdf without version",
			files:   map[string]string{"install.rdf": "<em:id>x@y</em:id>"},
			wantErr: true,
		},
		{
			name:    "manifest.json without id",
			files:   map[string]string{"manifest.json": `{"version":"1.0"}`},
			wantErr: true,
		},
		{
			name:    "no manifest",
			files:   map[string]string{"content.js": "//"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, version, err := ParseManifest(writeXPI(t, tt.files))
			if tt.wantErr {
				assert.ErrorIs(t, err, apperrors.ErrManifestParse)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, id)
			assert.Equal(t, tt.wantVersion, version)
		})
	}
}

func TestParseManifest_NotAZip(t *testing.T) {
	p := filepath.Join(t.TempDir(), "plain.xpi")
	require.NoError(t, os.WriteFile(p, []byte("not a zip"), 0o644))
	_, _, err := ParseManifest(p)
	assert.ErrorIs(t, err, apperrors.ErrManifestParse)
}

func TestGenerateToken(t *testing.T) {
	issued := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c := New("user:1:2", "s3cret", WithClock(func() time.Time { return issued }))

	raw, err := c.GenerateToken()
	require.NoError(t, err)

	claims := &jwt.RegisteredClaims{}
	_, err = jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) { return []byte("s3cret"), nil },
		jwt.WithTimeFunc(func() time.Time { return issued.Add(time.Second) }))
	require.NoError(t, err)

	assert.Equal(t, "user:1:2", claims.Issuer)
	assert.NotEmpty(t, claims.ID)
	assert.Equal(t, issued.Unix(), claims.IssuedAt.Unix())
	assert.Equal(t, issued.Add(60*time.Second).Unix(), claims.ExpiresAt.Unix())

	other, err := c.GenerateToken()
	require.NoError(t, err)
	assert.NotEqual(t, raw, other, "each token carries a fresh jti")
}

func TestUpload(t *testing.T) {
	t.Run("parses id and version from the package", func(t *testing.T) {
		fake := storefake.NewAMO(t)
		c := newTestClient(t, fake)
		xpi := writeXPI(t, map[string]string{"install.rdf": installRDF})

		id, version, err := c.Upload(context.Background(), xpi, "", "")
		require.NoError(t, err)
		assert.Equal(t, "addon@example.com", id)
		assert.Equal(t, "1.2.3", version)

		require.Len(t, fake.Uploads(), 1)
		want, _ := os.ReadFile(xpi)
		assert.Equal(t, want, fake.Uploads()[0])
		assert.Equal(t, []string{"PUT /api/v3/addons/addon@example.com/versions/1.2.3/"}, fake.Requests())
	})

	t.Run("explicit version wins", func(t *testing.T) {
		fake := storefake.NewAMO(t)
		c := newTestClient(t, fake)
		xpi := writeXPI(t, map[string]string{"install.rdf": installRDF})

		_, version, err := c.Upload(context.Background(), xpi, "", "9.9")
		require.NoError(t, err)
		assert.Equal(t, "9.9", version)
	})

	t.Run("guid mismatch", func(t *testing.T) {
		fake := storefake.NewAMO(t)
		fake.GUID = "someone-else@example.com"
		c := newTestClient(t, fake)
		xpi := writeXPI(t, map[string]string{"install.rdf": installRDF})

		_, _, err := c.Upload(context.Background(), xpi, "", "")
		assert.ErrorIs(t, err, apperrors.ErrIDMismatch)
	})

	t.Run("bad credentials", func(t *testing.T) {
		fake := storefake.NewAMO(t)
		c := New(fake.Issuer, "wrong", WithAPIURL(fake.URL()))
		xpi := writeXPI(t, map[string]string{"install.rdf": installRDF})

		_, _, err := c.Upload(context.Background(), xpi, "", "")
		var se *httpx.StatusError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, 401, se.StatusCode)
		assert.ErrorIs(t, err, apperrors.ErrVendorRequest)
	})

	t.Run("unparsable package", func(t *testing.T) {
		fake := storefake.NewAMO(t)
		c := newTestClient(t, fake)
		xpi := writeXPI(t, map[string]string{"readme.txt": "hi"})

		_, _, err := c.Upload(context.Background(), xpi, "addon@example.com", "")
		assert.ErrorIs(t, err, apperrors.ErrManifestParse)
		assert.Empty(t, fake.Requests())
	})
}

func TestStatus(t *testing.T) {
	fake := storefake.NewAMO(t)
	fake.Statuses = []storefake.AMOStatus{
		{Processed: false, Files: []string{"ignored.xpi"}},
		{
			Processed: true,
			Files:     []string{"addon-1.0.xpi"},
			Validation: &storefake.AMOValidation{Success: true, Messages: []storefake.AMOMessage{
				{Type: "warning", Message: "unsafe innerHTML", File: "content.js", Line: 3},
				{Type: "notice", Message: "fyi"},
			}},
		},
	}
	c := newTestClient(t, fake)

	st, err := c.Status(context.Background(), "addon@example.com", "1.0")
	require.NoError(t, err)
	assert.False(t, st.Processed)
	assert.Empty(t, st.URLs, "files are only read once processed")
	assert.Nil(t, st.Validation)

	st, err = c.Status(context.Background(), "addon@example.com", "1.0")
	require.NoError(t, err)
	assert.True(t, st.Processed)
	assert.Equal(t, []string{fake.URL() + "/api/v3/file/addon-1.0.xpi"}, st.URLs)
	require.NotNil(t, st.Validation)
	assert.False(t, st.Validation.Failed())
	assert.Len(t, st.Validation.Warnings, 1)
	assert.Len(t, st.Validation.Notices, 1)
	assert.Equal(t, 3, st.Validation.Warnings[0].Line)
}

func TestDownload(t *testing.T) {
	t.Run("waits for signing", func(t *testing.T) {
		fake := storefake.NewAMO(t)
		fake.Statuses = []storefake.AMOStatus{
			{Processed: false},
			{Processed: true},
			{Processed: true, Files: []string{"addon-1.0-fx.xpi"}},
		}
		c := newTestClient(t, fake)
		dir := t.TempDir()

		written, err := c.Download(context.Background(), "addon@example.com", "1.0",
			store.DownloadOptions{Folder: dir, Attempts: 5, Interval: time.Second})
		require.NoError(t, err)
		assert.Equal(t, 3, fake.StatusCalls())
		require.Equal(t, []string{filepath.Join(dir, "addon-1.0-fx.xpi")}, written)

		data, err := os.ReadFile(written[0])
		require.NoError(t, err)
		assert.Equal(t, fake.FileContent, data)
	})

	t.Run("validation failure stops polling", func(t *testing.T) {
		fake := storefake.NewAMO(t)
		fake.Statuses = []storefake.AMOStatus{{
			Processed: true,
			Validation: &storefake.AMOValidation{Success: false, Messages: []storefake.AMOMessage{
				{Type: "error", Message: "eval is not allowed"},
			}},
		}}
		c := newTestClient(t, fake)

		_, err := c.Download(context.Background(), "addon@example.com", "1.0",
			store.DownloadOptions{Folder: t.TempDir(), Attempts: 5})
		require.ErrorIs(t, err, apperrors.ErrValidationFailed)
		assert.Contains(t, err.Error(), "eval is not allowed")
		assert.Equal(t, 1, fake.StatusCalls())
	})

	t.Run("target name for single file", func(t *testing.T) {
		fake := storefake.NewAMO(t)
		fake.Statuses = []storefake.AMOStatus{{Processed: true, Files: []string{"a.xpi"}}}
		c := newTestClient(t, fake)
		dir := t.TempDir()

		written, err := c.Download(context.Background(), "addon@example.com", "1.0",
			store.DownloadOptions{Folder: dir, Attempts: 1, TargetName: "signed.xpi"})
		require.NoError(t, err)
		assert.Equal(t, []string{filepath.Join(dir, "signed.xpi")}, written)
	})
}
