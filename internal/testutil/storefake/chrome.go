// SPDX-License-Identifier: AGPL-3.0-or-later
package storefake

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

// ChromeItem is an item held by the Chrome fake.
type ChromeItem struct {
	ID          string
	CrxVersion  string
	UploadState string
	Package     []byte
	Published   []string
}

// Chrome fakes the Chrome Web Store: the OAuth2 token endpoint, item upload,
// publish, draft projection and the CRX download endpoint.
type Chrome struct {
	server

	ClientID     string
	ClientSecret string
	RefreshToken string
	Code         string
	AccessToken  string

	// NextVersion is recorded as the crxVersion of the next upload.
	NextVersion string
	// UploadState is returned by uploads. Defaults to SUCCESS.
	UploadState string
	// PublishStatus is returned by publish calls. Defaults to ["OK"].
	PublishStatus []string
	// ReportedID overrides the item id returned by update uploads.
	ReportedID string

	items         map[string]*ChromeItem
	nextID        int
	tokenRequests int
}

// NewChrome starts a Chrome fake that accepts the given credentials.
func NewChrome(t *testing.T) *Chrome {
	f := &Chrome{
		ClientID:      "client-id",
		ClientSecret:  "client-secret",
		RefreshToken:  "refresh-token",
		Code:          "one-time-code",
		AccessToken:   "access-token",
		NextVersion:   "1.0",
		UploadState:   "SUCCESS",
		PublishStatus: []string{"OK"},
		items:         map[string]*ChromeItem{},
	}

	r := f.router()
	r.Post("/oauth2/v4/token", f.token)
	r.Route("/upload/chromewebstore/v1.1/items", func(r chi.Router) {
		r.Use(f.authorized)
		r.Post("/", f.uploadNew)
		r.Put("/{id}", f.uploadUpdate)
	})
	r.Route("/chromewebstore/v1.1/items/{id}", func(r chi.Router) {
		r.Use(f.authorized)
		r.Get("/", f.item)
		r.Post("/publish", f.publish)
	})
	r.Get("/service/update2/crx", f.crxRedirect)
	r.Get("/crx/{id}", f.crx)

	f.start(t, r)
	return f
}

func (f *Chrome) APIURL() string      { return f.URL() }
func (f *Chrome) TokenURL() string    { return f.URL() + "/oauth2/v4/token" }
func (f *Chrome) DownloadURL() string { return f.URL() + "/service/update2/crx" }

// TokenRequests counts calls to the token endpoint.
func (f *Chrome) TokenRequests() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokenRequests
}

// AddItem stores an item as if it had been uploaded before.
func (f *Chrome) AddItem(item ChromeItem) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if item.UploadState == "" {
		item.UploadState = "SUCCESS"
	}
	f.items[item.ID] = &item
}

// Item returns a copy of a stored item.
func (f *Chrome) Item(id string) (ChromeItem, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	it, ok := f.items[id]
	if !ok {
		return ChromeItem{}, false
	}
	return *it, true
}

func (f *Chrome) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	f.mu.Lock()
	f.tokenRequests++
	f.mu.Unlock()

	if r.PostForm.Get("client_id") != f.ClientID || r.PostForm.Get("client_secret") != f.ClientSecret {
		writeError(w, http.StatusUnauthorized, "invalid_client")
		return
	}

	resp := map[string]any{
		"access_token": f.AccessToken,
		"token_type":   "Bearer",
		"expires_in":   3600,
	}
	switch r.PostForm.Get("grant_type") {
	case "refresh_token":
		if r.PostForm.Get("refresh_token") != f.RefreshToken {
			writeError(w, http.StatusBadRequest, "invalid_grant")
			return
		}
	case "authorization_code":
		if r.PostForm.Get("code") != f.Code {
			writeError(w, http.StatusBadRequest, "invalid_grant")
			return
		}
		resp["refresh_token"] = f.RefreshToken
	default:
		writeError(w, http.StatusBadRequest, "unsupported_grant_type")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (f *Chrome) authorized(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+f.AccessToken {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if r.Header.Get("x-goog-api-version") != "2" {
			writeError(w, http.StatusBadRequest, "missing api version")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (f *Chrome) uploadNew(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	f.nextID++
	id := fmt.Sprintf("item%04d", f.nextID)
	f.items[id] = &ChromeItem{ID: id, CrxVersion: f.NextVersion, UploadState: f.UploadState, Package: body}
	f.mu.Unlock()

	f.uploadResponse(w, id)
}

func (f *Chrome) uploadUpdate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	it, ok := f.items[id]
	if ok {
		it.CrxVersion = f.NextVersion
		it.UploadState = f.UploadState
		it.Package = body
	}
	f.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "item not found")
		return
	}

	if f.ReportedID != "" {
		id = f.ReportedID
	}
	f.uploadResponse(w, id)
}

func (f *Chrome) uploadResponse(w http.ResponseWriter, id string) {
	resp := map[string]any{
		"kind":        "chromewebstore#item",
		"id":          id,
		"uploadState": f.UploadState,
	}
	if f.UploadState != "SUCCESS" {
		resp["itemError"] = []map[string]string{{
			"error_code":   "PKG_INVALID",
			"error_detail": "The package is invalid.",
		}}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (f *Chrome) item(w http.ResponseWriter, r *http.Request) {
	it, ok := f.Item(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "item not found")
		return
	}
	if r.URL.Query().Get("projection") != "DRAFT" {
		writeError(w, http.StatusBadRequest, "unsupported projection")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"kind":        "chromewebstore#item",
		"id":          it.ID,
		"crxVersion":  it.CrxVersion,
		"uploadState": it.UploadState,
	})
}

func (f *Chrome) publish(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	target := r.URL.Query().Get("publishTarget")
	if h := r.Header.Get("publishTarget"); h != "" && h != target {
		writeError(w, http.StatusBadRequest, "conflicting publish targets")
		return
	}

	f.mu.Lock()
	it, ok := f.items[id]
	if ok {
		it.Published = append(it.Published, target)
	}
	f.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "item not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"kind":         "chromewebstore#item",
		"item_id":      id,
		"status":       f.PublishStatus,
		"statusDetail": []string{"Published " + target},
	})
}

// crxRedirect mimics the update service, which redirects to the package.
func (f *Chrome) crxRedirect(w http.ResponseWriter, r *http.Request) {
	x := r.URL.Query().Get("x")
	id := strings.TrimSuffix(strings.TrimPrefix(x, "id="), "&uc")
	if id == "" || id == x || r.URL.Query().Get("response") != "redirect" {
		writeError(w, http.StatusBadRequest, "malformed update request")
		return
	}
	http.Redirect(w, r, "http://"+r.Host+"/crx/"+id, http.StatusFound)
}

func (f *Chrome) crx(w http.ResponseWriter, r *http.Request) {
	it, ok := f.Item(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "item not found")
		return
	}
	w.Header().Set("Content-Type", "application/x-chrome-extension")
	_, _ = w.Write(it.Package)
}
