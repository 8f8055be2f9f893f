// SPDX-License-Identifier: AGPL-3.0-or-later
package storefake

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
)

// AMOMessage is a validation message returned by the AMO fake.
type AMOMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
}

// AMOStatus is one status response of the AMO fake.
type AMOStatus struct {
	Processed bool
	// Files are names served under /files/ once Processed is set.
	Files      []string
	Validation *AMOValidation
}

// AMOValidation is the validation_results object.
type AMOValidation struct {
	Success  bool         `json:"success"`
	Messages []AMOMessage `json:"messages"`
}

// AMO fakes the add-on signing API. Status queries replay Statuses in order;
// the last one repeats.
type AMO struct {
	server

	Issuer string
	Secret string

	// GUID overrides the guid returned by uploads.
	GUID     string
	Statuses []AMOStatus
	// FileContent is served for every file name.
	FileContent []byte

	uploads     [][]byte
	statusCalls int
	claims      []jwt.MapClaims
}

// NewAMO starts an AMO fake that accepts JWTs signed by issuer and secret.
func NewAMO(t *testing.T) *AMO {
	f := &AMO{
		Issuer:      "user:12345:67",
		Secret:      "amo-secret",
		FileContent: []byte("signed-xpi"),
	}

	r := f.router()
	r.Route("/api/v3/addons/{id}/versions/{version}", func(r chi.Router) {
		r.Use(f.authorized)
		r.Put("/", f.upload)
		r.Get("/", f.status)
	})
	r.With(f.authorized).Get("/api/v3/file/{name}", f.fileRedirect)
	r.Get("/cdn/{name}", f.file)

	f.start(t, r)
	return f
}

// Uploads returns the packages received so far.
func (f *AMO) Uploads() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.uploads...)
}

// StatusCalls counts status queries.
func (f *AMO) StatusCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls
}

// Claims returns the verified claims of every authorized request.
func (f *AMO) Claims() []jwt.MapClaims {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]jwt.MapClaims(nil), f.claims...)
}

func (f *AMO) authorized(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "JWT ")
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing JWT")
			return
		}
		claims := jwt.MapClaims{}
		_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
			return []byte(f.Secret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(f.Issuer))
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		f.mu.Lock()
		f.claims = append(f.claims, claims)
		f.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (f *AMO) upload(w http.ResponseWriter, r *http.Request) {
	file, _, err := r.FormFile("upload")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing upload field")
		return
	}
	defer file.Close()
	data, _ := io.ReadAll(file)

	f.mu.Lock()
	f.uploads = append(f.uploads, data)
	f.mu.Unlock()

	guid := f.GUID
	if guid == "" {
		guid = chi.URLParam(r, "id")
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"guid":      guid,
		"version":   chi.URLParam(r, "version"),
		"active":    true,
		"processed": false,
		"valid":     false,
		"files":     []any{},
	})
}

func (f *AMO) status(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	var st AMOStatus
	if n := len(f.Statuses); n > 0 {
		i := f.statusCalls
		if i >= n {
			i = n - 1
		}
		st = f.Statuses[i]
	}
	f.statusCalls++
	f.mu.Unlock()

	files := make([]map[string]any, 0, len(st.Files))
	for _, name := range st.Files {
		files = append(files, map[string]any{
			"download_url": "http://" + r.Host + "/api/v3/file/" + name,
			"signed":       true,
		})
	}
	resp := map[string]any{
		"guid":      chi.URLParam(r, "id"),
		"version":   chi.URLParam(r, "version"),
		"active":    true,
		"processed": st.Processed,
		"files":     files,
	}
	if st.Validation != nil {
		resp["validation_results"] = st.Validation
	}
	writeJSON(w, http.StatusOK, resp)
}

// fileRedirect mimics AMO handing signed files out through a CDN.
func (f *AMO) fileRedirect(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "http://"+r.Host+"/cdn/"+chi.URLParam(r, "name"), http.StatusFound)
}

func (f *AMO) file(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/x-xpinstall")
	_, _ = w.Write(f.FileContent)
}
