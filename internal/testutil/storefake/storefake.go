// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storefake serves in-process fakes of the Chrome Web Store and AMO
// APIs for tests.
package storefake

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// server is the part shared by both fakes: a chi router behind httptest and a
// request log.
type server struct {
	srv *httptest.Server

	mu       sync.Mutex
	requests []string
}

func (s *server) start(t *testing.T, r *chi.Mux) {
	t.Helper()
	s.srv = httptest.NewServer(r)
	t.Cleanup(s.srv.Close)
}

// URL is the base URL of the fake.
func (s *server) URL() string { return s.srv.URL }

// Requests returns "METHOD path" of every request served so far.
func (s *server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

func (s *server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, r.Method+" "+r.URL.Path)
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *server) router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.record)
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
