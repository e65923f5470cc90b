package httpserver_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/keithlinneman/portfolio-api/internal/api"
	"github.com/keithlinneman/portfolio-api/internal/auth"
	"github.com/keithlinneman/portfolio-api/internal/defense"
	"github.com/keithlinneman/portfolio-api/internal/httpserver"
	"github.com/keithlinneman/portfolio-api/internal/log"
	"github.com/keithlinneman/portfolio-api/internal/secevent"
	"github.com/keithlinneman/portfolio-api/internal/store"
)

const adminKey = "integration-admin-key-0123456789abcdef"

type sink struct {
	mu   sync.Mutex
	recs []secevent.Record
}

func (s *sink) Write(_ context.Context, r secevent.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, r)
}

func (s *sink) kinds() []secevent.Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []secevent.Kind
	for _, r := range s.recs {
		out = append(out, r.Kind)
	}
	return out
}

// newStack wires the full public handler over a temp sqlite store.
func newStack(t *testing.T, key string) (http.Handler, *sink) {
	t.Helper()

	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "portfolio.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	s := &sink{}
	events := secevent.New(s)
	d := defense.New(context.Background(), defense.Config{
		AdminAPIKey:        key,
		EnableRateLimiting: true,
		CORSOrigins:        []string{"https://portfolio.example.com"},
	}, events, defense.Hooks{})
	t.Cleanup(d.Close)

	routes := api.New(st, d.RequireAdmin, events, "1.0.0")
	return httpserver.NewHandler(&httpserver.Options{
		Logger:    log.Nop(),
		Defense:   d,
		APIRoutes: routes.RegisterRoutes,
	}), s
}

func call(h http.Handler, method, path, body, key string) *httptest.ResponseRecorder {
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	r.RemoteAddr = "198.51.100.23:40000"
	if key != "" {
		r.Header.Set(auth.HeaderAPIKey, key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

const newProject = `{"slug":"edge-proxy","title":"Edge proxy","description":"Reverse proxy","category":"infra","date":"2024","tags":["Go","Networking"]}`

func TestIntegration_AdminLifecycle(t *testing.T) {
	t.Parallel()
	h, _ := newStack(t, adminKey)

	rec := call(h, http.MethodPost, "/api/projects", newProject, adminKey)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status = %d body = %s", rec.Code, rec.Body.String())
	}

	rec = call(h, http.MethodGet, "/api/projects/edge-proxy", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get: status = %d", rec.Code)
	}
	var p map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatal(err)
	}
	if p["slug"] != "edge-proxy" {
		t.Errorf("slug = %v", p["slug"])
	}
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("security headers missing on API response")
	}

	rec = call(h, http.MethodDelete, "/api/projects/edge-proxy", "", adminKey)
	if rec.Code != http.StatusOK && rec.Code != http.StatusNoContent {
		t.Fatalf("delete: status = %d", rec.Code)
	}
	if rec := call(h, http.MethodGet, "/api/projects/edge-proxy", "", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("after delete: status = %d, want 404", rec.Code)
	}
}

func TestIntegration_BruteForceLockout(t *testing.T) {
	t.Parallel()
	h, s := newStack(t, adminKey)

	for i := range 5 {
		rec := call(h, http.MethodPost, "/api/projects", newProject, "guess-"+string(rune('a'+i)))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: status = %d, want 401", i+1, rec.Code)
		}
		if rec.Header().Get("WWW-Authenticate") != "API-Key" {
			t.Errorf("attempt %d: missing WWW-Authenticate", i+1)
		}
	}

	// the real key no longer helps
	rec := call(h, http.MethodPost, "/api/projects", newProject, adminKey)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("locked: status = %d, want 429", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "900" {
		t.Errorf("Retry-After = %q, want 900", got)
	}

	// public reads still work
	if rec := call(h, http.MethodGet, "/api/projects", "", ""); rec.Code != http.StatusOK {
		t.Errorf("read while locked: status = %d, want 200", rec.Code)
	}

	var failures, blocks int
	for _, k := range s.kinds() {
		switch k {
		case secevent.AuthFailure:
			failures++
		case secevent.SuspiciousRequest:
			blocks++
		}
	}
	if failures != 5 || blocks != 1 {
		t.Errorf("AUTH_FAILURE = %d SUSPICIOUS_REQUEST = %d, want 5 and 1", failures, blocks)
	}
}

func TestIntegration_AdminWithoutSecret(t *testing.T) {
	t.Parallel()
	h, s := newStack(t, "")

	rec := call(h, http.MethodPost, "/api/projects", newProject, "anything")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "key") {
		t.Errorf("body reveals configuration: %q", rec.Body.String())
	}
	kinds := s.kinds()
	if len(kinds) != 1 || kinds[0] != secevent.AccessDenied {
		t.Errorf("events = %v, want [ACCESS_DENIED]", kinds)
	}
}

func TestIntegration_ContactLimit(t *testing.T) {
	t.Parallel()
	h, _ := newStack(t, adminKey)

	body := `{"name":"Ada","email":"ada@example.com","subject":"Hello there","message":"Just saying hello."}`
	for i := range 5 {
		if rec := call(h, http.MethodPost, "/api/contact", body, ""); rec.Code != http.StatusCreated {
			t.Fatalf("submission %d: status = %d body = %s", i+1, rec.Code, rec.Body.String())
		}
	}
	rec := call(h, http.MethodPost, "/api/contact", body, "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("sixth submission: status = %d, want 429", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "3600" {
		t.Errorf("Retry-After = %q, want 3600", got)
	}

	// admin inbox is a different scope
	rec = call(h, http.MethodGet, "/api/contact", "", adminKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("inbox: status = %d", rec.Code)
	}
	var list struct {
		Total  int `json:"total"`
		Unread int `json:"unread"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if list.Total != 5 || list.Unread != 5 {
		t.Errorf("inbox = %+v, want 5 total 5 unread", list)
	}
}

func TestIntegration_CORS(t *testing.T) {
	t.Parallel()
	h, _ := newStack(t, adminKey)

	r := httptest.NewRequest(http.MethodOptions, "/api/projects", nil)
	r.RemoteAddr = "198.51.100.23:40000"
	r.Header.Set("Origin", "https://portfolio.example.com")
	r.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://portfolio.example.com" {
		t.Errorf("allow origin = %q", got)
	}
	if rec.Header().Get("Access-Control-Allow-Credentials") != "" {
		t.Error("credentials must not be allowed")
	}

	r = httptest.NewRequest(http.MethodGet, "/api/projects", nil)
	r.RemoteAddr = "198.51.100.23:40000"
	r.Header.Set("Origin", "https://evil.example.net")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("unlisted origin was allowed")
	}
}

func TestIntegration_RootAndHealth(t *testing.T) {
	t.Parallel()
	h, _ := newStack(t, adminKey)

	rec := call(h, http.MethodGet, "/", "", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"version":"1.0.0"`) {
		t.Fatalf("root: status = %d body = %s", rec.Code, rec.Body.String())
	}
	rec = call(h, http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "healthy") {
		t.Fatalf("health: status = %d body = %s", rec.Code, rec.Body.String())
	}
}
