package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/takenap/adlib/internal/access"
	"github.com/takenap/adlib/internal/config"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

// newTestServer wires a server with no database. Only routes that are
// rejected before reaching a service can be exercised here; handler-level
// behavior is tested in the service packages.
func newTestServer() *Server {
	cfg := &config.Config{
		JWTSecret:    "router-test-secret-32-characters!!!!!!!!",
		AdminSecret:  "router-admin-secret",
		MakeAPIKey:   "router-api-key",
		ImageBucket:  "ads-images",
		VideoBucket:  "ads-videos",
		SignedURLTTL: 3600,
	}
	authService := access.NewAuthService(nil, cfg.JWTSecret, 3600)
	return New(cfg, nil, authService, nil, nil, nil, nil, nil, nil, nil, nil, nil, nil, nil, nil)
}

func do(t *testing.T, s *Server, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

// ---------------------------------------------------------------------------
// Route protection
// ---------------------------------------------------------------------------

func TestBearerRoutesRejectAnonymous(t *testing.T) {
	s := newTestServer()

	paths := []struct {
		method string
		path   string
	}{
		{"GET", "/auth/me"},
		{"GET", "/api/ads"},
		{"POST", "/api/ads"},
		{"DELETE", "/api/ads/1"},
		{"GET", "/api/folders"},
		{"POST", "/api/parse-meta-link"},
		{"POST", "/api/generate"},
		{"GET", "/api/access-profiles"},
	}
	for _, p := range paths {
		rec := do(t, s, p.method, p.path, nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: expected 401, got %d", p.method, p.path, rec.Code)
		}
	}
}

func TestAdminRoutesRejectMissingSecret(t *testing.T) {
	s := newTestServer()

	paths := []struct {
		method string
		path   string
	}{
		{"GET", "/api/admins"},
		{"POST", "/api/admins/add"},
		{"POST", "/api/admins/remove-by-email"},
		{"POST", "/api/admins/sync"},
		{"GET", "/api/access-requests"},
		{"POST", "/api/access-requests/1/approve"},
		{"POST", "/api/access-requests/1/block"},
		{"GET", "/api/ads/debug/archive-ids"},
	}
	for _, p := range paths {
		rec := do(t, s, p.method, p.path, nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: expected 401 without admin secret, got %d", p.method, p.path, rec.Code)
		}

		rec = do(t, s, p.method, p.path, map[string]string{"x-admin-secret": "wrong"})
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: expected 401 with wrong admin secret, got %d", p.method, p.path, rec.Code)
		}
	}
}

func TestWebhookRoutesRejectMissingAPIKey(t *testing.T) {
	s := newTestServer()

	for _, path := range []string{"/api/webhook/make", "/api/webhook/meta-results"} {
		rec := do(t, s, "POST", path, nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("POST %s: expected 401 without x-api-key, got %d", path, rec.Code)
		}

		rec = do(t, s, "POST", path, map[string]string{"x-api-key": "not-the-key"})
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("POST %s: expected 401 with wrong x-api-key, got %d", path, rec.Code)
		}
	}
}

// ---------------------------------------------------------------------------
// Outer middleware
// ---------------------------------------------------------------------------

func TestSecurityHeadersPresent(t *testing.T) {
	s := newTestServer()
	rec := do(t, s, "GET", "/api/ads", nil)

	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
	} {
		if got := rec.Header().Get(header); got != want {
			t.Errorf("%s: expected %q, got %q", header, want, got)
		}
	}
	if csp := rec.Header().Get("Content-Security-Policy"); !strings.Contains(csp, "default-src 'none'") {
		t.Errorf("unexpected CSP: %q", csp)
	}
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer()

	req := httptest.NewRequest(http.MethodOptions, "/api/ads", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("expected whitelisted origin echoed, got %q", got)
	}
	if rec.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Error("expected credentials allowed for whitelisted origin")
	}
	if !strings.Contains(rec.Header().Get("Access-Control-Allow-Headers"), "x-admin-secret") {
		t.Error("expected x-admin-secret in allowed headers")
	}
}

func TestCORSUnknownOriginGetsNoCredentials(t *testing.T) {
	s := newTestServer()

	req := httptest.NewRequest(http.MethodOptions, "/api/ads", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Header().Get("Access-Control-Allow-Credentials") != "" {
		t.Error("credentials must not be allowed for unknown origins")
	}
}

func TestUnknownRouteIs404(t *testing.T) {
	s := newTestServer()
	rec := do(t, s, "GET", "/api/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}
