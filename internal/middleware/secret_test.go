package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func newGatedHandler(secret string) (http.Handler, *bool) {
	called := false
	gate := NewSecretGate("x-admin-secret", secret)
	handler := gate.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	return handler, &called
}

func TestSecretGate_CorrectSecret(t *testing.T) {
	handler, called := newGatedHandler("top-secret-value")

	req := httptest.NewRequest("POST", "/api/admins/add", nil)
	req.Header.Set("x-admin-secret", "top-secret-value")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !*called {
		t.Error("expected handler to run")
	}
}

func TestSecretGate_WrongSecret(t *testing.T) {
	handler, called := newGatedHandler("top-secret-value")

	req := httptest.NewRequest("POST", "/api/admins/add", nil)
	req.Header.Set("x-admin-secret", "guess")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
	if *called {
		t.Error("handler must not run with a wrong secret")
	}
}

func TestSecretGate_MissingHeader(t *testing.T) {
	handler, called := newGatedHandler("top-secret-value")

	req := httptest.NewRequest("POST", "/api/admins/add", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
	if *called {
		t.Error("handler must not run without the secret header")
	}
}

func TestSecretGate_UnconfiguredSecretFailsClosed(t *testing.T) {
	handler, called := newGatedHandler("")

	req := httptest.NewRequest("POST", "/api/admins/add", nil)
	req.Header.Set("x-admin-secret", "")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 when no secret is configured, got %d", rec.Code)
	}
	if *called {
		t.Error("handler must not run when the secret is unconfigured")
	}
}
