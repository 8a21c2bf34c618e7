package middleware

import (
	"crypto/subtle"
	"net/http"
)

// SecretGate guards a route group behind a static shared-secret header.
// Comparison is constant-time. An unconfigured secret fails closed: every
// request is rejected until the secret is set.
type SecretGate struct {
	header string
	secret string
}

// NewSecretGate builds a gate checking the given header against secret.
func NewSecretGate(header, secret string) *SecretGate {
	return &SecretGate{header: header, secret: secret}
}

func (g *SecretGate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.Allow(r) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Allow reports whether the request carries the correct secret.
func (g *SecretGate) Allow(r *http.Request) bool {
	if g.secret == "" {
		return false
	}
	provided := r.Header.Get(g.header)
	if provided == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(g.secret)) == 1
}
