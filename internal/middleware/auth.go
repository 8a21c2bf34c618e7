package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/takenap/adlib/internal/access"
)

// writeJSON is the package's shared error-response writer. Middleware always
// rejects with a JSON body so clients never have to sniff content types.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// BearerAuth validates access tokens and puts "user_id" and "email" into the
// request context.
type BearerAuth struct {
	authService *access.AuthService
}

func NewBearerAuth(authService *access.AuthService) *BearerAuth {
	return &BearerAuth{authService: authService}
}

type contextKey string

const (
	ContextUserID contextKey = "user_id"
	ContextEmail  contextKey = "email"
)

func (m *BearerAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if auth == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing authorization header"})
			return
		}

		token := strings.TrimPrefix(auth, "Bearer ")
		if token == auth {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid authorization format"})
			return
		}

		claims, err := m.authService.ValidateToken(token)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid or expired token"})
			return
		}

		if claims.Type != "access" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token type"})
			return
		}

		ctx := context.WithValue(r.Context(), ContextUserID, claims.Subject)
		ctx = context.WithValue(ctx, ContextEmail, claims.Email)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetUserID extracts the user ID from the request context.
func GetUserID(r *http.Request) string {
	v, _ := r.Context().Value(ContextUserID).(string)
	return v
}

// GetEmail extracts the email from the request context.
func GetEmail(r *http.Request) string {
	v, _ := r.Context().Value(ContextEmail).(string)
	return v
}
