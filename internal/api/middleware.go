// Package api implements the quire REST API using chi.
package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// tokenParam carries the token for EventSource clients, which cannot set
// request headers.
const tokenParam = "access_token"

// AuthMiddleware returns middleware that validates a Bearer token.
// When enabled is false every request passes through.
func AuthMiddleware(enabled bool, token string) func(http.Handler) http.Handler {
	return authMiddleware(enabled, token, false)
}

// StreamAuthMiddleware is AuthMiddleware that also accepts the token as
// the access_token query parameter.
func StreamAuthMiddleware(enabled bool, token string) func(http.Handler) http.Handler {
	return authMiddleware(enabled, token, true)
}

func authMiddleware(enabled bool, token string, query bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if enabled && !validToken(requestToken(r, query), token) {
				writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requestToken(r *http.Request, query bool) string {
	if auth, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return auth
	}
	if query {
		return r.URL.Query().Get(tokenParam)
	}
	return ""
}

func validToken(got, want string) bool {
	return got != "" && subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
