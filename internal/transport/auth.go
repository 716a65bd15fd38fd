package transport

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

// ErrUnauthorized indicates invalid or missing credentials.
var ErrUnauthorized = errors.New("unauthorized")

// CheckBearer validates an Authorization header against key.
func CheckBearer(header, key string) error {
	token, ok := strings.CutPrefix(header, "Bearer ")
	token = strings.TrimSpace(token)
	if !ok || token == "" {
		return ErrUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(key)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// AuthMiddleware enforces bearer token authentication with a static key.
func AuthMiddleware(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}
			if err := CheckBearer(r.Header.Get("Authorization"), key); err != nil {
				http.Error(w, "invalid bearer token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
