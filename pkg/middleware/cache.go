package middleware

import (
	"net/http"
)

// NoStore marks responses as private and uncacheable. Cart views are
// per-session and change on every mutation.
func NoStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store, private")
		w.Header().Add("Vary", "Authorization")
		w.Header().Add("Vary", SessionHeader)
		next.ServeHTTP(w, r)
	})
}
