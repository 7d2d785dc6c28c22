package middleware

import (
	"context"
	"net/http"
	"strings"

	apperrors "github.com/izahid19/ekart/pkg/errors"
	"github.com/izahid19/ekart/pkg/httputil"
)

type contextKeyType string

const credentialKey contextKeyType = "credential"

// Bearer extracts an optional "Authorization: Bearer <token>" header and
// stores the token in context. The token is opaque to the storefront: it is
// forwarded to the cart service, which alone decides whether it is valid.
// A present but malformed header is rejected with 401.
func Bearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := parseBearer(authHeader)
		if !ok {
			httputil.WriteError(w, r, apperrors.Unauthorized("invalid authorization header format"), nil)
			return
		}

		ctx := WithCredential(r.Context(), token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireBearer rejects requests that reached it without a credential.
// Mount it after Bearer.
func RequireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if CredentialFromContext(r.Context()) == "" {
			httputil.WriteError(w, r, apperrors.Unauthorized("missing authorization header"), nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// WithCredential returns a context carrying the bearer credential.
func WithCredential(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, credentialKey, token)
}

// CredentialFromContext extracts the bearer credential from the request context.
func CredentialFromContext(ctx context.Context) string {
	if token, ok := ctx.Value(credentialKey).(string); ok {
		return token
	}
	return ""
}

func parseBearer(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}
	return token, true
}
