package cartsync

import (
	"context"
	"crypto/subtle"

	apperrors "github.com/izahid19/ekart/pkg/errors"
)

type credentialKey struct{}

// WithCredential returns a copy of ctx carrying the credential the caller
// presented with this request. An authenticated controller refuses every
// operation whose context does not carry the credential it signed in with.
func WithCredential(ctx context.Context, credential string) context.Context {
	return context.WithValue(ctx, credentialKey{}, credential)
}

// CredentialFromContext returns the presented credential, or "" if none.
func CredentialFromContext(ctx context.Context) string {
	if credential, ok := ctx.Value(credentialKey{}).(string); ok {
		return credential
	}
	return ""
}

// authorize checks the presented credential against the one the session
// signed in with. Anonymous sessions accept any caller. Must be called
// with sem held.
func (c *Controller) authorize(ctx context.Context) error {
	if c.state != Authenticated {
		return nil
	}
	presented := CredentialFromContext(ctx)
	if presented == "" {
		return apperrors.Unauthorized("session is signed in; credential required")
	}
	if subtle.ConstantTimeCompare([]byte(presented), []byte(c.credential)) != 1 {
		return apperrors.Unauthorized("credential does not match the signed-in session")
	}
	return nil
}
