package middleware

import (
	"log/slog"
	"net/http"

	"github.com/izahid19/ekart/pkg/logger"
)

// RequestLogger returns middleware that builds a request-scoped logger enriched
// with correlation_id, session_id, trace_id, and span_id, then stores it in
// context via logger.NewContext. Downstream handlers retrieve it with
// logger.FromContext(ctx).
//
// Mount it AFTER RequestLogging (correlation_id), Tracing (span context) and
// Session (session_id). Routes outside the session group still get a logger
// carrying whatever the header says, so that rejected requests stay traceable.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if logger.SessionIDFromContext(ctx) == "" {
				if id := r.Header.Get(SessionHeader); id != "" {
					ctx = logger.WithSessionID(ctx, id)
				}
			}

			enriched := logger.WithContext(ctx, base)
			if CredentialFromContext(ctx) != "" {
				enriched = enriched.With(slog.Bool("authenticated", true))
			}

			ctx = logger.NewContext(ctx, enriched)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
