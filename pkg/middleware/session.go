package middleware

import (
	"net/http"

	"github.com/google/uuid"

	apperrors "github.com/izahid19/ekart/pkg/errors"
	"github.com/izahid19/ekart/pkg/httputil"
	"github.com/izahid19/ekart/pkg/logger"
)

// SessionHeader carries the browser's storefront session identifier.
const SessionHeader = "X-Session-ID"

// Session requires a UUID in the X-Session-ID header and stores it in
// context through logger.WithSessionID, so that it shows up in every log
// line written for the request.
func Session(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(SessionHeader)
		if raw == "" {
			httputil.WriteError(w, r, apperrors.InvalidInput("missing "+SessionHeader+" header"), nil)
			return
		}

		id, err := uuid.Parse(raw)
		if err != nil {
			httputil.WriteError(w, r, apperrors.InvalidInput("invalid "+SessionHeader+" header"), nil)
			return
		}

		ctx := logger.WithSessionID(r.Context(), id.String())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
