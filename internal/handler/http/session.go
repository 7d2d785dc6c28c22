package http

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/izahid19/ekart/internal/session"
	"github.com/izahid19/ekart/pkg/httputil"
	"github.com/izahid19/ekart/pkg/logger"
	"github.com/izahid19/ekart/pkg/middleware"
)

// SessionHandler handles session lifecycle endpoints.
type SessionHandler struct {
	sessions *session.Manager
	carts    *CartHandler
	logger   *slog.Logger
}

// NewSessionHandler creates a new session HTTP handler.
func NewSessionHandler(sessions *session.Manager, carts *CartHandler, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, carts: carts, logger: logger}
}

// SessionResponse carries a session identifier.
type SessionResponse struct {
	SessionID string `json:"session_id"`
}

// Create handles POST /api/v1/session. A request carrying the ID of a live
// session gets it back; anything else gets a newly minted one.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	sid := ""
	if id, err := uuid.Parse(r.Header.Get(middleware.SessionHeader)); err == nil && h.live(id.String()) {
		sid = id.String()
	} else {
		sid = session.NewID()
		status = http.StatusCreated
		logger.WithContext(r.Context(), h.logger).DebugContext(r.Context(), "session minted")
	}

	w.Header().Set(middleware.SessionHeader, sid)
	httputil.WriteData(w, status, SessionResponse{SessionID: sid})
}

// Login handles POST /api/v1/session/login. The bearer token is handed to
// the controller unchanged. A successful login continues under a new
// session ID, returned in the X-Session-ID header; the old ID is dropped.
func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx, ctrl, sid := h.carts.controller(r)
	v, err := ctrl.Login(ctx, middleware.CredentialFromContext(ctx))
	if err != nil {
		h.carts.respond(w, r, sid, v, err)
		return
	}

	newID, next, err := h.sessions.Rotate(ctx, sid)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.carts.respond(w, r, newID, next.View(), nil)
}

// Logout handles POST /api/v1/session/logout
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx, ctrl, sid := h.carts.controller(r)
	v, err := ctrl.Logout(ctx)
	h.carts.respond(w, r, sid, v, err)
}

func (h *SessionHandler) live(sessionID string) bool {
	_, ok := h.sessions.Lookup(sessionID)
	return ok
}
