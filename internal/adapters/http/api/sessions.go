package api

import (
	"net/http"
	"time"
)

// SessionsHandler handles session requests.
type SessionsHandler struct {
	deps SessionDependencies
	addr func(*http.Request) string
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(deps SessionDependencies, addr func(*http.Request) string) *SessionsHandler {
	return &SessionsHandler{deps: deps, addr: addr}
}

type openSessionRequest struct {
	Mode string `json:"mode"`
}

type openSessionResponse struct {
	Token     string    `json:"token"`
	Mode      string    `json:"mode"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// HandleOpenSession handles POST /api/sessions requests.
func (h *SessionsHandler) HandleOpenSession(w http.ResponseWriter, r *http.Request) {
	const op = "api.open_session"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req openSessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeFailure(w, wrapKind(op, ErrBadRequest, err))
		return
	}
	sess, err := h.deps.OpenSession(r.Context(), h.addr(r), req.Mode)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, openSessionResponse{
		Token:     sess.Token,
		Mode:      sess.Mode.String(),
		ExpiresAt: sess.ExpiresAt.UTC(),
	})
}

