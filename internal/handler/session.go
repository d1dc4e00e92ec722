package handler

import (
	"encoding/json"
	"net/http"

	"github.com/chatsync/internal/engine"
	"github.com/chatsync/internal/ws"
)

// SessionHandler applies the console's credentials signal to the socket
// lifecycle. The console owns token refresh; this endpoint only hears about
// the result.
type SessionHandler struct {
	engine *engine.Engine
	sock   *ws.Client
}

func NewSessionHandler(e *engine.Engine, sock *ws.Client) *SessionHandler {
	return &SessionHandler{engine: e, sock: sock}
}

type credentialsRequest struct {
	Token string `json:"token"`
}

// SetCredentials connects the socket with a fresh token. An empty token
// disconnects and clears all session state (logout).
func (h *SessionHandler) SetCredentials(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	h.sock.SetCredentials(req.Token)
	if req.Token == "" {
		h.engine.Reset(r.Context())
	}
	w.WriteHeader(http.StatusNoContent)
}
