package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/chatsync/internal/logger"
	"github.com/chatsync/internal/push"
	"github.com/chatsync/internal/storage"
)

// PushHandler manages the browser's Web Push subscriptions.
type PushHandler struct {
	userID string
	subs   storage.SnapshotStore
	keys   *push.VAPIDKeys
}

func NewPushHandler(userID string, subs storage.SnapshotStore, keys *push.VAPIDKeys) *PushHandler {
	return &PushHandler{userID: userID, subs: subs, keys: keys}
}

func (h *PushHandler) VAPIDPublic(w http.ResponseWriter, r *http.Request) {
	if h.keys == nil || h.keys.PublicKey == "" {
		writeError(w, http.StatusServiceUnavailable, "push not configured")
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte(h.keys.PublicKey))
}

type subscribeRequest struct {
	Subscription storage.PushSubscription `json:"subscription"`
}

func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	sub := req.Subscription
	if sub.Endpoint == "" || sub.Keys.P256dh == "" || sub.Keys.Auth == "" {
		writeError(w, http.StatusBadRequest, "subscription (endpoint, keys.p256dh, keys.auth) required")
		return
	}
	if err := h.subs.AddPushSubscription(r.Context(), h.userID, sub); err != nil {
		logger.Errorf("push subscribe: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to save subscription")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type unsubscribeRequest struct {
	Endpoint string `json:"endpoint"`
}

func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	var req unsubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	req.Endpoint = strings.TrimSpace(req.Endpoint)
	if req.Endpoint == "" {
		writeError(w, http.StatusBadRequest, "endpoint required")
		return
	}
	if err := h.subs.RemovePushSubscription(r.Context(), h.userID, req.Endpoint); err != nil {
		logger.Errorf("push unsubscribe: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to remove subscription")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
