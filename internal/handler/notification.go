package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/chatsync/internal/engine"
)

// NotificationHandler serves the bounded notification feed.
type NotificationHandler struct {
	engine *engine.Engine
}

func NewNotificationHandler(e *engine.Engine) *NotificationHandler {
	return &NotificationHandler{engine: e}
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"notifications": h.engine.Notifications(),
		"unread":        h.engine.UnreadNotificationCount(),
	})
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	h.engine.MarkNotificationRead(r.Context(), chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	h.engine.MarkAllNotificationsRead(r.Context())
	w.WriteHeader(http.StatusNoContent)
}
