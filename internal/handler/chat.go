package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/chatsync/internal/engine"
	"github.com/chatsync/internal/logger"
	"github.com/chatsync/internal/normalize"
	"github.com/chatsync/internal/rest"
	"github.com/chatsync/internal/ws"
)

// ChatHandler serves the console's chat reads and actions. Reads come from
// store selectors; actions go through the engine and out the socket/REST
// clients.
type ChatHandler struct {
	engine *engine.Engine
	sock   *ws.Client
	api    *rest.Client
}

func NewChatHandler(e *engine.Engine, sock *ws.Client, api *rest.Client) *ChatHandler {
	return &ChatHandler{engine: e, sock: sock, api: api}
}

func (h *ChatHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	st := h.engine.Store()
	writeJSON(w, http.StatusOK, map[string]any{
		"conversations": st.Conversations(),
		"current_id":    st.CurrentConversationID(),
		"unread_total":  st.UnreadTotal(),
	})
}

// RefreshConversations refetches the conversation list from the platform and
// merges it in. Called on session start and after a socket gap.
func (h *ChatHandler) RefreshConversations(w http.ResponseWriter, r *http.Request) {
	page, err := h.api.FetchConversations(r.Context(), queryInt(r, "page", 1), queryInt(r, "limit", 50))
	if err != nil {
		logger.Errorf("refresh conversations: %v", err)
		writeError(w, http.StatusBadGateway, "upstream fetch failed")
		return
	}
	h.engine.LoadConversations(page)
	writeJSON(w, http.StatusOK, map[string]any{
		"conversations": h.engine.Store().Conversations(),
		"pagination":    page.Pagination,
	})
}

func (h *ChatHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	id := normalize.CanonicalConversationID(chi.URLParam(r, "id"))
	st := h.engine.Store()
	cursor, _ := st.Cursor(id)
	writeJSON(w, http.StatusOK, map[string]any{
		"messages":   st.Messages(id),
		"pagination": cursor,
	})
}

// RefreshMessages fetches a history page. ?older=1 prepends a backward page;
// the default replaces the list with the initial fetch.
func (h *ChatHandler) RefreshMessages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	page, err := h.api.FetchMessages(r.Context(), id, queryInt(r, "page", 1), queryInt(r, "limit", 50))
	if err != nil {
		logger.Errorf("refresh messages conv=%s: %v", id, err)
		writeError(w, http.StatusBadGateway, "upstream fetch failed")
		return
	}
	if queryInt(r, "older", 0) == 1 {
		h.engine.LoadOlderMessages(id, page)
	} else {
		h.engine.LoadMessagePage(id, page)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"messages":   h.engine.Store().Messages(id),
		"pagination": page.Pagination,
	})
}

func (h *ChatHandler) OpenConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.engine.OpenConversation(r.Context(), id)
	writeJSON(w, http.StatusOK, map[string]any{
		"current_id": h.engine.Store().CurrentConversationID(),
	})
}

func (h *ChatHandler) CloseConversation(w http.ResponseWriter, r *http.Request) {
	h.engine.CloseConversation()
	w.WriteHeader(http.StatusNoContent)
}

type sendMessageRequest struct {
	Message string `json:"message"`
}

func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == "" {
		writeError(w, http.StatusBadRequest, "message required")
		return
	}
	placeholder := h.sock.SendMessage(id, req.Message)
	writeJSON(w, http.StatusAccepted, placeholder)
}

// MarkRead clears the viewer's unread state locally and upstream.
func (h *ChatHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.api.MarkRead(r.Context(), id); err != nil {
		logger.Errorf("mark read conv=%s: %v", id, err)
	}
	h.engine.MarkConversationRead(r.Context(), id)
	w.WriteHeader(http.StatusNoContent)
}

type typingRequest struct {
	IsTyping bool `json:"is_typing"`
}

func (h *ChatHandler) SetTyping(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req typingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	h.sock.SendTyping(id, req.IsTyping)
	w.WriteHeader(http.StatusNoContent)
}

func (h *ChatHandler) GetPresence(w http.ResponseWriter, r *http.Request) {
	id := normalize.CanonicalConversationID(chi.URLParam(r, "id"))
	st := h.engine.Store()
	writeJSON(w, http.StatusOK, map[string]any{
		"typing": st.TypingUsers(id),
		"online": st.OnlineUsers(id),
	})
}

func (h *ChatHandler) GetUnreadTotal(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{
		"total": h.engine.Store().UnreadTotal(),
	})
}
