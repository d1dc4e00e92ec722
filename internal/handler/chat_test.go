package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/chatsync/internal/engine"
	"github.com/chatsync/internal/model"
	"github.com/chatsync/internal/rest"
	"github.com/chatsync/internal/store"
	"github.com/chatsync/internal/ws"
)

func newTestChatHandler() (*ChatHandler, *engine.Engine) {
	eng := engine.New(store.New(store.Options{}), engine.Config{LocalUserID: "me"})
	return NewChatHandler(eng, ws.NewClient(""), rest.NewClient("", "")), eng
}

func routedRequest(method, target, id string) *http.Request {
	r := httptest.NewRequest(method, target, nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// The console may address a conversation by an id it saw on the wire; reads
// must land on the same state regardless of casing.
func TestGetMessagesAcceptsWireCasedID(t *testing.T) {
	h, eng := newTestChatHandler()
	if _, ok := eng.OnIncomingMessage(context.Background(),
		[]byte(`{"conversationId": "conv-9", "messageId": "m-1", "message": "hi", "senderId": "u2"}`)); !ok {
		t.Fatal("seed message dropped")
	}

	w := httptest.NewRecorder()
	h.GetMessages(w, routedRequest("GET", "/api/chat/conversations/Conv-9/messages", "Conv-9"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var body struct {
		Messages []model.Message `json:"messages"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Messages) != 1 || body.Messages[0].ID != "m-1" {
		t.Fatalf("messages = %+v", body.Messages)
	}
}

func TestGetPresenceAcceptsWireCasedID(t *testing.T) {
	h, eng := newTestChatHandler()
	eng.OnOnlineUsers("conv-9", []string{"u2"})
	eng.OnTyping("conv-9", "u3", true)

	w := httptest.NewRecorder()
	h.GetPresence(w, routedRequest("GET", "/api/chat/conversations/CONV-9/presence", "CONV-9"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var body struct {
		Typing []string `json:"typing"`
		Online []string `json:"online"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Online) != 1 || body.Online[0] != "u2" {
		t.Fatalf("online = %v", body.Online)
	}
	if len(body.Typing) != 1 || body.Typing[0] != "u3" {
		t.Fatalf("typing = %v", body.Typing)
	}
}

func TestWriteErrorEnvelope(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, http.StatusBadRequest, "message required")

	var body errorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Status != http.StatusBadRequest || body.Error.Message != "message required" {
		t.Fatalf("envelope = %+v", body.Error)
	}

	// Empty message falls back to the status text.
	w = httptest.NewRecorder()
	writeError(w, http.StatusBadGateway, "")
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body.Error.Message != http.StatusText(http.StatusBadGateway) {
		t.Fatalf("fallback message = %q", body.Error.Message)
	}
}
