package normalize

import (
	"strings"
	"testing"
	"time"
)

func TestNormalizeMessageNestedShape(t *testing.T) {
	raw := []byte(`{
		"conversationId": "CONV-1",
		"message": {
			"_id": "m-1",
			"message": "hello there",
			"senderId": "u1",
			"senderName": "Alice",
			"createdAt": "2025-06-01T12:00:00Z",
			"isDelivered": true
		}
	}`)
	msg, err := NormalizeMessage(raw)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if msg.ID != "m-1" || msg.Body != "hello there" || msg.SenderID != "u1" {
		t.Fatalf("wrong fields: %+v", msg)
	}
	if msg.ConversationID != "conv-1" {
		t.Fatalf("conversation id not canonicalized: %q", msg.ConversationID)
	}
	if !msg.IsDelivered {
		t.Fatal("isDelivered lost")
	}
	want := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	if !msg.CreatedAt.Equal(want) {
		t.Fatalf("createdAt = %v, want %v", msg.CreatedAt, want)
	}
}

func TestNormalizeMessageFlatShape(t *testing.T) {
	raw := []byte(`{
		"conversationId": "conv-2",
		"messageId": "m-9",
		"message": "flat body",
		"senderId": "u2",
		"sentAt": "2025-06-01T13:00:00Z"
	}`)
	msg, err := NormalizeMessage(raw)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if msg.ID != "m-9" || msg.Body != "flat body" || msg.SenderID != "u2" {
		t.Fatalf("wrong fields: %+v", msg)
	}
	want := time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC)
	if !msg.CreatedAt.Equal(want) {
		t.Fatalf("sentAt fallback failed: %v", msg.CreatedAt)
	}
}

func TestNormalizeMessageIDFallbackOrder(t *testing.T) {
	// message._id beats messageId beats root _id.
	raw := []byte(`{
		"conversationId": "c",
		"_id": "root-id",
		"messageId": "mid",
		"message": {"_id": "inner-id", "message": "x"}
	}`)
	msg, err := NormalizeMessage(raw)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if msg.ID != "inner-id" {
		t.Fatalf("id = %q, want inner-id", msg.ID)
	}

	raw = []byte(`{"conversationId": "c", "_id": "root-id", "messageId": "mid", "message": "x"}`)
	msg, _ = NormalizeMessage(raw)
	if msg.ID != "mid" {
		t.Fatalf("id = %q, want mid", msg.ID)
	}
}

func TestNormalizeMessageGeneratesFallbacks(t *testing.T) {
	raw := []byte(`{"conversationId": "c", "message": "no id here"}`)
	before := time.Now().Add(-time.Second)
	msg, err := NormalizeMessage(raw)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if msg.ID == "" {
		t.Fatal("fallback id not generated")
	}
	if msg.CreatedAt.Before(before) {
		t.Fatalf("fallback timestamp not current: %v", msg.CreatedAt)
	}

	// Fallback ids are fresh per call - the caller normalizes once per event.
	msg2, _ := NormalizeMessage(raw)
	if msg.ID == msg2.ID {
		t.Fatal("fallback ids must not collide")
	}
}

func TestNormalizeMessageNotActionable(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"no conversation id", `{"message": {"_id": "m-1", "message": "hi"}}`},
		{"no body and no id", `{"conversationId": "c"}`},
		{"not json", `{{{`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NormalizeMessage([]byte(tc.raw)); err == nil {
				t.Fatal("expected not-actionable error")
			}
		})
	}
}

func TestCanonicalConversationID(t *testing.T) {
	cases := map[string]string{
		"CONV-1":            "conv-1",
		"  conv-1 ":         "conv-1",
		`ObjectID("64AbC")`: "64abc",
		"64abc":             "64abc",
	}
	for in, want := range cases {
		if got := CanonicalConversationID(in); got != want {
			t.Fatalf("CanonicalConversationID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeMessageObjectIDWrapper(t *testing.T) {
	raw := []byte(`{"conversationId": {"$oid": "64ABC"}, "message": "hi", "senderId": "u1"}`)
	msg, err := NormalizeMessage(raw)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if msg.ConversationID != "64abc" {
		t.Fatalf("conversation id = %q", msg.ConversationID)
	}
}

func TestNormalizeConversationUpdateFullObject(t *testing.T) {
	raw := []byte(`{
		"conversation": {
			"_id": "Conv-7",
			"participants": [{"userId": "u1", "avatar": "a.png", "displayName": "Alice"}],
			"lastMessage": {"_id": "m-1", "message": "tail", "senderId": "u1", "createdAt": "2025-06-01T12:00:00Z"},
			"unreadCountMe": 4,
			"unreadCountTo": 1,
			"updatedAt": "2025-06-01T12:00:05Z"
		}
	}`)
	upd, err := NormalizeConversationUpdate(raw)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if upd.Summary.ID != "conv-7" {
		t.Fatalf("id = %q", upd.Summary.ID)
	}
	if upd.Summary.UnreadCountMe != 4 || upd.Summary.UnreadCountTo != 1 || upd.Summary.UnreadCount != 4 {
		t.Fatalf("unread wrong: %+v", upd.Summary)
	}
	if len(upd.Summary.Participants) != 1 || upd.Summary.Participants[0].DisplayName != "Alice" {
		t.Fatalf("participants wrong: %+v", upd.Summary.Participants)
	}
	if upd.Message == nil || upd.Message.ID != "m-1" || upd.Message.ConversationID != "conv-7" {
		t.Fatalf("embedded last message wrong: %+v", upd.Message)
	}
}

func TestNormalizeConversationUpdateRootMessageWins(t *testing.T) {
	raw := []byte(`{
		"conversationId": "c1",
		"message": {"_id": "m-root", "message": "root wins", "senderId": "u1"},
		"conversation": {
			"_id": "c1",
			"lastMessage": {"_id": "m-last", "message": "stale", "senderId": "u2"}
		}
	}`)
	upd, err := NormalizeConversationUpdate(raw)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if upd.Message == nil || upd.Message.ID != "m-root" {
		t.Fatalf("root message must take precedence: %+v", upd.Message)
	}
	if upd.Summary.LastMessage.ID != "m-root" {
		t.Fatalf("summary last message must follow: %+v", upd.Summary.LastMessage)
	}
}

func TestNormalizeConversationUpdateLegacyUnread(t *testing.T) {
	raw := []byte(`{"conversationId": "c1", "unreadCount": 6}`)
	upd, err := NormalizeConversationUpdate(raw)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if upd.Summary.UnreadCountMe != 6 {
		t.Fatalf("legacy unreadCount fallback failed: %d", upd.Summary.UnreadCountMe)
	}

	// Explicit unreadCountMe beats the legacy field.
	raw = []byte(`{"conversationId": "c1", "unreadCountMe": 2, "unreadCount": 6}`)
	upd, _ = NormalizeConversationUpdate(raw)
	if upd.Summary.UnreadCountMe != 2 {
		t.Fatalf("unreadCountMe must win: %d", upd.Summary.UnreadCountMe)
	}
}

func TestNormalizeConversationUpdateNotActionable(t *testing.T) {
	if _, err := NormalizeConversationUpdate([]byte(`{"unreadCountMe": 3}`)); err == nil {
		t.Fatal("payload without any conversation id must be dropped")
	}
}

func TestNormalizeNotification(t *testing.T) {
	raw := []byte(`{
		"notification": {
			"_id": "n-1",
			"title": "Order refunded",
			"content": "Order #991 was refunded",
			"type": "order",
			"priority": "high",
			"metadata": {"orderId": "991"},
			"createdAt": "2025-06-01T12:00:00Z"
		}
	}`)
	n, err := NormalizeNotification(raw)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if n.ID != "n-1" || n.Title != "Order refunded" || string(n.Priority) != "high" {
		t.Fatalf("wrong fields: %+v", n)
	}
	if n.IsRead {
		t.Fatal("fresh notification must be unread")
	}
	if n.Metadata["orderId"] != "991" {
		t.Fatalf("metadata lost: %+v", n.Metadata)
	}
}

func TestNormalizeNotificationFlat(t *testing.T) {
	n, err := NormalizeNotification([]byte(`{"id": "n-2", "title": "Hi", "body": "flat"}`))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if n.ID != "n-2" || n.Content != "flat" {
		t.Fatalf("wrong fields: %+v", n)
	}
}

func TestNormalizeNotificationNotActionable(t *testing.T) {
	if _, err := NormalizeNotification([]byte(`{"type": "noise"}`)); err == nil {
		t.Fatal("empty notification must be dropped")
	}
}

func TestWireTimeUnixMillis(t *testing.T) {
	raw := []byte(`{"conversationId": "c", "message": "x", "createdAt": 1748779200000}`)
	msg, err := NormalizeMessage(raw)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if msg.CreatedAt.Year() != 2025 {
		t.Fatalf("millis timestamp parsed wrong: %v", msg.CreatedAt)
	}
}

func TestNormalizeMessagePlaceholderIDPreserved(t *testing.T) {
	raw := []byte(`{"conversationId": "c", "messageId": "temp-1700000000000", "message": "optimistic"}`)
	msg, err := NormalizeMessage(raw)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if !strings.HasPrefix(msg.ID, "temp-") {
		t.Fatalf("placeholder id mangled: %q", msg.ID)
	}
}
