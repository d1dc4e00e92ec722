package ws

import "encoding/json"

type EventType string

// Server -> client events.
const (
	EventMessageReceive     EventType = "message:receive"
	EventConversationUpdate EventType = "conversation:update"
	EventNotificationNew    EventType = "notification:new"
	EventTyping             EventType = "typing"
	EventPresence           EventType = "presence"
	EventOnlineUsers        EventType = "online:users"
)

// Client -> server events.
const (
	EventMessageSend EventType = "message:send"
	EventMessageRead EventType = "message:read"
	EventTypingSend  EventType = "typing:send"
)

// Frame is the socket envelope. Payload stays raw until the normalizer sees
// it: the platform emits more than one shape per event type.
type Frame struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// TypingEvent is the one inbound payload with a stable shape.
type TypingEvent struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	IsTyping       bool   `json:"isTyping"`
}

// PresenceEvent reports a user going online or offline in a conversation.
type PresenceEvent struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	Online         bool   `json:"online"`
}

// OnlineUsersEvent replaces a conversation's whole online set.
type OnlineUsersEvent struct {
	ConversationID string   `json:"conversationId"`
	UserIDs        []string `json:"userIds"`
}

// --- Outbound payloads ---

type sendMessagePayload struct {
	ConversationID string `json:"conversationId"`
	Message        string `json:"message"`
	TempID         string `json:"tempId,omitempty"`
}

type readReceiptPayload struct {
	ConversationID string `json:"conversationId"`
}

type typingSendPayload struct {
	ConversationID string `json:"conversationId"`
	IsTyping       bool   `json:"isTyping"`
}
