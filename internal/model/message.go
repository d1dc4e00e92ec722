package model

import (
	"strconv"
	"strings"
	"time"
)

// PlaceholderPrefix marks a locally-synthesized message shown before the
// server confirms the send. Placeholders are removed by the store when the
// confirmed echo arrives.
const PlaceholderPrefix = "temp-"

type Message struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversation_id"`
	SenderID       string       `json:"sender_id"`
	SenderName     string       `json:"sender_name,omitempty"`
	SenderAvatar   string       `json:"sender_avatar,omitempty"`
	Body           string       `json:"body"`
	Attachments    []Attachment `json:"attachments,omitempty"`
	IsRead         bool         `json:"is_read"`
	IsDelivered    bool         `json:"is_delivered"`
	CreatedAt      time.Time    `json:"created_at"`
}

// Attachment is opaque to the sync core: it is carried through normalization
// and storage untouched and interpreted only by the console UI.
type Attachment struct {
	URL      string `json:"url"`
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// IsPlaceholder reports whether the message is an unconfirmed optimistic send.
func (m *Message) IsPlaceholder() bool {
	return strings.HasPrefix(m.ID, PlaceholderPrefix)
}

// NewPlaceholder builds the optimistic record shown immediately on send.
func NewPlaceholder(conversationID, senderID, body string) Message {
	now := time.Now().UTC()
	return Message{
		ID:             PlaceholderPrefix + strconv.FormatInt(now.UnixMilli(), 10),
		ConversationID: conversationID,
		SenderID:       senderID,
		Body:           body,
		CreatedAt:      now,
	}
}
