// Package normalize converts the heterogeneous payloads delivered by the
// platform socket into canonical records. It is a leaf package: it never
// touches the store and holds no state.
//
// Field resolution is first-non-empty-of-alternatives. Fallback ids and
// timestamps are generated fresh when the payload carries none, so callers
// must normalize each wire event exactly once.
package normalize

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/chatsync/internal/model"
)

// ErrNotActionable means the payload lacks the minimum identifying fields and
// no record can be produced from it. Expected transport noise, not a fault.
var ErrNotActionable = errors.New("payload not actionable")

type messageEnvelope struct {
	// Message is an object in the nested shape and the body string in the
	// flat shape; the JSON type is the shape discriminator.
	Message     json.RawMessage `json:"message"`
	MessageText string          `json:"messageText"`

	MessageID      wireID             `json:"messageId"`
	ID             wireID             `json:"_id"`
	ConversationID wireID             `json:"conversationId"`
	SenderID       wireID             `json:"senderId"`
	SenderName     string             `json:"senderName"`
	SenderAvatar   string             `json:"senderAvatar"`
	Attachments    []model.Attachment `json:"attachments"`
	IsRead         bool               `json:"isRead"`
	IsDelivered    bool               `json:"isDelivered"`
	SentAt         wireTime           `json:"sentAt"`
	CreatedAt      wireTime           `json:"createdAt"`
}

// nestedMessage is the inner object of the nested shape.
type nestedMessage struct {
	ID             wireID             `json:"_id"`
	MessageID      wireID             `json:"messageId"`
	Body           string             `json:"message"`
	MessageText    string             `json:"messageText"`
	ConversationID wireID             `json:"conversationId"`
	SenderID       wireID             `json:"senderId"`
	SenderName     string             `json:"senderName"`
	SenderAvatar   string             `json:"senderAvatar"`
	Attachments    []model.Attachment `json:"attachments"`
	IsRead         bool               `json:"isRead"`
	IsDelivered    bool               `json:"isDelivered"`
	CreatedAt      wireTime           `json:"createdAt"`
	SentAt         wireTime           `json:"sentAt"`
}

func isJSONObject(raw json.RawMessage) bool {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		case '{':
			return true
		default:
			return false
		}
	}
	return false
}

// NormalizeMessage produces the canonical message record for a new-message
// payload, accepting both the nested and the flat wire shape.
func NormalizeMessage(raw []byte) (model.Message, error) {
	var env messageEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return model.Message{}, ErrNotActionable
	}
	return resolveMessage(&env)
}

func resolveMessage(env *messageEnvelope) (model.Message, error) {
	var inner nestedMessage
	nested := isJSONObject(env.Message)
	if nested {
		if err := json.Unmarshal(env.Message, &inner); err != nil {
			return model.Message{}, ErrNotActionable
		}
	}

	convID := firstNonEmpty(string(inner.ConversationID), string(env.ConversationID))
	if convID == "" {
		return model.Message{}, ErrNotActionable
	}

	explicitID := firstNonEmpty(string(inner.ID), string(inner.MessageID), string(env.MessageID), string(env.ID))

	var body string
	if nested {
		body = firstNonEmpty(inner.Body, inner.MessageText, env.MessageText)
	} else {
		// Flat shape: the root "message" field, when present, is the body.
		var s string
		if len(env.Message) > 0 {
			_ = json.Unmarshal(env.Message, &s)
		}
		body = firstNonEmpty(s, env.MessageText)
	}
	if body == "" && explicitID == "" {
		return model.Message{}, ErrNotActionable
	}

	id := explicitID
	if id == "" {
		id = uuid.NewString()
	}

	createdAt := firstTime(inner.CreatedAt.Time, inner.SentAt.Time, env.SentAt.Time, env.CreatedAt.Time)
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	msg := model.Message{
		ID:             id,
		ConversationID: CanonicalConversationID(convID),
		SenderID:       firstNonEmpty(string(inner.SenderID), string(env.SenderID)),
		SenderName:     firstNonEmpty(inner.SenderName, env.SenderName),
		SenderAvatar:   firstNonEmpty(inner.SenderAvatar, env.SenderAvatar),
		Body:           body,
		IsRead:         inner.IsRead || env.IsRead,
		IsDelivered:    inner.IsDelivered || env.IsDelivered,
		CreatedAt:      createdAt,
	}
	if nested && len(inner.Attachments) > 0 {
		msg.Attachments = inner.Attachments
	} else {
		msg.Attachments = env.Attachments
	}
	return msg, nil
}

// ConversationUpdate is the normalized form of a conversation-update payload.
// Message, when non-nil, is the embedded message the caller must merge into
// the conversation's list before applying the summary, so the list and the
// summary never disagree about the latest message.
type ConversationUpdate struct {
	Summary model.ConversationSummary
	Message *model.Message
}

type wireConversation struct {
	ID            wireID            `json:"_id"`
	IDAlt         wireID            `json:"id"`
	Participants  []wireParticipant `json:"participants"`
	LastMessage   json.RawMessage   `json:"lastMessage"`
	UpdatedAt     wireTime          `json:"updatedAt"`
	UnreadCountMe *int              `json:"unreadCountMe"`
	UnreadCount   *int              `json:"unreadCount"`
	UnreadCountTo *int              `json:"unreadCountTo"`
}

type conversationEnvelope struct {
	Conversation   *wireConversation `json:"conversation"`
	ConversationID wireID            `json:"conversationId"`
	LastMessage    json.RawMessage   `json:"lastMessage"`
	Message        json.RawMessage   `json:"message"`
	Participants   []wireParticipant `json:"participants"`
	UpdatedAt      wireTime          `json:"updatedAt"`
	UnreadCountMe  *int              `json:"unreadCountMe"`
	UnreadCount    *int              `json:"unreadCount"`
	UnreadCountTo  *int              `json:"unreadCountTo"`
}

// NormalizeConversationUpdate produces the canonical summary for a
// conversation-update payload. The payload may carry a full conversation
// object, only a conversationId plus a lastMessage, or a message at the root;
// a root-level message takes precedence over conversation.lastMessage.
func NormalizeConversationUpdate(raw []byte) (ConversationUpdate, error) {
	var env conversationEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return ConversationUpdate{}, ErrNotActionable
	}

	conv := env.Conversation
	var convID string
	if conv != nil {
		convID = firstNonEmpty(string(conv.ID), string(conv.IDAlt))
	}
	convID = firstNonEmpty(convID, string(env.ConversationID))
	if convID == "" {
		return ConversationUpdate{}, ErrNotActionable
	}
	convID = CanonicalConversationID(convID)

	out := ConversationUpdate{
		Summary: model.ConversationSummary{ID: convID},
	}

	var participants []wireParticipant
	if conv != nil && len(conv.Participants) > 0 {
		participants = conv.Participants
	} else {
		participants = env.Participants
	}
	for i := range participants {
		out.Summary.Participants = append(out.Summary.Participants, participants[i].toModel())
	}

	if conv != nil && !conv.UpdatedAt.IsZero() {
		out.Summary.UpdatedAt = conv.UpdatedAt.Time
	} else {
		out.Summary.UpdatedAt = env.UpdatedAt.Time
	}
	if out.Summary.UpdatedAt.IsZero() {
		out.Summary.UpdatedAt = time.Now().UTC()
	}

	// Root message beats conversation.lastMessage when both are present.
	msgRaw := env.Message
	if !isJSONObject(msgRaw) {
		msgRaw = env.LastMessage
	}
	if !isJSONObject(msgRaw) && conv != nil {
		msgRaw = conv.LastMessage
	}
	if isJSONObject(msgRaw) {
		inner := messageEnvelope{Message: msgRaw, ConversationID: wireID(convID)}
		if msg, err := resolveMessage(&inner); err == nil {
			out.Message = &msg
			copied := msg
			out.Summary.LastMessage = &copied
		}
	}

	me := firstInt(env.UnreadCountMe, convInt(conv, func(c *wireConversation) *int { return c.UnreadCountMe }))
	legacy := firstInt(env.UnreadCount, convInt(conv, func(c *wireConversation) *int { return c.UnreadCount }))
	if me == nil {
		me = legacy
	}
	if me != nil {
		out.Summary.UnreadCountMe = *me
	}
	out.Summary.UnreadCount = out.Summary.UnreadCountMe

	to := firstInt(env.UnreadCountTo, convInt(conv, func(c *wireConversation) *int { return c.UnreadCountTo }))
	if to != nil {
		out.Summary.UnreadCountTo = *to
	}
	return out, nil
}

type wireNotification struct {
	ID        wireID            `json:"_id"`
	IDAlt     wireID            `json:"id"`
	Title     string            `json:"title"`
	Content   string            `json:"content"`
	Message   string            `json:"message"`
	Body      string            `json:"body"`
	Type      string            `json:"type"`
	Metadata  map[string]string `json:"metadata"`
	Priority  string            `json:"priority"`
	CreatedAt wireTime          `json:"createdAt"`
}

type notificationEnvelope struct {
	Notification *wireNotification `json:"notification"`
	wireNotification
}

// NormalizeNotification produces the canonical notification record, accepting
// a nested "notification" object or flat root fields.
func NormalizeNotification(raw []byte) (model.Notification, error) {
	var env notificationEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return model.Notification{}, ErrNotActionable
	}
	src := &env.wireNotification
	if env.Notification != nil {
		src = env.Notification
	}

	title := src.Title
	content := firstNonEmpty(src.Content, src.Message, src.Body)
	if title == "" && content == "" {
		return model.Notification{}, ErrNotActionable
	}

	id := firstNonEmpty(string(src.ID), string(src.IDAlt))
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := src.CreatedAt.Time
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	return model.Notification{
		ID:        id,
		Title:     title,
		Content:   content,
		Type:      src.Type,
		Metadata:  src.Metadata,
		Priority:  model.NotificationPriority(src.Priority),
		CreatedAt: createdAt,
	}, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstTime(vals ...time.Time) time.Time {
	for _, v := range vals {
		if !v.IsZero() {
			return v
		}
	}
	return time.Time{}
}

func firstInt(vals ...*int) *int {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}

func convInt(c *wireConversation, get func(*wireConversation) *int) *int {
	if c == nil {
		return nil
	}
	return get(c)
}
