package model

import "time"

// Participant is the embedded directory entry used for avatar/name backfill.
type Participant struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name,omitempty"`
	Avatar      string `json:"avatar,omitempty"`
}

// ConversationSummary is the list-row view of a conversation. The server is
// authoritative for unread counts except for the viewing override: the
// conversation currently open in the console always reports zero unread.
//
// UnreadCount is a legacy alias some console pages still read; the store keeps
// it equal to UnreadCountMe on every write.
type ConversationSummary struct {
	ID            string        `json:"id"`
	Participants  []Participant `json:"participants,omitempty"`
	LastMessage   *Message      `json:"last_message,omitempty"`
	UpdatedAt     time.Time     `json:"updated_at"`
	UnreadCountMe int           `json:"unread_count_me"`
	UnreadCountTo int           `json:"unread_count_to"`
	UnreadCount   int           `json:"unread_count"`
}

// ActivityAt is the sort key for the conversation list: the last message's
// timestamp when present, otherwise the summary's own updatedAt.
func (c *ConversationSummary) ActivityAt() time.Time {
	if c.LastMessage != nil && !c.LastMessage.CreatedAt.IsZero() {
		return c.LastMessage.CreatedAt
	}
	return c.UpdatedAt
}

// Participant returns the participant entry for userID, or nil.
func (c *ConversationSummary) Participant(userID string) *Participant {
	for i := range c.Participants {
		if c.Participants[i].UserID == userID {
			return &c.Participants[i]
		}
	}
	return nil
}

// Pagination mirrors the platform REST envelope.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// MessagePage is one page of a conversation's history.
type MessagePage struct {
	Messages   []Message  `json:"messages"`
	Pagination Pagination `json:"pagination"`
}

// ConversationPage is one page of the conversation list.
type ConversationPage struct {
	Conversations []ConversationSummary `json:"conversations"`
	Pagination    Pagination            `json:"pagination"`
}
