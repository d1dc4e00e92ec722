package model

import "time"

type NotificationPriority string

const (
	PriorityLow    NotificationPriority = "low"
	PriorityNormal NotificationPriority = "normal"
	PriorityHigh   NotificationPriority = "high"
)

// Notification is one entry of the console's bounded notification feed.
type Notification struct {
	ID        string               `json:"id"`
	Title     string               `json:"title"`
	Content   string               `json:"content"`
	Type      string               `json:"type,omitempty"`
	Metadata  map[string]string    `json:"metadata,omitempty"`
	Priority  NotificationPriority `json:"priority,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
	IsRead    bool                 `json:"is_read"`
}
