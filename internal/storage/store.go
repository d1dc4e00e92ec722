package storage

import (
	"context"

	"github.com/chatsync/internal/model"
)

// PushSubscription is a browser Web Push subscription.
type PushSubscription struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

// SnapshotStore persists the per-user notification feed and push
// subscriptions across daemon restarts. Conversations and messages are never
// persisted, they are rebuilt from REST on session start.
// Implementations: redis.Client, memory.Client (for -dev without Redis).
type SnapshotStore interface {
	SaveNotifications(ctx context.Context, userID string, list []model.Notification) error
	LoadNotifications(ctx context.Context, userID string) ([]model.Notification, error)
	AddPushSubscription(ctx context.Context, userID string, sub PushSubscription) error
	RemovePushSubscription(ctx context.Context, userID, endpoint string) error
	PushSubscriptions(ctx context.Context, userID string) ([]PushSubscription, error)
	Close() error
}
