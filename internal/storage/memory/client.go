package memory

import (
	"context"
	"sync"

	"github.com/chatsync/internal/model"
	"github.com/chatsync/internal/storage"
)

const maxSubsPerUser = 10

// Client implements storage.SnapshotStore in process memory. Used by tests
// and -dev runs without Redis; snapshots do not survive a restart.
type Client struct {
	mu    sync.RWMutex
	feeds map[string][]model.Notification
	subs  map[string][]storage.PushSubscription
}

func New() *Client {
	return &Client{
		feeds: make(map[string][]model.Notification),
		subs:  make(map[string][]storage.PushSubscription),
	}
}

func (c *Client) Close() error { return nil }

func (c *Client) SaveNotifications(ctx context.Context, userID string, list []model.Notification) error {
	cp := make([]model.Notification, len(list))
	copy(cp, list)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.feeds[userID] = cp
	return nil
}

func (c *Client) LoadNotifications(ctx context.Context, userID string) ([]model.Notification, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	list := c.feeds[userID]
	cp := make([]model.Notification, len(list))
	copy(cp, list)
	return cp, nil
}

func (c *Client) AddPushSubscription(ctx context.Context, userID string, sub storage.PushSubscription) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	list := c.subs[userID]
	for i := range list {
		if list[i].Endpoint == sub.Endpoint {
			list[i] = sub
			return nil
		}
	}
	if len(list) >= maxSubsPerUser {
		list = list[1:]
	}
	c.subs[userID] = append(list, sub)
	return nil
}

func (c *Client) RemovePushSubscription(ctx context.Context, userID, endpoint string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	list := c.subs[userID]
	kept := list[:0]
	for _, s := range list {
		if s.Endpoint != endpoint {
			kept = append(kept, s)
		}
	}
	c.subs[userID] = kept
	return nil
}

func (c *Client) PushSubscriptions(ctx context.Context, userID string) ([]storage.PushSubscription, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	list := c.subs[userID]
	cp := make([]storage.PushSubscription, len(list))
	copy(cp, list)
	return cp, nil
}
