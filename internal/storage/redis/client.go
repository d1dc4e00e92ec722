package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chatsync/internal/model"
	"github.com/chatsync/internal/storage"
)

// Feed and subscriptions expire if the operator stays away for 30 days.
const (
	notifKeyPrefix = "chatsync:notif:"
	subsKeyPrefix  = "chatsync:push:"
	snapshotTTL    = 30 * 24 * time.Hour
	maxSubsPerUser = 10
)

type Client struct {
	cli *redis.Client
}

func New(ctx context.Context, url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{cli: cli}, nil
}

func (c *Client) Close() error {
	return c.cli.Close()
}

// SaveNotifications stores the whole feed as one JSON blob. The feed is small
// (bounded) and always written whole, so a list structure buys nothing.
func (c *Client) SaveNotifications(ctx context.Context, userID string, list []model.Notification) error {
	data, err := json.Marshal(list)
	if err != nil {
		return err
	}
	return c.cli.Set(ctx, notifKeyPrefix+userID, data, snapshotTTL).Err()
}

func (c *Client) LoadNotifications(ctx context.Context, userID string) ([]model.Notification, error) {
	data, err := c.cli.Get(ctx, notifKeyPrefix+userID).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var list []model.Notification
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// AddPushSubscription stores the subscription in a hash keyed by endpoint.
// Oldest entries are evicted past maxSubsPerUser.
func (c *Client) AddPushSubscription(ctx context.Context, userID string, sub storage.PushSubscription) error {
	data, err := json.Marshal(sub)
	if err != nil {
		return err
	}
	key := subsKeyPrefix + userID
	if err := c.cli.HSet(ctx, key, sub.Endpoint, data).Err(); err != nil {
		return err
	}
	if err := c.cli.Expire(ctx, key, snapshotTTL).Err(); err != nil {
		return err
	}
	fields, err := c.cli.HKeys(ctx, key).Result()
	if err != nil {
		return err
	}
	if extra := len(fields) - maxSubsPerUser; extra > 0 {
		if err := c.cli.HDel(ctx, key, fields[:extra]...).Err(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) RemovePushSubscription(ctx context.Context, userID, endpoint string) error {
	return c.cli.HDel(ctx, subsKeyPrefix+userID, endpoint).Err()
}

func (c *Client) PushSubscriptions(ctx context.Context, userID string) ([]storage.PushSubscription, error) {
	vals, err := c.cli.HGetAll(ctx, subsKeyPrefix+userID).Result()
	if err != nil {
		return nil, err
	}
	out := make([]storage.PushSubscription, 0, len(vals))
	for _, v := range vals {
		var sub storage.PushSubscription
		if err := json.Unmarshal([]byte(v), &sub); err != nil {
			continue
		}
		out = append(out, sub)
	}
	return out, nil
}
