// Package push forwards high-priority notifications to the operator's
// browser via Web Push, so alerts land even when the console tab is in the
// background.
package push

import (
	"context"
	"encoding/json"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/chatsync/internal/logger"
	"github.com/chatsync/internal/model"
	"github.com/chatsync/internal/storage"
)

const sendTimeout = 10 * time.Second

// Notifier implements engine.Alerter. With a nil options set (no VAPID keys
// configured) every method is a no-op; subscriptions are still stored so push
// starts working once keys are provided.
type Notifier struct {
	userID string
	subs   storage.SnapshotStore
	vapid  *webpush.Options
}

// NewNotifier builds a notifier for one operator session. keys may be nil.
func NewNotifier(userID string, subs storage.SnapshotStore, keys *VAPIDKeys) *Notifier {
	n := &Notifier{userID: userID, subs: subs}
	if keys != nil && keys.PublicKey != "" && keys.PrivateKey != "" {
		n.vapid = &webpush.Options{
			Subscriber:      "chatsync",
			VAPIDPublicKey:  keys.PublicKey,
			VAPIDPrivateKey: keys.PrivateKey,
			TTL:             30,
		}
	}
	return n
}

// Enabled reports whether sending is configured.
func (n *Notifier) Enabled() bool { return n.vapid != nil }

// Alert pushes a notification to every registered browser subscription.
// Only high-priority entries go out; the in-console feed already shows the
// rest. Gone subscriptions (410/404) are pruned.
func (n *Notifier) Alert(ctx context.Context, notif model.Notification) {
	if n.vapid == nil || notif.Priority != model.PriorityHigh {
		return
	}
	subs, err := n.subs.PushSubscriptions(ctx, n.userID)
	if err != nil {
		logger.Errorf("push: load subscriptions: %v", err)
		return
	}
	if len(subs) == 0 {
		return
	}

	payload, err := json.Marshal(map[string]any{
		"title": notif.Title,
		"body":  notif.Content,
		"data":  notif.Metadata,
	})
	if err != nil {
		logger.Errorf("push: encode payload: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	for i := range subs {
		sub := &subs[i]
		wpSub := &webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys:     webpush.Keys{P256dh: sub.Keys.P256dh, Auth: sub.Keys.Auth},
		}
		resp, err := webpush.SendNotificationWithContext(ctx, payload, wpSub, n.vapid)
		if err != nil {
			logger.Errorf("push: send %s: %v", truncate(sub.Endpoint, 50), err)
			continue
		}
		resp.Body.Close()
		if resp.StatusCode == 410 || resp.StatusCode == 404 {
			if err := n.subs.RemovePushSubscription(ctx, n.userID, sub.Endpoint); err != nil {
				logger.Errorf("push: prune subscription: %v", err)
			}
		}
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
