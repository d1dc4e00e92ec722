// Package engine is the single entry point transport and REST adapters call.
// It wires normalized events into store operations and reports the side
// effects the console cares about (toast suppression, read receipts).
package engine

import (
	"context"
	"sync"

	"github.com/chatsync/internal/logger"
	"github.com/chatsync/internal/model"
	"github.com/chatsync/internal/normalize"
	"github.com/chatsync/internal/storage"
	"github.com/chatsync/internal/store"
)

// DefaultNotificationCap bounds the notification feed; overflow drops the
// oldest entries.
const DefaultNotificationCap = 50

// Alerter surfaces a transient alert for a fresh notification. Nil disables
// alerts.
type Alerter interface {
	Alert(ctx context.Context, n model.Notification)
}

// ReadReceipter tells the transport layer the user is caught up on a
// conversation, so the server can clear the counterpart's delivery state.
// Nil disables receipts.
type ReadReceipter interface {
	SendReadReceipt(conversationID string)
}

// Config wires the engine's collaborators.
type Config struct {
	LocalUserID     string
	NotificationCap int
	Alerter         Alerter
	Receipts        ReadReceipter
	Snapshots       storage.SnapshotStore // optional: persists the notification feed
}

type Engine struct {
	store       *store.Store
	localUserID string

	alerter   Alerter
	receipts  ReadReceipter
	snapshots storage.SnapshotStore

	notifMu       sync.Mutex
	notifications []model.Notification // newest first
	notifCap      int
}

func New(st *store.Store, cfg Config) *Engine {
	feedCap := cfg.NotificationCap
	if feedCap <= 0 {
		feedCap = DefaultNotificationCap
	}
	return &Engine{
		store:       st,
		localUserID: cfg.LocalUserID,
		alerter:     cfg.Alerter,
		receipts:    cfg.Receipts,
		snapshots:   cfg.Snapshots,
		notifCap:    feedCap,
	}
}

// Store exposes the underlying store for selector reads.
func (e *Engine) Store() *store.Store { return e.store }

// MessageResult tells the caller what an incoming message meant for the UI:
// whether a toast should be suppressed because the user is already looking at
// the conversation, and whether the local user authored the message.
type MessageResult struct {
	ConversationID        string `json:"conversation_id"`
	MessageID             string `json:"message_id"`
	ForActiveConversation bool   `json:"for_active_conversation"`
	IsLocalSender         bool   `json:"is_local_sender"`
}

// OnIncomingMessage merges one new-message payload. Returns false when the
// payload is not actionable; malformed realtime payloads are transport noise
// and are dropped without surfacing anything.
func (e *Engine) OnIncomingMessage(ctx context.Context, raw []byte) (MessageResult, bool) {
	msg, err := normalize.NormalizeMessage(raw)
	if err != nil {
		logger.Debugf("engine: dropping message payload: %v", err)
		return MessageResult{}, false
	}
	e.mergeMessage(&msg)

	res := MessageResult{
		ConversationID:        msg.ConversationID,
		MessageID:             msg.ID,
		ForActiveConversation: msg.ConversationID == e.store.CurrentConversationID(),
		IsLocalSender:         msg.SenderID != "" && msg.SenderID == e.localUserID,
	}
	if res.ForActiveConversation && !res.IsLocalSender && e.receipts != nil {
		e.receipts.SendReadReceipt(msg.ConversationID)
	}
	return res, true
}

// mergeMessage backfills display fields from the participant directory,
// upserts the message and touches the conversation's activity. Unread counts
// are not computed here: they arrive on the conversation-update event.
func (e *Engine) mergeMessage(msg *model.Message) {
	if conv, ok := e.store.Conversation(msg.ConversationID); ok {
		if p := conv.Participant(msg.SenderID); p != nil {
			if msg.SenderAvatar == "" {
				msg.SenderAvatar = p.Avatar
			}
			if msg.SenderName == "" {
				msg.SenderName = p.DisplayName
			}
		}
	}
	e.store.UpsertMessage(msg.ConversationID, *msg)
	e.store.TouchConversation(msg.ConversationID, msg, msg.CreatedAt)
}

// OnConversationUpdate merges one conversation-update payload. An embedded
// message is routed through the message-merge path first so the message list
// and the summary never disagree about the latest message.
func (e *Engine) OnConversationUpdate(ctx context.Context, raw []byte) bool {
	upd, err := normalize.NormalizeConversationUpdate(raw)
	if err != nil {
		logger.Debugf("engine: dropping conversation payload: %v", err)
		return false
	}
	if upd.Message != nil {
		e.mergeMessage(upd.Message)
	}
	e.store.UpsertConversation(upd.Summary)
	return true
}

// OnTyping applies a typing on/off event.
func (e *Engine) OnTyping(conversationID, userID string, isTyping bool) {
	e.store.SetTyping(normalize.CanonicalConversationID(conversationID), userID, isTyping)
}

// OnPresence applies an online/offline event.
func (e *Engine) OnPresence(conversationID, userID string, online bool) {
	id := normalize.CanonicalConversationID(conversationID)
	if online {
		e.store.AddOnlineUser(id, userID)
	} else {
		e.store.RemoveOnlineUser(id, userID)
	}
}

// OnOnlineUsers replaces a conversation's whole online set.
func (e *Engine) OnOnlineUsers(conversationID string, userIDs []string) {
	e.store.SetOnlineUsers(normalize.CanonicalConversationID(conversationID), userIDs)
}

// --- Conversation lifecycle (Background <-> Active) ---

// OpenConversation marks a conversation as viewed: its unread count is pinned
// to zero and the transport is told the user is caught up.
func (e *Engine) OpenConversation(ctx context.Context, conversationID string) {
	id := normalize.CanonicalConversationID(conversationID)
	e.store.SetCurrentConversation(id)
	if e.receipts != nil {
		e.receipts.SendReadReceipt(id)
	}
}

// CloseConversation returns the current conversation to background mode.
// Nothing is retroactively zeroed for the conversation being left.
func (e *Engine) CloseConversation() {
	e.store.SetCurrentConversation("")
}

// MarkConversationRead zeroes the viewer's unread state locally and signals
// the transport.
func (e *Engine) MarkConversationRead(ctx context.Context, conversationID string) {
	id := normalize.CanonicalConversationID(conversationID)
	e.store.MarkConversationRead(id)
	if e.receipts != nil {
		e.receipts.SendReadReceipt(id)
	}
}

// PrepareLocalSend inserts the optimistic placeholder for a local send. The
// transport sends the real frame; the placeholder is reconciled away when the
// confirmed echo arrives through any path.
func (e *Engine) PrepareLocalSend(conversationID, body string) model.Message {
	msg := model.NewPlaceholder(normalize.CanonicalConversationID(conversationID), e.localUserID, body)
	e.mergeMessage(&msg)
	return msg
}

// --- REST page loaders ---

// LoadConversations bulk-upserts a fetched conversation list page.
func (e *Engine) LoadConversations(page model.ConversationPage) {
	for _, c := range page.Conversations {
		c.ID = normalize.CanonicalConversationID(c.ID)
		e.store.UpsertConversation(c)
	}
}

// LoadMessagePage applies the initial/forward fetch for a conversation.
func (e *Engine) LoadMessagePage(conversationID string, page model.MessagePage) {
	e.store.ReplaceMessagePage(normalize.CanonicalConversationID(conversationID), page.Messages, page.Pagination)
}

// LoadOlderMessages prepends a backward-pagination page.
func (e *Engine) LoadOlderMessages(conversationID string, page model.MessagePage) {
	e.store.AppendMessagePage(normalize.CanonicalConversationID(conversationID), page.Messages, page.Pagination)
}

// --- Notification feed ---

// OnNotification prepends a notification to the bounded feed and returns it
// so the caller can surface a transient alert. Returns false for payloads
// that carry no actionable data.
func (e *Engine) OnNotification(ctx context.Context, raw []byte) (model.Notification, bool) {
	n, err := normalize.NormalizeNotification(raw)
	if err != nil {
		logger.Debugf("engine: dropping notification payload: %v", err)
		return model.Notification{}, false
	}

	e.notifMu.Lock()
	e.notifications = append([]model.Notification{n}, e.notifications...)
	if len(e.notifications) > e.notifCap {
		e.notifications = e.notifications[:e.notifCap]
	}
	snapshot := e.snapshotLocked()
	e.notifMu.Unlock()

	e.persistNotifications(ctx, snapshot)
	if e.alerter != nil {
		e.alerter.Alert(ctx, n)
	}
	return n, true
}

// Notifications returns a copy of the feed, newest first.
func (e *Engine) Notifications() []model.Notification {
	e.notifMu.Lock()
	defer e.notifMu.Unlock()
	return e.snapshotLocked()
}

// UnreadNotificationCount returns how many feed entries are unread.
func (e *Engine) UnreadNotificationCount() int {
	e.notifMu.Lock()
	defer e.notifMu.Unlock()
	count := 0
	for i := range e.notifications {
		if !e.notifications[i].IsRead {
			count++
		}
	}
	return count
}

// MarkNotificationRead flips one feed entry to read.
func (e *Engine) MarkNotificationRead(ctx context.Context, id string) {
	e.notifMu.Lock()
	for i := range e.notifications {
		if e.notifications[i].ID == id {
			e.notifications[i].IsRead = true
			break
		}
	}
	snapshot := e.snapshotLocked()
	e.notifMu.Unlock()
	e.persistNotifications(ctx, snapshot)
}

// MarkAllNotificationsRead flips the whole feed to read.
func (e *Engine) MarkAllNotificationsRead(ctx context.Context) {
	e.notifMu.Lock()
	for i := range e.notifications {
		e.notifications[i].IsRead = true
	}
	snapshot := e.snapshotLocked()
	e.notifMu.Unlock()
	e.persistNotifications(ctx, snapshot)
}

// RestoreNotifications loads the persisted feed on session start.
func (e *Engine) RestoreNotifications(ctx context.Context) {
	if e.snapshots == nil {
		return
	}
	list, err := e.snapshots.LoadNotifications(ctx, e.localUserID)
	if err != nil {
		logger.Errorf("engine: restore notifications: %v", err)
		return
	}
	if len(list) > e.notifCap {
		list = list[:e.notifCap]
	}
	e.notifMu.Lock()
	e.notifications = list
	e.notifMu.Unlock()
}

func (e *Engine) snapshotLocked() []model.Notification {
	out := make([]model.Notification, len(e.notifications))
	copy(out, e.notifications)
	return out
}

func (e *Engine) persistNotifications(ctx context.Context, list []model.Notification) {
	if e.snapshots == nil {
		return
	}
	if err := e.snapshots.SaveNotifications(ctx, e.localUserID, list); err != nil {
		logger.Errorf("engine: save notifications: %v", err)
	}
}

// Reset clears all session state on teardown.
func (e *Engine) Reset(ctx context.Context) {
	e.store.Reset()
	e.notifMu.Lock()
	e.notifications = nil
	e.notifMu.Unlock()
}
