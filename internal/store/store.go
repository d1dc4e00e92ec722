// Package store holds the session's canonical in-memory chat state: the
// conversation list, per-conversation message lists, pagination cursors and
// typing/online presence sets. It is a derived cache: the platform server is
// the source of truth and the store is rebuilt from REST fetches after any
// gap in socket delivery.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/chatsync/internal/model"
)

const (
	// DefaultDuplicateWindow bounds how far apart two timestamps may be for
	// two same-body same-sender messages to count as one logical message.
	DefaultDuplicateWindow = 1000 * time.Millisecond
	// DefaultOptimisticWindow bounds how long after an optimistic send its
	// server-confirmed echo is still reconciled against the placeholder.
	DefaultOptimisticWindow = 5000 * time.Millisecond
)

// Options tune the duplicate-detection windows.
type Options struct {
	DuplicateWindow  time.Duration
	OptimisticWindow time.Duration
}

func (o Options) withDefaults() Options {
	if o.DuplicateWindow <= 0 {
		o.DuplicateWindow = DefaultDuplicateWindow
	}
	if o.OptimisticWindow <= 0 {
		o.OptimisticWindow = DefaultOptimisticWindow
	}
	return o
}

// Store is safe for concurrent use: socket dispatch, REST loaders and gateway
// reads run on different goroutines, so every operation takes the lock and is
// atomic with respect to the others.
type Store struct {
	mu   sync.RWMutex
	opts Options

	conversations []*model.ConversationSummary // sorted by activity, newest first
	byID          map[string]*model.ConversationSummary

	messages map[string][]model.Message // ascending by CreatedAt
	cursors  map[string]model.Pagination

	// versions invalidate the Messages memo per conversation.
	versions map[string]uint64
	memo     map[string]memoEntry

	typing map[string]map[string]struct{}
	online map[string]map[string]struct{}

	currentID string
}

type memoEntry struct {
	version uint64
	msgs    []model.Message
}

func New(opts Options) *Store {
	s := &Store{opts: opts.withDefaults()}
	s.init()
	return s
}

func (s *Store) init() {
	s.conversations = nil
	s.byID = make(map[string]*model.ConversationSummary)
	s.messages = make(map[string][]model.Message)
	s.cursors = make(map[string]model.Pagination)
	s.versions = make(map[string]uint64)
	s.memo = make(map[string]memoEntry)
	s.typing = make(map[string]map[string]struct{})
	s.online = make(map[string]map[string]struct{})
	s.currentID = ""
}

// Reset clears all state. Called on session teardown.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.init()
}

func absDelta(a, b time.Time) time.Duration {
	d := a.Sub(b)
	if d < 0 {
		return -d
	}
	return d
}

// UpsertMessage inserts or replaces a message in a conversation's list.
//
// Any optimistic placeholder with a matching body and sender whose timestamp
// is within the optimistic window is removed first: the confirmed echo of a
// local send may arrive as a REST response or as a socket broadcast, and must
// not leave two visible bubbles. Then: exact id match replaces in place,
// a fuzzy duplicate (same body and sender within the duplicate window)
// replaces in place, anything else appends.
func (s *Store) UpsertMessage(conversationID string, msg model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertMessageLocked(conversationID, msg)
}

func (s *Store) upsertMessageLocked(conversationID string, msg model.Message) {
	list := s.messages[conversationID]

	kept := list[:0:0]
	for _, m := range list {
		if m.IsPlaceholder() && m.ID != msg.ID &&
			m.Body == msg.Body &&
			sameSender(m.SenderID, msg.SenderID) &&
			absDelta(m.CreatedAt, msg.CreatedAt) <= s.opts.OptimisticWindow {
			continue
		}
		kept = append(kept, m)
	}
	list = kept

	replaced := false
	for i := range list {
		if list[i].ID == msg.ID {
			list[i] = msg
			replaced = true
			break
		}
	}
	if !replaced {
		for i := range list {
			if list[i].Body == msg.Body && list[i].SenderID == msg.SenderID &&
				absDelta(list[i].CreatedAt, msg.CreatedAt) < s.opts.DuplicateWindow {
				list[i] = msg
				replaced = true
				break
			}
		}
	}
	if !replaced {
		list = append(list, msg)
	}

	s.messages[conversationID] = list
	s.versions[conversationID]++
}

func sameSender(a, b string) bool {
	return a == "" || b == "" || a == b
}

// AppendMessagePage prepends an older history page fetched by backward
// pagination. Messages whose id is already present are skipped, so repeated
// fetches of the same page are no-ops.
func (s *Store) AppendMessagePage(conversationID string, msgs []model.Message, cursor model.Pagination) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.messages[conversationID]
	seen := make(map[string]struct{}, len(existing))
	for _, m := range existing {
		seen[m.ID] = struct{}{}
	}

	merged := make([]model.Message, 0, len(msgs)+len(existing))
	for _, m := range msgs {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		merged = append(merged, m)
	}
	merged = append(merged, existing...)

	s.messages[conversationID] = merged
	s.cursors[conversationID] = cursor
	s.versions[conversationID]++
}

// ReplaceMessagePage replaces a conversation's list with the initial/forward
// fetch: deduplicated by id, sorted ascending by CreatedAt.
func (s *Store) ReplaceMessagePage(conversationID string, msgs []model.Message, cursor model.Pagination) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deduped := dedupeByID(msgs)
	sort.SliceStable(deduped, func(i, j int) bool {
		return deduped[i].CreatedAt.Before(deduped[j].CreatedAt)
	})

	s.messages[conversationID] = deduped
	s.cursors[conversationID] = cursor
	s.versions[conversationID]++
}

func dedupeByID(msgs []model.Message) []model.Message {
	out := make([]model.Message, 0, len(msgs))
	index := make(map[string]int, len(msgs))
	for _, m := range msgs {
		if i, seen := index[m.ID]; seen {
			out[i] = m // last write wins
			continue
		}
		index[m.ID] = len(out)
		out = append(out, m)
	}
	return out
}

// UpsertConversation merges a summary into the list (server fields win) or
// inserts it when unknown, then re-sorts the list newest-activity first. The
// viewing override pins the open conversation's unread count to zero no
// matter what the server reported.
func (s *Store) UpsertConversation(summary model.ConversationSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertConversationLocked(summary)
}

func (s *Store) upsertConversationLocked(summary model.ConversationSummary) {
	if summary.ID == s.currentID {
		summary.UnreadCountMe = 0
	}
	summary.UnreadCount = summary.UnreadCountMe

	if cur, ok := s.byID[summary.ID]; ok {
		if len(summary.Participants) > 0 {
			cur.Participants = summary.Participants
		}
		if summary.LastMessage != nil {
			cur.LastMessage = summary.LastMessage
		}
		if !summary.UpdatedAt.IsZero() {
			cur.UpdatedAt = summary.UpdatedAt
		}
		cur.UnreadCountMe = summary.UnreadCountMe
		cur.UnreadCountTo = summary.UnreadCountTo
		cur.UnreadCount = summary.UnreadCount
	} else {
		c := summary
		s.byID[c.ID] = &c
		s.conversations = append([]*model.ConversationSummary{&c}, s.conversations...)
	}
	s.sortConversationsLocked()
}

// TouchConversation updates only a conversation's last message and activity
// timestamp. Unread counts are deliberately untouched: they arrive on the
// separate conversation-update event. Unknown conversations get a fresh
// head-of-list entry from this partial data.
func (s *Store) TouchConversation(conversationID string, lastMessage *model.Message, updatedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.byID[conversationID]
	if !ok {
		c := model.ConversationSummary{ID: conversationID, LastMessage: lastMessage, UpdatedAt: updatedAt}
		s.byID[conversationID] = &c
		s.conversations = append([]*model.ConversationSummary{&c}, s.conversations...)
		s.sortConversationsLocked()
		return
	}
	if lastMessage != nil {
		cur.LastMessage = lastMessage
	}
	if !updatedAt.IsZero() {
		cur.UpdatedAt = updatedAt
	}
	s.sortConversationsLocked()
}

func (s *Store) sortConversationsLocked() {
	sort.SliceStable(s.conversations, func(i, j int) bool {
		return s.conversations[i].ActivityAt().After(s.conversations[j].ActivityAt())
	})
}

// SetCurrentConversation marks a conversation as being viewed (empty id:
// none). The opened conversation's unread count is pinned to zero; the one
// being left keeps whatever the server last reported.
func (s *Store) SetCurrentConversation(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.currentID = conversationID
	if cur, ok := s.byID[conversationID]; ok {
		cur.UnreadCountMe = 0
		cur.UnreadCount = 0
	}
}

// MarkConversationRead zeroes the viewer's unread count and flags every
// stored message read. The counterpart's count is not touched.
func (s *Store) MarkConversationRead(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.byID[conversationID]; ok {
		cur.UnreadCountMe = 0
		cur.UnreadCount = 0
	}
	list := s.messages[conversationID]
	for i := range list {
		list[i].IsRead = true
	}
	s.versions[conversationID]++
}

// SetTyping adds or removes a user from a conversation's typing set.
func (s *Store) SetTyping(conversationID, userID string, isTyping bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.typing[conversationID]
	if isTyping {
		if set == nil {
			set = make(map[string]struct{})
			s.typing[conversationID] = set
		}
		set[userID] = struct{}{}
		return
	}
	delete(set, userID)
}

// SetOnlineUsers replaces a conversation's online set.
func (s *Store) SetOnlineUsers(conversationID string, userIDs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		set[id] = struct{}{}
	}
	s.online[conversationID] = set
}

// AddOnlineUser adds a user to a conversation's online set (idempotent).
func (s *Store) AddOnlineUser(conversationID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.online[conversationID]
	if set == nil {
		set = make(map[string]struct{})
		s.online[conversationID] = set
	}
	set[userID] = struct{}{}
}

// RemoveOnlineUser removes a user from a conversation's online set (no-op if
// absent).
func (s *Store) RemoveOnlineUser(conversationID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.online[conversationID], userID)
}

// --- Selectors ---

// Messages returns the conversation's list deduplicated (by id, then by a
// fuzzy pass over body/sender/timestamp) and sorted ascending by CreatedAt.
// The store's own invariants can be violated transiently by out-of-order
// socket delivery; this read path is the final backstop. Results are memoized
// on a per-conversation version counter, so repeated reads of unchanged state
// are cheap. The returned slice is shared with the memo and must be treated
// as read-only.
func (s *Store) Messages(conversationID string) []model.Message {
	s.mu.RLock()
	version := s.versions[conversationID]
	if entry, ok := s.memo[conversationID]; ok && entry.version == version {
		s.mu.RUnlock()
		return entry.msgs
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	// Re-check: another reader may have rebuilt the memo meanwhile.
	version = s.versions[conversationID]
	if entry, ok := s.memo[conversationID]; ok && entry.version == version {
		return entry.msgs
	}

	deduped := dedupeByID(s.messages[conversationID])

	out := make([]model.Message, 0, len(deduped))
	for _, m := range deduped {
		dup := false
		for _, k := range out {
			if k.Body == m.Body && k.SenderID == m.SenderID &&
				absDelta(k.CreatedAt, m.CreatedAt) < s.opts.DuplicateWindow {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	s.memo[conversationID] = memoEntry{version: version, msgs: out}
	return out
}

// Conversations returns the summaries sorted newest-activity first.
func (s *Store) Conversations() []model.ConversationSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.ConversationSummary, 0, len(s.conversations))
	for _, c := range s.conversations {
		out = append(out, *c)
	}
	return out
}

// Conversation returns one summary by id.
func (s *Store) Conversation(conversationID string) (model.ConversationSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if c, ok := s.byID[conversationID]; ok {
		return *c, true
	}
	return model.ConversationSummary{}, false
}

// CurrentConversationID returns the id of the conversation being viewed, or
// the empty string.
func (s *Store) CurrentConversationID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentID
}

// UnreadTotal sums the viewer's unread counts across all conversations.
func (s *Store) UnreadTotal() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for _, c := range s.conversations {
		total += c.UnreadCountMe
	}
	return total
}

// Cursor returns the stored pagination cursor for a conversation.
func (s *Store) Cursor(conversationID string) (model.Pagination, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cursors[conversationID]
	return c, ok
}

// TypingUsers returns the sorted typing set for a conversation.
func (s *Store) TypingUsers(conversationID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedSet(s.typing[conversationID])
}

// OnlineUsers returns the sorted online set for a conversation.
func (s *Store) OnlineUsers(conversationID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedSet(s.online[conversationID])
}

func sortedSet(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
