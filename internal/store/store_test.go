package store

import (
	"fmt"
	"testing"
	"time"

	"github.com/chatsync/internal/model"
)

var base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func msg(id, body, sender string, at time.Time) model.Message {
	return model.Message{
		ID:             id,
		ConversationID: "conv-1",
		SenderID:       sender,
		Body:           body,
		CreatedAt:      at,
	}
}

func ids(msgs []model.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func assertIDs(t *testing.T, got []model.Message, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d messages %v, want %d %v", len(got), ids(got), len(want), want)
	}
	for i := range want {
		if got[i].ID != want[i] {
			t.Fatalf("position %d: got id %q, want %q (full: %v)", i, got[i].ID, want[i], ids(got))
		}
	}
}

func TestUpsertMessageIdempotent(t *testing.T) {
	s := New(Options{})
	m := msg("m-1", "hello", "u1", base)

	s.UpsertMessage("conv-1", m)
	s.UpsertMessage("conv-1", m)

	assertIDs(t, s.Messages("conv-1"), "m-1")
}

func TestUpsertMessageReplacesInPlace(t *testing.T) {
	s := New(Options{})
	s.UpsertMessage("conv-1", msg("m-1", "first", "u1", base))
	s.UpsertMessage("conv-1", msg("m-2", "second", "u1", base.Add(10*time.Second)))

	edited := msg("m-1", "first (edited)", "u1", base)
	s.UpsertMessage("conv-1", edited)

	got := s.Messages("conv-1")
	assertIDs(t, got, "m-1", "m-2")
	if got[0].Body != "first (edited)" {
		t.Fatalf("edit not applied: %q", got[0].Body)
	}
}

func TestOptimisticReconcile(t *testing.T) {
	s := New(Options{})
	placeholder := msg("temp-1700000000000", "hi", "u1", base)
	confirmed := msg("m-42", "hi", "u1", base.Add(2*time.Second))

	s.UpsertMessage("conv-1", placeholder)
	s.UpsertMessage("conv-1", confirmed)

	got := s.Messages("conv-1")
	assertIDs(t, got, "m-42")
}

func TestOptimisticReconcileOutsideWindow(t *testing.T) {
	s := New(Options{})
	s.UpsertMessage("conv-1", msg("temp-1700000000000", "hi", "u1", base))
	s.UpsertMessage("conv-1", msg("m-42", "hi", "u1", base.Add(10*time.Second)))

	if got := s.Messages("conv-1"); len(got) != 2 {
		t.Fatalf("placeholder outside the window must survive, got %v", ids(got))
	}
}

func TestFuzzyDuplicateWindows(t *testing.T) {
	cases := []struct {
		name  string
		delta time.Duration
		want  int
	}{
		{"500ms apart merges", 500 * time.Millisecond, 1},
		{"2000ms apart stays two", 2 * time.Second, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := New(Options{})
			s.UpsertMessage("conv-1", msg("m-1", "same text", "u1", base))
			s.UpsertMessage("conv-1", msg("m-2", "same text", "u1", base.Add(tc.delta)))
			if got := s.Messages("conv-1"); len(got) != tc.want {
				t.Fatalf("got %d messages %v, want %d", len(got), ids(got), tc.want)
			}
		})
	}
}

func TestMessagesSortedAscending(t *testing.T) {
	s := New(Options{})
	// Deliberately out of order, distinct senders so no fuzzy merging.
	s.UpsertMessage("conv-1", msg("m-3", "c", "u3", base.Add(30*time.Second)))
	s.UpsertMessage("conv-1", msg("m-1", "a", "u1", base))
	s.UpsertMessage("conv-1", msg("m-2", "b", "u2", base.Add(15*time.Second)))

	got := s.Messages("conv-1")
	for i := 1; i < len(got); i++ {
		if got[i].CreatedAt.Before(got[i-1].CreatedAt) {
			t.Fatalf("not sorted at %d: %v", i, ids(got))
		}
	}
	assertIDs(t, got, "m-1", "m-2", "m-3")
}

func TestMessagesMemoInvalidation(t *testing.T) {
	s := New(Options{})
	s.UpsertMessage("conv-1", msg("m-1", "a", "u1", base))

	first := s.Messages("conv-1")
	second := s.Messages("conv-1")
	if &first[0] != &second[0] {
		t.Fatal("unchanged state must return the memoized slice")
	}

	s.UpsertMessage("conv-1", msg("m-2", "b", "u2", base.Add(time.Second)))
	assertIDs(t, s.Messages("conv-1"), "m-1", "m-2")
}

func TestAppendMessagePageDedupes(t *testing.T) {
	s := New(Options{})
	s.ReplaceMessagePage("conv-1", []model.Message{
		msg("m-3", "c", "u1", base.Add(2*time.Second)),
		msg("m-4", "d", "u2", base.Add(3*time.Second)),
	}, model.Pagination{Page: 1})

	older := []model.Message{
		msg("m-1", "a", "u1", base),
		msg("m-2", "b", "u2", base.Add(time.Second)),
		msg("m-3", "c", "u1", base.Add(2 * time.Second)), // overlap with current page
	}
	s.AppendMessagePage("conv-1", older, model.Pagination{Page: 2})
	s.AppendMessagePage("conv-1", older, model.Pagination{Page: 2}) // repeated fetch

	assertIDs(t, s.Messages("conv-1"), "m-1", "m-2", "m-3", "m-4")
	if cur, _ := s.Cursor("conv-1"); cur.Page != 2 {
		t.Fatalf("cursor not updated: %+v", cur)
	}
}

func TestReplaceMessagePageSortsAndDedupes(t *testing.T) {
	s := New(Options{})
	s.ReplaceMessagePage("conv-1", []model.Message{
		msg("m-2", "b", "u2", base.Add(time.Second)),
		msg("m-1", "a", "u1", base),
		msg("m-2", "b2", "u2", base.Add(time.Second)),
	}, model.Pagination{Page: 1, Total: 2})

	got := s.Messages("conv-1")
	assertIDs(t, got, "m-1", "m-2")
	if got[1].Body != "b2" {
		t.Fatalf("last write must win on id dedupe, got %q", got[1].Body)
	}
}

func conv(id string, lastAt time.Time, unread int) model.ConversationSummary {
	lm := msg("last-"+id, "tail", "u9", lastAt)
	return model.ConversationSummary{
		ID:            id,
		LastMessage:   &lm,
		UpdatedAt:     lastAt,
		UnreadCountMe: unread,
	}
}

func TestConversationOrdering(t *testing.T) {
	s := New(Options{})
	t1 := base
	t3 := base.Add(30 * time.Second)
	t2 := base.Add(60 * time.Second)

	s.UpsertConversation(conv("c1", t1, 0))
	s.UpsertConversation(conv("c3", t3, 0))
	s.UpsertConversation(conv("c2", t2, 0))

	got := s.Conversations()
	want := []string{"c2", "c3", "c1"}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("position %d: got %q, want %q", i, got[i].ID, id)
		}
	}
}

func TestViewingOverride(t *testing.T) {
	for _, unread := range []int{0, 5, -3} {
		t.Run(fmt.Sprintf("input_%d", unread), func(t *testing.T) {
			s := New(Options{})
			s.UpsertConversation(conv("c1", base, 1))
			s.SetCurrentConversation("c1")

			s.UpsertConversation(conv("c1", base.Add(time.Second), unread))

			got, _ := s.Conversation("c1")
			if got.UnreadCountMe != 0 || got.UnreadCount != 0 {
				t.Fatalf("override failed: me=%d legacy=%d", got.UnreadCountMe, got.UnreadCount)
			}
		})
	}
}

func TestBackgroundUnreadAcceptedVerbatim(t *testing.T) {
	s := New(Options{})
	s.UpsertConversation(conv("c1", base, 0))
	s.UpsertConversation(conv("c1", base.Add(time.Second), 7))

	got, _ := s.Conversation("c1")
	if got.UnreadCountMe != 7 || got.UnreadCount != 7 {
		t.Fatalf("server count not applied: me=%d legacy=%d", got.UnreadCountMe, got.UnreadCount)
	}
}

func TestSwitchingAwayDoesNotZero(t *testing.T) {
	s := New(Options{})
	s.UpsertConversation(conv("c1", base, 0))
	s.UpsertConversation(conv("c2", base, 4))

	s.SetCurrentConversation("c1")
	s.SetCurrentConversation("c2")

	// c2 is zeroed by opening it, c1 keeps its last reported state.
	c1, _ := s.Conversation("c1")
	c2, _ := s.Conversation("c2")
	if c1.UnreadCountMe != 0 {
		t.Fatalf("c1 was never unread, got %d", c1.UnreadCountMe)
	}
	if c2.UnreadCountMe != 0 {
		t.Fatalf("opening c2 must zero it, got %d", c2.UnreadCountMe)
	}

	// A later background update to c2 (now deselected) applies verbatim.
	s.SetCurrentConversation("c1")
	s.UpsertConversation(conv("c2", base.Add(time.Minute), 2))
	c2, _ = s.Conversation("c2")
	if c2.UnreadCountMe != 2 {
		t.Fatalf("deselected conversation must accept server counts, got %d", c2.UnreadCountMe)
	}
}

func TestTouchConversationKeepsUnread(t *testing.T) {
	s := New(Options{})
	s.UpsertConversation(conv("c1", base, 3))

	lm := msg("m-new", "newest", "u2", base.Add(time.Minute))
	s.TouchConversation("c1", &lm, lm.CreatedAt)

	got, _ := s.Conversation("c1")
	if got.UnreadCountMe != 3 {
		t.Fatalf("touch must not change unread, got %d", got.UnreadCountMe)
	}
	if got.LastMessage == nil || got.LastMessage.ID != "m-new" {
		t.Fatalf("last message not updated: %+v", got.LastMessage)
	}
}

func TestTouchConversationCreatesUnknown(t *testing.T) {
	s := New(Options{})
	lm := msg("m-1", "hello", "u2", base)
	s.TouchConversation("c-new", &lm, base)

	if _, ok := s.Conversation("c-new"); !ok {
		t.Fatal("unknown conversation must be created eagerly")
	}
}

func TestMarkConversationRead(t *testing.T) {
	s := New(Options{})
	c := conv("c1", base, 5)
	c.UnreadCountTo = 2
	s.UpsertConversation(c)
	s.UpsertMessage("c1", msg("m-1", "a", "u2", base))

	s.MarkConversationRead("c1")

	got, _ := s.Conversation("c1")
	if got.UnreadCountMe != 0 || got.UnreadCount != 0 {
		t.Fatalf("unread not cleared: %+v", got)
	}
	if got.UnreadCountTo != 2 {
		t.Fatalf("counterpart count must be untouched, got %d", got.UnreadCountTo)
	}
	if msgs := s.Messages("c1"); !msgs[0].IsRead {
		t.Fatal("messages not flagged read")
	}
}

func TestTypingSetSemantics(t *testing.T) {
	s := New(Options{})
	s.SetTyping("c1", "u1", true)
	s.SetTyping("c1", "u1", true) // idempotent add
	s.SetTyping("c1", "u2", true)
	s.SetTyping("c1", "u3", false) // remove absent: no-op

	got := s.TypingUsers("c1")
	if len(got) != 2 || got[0] != "u1" || got[1] != "u2" {
		t.Fatalf("typing set wrong: %v", got)
	}

	s.SetTyping("c1", "u1", false)
	if got := s.TypingUsers("c1"); len(got) != 1 || got[0] != "u2" {
		t.Fatalf("remove failed: %v", got)
	}
}

func TestOnlineSetOperations(t *testing.T) {
	s := New(Options{})
	s.SetOnlineUsers("c1", []string{"u1", "u2"})
	s.AddOnlineUser("c1", "u2") // idempotent
	s.AddOnlineUser("c1", "u3")
	s.RemoveOnlineUser("c1", "u1")
	s.RemoveOnlineUser("c1", "u9") // absent: no-op

	got := s.OnlineUsers("c1")
	if len(got) != 2 || got[0] != "u2" || got[1] != "u3" {
		t.Fatalf("online set wrong: %v", got)
	}
}

func TestUnreadTotal(t *testing.T) {
	s := New(Options{})
	s.UpsertConversation(conv("c1", base, 2))
	s.UpsertConversation(conv("c2", base.Add(time.Second), 3))

	if got := s.UnreadTotal(); got != 5 {
		t.Fatalf("unread total = %d, want 5", got)
	}
}

func TestReset(t *testing.T) {
	s := New(Options{})
	s.UpsertConversation(conv("c1", base, 2))
	s.UpsertMessage("c1", msg("m-1", "a", "u1", base))
	s.SetCurrentConversation("c1")
	s.SetTyping("c1", "u1", true)

	s.Reset()

	if len(s.Conversations()) != 0 || len(s.Messages("c1")) != 0 ||
		s.CurrentConversationID() != "" || len(s.TypingUsers("c1")) != 0 {
		t.Fatal("reset left state behind")
	}
}
