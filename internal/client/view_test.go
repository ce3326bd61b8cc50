package client

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/quentinzango/evenement/internal/feed"
	"github.com/quentinzango/evenement/internal/models"
)

// newSubscribedView returns a view in the subscribed state with a fixed
// clock, bypassing the network for reconciliation tests.
func newSubscribedView(t *testing.T, now time.Time) *MessageView {
	t.Helper()
	v := NewMessageView(New("http://invalid", nil), "ws://invalid/feed")
	v.now = func() time.Time { return now }
	v.state.Store(int32(ViewSubscribed))
	return v
}

func provisionalEntry(profileID, text string, postedAt time.Time) *Entry {
	return &Entry{
		Message: models.Message{
			ID:         "tmp_1",
			ProfileID:  profileID,
			Text:       text,
			AuthorName: "Alice",
			CreatedAt:  postedAt,
		},
		Provisional: true,
		State:       EntryPending,
		postedAt:    postedAt,
	}
}

func insertEvent(id, profileID, text, author string) *feed.Event {
	return &feed.Event{
		Type: feed.EventInsert,
		Message: &models.Message{
			ID:         id,
			ProfileID:  profileID,
			Text:       text,
			AuthorName: author,
			CreatedAt:  time.Now().UTC(),
		},
	}
}

func TestInsertReconcilesProvisionalEntry(t *testing.T) {
	now := time.Now()
	v := newSubscribedView(t, now)
	v.entries = []*Entry{provisionalEntry("prf_1", "hi", now)}

	v.Apply(insertEvent("msg_1", "prf_1", "hi", "Alice"))

	entries := v.Entries()
	if len(entries) != 1 {
		t.Fatalf("entries length = %d, want 1 (no duplicate)", len(entries))
	}
	e := entries[0]
	if e.Provisional {
		t.Fatal("entry still marked provisional after reconciliation")
	}
	if e.State != EntryConfirmed {
		t.Fatalf("entry state = %v, want confirmed", e.State)
	}
	if e.Message.ID != "msg_1" {
		t.Fatalf("entry ID = %q, want authoritative %q", e.Message.ID, "msg_1")
	}
}

func TestInsertWithoutMatchAppends(t *testing.T) {
	now := time.Now()
	v := newSubscribedView(t, now)
	v.entries = []*Entry{provisionalEntry("prf_1", "hi", now)}

	v.Apply(insertEvent("msg_2", "prf_2", "hello from bob", "Bob"))

	entries := v.Entries()
	if len(entries) != 2 {
		t.Fatalf("entries length = %d, want 2", len(entries))
	}
	if entries[1].Message.ID != "msg_2" {
		t.Fatalf("appended entry ID = %q, want %q", entries[1].Message.ID, "msg_2")
	}
	if entries[0].State != EntryPending {
		t.Fatal("unrelated provisional entry must stay pending")
	}
}

func TestEachInsertReplacesAtMostOneProvisional(t *testing.T) {
	now := time.Now()
	v := newSubscribedView(t, now)
	// Same text posted twice in quick succession: two provisional entries.
	a := provisionalEntry("prf_1", "hi", now)
	b := provisionalEntry("prf_1", "hi", now)
	b.Message.ID = "tmp_2"
	v.entries = []*Entry{a, b}

	v.Apply(insertEvent("msg_1", "prf_1", "hi", "Alice"))
	v.Apply(insertEvent("msg_2", "prf_1", "hi", "Alice"))

	entries := v.Entries()
	if len(entries) != 2 {
		t.Fatalf("entries length = %d, want 2", len(entries))
	}
	for i, e := range entries {
		if e.Provisional || e.State != EntryConfirmed {
			t.Fatalf("entry %d not confirmed: %+v", i, e)
		}
	}
	if entries[0].Message.ID == entries[1].Message.ID {
		t.Fatal("both provisional entries matched the same row")
	}
}

func TestTextMatchesAreExact(t *testing.T) {
	now := time.Now()
	v := newSubscribedView(t, now)
	v.entries = []*Entry{provisionalEntry("prf_1", "hi", now)}

	v.Apply(insertEvent("msg_1", "prf_1", "hi ", "Alice"))

	entries := v.Entries()
	if len(entries) != 2 {
		t.Fatalf("entries length = %d, want 2 (no fuzzy match)", len(entries))
	}
	if entries[0].State != EntryPending {
		t.Fatal("provisional entry must not match different text")
	}
}

func TestPendingEntryOrphansAfterMatchWindow(t *testing.T) {
	start := time.Now()
	current := start
	v := NewMessageView(New("http://invalid", nil), "ws://invalid/feed")
	v.now = func() time.Time { return current }
	v.state.Store(int32(ViewSubscribed))
	v.entries = []*Entry{provisionalEntry("prf_1", "hi", start)}

	current = start.Add(v.matchWindow + time.Second)

	entries := v.Entries()
	if entries[0].State != EntryOrphaned {
		t.Fatalf("entry state = %v, want orphaned", entries[0].State)
	}

	// A late authoritative row still supersedes the orphan instead of
	// duplicating it.
	v.Apply(insertEvent("msg_1", "prf_1", "hi", "Alice"))
	entries = v.Entries()
	if len(entries) != 1 {
		t.Fatalf("entries length = %d, want 1", len(entries))
	}
	if entries[0].State != EntryConfirmed {
		t.Fatalf("entry state = %v, want confirmed", entries[0].State)
	}
}

func TestUpdateReplacesRowByID(t *testing.T) {
	now := time.Now()
	v := newSubscribedView(t, now)
	v.entries = []*Entry{
		{Message: models.Message{ID: "msg_1", ProfileID: "prf_1", Text: "hi"}, State: EntryConfirmed},
	}

	v.Apply(&feed.Event{
		Type:    feed.EventUpdate,
		Message: &models.Message{ID: "msg_1", ProfileID: "prf_1", Text: "edited"},
	})

	entries := v.Entries()
	if entries[0].Message.Text != "edited" {
		t.Fatalf("text = %q, want %q", entries[0].Message.Text, "edited")
	}
}

func TestDeleteRemovesRowByID(t *testing.T) {
	now := time.Now()
	v := newSubscribedView(t, now)
	v.entries = []*Entry{
		{Message: models.Message{ID: "msg_1"}, State: EntryConfirmed},
		{Message: models.Message{ID: "msg_2"}, State: EntryConfirmed},
	}

	v.Apply(&feed.Event{Type: feed.EventDelete, Message: &models.Message{ID: "msg_1"}})

	entries := v.Entries()
	if len(entries) != 1 || entries[0].Message.ID != "msg_2" {
		t.Fatalf("unexpected entries after delete: %+v", entries)
	}
}

func TestEventsAfterCloseAreDiscarded(t *testing.T) {
	now := time.Now()
	v := newSubscribedView(t, now)

	v.Close()
	v.Apply(insertEvent("msg_1", "prf_1", "hi", "Alice"))

	v.mu.Lock()
	n := len(v.entries)
	v.mu.Unlock()
	if n != 0 {
		t.Fatalf("entries length = %d, want 0 after close", n)
	}
	if v.State() != ViewClosed {
		t.Fatalf("state = %s, want closed", v.State())
	}
}

func TestInsertWithoutAuthorResolvesProfile(t *testing.T) {
	avatar := "data:image/png;base64,xyz"
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/profiles/prf_1" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(models.PublicProfile{
			ID:          "prf_1",
			DisplayName: "Alice",
			Avatar:      &avatar,
		})
	}))
	t.Cleanup(ts.Close)

	v := NewMessageView(New(ts.URL, nil), "ws://invalid/feed")
	v.state.Store(int32(ViewSubscribed))

	// The join can lag the insert, leaving the event without author fields.
	v.Apply(insertEvent("msg_1", "prf_1", "hi", ""))

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		entries := v.Entries()
		if len(entries) == 1 && entries[0].Message.AuthorName == "Alice" {
			if entries[0].Message.AuthorAvatar == nil || *entries[0].Message.AuthorAvatar != avatar {
				t.Fatalf("avatar = %v, want %q", entries[0].Message.AuthorAvatar, avatar)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timed out waiting for author to be resolved")
}

func TestAuthorLookupAfterCloseIsDiscarded(t *testing.T) {
	release := make(chan struct{})
	served := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		json.NewEncoder(w).Encode(models.PublicProfile{ID: "prf_1", DisplayName: "Alice"})
		close(served)
	}))
	t.Cleanup(ts.Close)

	v := NewMessageView(New(ts.URL, nil), "ws://invalid/feed")
	v.state.Store(int32(ViewSubscribed))

	v.Apply(insertEvent("msg_1", "prf_1", "hi", ""))

	// Close while the lookup is still in flight, then let it resolve.
	v.Close()
	close(release)
	<-served

	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		v.mu.Lock()
		name := v.entries[0].Message.AuthorName
		v.mu.Unlock()
		if name != "" {
			t.Fatalf("author = %q, want untouched after close", name)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestViewStateStrings(t *testing.T) {
	tests := []struct {
		state ViewState
		want  string
	}{
		{ViewUninitialized, "uninitialized"},
		{ViewLoading, "loading"},
		{ViewSubscribed, "subscribed"},
		{ViewClosed, "closed"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Fatalf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
