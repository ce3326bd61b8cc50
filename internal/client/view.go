package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/quentinzango/evenement/internal/feed"
	"github.com/quentinzango/evenement/internal/models"
)

// ViewState is the connection lifecycle of a MessageView. The progression is
// one-way: uninitialized -> loading -> subscribed -> closed. Reconnecting
// after a dropped feed is the transport's concern, not the view's.
type ViewState int32

const (
	ViewUninitialized ViewState = iota
	ViewLoading
	ViewSubscribed
	ViewClosed
)

func (s ViewState) String() string {
	switch s {
	case ViewUninitialized:
		return "uninitialized"
	case ViewLoading:
		return "loading"
	case ViewSubscribed:
		return "subscribed"
	case ViewClosed:
		return "closed"
	}
	return "unknown"
}

// EntryState tracks a provisional entry's reconciliation.
type EntryState int

const (
	// EntryConfirmed entries are authoritative rows (or provisional ones
	// already superseded by an authoritative insert).
	EntryConfirmed EntryState = iota
	// EntryPending entries were posted optimistically and await their
	// authoritative insert event.
	EntryPending
	// EntryOrphaned entries outlived the match window without an
	// authoritative row appearing.
	EntryOrphaned
)

// Entry is one row of the in-memory ordered message list.
type Entry struct {
	Message     models.Message
	Provisional bool
	State       EntryState
	postedAt    time.Time
}

// defaultMatchWindow bounds provisional matching so a user posting identical
// text much later cannot be matched against a stale pending entry.
const defaultMatchWindow = 2 * time.Minute

// MessageView maintains the ordered message list: full history at open,
// then live feed events, with optimistic entries reconciled in place.
type MessageView struct {
	client      *Client
	feedURL     string
	dialer      *websocket.Dialer
	matchWindow time.Duration
	now         func() time.Time

	// OnChange, if set before Open, is invoked after every applied state
	// change. Called without the view lock held.
	OnChange func()

	state atomic.Int32

	mu      sync.Mutex
	entries []*Entry
	conn    *websocket.Conn
}

// NewMessageView creates a view over the given client. feedURL is the
// websocket endpoint, e.g. "ws://host:8080/feed".
func NewMessageView(c *Client, feedURL string) *MessageView {
	return &MessageView{
		client:      c,
		feedURL:     feedURL,
		dialer:      websocket.DefaultDialer,
		matchWindow: defaultMatchWindow,
		now:         time.Now,
	}
}

func (v *MessageView) State() ViewState {
	return ViewState(v.state.Load())
}

// Open loads history and subscribes to the change feed. It returns once the
// view is subscribed; events are applied on a background goroutine.
func (v *MessageView) Open(ctx context.Context) error {
	if !v.state.CompareAndSwap(int32(ViewUninitialized), int32(ViewLoading)) {
		return errors.New("view already opened")
	}

	history, err := v.client.History(ctx)
	if err != nil {
		v.state.Store(int32(ViewClosed))
		return fmt.Errorf("loading history: %w", err)
	}

	conn, _, err := v.dialer.DialContext(ctx, v.feedURL, nil)
	if err != nil {
		v.state.Store(int32(ViewClosed))
		return fmt.Errorf("subscribing to feed: %w", err)
	}

	v.mu.Lock()
	v.entries = make([]*Entry, 0, len(history))
	for _, m := range history {
		v.entries = append(v.entries, &Entry{Message: *m, State: EntryConfirmed})
	}
	v.conn = conn
	v.mu.Unlock()

	v.state.Store(int32(ViewSubscribed))
	go v.readLoop(conn)

	return nil
}

// Close tears the view down and unsubscribes. In-flight posts are not
// cancelled; their late responses are discarded by the mounted check.
func (v *MessageView) Close() {
	v.state.Store(int32(ViewClosed))
	v.mu.Lock()
	conn := v.conn
	v.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// Entries returns a snapshot of the ordered list.
func (v *MessageView) Entries() []Entry {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.markOrphansLocked(v.now())

	out := make([]Entry, len(v.entries))
	for i, e := range v.entries {
		out[i] = *e
	}
	return out
}

// PostOptimistic appends a provisional entry carrying this device's profile
// and the local time, then posts the text to the relay. The entry is shown
// before the server confirms; the authoritative insert event supersedes it
// via Apply. On post failure the entry is left in place and eventually
// orphans; it can never duplicate, since reconciliation keys on
// profile_id+text rather than the temporary ID.
func (v *MessageView) PostOptimistic(ctx context.Context, text string) error {
	if v.client.identity.StoredToken() == "" {
		return ErrNoToken
	}
	profile := v.client.Profile()
	if profile == nil {
		return errors.New("device not registered")
	}

	now := v.now()
	entry := &Entry{
		Message: models.Message{
			ID:         "tmp_" + uuid.NewString(),
			ProfileID:  profile.ID,
			Text:       text,
			AuthorName: profile.DisplayName,
			CreatedAt:  now,
		},
		Provisional: true,
		State:       EntryPending,
		postedAt:    now,
	}

	v.mu.Lock()
	v.entries = append(v.entries, entry)
	v.mu.Unlock()
	v.notify()

	return v.client.PostMessage(ctx, text)
}

// Apply feeds one change event into the view. Events arriving after Close
// are discarded.
func (v *MessageView) Apply(ev *feed.Event) {
	if v.State() != ViewSubscribed {
		return
	}
	if ev.Message == nil {
		return
	}

	switch ev.Type {
	case feed.EventInsert:
		v.applyInsert(ev.Message)
	case feed.EventUpdate:
		v.applyUpdate(ev.Message)
	case feed.EventDelete:
		v.applyDelete(ev.Message.ID)
	}
}

func (v *MessageView) readLoop(conn *websocket.Conn) {
	for {
		var ev feed.Event
		if err := conn.ReadJSON(&ev); err != nil {
			if v.State() == ViewSubscribed {
				slog.Debug("feed connection lost", "error", err)
			}
			return
		}
		v.Apply(&ev)
	}
}

// applyInsert reconciles the authoritative row against pending provisional
// entries: first entry matching (profile_id, exact text) inside the match
// window is replaced in place; otherwise the row is appended.
func (v *MessageView) applyInsert(msg *models.Message) {
	now := v.now()

	v.mu.Lock()
	v.markOrphansLocked(now)

	// Orphaned entries stay matchable: a slow post that finally lands on the
	// server must supersede its provisional entry, not duplicate it.
	matched := false
	for _, e := range v.entries {
		if !e.Provisional {
			continue
		}
		if e.Message.ProfileID != msg.ProfileID || e.Message.Text != msg.Text {
			continue
		}
		name := e.Message.AuthorName
		e.Message = *msg
		if e.Message.AuthorName == "" {
			e.Message.AuthorName = name
		}
		e.Provisional = false
		e.State = EntryConfirmed
		matched = true
		break
	}

	if !matched {
		v.entries = append(v.entries, &Entry{Message: *msg, State: EntryConfirmed})
	}
	needsAuthor := msg.AuthorName == "" && msg.ProfileID != ""
	v.mu.Unlock()
	v.notify()

	if needsAuthor {
		// The join can lag the insert; patch the author once resolved
		// without blocking the event.
		go v.resolveAuthor(msg.ID, msg.ProfileID)
	}
}

func (v *MessageView) applyUpdate(msg *models.Message) {
	v.mu.Lock()
	for _, e := range v.entries {
		if e.Message.ID == msg.ID {
			e.Message = *msg
			e.Provisional = false
			e.State = EntryConfirmed
			break
		}
	}
	v.mu.Unlock()
	v.notify()
}

func (v *MessageView) applyDelete(id string) {
	v.mu.Lock()
	for i, e := range v.entries {
		if e.Message.ID == id {
			v.entries = append(v.entries[:i], v.entries[i+1:]...)
			break
		}
	}
	v.mu.Unlock()
	v.notify()
}

func (v *MessageView) resolveAuthor(messageID, profileID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	profile, err := v.client.LookupProfile(ctx, profileID)
	if err != nil {
		return
	}
	if v.State() != ViewSubscribed {
		return
	}

	v.mu.Lock()
	for _, e := range v.entries {
		if e.Message.ID == messageID {
			e.Message.AuthorName = profile.DisplayName
			e.Message.AuthorAvatar = profile.Avatar
			break
		}
	}
	v.mu.Unlock()
	v.notify()
}

// markOrphansLocked flags pending entries that outlived the match window.
// Caller must hold v.mu.
func (v *MessageView) markOrphansLocked(now time.Time) {
	for _, e := range v.entries {
		if e.State == EntryPending && now.Sub(e.postedAt) > v.matchWindow {
			e.State = EntryOrphaned
		}
	}
}

func (v *MessageView) notify() {
	if v.OnChange != nil {
		v.OnChange()
	}
}
