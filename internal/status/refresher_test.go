package status

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/hookrelay/internal/dispatch"
)

// fakeChat posts and deletes synchronously and tracks which messages are
// live right now.
type fakeChat struct {
	mu        sync.Mutex
	next      int
	live      map[string]bool
	maxLive   int
	deleted   []dispatch.MessageRef
	enqueued  int
	failSend  error
	failDel   error
	purged    int
	purgeCall int
}

func newFakeChat() *fakeChat { return &fakeChat{live: make(map[string]bool)} }

func (f *fakeChat) EnqueueAwait(m dispatch.Message) (<-chan dispatch.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m.Priority != dispatch.PriorityStatus {
		return nil, fmt.Errorf("priority = %v, want status", m.Priority)
	}
	f.enqueued++
	ch := make(chan dispatch.Result, 1)
	if f.failSend != nil {
		ch <- dispatch.Result{Attempts: 3, Err: f.failSend}
		return ch, nil
	}
	f.next++
	ref := dispatch.MessageRef{ChannelID: m.Channel, MessageID: fmt.Sprint(f.next)}
	f.live[ref.MessageID] = true
	if len(f.live) > f.maxLive {
		f.maxLive = len(f.live)
	}
	ch <- dispatch.Result{Ref: ref, Attempts: 1}
	return ch, nil
}

func (f *fakeChat) Delete(_ context.Context, ref dispatch.MessageRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, ref)
	if f.failDel != nil {
		return f.failDel
	}
	delete(f.live, ref.MessageID)
	return nil
}

func (f *fakeChat) PurgeOwnMessages(context.Context, string, int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purgeCall++
	return f.purged, nil
}

func newTestRefresher(chat *fakeChat, composer Composer) *Refresher {
	if composer == nil {
		composer = ComposerFunc(func(context.Context) (string, error) { return "all good", nil })
	}
	return NewRefresher(Options{
		Channel:    "status",
		Composer:   composer,
		Queue:      chat,
		Deleter:    chat,
		Purger:     chat,
		PurgeLimit: 50,
	})
}

func refresh(t *testing.T, r *Refresher) {
	t.Helper()
	if !r.Tick(context.Background()) {
		t.Fatal("tick skipped while idle")
	}
	r.Wait()
}

func TestRefresher_AtMostOneLive(t *testing.T) {
	chat := newFakeChat()
	r := newTestRefresher(chat, nil)

	for i := 1; i <= 5; i++ {
		refresh(t, r)
		if got := r.LastRef().MessageID; got != fmt.Sprint(i) {
			t.Fatalf("cycle %d: last ref = %q", i, got)
		}
		if len(chat.live) != 1 {
			t.Fatalf("cycle %d: %d live messages", i, len(chat.live))
		}
	}
	if chat.maxLive != 1 {
		t.Errorf("max live = %d, want 1", chat.maxLive)
	}
	if len(chat.deleted) != 4 {
		t.Errorf("deletes = %d, want 4", len(chat.deleted))
	}
	if r.State() != Idle {
		t.Errorf("state = %v, want idle", r.State())
	}
}

func TestRefresher_SkipOnOverlap(t *testing.T) {
	chat := newFakeChat()
	release := make(chan struct{})
	started := make(chan struct{}, 10)
	r := newTestRefresher(chat, ComposerFunc(func(context.Context) (string, error) {
		started <- struct{}{}
		<-release
		return "slow", nil
	}))

	if !r.Tick(context.Background()) {
		t.Fatal("first tick skipped")
	}
	<-started
	if r.State() != Refreshing {
		t.Fatalf("state = %v, want refreshing", r.State())
	}
	// A tick halfway through the overrunning cycle is a no-op.
	if r.Tick(context.Background()) {
		t.Fatal("overlapping tick started a cycle")
	}
	close(release)
	r.Wait()

	if len(started) != 0 {
		t.Errorf("%d extra cycles started", len(started))
	}
	if chat.enqueued != 1 {
		t.Errorf("enqueued = %d, want 1", chat.enqueued)
	}
	if r.State() != Idle {
		t.Errorf("state = %v, want idle", r.State())
	}
}

func TestRefresher_FailedDeliveryClearsRef(t *testing.T) {
	chat := newFakeChat()
	r := newTestRefresher(chat, nil)
	refresh(t, r)

	chat.failSend = errors.New("discord down")
	refresh(t, r)
	if !r.LastRef().IsZero() {
		t.Fatalf("last ref = %+v, want zero after failed delivery", r.LastRef())
	}
	if len(chat.deleted) != 1 {
		t.Fatalf("deletes = %d, want 1", len(chat.deleted))
	}

	// The next cycle has nothing to delete.
	chat.failSend = nil
	refresh(t, r)
	if len(chat.deleted) != 1 {
		t.Errorf("deletes = %d, want still 1", len(chat.deleted))
	}
	if r.LastRef().IsZero() {
		t.Error("last ref not recorded after recovery")
	}
}

func TestRefresher_DeleteFailureStillPosts(t *testing.T) {
	chat := newFakeChat()
	r := newTestRefresher(chat, nil)
	refresh(t, r)

	chat.failDel = errors.New("missing permission")
	refresh(t, r)
	if chat.enqueued != 2 {
		t.Fatalf("enqueued = %d, want 2", chat.enqueued)
	}
	if r.LastRef().MessageID != "2" {
		t.Errorf("last ref = %+v", r.LastRef())
	}
}

func TestRefresher_ComposeFailureKeepsRef(t *testing.T) {
	chat := newFakeChat()
	fail := false
	r := newTestRefresher(chat, ComposerFunc(func(context.Context) (string, error) {
		if fail {
			return "", errors.New("no /proc")
		}
		return "ok", nil
	}))
	refresh(t, r)
	fail = true
	refresh(t, r)

	if len(chat.deleted) != 0 || chat.enqueued != 1 {
		t.Errorf("deleted=%d enqueued=%d, want 0 and 1", len(chat.deleted), chat.enqueued)
	}
	if r.LastRef().MessageID != "1" {
		t.Errorf("last ref = %+v", r.LastRef())
	}
}

func TestRefresher_RunRefreshesImmediately(t *testing.T) {
	chat := newFakeChat()
	chat.purged = 3
	r := newTestRefresher(chat, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- r.Run(ctx, Every(time.Hour)) }()

	deadline := time.After(2 * time.Second)
	for r.LastRef().IsZero() {
		select {
		case <-deadline:
			t.Fatal("first refresh did not happen")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	if err := <-errc; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if chat.purgeCall != 1 {
		t.Errorf("purge calls = %d, want 1", chat.purgeCall)
	}
}

func TestRefresher_RunBadSchedule(t *testing.T) {
	r := newTestRefresher(newFakeChat(), nil)
	if err := r.Run(context.Background(), Every(0)); err == nil {
		t.Fatal("expected error for zero interval")
	}
}

func TestSchedules(t *testing.T) {
	ref := time.Date(2026, 3, 1, 12, 3, 0, 0, time.UTC)

	next, err := Every(10 * time.Minute).Next(ref)
	if err != nil || !next.Equal(ref.Add(10*time.Minute)) {
		t.Errorf("Every.Next = %v, %v", next, err)
	}

	c, err := Cron("*/10 * * * *")
	if err != nil {
		t.Fatalf("Cron: %v", err)
	}
	next, err = c.Next(ref)
	if err != nil {
		t.Fatalf("Cron.Next: %v", err)
	}
	if want := time.Date(2026, 3, 1, 12, 10, 0, 0, time.UTC); !next.Equal(want) {
		t.Errorf("Cron.Next = %v, want %v", next, want)
	}

	if _, err := Cron("not a cron"); err == nil {
		t.Error("expected error for invalid expression")
	}
}
