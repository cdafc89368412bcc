package datachannel

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"notifface/internal/storage"
	"notifface/internal/wire"
	logx "notifface/pkg/logx"
)

func collect(t *testing.T, m *Memory, path string) (<-chan Item, func()) {
	t.Helper()
	ch := make(chan Item, 16)
	unsub := m.Subscribe(path, func(it Item) { ch <- it })
	t.Cleanup(unsub)
	return ch, unsub
}

func expectItem(t *testing.T, ch <-chan Item) Item {
	t.Helper()
	select {
	case it := <-ch:
		return it
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change notification")
		return Item{}
	}
}

func expectNone(t *testing.T, ch <-chan Item) {
	t.Helper()
	select {
	case it := <-ch:
		t.Fatalf("unexpected notification seq=%d", it.Seq)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishNotifiesSubscribers(t *testing.T) {
	t.Parallel()
	m := NewMemory()
	defer m.Close()
	ch, _ := collect(t, m, wire.Path)

	ctx := context.Background()
	if err := m.Publish(ctx, Item{Path: wire.Path, Payload: wire.Payload{"icon0": {1}}, Urgent: true}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	it := expectItem(t, ch)
	if it.Path != wire.Path || string(it.Payload["icon0"]) != "\x01" || !it.Urgent {
		t.Fatalf("item = %+v", it)
	}
}

func TestPublishUnchangedIsNoop(t *testing.T) {
	t.Parallel()
	m := NewMemory()
	defer m.Close()
	ch, _ := collect(t, m, wire.Path)

	ctx := context.Background()
	p := wire.Payload{"icon0": {1}, "safeicon0": {2}}
	_ = m.Publish(ctx, Item{Path: wire.Path, Payload: p, Urgent: true})
	expectItem(t, ch)
	_ = m.Publish(ctx, Item{Path: wire.Path, Payload: p.Clone(), Urgent: true})
	expectNone(t, ch)

	if st := m.Stats(); st.Published != 1 || st.Unchanged != 1 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestSubscriptionsArePathScoped(t *testing.T) {
	t.Parallel()
	m := NewMemory()
	defer m.Close()
	ch, _ := collect(t, m, "/other")

	_ = m.Publish(context.Background(), Item{Path: wire.Path, Payload: wire.Payload{"icon0": {1}}, Urgent: true})
	expectNone(t, ch)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	t.Parallel()
	m := NewMemory()
	defer m.Close()
	ch, unsub := collect(t, m, wire.Path)
	unsub()
	unsub()

	_ = m.Publish(context.Background(), Item{Path: wire.Path, Payload: wire.Payload{"icon0": {1}}, Urgent: true})
	expectNone(t, ch)
	if n := m.Stats().Subscribers; n != 0 {
		t.Fatalf("subscribers = %d, want 0", n)
	}
}

func TestPullCurrentReturnsCopy(t *testing.T) {
	t.Parallel()
	m := NewMemory()
	defer m.Close()
	ctx := context.Background()

	if _, ok, err := m.PullCurrent(ctx, wire.Path); ok || err != nil {
		t.Fatalf("PullCurrent on empty = %v, %v", ok, err)
	}
	_ = m.Publish(ctx, Item{Path: wire.Path, Payload: wire.Payload{"icon0": {1}}})
	it, ok, err := m.PullCurrent(ctx, wire.Path)
	if err != nil || !ok {
		t.Fatalf("PullCurrent = %v, %v", ok, err)
	}
	it.Payload["icon0"][0] = 42
	again, _, _ := m.PullCurrent(ctx, wire.Path)
	if again.Payload["icon0"][0] != 1 {
		t.Fatal("PullCurrent should not expose internal storage")
	}
}

func TestRateLimitAppliesToNonUrgentOnly(t *testing.T) {
	t.Parallel()
	m := NewMemory(WithRate(0.001, 1))
	defer m.Close()
	ch, _ := collect(t, m, wire.Path)
	ctx := context.Background()

	_ = m.Publish(ctx, Item{Path: wire.Path, Payload: wire.Payload{"icon0": {1}}})
	expectItem(t, ch)
	_ = m.Publish(ctx, Item{Path: wire.Path, Payload: wire.Payload{"icon0": {2}}})
	expectNone(t, ch)
	if m.Stats().RateLimited != 1 {
		t.Fatalf("rate limited = %d, want 1", m.Stats().RateLimited)
	}
	// The value is still stored for pulls.
	it, _, _ := m.PullCurrent(ctx, wire.Path)
	if it.Payload["icon0"][0] != 2 {
		t.Fatal("rate-limited publish should still update the stored value")
	}

	_ = m.Publish(ctx, Item{Path: wire.Path, Payload: wire.Payload{"icon0": {3}}, Urgent: true})
	if got := expectItem(t, ch); got.Payload["icon0"][0] != 3 {
		t.Fatalf("urgent item = %v", got.Payload)
	}
}

func TestClosedChannel(t *testing.T) {
	t.Parallel()
	m := NewMemory()
	_ = m.Close()
	if err := m.Publish(context.Background(), Item{Path: wire.Path}); !errors.Is(err, ErrClosed) {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
	if _, _, err := m.PullCurrent(context.Background(), wire.Path); !errors.Is(err, ErrClosed) {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
	m.Subscribe(wire.Path, func(Item) {})()
}

func TestRestoreFromStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")
	st, err := storage.Open(storage.Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	m := NewMemory(WithStore(st))
	_ = m.Publish(ctx, Item{Path: wire.Path, Payload: wire.Payload{"icon0": {7}}, Urgent: true})
	_ = m.Close()
	_ = st.Close()

	st, err = storage.Open(storage.Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	m = NewMemory(WithStore(st))
	defer m.Close()
	n, err := m.Restore(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Restore = %d, %v", n, err)
	}
	it, ok, _ := m.PullCurrent(ctx, "foobar")
	if !ok || it.Payload["icon0"][0] != 7 {
		t.Fatalf("restored item = %+v, %v", it, ok)
	}

	// Republishing the restored value is not a change.
	_ = m.Publish(ctx, Item{Path: wire.Path, Payload: wire.Payload{"icon0": {7}}})
	if m.Stats().Unchanged != 1 {
		t.Fatalf("unchanged = %d, want 1", m.Stats().Unchanged)
	}
}

func TestPersistKeepsNewestPayload(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "state.json")}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	m := NewMemory(WithStore(st))
	defer m.Close()

	// A slow writer holding an older seq must not overwrite a newer one.
	newer := Item{Path: wire.Path, Payload: wire.Payload{"icon0": {2}}, Seq: 2, Time: time.Now()}
	older := Item{Path: wire.Path, Payload: wire.Payload{"icon0": {1}}, Seq: 1, Time: time.Now()}
	m.persist(ctx, newer, newer.Payload.Hash())
	m.persist(ctx, older, older.Payload.Hash())
	rec, ok, err := st.GetPayload(ctx, wire.Path)
	if err != nil || !ok {
		t.Fatalf("GetPayload = %v, %v", ok, err)
	}
	if got := rec.Data["icon0"][0]; got != 2 {
		t.Fatalf("persisted icon0 = %d, want 2", got)
	}

	var wg sync.WaitGroup
	for i := range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.Publish(ctx, Item{Path: wire.Path, Payload: wire.Payload{"icon0": {byte(10 + i)}}, Urgent: true})
		}()
	}
	wg.Wait()

	cur, ok, _ := m.PullCurrent(ctx, wire.Path)
	if !ok {
		t.Fatal("no current item")
	}
	rec, _, _ = st.GetPayload(ctx, wire.Path)
	if rec.Data["icon0"][0] != cur.Payload["icon0"][0] {
		t.Fatalf("persisted icon0 = %d, current = %d", rec.Data["icon0"][0], cur.Payload["icon0"][0])
	}
}
