package datachannel

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"notifface/internal/storage"
	"notifface/internal/wire"
	logx "notifface/pkg/logx"
)

// Memory is an in-process Channel.
//
// It does not own background goroutines beyond one delivery loop per
// subscription.
type Memory struct {
	log     logx.Logger
	store   storage.Store
	limiter *rate.Limiter
	buffer  int

	mu     sync.RWMutex
	items  map[string]storedItem
	subs   map[uint64]*subscription
	closed bool

	// persistMu orders store writes per path; persisted is the highest seq
	// handed to the store for each path.
	persistMu sync.Mutex
	persisted map[string]uint64

	seq   atomic.Uint64
	subID atomic.Uint64

	published   atomic.Uint64
	unchanged   atomic.Uint64
	notified    atomic.Uint64
	rateLimited atomic.Uint64
	dropped     atomic.Uint64
}

type storedItem struct {
	item Item
	hash uint64
}

type Option func(*Memory)

func WithLogger(log logx.Logger) Option { return func(m *Memory) { m.log = log } }

// WithStore persists every accepted publish and lets Restore reload them.
func WithStore(st storage.Store) Option { return func(m *Memory) { m.store = st } }

// WithRate bounds non-urgent change notifications. perSec <= 0 disables the limit.
func WithRate(perSec float64, burst int) Option {
	return func(m *Memory) {
		if perSec <= 0 {
			m.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		m.limiter = rate.NewLimiter(rate.Limit(perSec), burst)
	}
}

// WithBuffer sets the per-subscriber notification buffer.
func WithBuffer(n int) Option { return func(m *Memory) { m.buffer = n } }

func NewMemory(opts ...Option) *Memory {
	m := &Memory{
		buffer: 8,
		items:     map[string]storedItem{},
		subs:      map[uint64]*subscription{},
		persisted: map[string]uint64{},
	}
	for _, o := range opts {
		o(m)
	}
	if m.log.IsZero() {
		m.log = logx.Nop()
	}
	if m.buffer <= 0 {
		m.buffer = 8
	}
	return m
}

// Restore loads persisted values into memory without notifying anyone.
func (m *Memory) Restore(ctx context.Context) (int, error) {
	if m.store == nil {
		return 0, nil
	}
	paths, err := m.store.ListPaths(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, p := range paths {
		rec, ok, err := m.store.GetPayload(ctx, p)
		if err != nil {
			return n, err
		}
		if !ok {
			continue
		}
		payload := wire.Payload(rec.Data)
		m.mu.Lock()
		m.items[rec.Path] = storedItem{
			item: Item{Path: rec.Path, Payload: payload, Seq: m.seq.Add(1), Time: rec.UpdatedAt},
			hash: payload.Hash(),
		}
		m.mu.Unlock()
		n++
	}
	return n, nil
}

func (m *Memory) Publish(ctx context.Context, it Item) error {
	it.Path = NormalizePath(it.Path)
	it.Payload = it.Payload.Clone()
	if it.Payload == nil {
		it.Payload = wire.Payload{}
	}
	h := it.Payload.Hash()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if prev, ok := m.items[it.Path]; ok && prev.hash == h {
		m.mu.Unlock()
		m.unchanged.Add(1)
		return nil
	}
	it.Seq = m.seq.Add(1)
	it.Time = time.Now()
	m.items[it.Path] = storedItem{item: it, hash: h}
	subs := make([]*subscription, 0, len(m.subs))
	for _, s := range m.subs {
		if s.path == it.Path {
			subs = append(subs, s)
		}
	}
	m.mu.Unlock()
	m.published.Add(1)

	if m.store != nil {
		m.persist(ctx, it, h)
	}

	if !it.Urgent && m.limiter != nil && !m.limiter.Allow() {
		// Value is stored; subscribers pick it up on their next pull.
		m.rateLimited.Add(1)
		return nil
	}

	for _, s := range subs {
		if s.offer(it) {
			m.notified.Add(1)
		} else {
			m.dropped.Add(1)
			m.log.Debug("change notification dropped (subscriber slow)", logx.String("path", it.Path), logx.Uint64("seq", it.Seq))
		}
	}
	return nil
}

// persist writes it unless a newer seq for the same path was already
// written, so concurrent publishers cannot leave an older payload on disk.
func (m *Memory) persist(ctx context.Context, it Item, h uint64) {
	m.persistMu.Lock()
	defer m.persistMu.Unlock()
	if it.Seq <= m.persisted[it.Path] {
		m.log.Debug("persist skipped; newer payload already written", logx.String("path", it.Path), logx.Uint64("seq", it.Seq))
		return
	}
	m.persisted[it.Path] = it.Seq
	rec := storage.PayloadRecord{Path: it.Path, Data: it.Payload, Hash: h, UpdatedAt: it.Time}
	if err := m.store.PutPayload(ctx, rec); err != nil {
		m.log.Warn("payload persist failed", logx.String("path", it.Path), logx.Err(err))
	}
}

func (m *Memory) Subscribe(path string, fn func(Item)) func() {
	if fn == nil {
		return func() {}
	}
	s := &subscription{
		path: NormalizePath(path),
		ch:   make(chan Item, m.buffer),
	}
	id := m.subID.Add(1)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return func() {}
	}
	m.subs[id] = s
	m.mu.Unlock()

	go s.loop(fn)

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
			s.close()
		})
	}
}

func (m *Memory) PullCurrent(ctx context.Context, path string) (Item, bool, error) {
	if err := ctx.Err(); err != nil {
		return Item{}, false, err
	}
	path = NormalizePath(path)
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return Item{}, false, ErrClosed
	}
	st, ok := m.items[path]
	if !ok {
		return Item{}, false, nil
	}
	it := st.item
	it.Payload = it.Payload.Clone()
	return it, true, nil
}

func (m *Memory) Stats() Stats {
	m.mu.RLock()
	n := len(m.subs)
	m.mu.RUnlock()
	return Stats{
		Published:   m.published.Load(),
		Unchanged:   m.unchanged.Load(),
		Notified:    m.notified.Load(),
		RateLimited: m.rateLimited.Load(),
		Dropped:     m.dropped.Load(),
		Subscribers: n,
	}
}

// Close drops every subscription. Later publishes fail with ErrClosed.
func (m *Memory) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	subs := m.subs
	m.subs = map[uint64]*subscription{}
	m.mu.Unlock()

	for _, s := range subs {
		s.close()
	}
	return nil
}

// NormalizePath is the canonical form of a channel path: trimmed, rooted,
// and wire.Path when empty. Items always carry the normalized path.
func NormalizePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return wire.Path
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

type subscription struct {
	path string
	ch   chan Item

	mu     sync.Mutex
	closed bool
}

// offer never blocks. It reports false when the buffer is full or the
// subscription is gone.
func (s *subscription) offer(it Item) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- it:
		return true
	default:
		return false
	}
}

func (s *subscription) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.ch)
	s.mu.Unlock()
}

func (s *subscription) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// loop delivers in order. Items still buffered when the subscription closes
// are discarded, so fn is not called after unsubscribe returns except for a
// call already in flight.
func (s *subscription) loop(fn func(Item)) {
	for it := range s.ch {
		if s.isClosed() {
			continue
		}
		fn(it)
	}
}
