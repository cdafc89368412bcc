// Package face is the companion's render state machine: it holds the icon
// pair received over the data channel, tracks active/ambient mode and the
// display's capability flags, and turns that state into a per-frame Plan.
//
// All inputs arrive through Dispatch. Plan may be called from any goroutine.
package face

import (
	"context"
	"errors"
	"image"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"notifface/internal/datachannel"
	"notifface/internal/wire"
	logx "notifface/pkg/logx"
)

// Invalidator asks the surface for a redraw.
type Invalidator interface {
	Invalidate()
}

// InvalidatorFunc adapts a function to Invalidator.
type InvalidatorFunc func()

func (f InvalidatorFunc) Invalidate() { f() }

// Zones provides the current time zone and a "zone changed" broadcast.
type Zones interface {
	Location() *time.Location
	// Watch registers onChange; the returned stop func deregisters it.
	Watch(onChange func()) (stop func())
}

type localZones struct{}

func (localZones) Location() *time.Location   { return time.Local }
func (localZones) Watch(func()) (stop func()) { return func() {} }

type Option func(*Engine)

func WithLogger(log logx.Logger) Option { return func(e *Engine) { e.log = log } }

// WithChannel sets the data channel and the path to follow. The path is
// normalized the way the channel stamps items, so "foobar" follows "/foobar".
func WithChannel(ch datachannel.Channel, path string) Option {
	return func(e *Engine) {
		e.ch = ch
		e.path = datachannel.NormalizePath(path)
	}
}

func WithInvalidator(inv Invalidator) Option { return func(e *Engine) { e.inv = inv } }

func WithZones(z Zones) Option { return func(e *Engine) { e.zones = z } }

// WithRand replaces the jitter source.
func WithRand(r Rand) Option { return func(e *Engine) { e.rnd = r } }

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// WithGo sets how background work (the resync pull) is started.
func WithGo(fn func(name string, run func(ctx context.Context))) Option {
	return func(e *Engine) { e.goFn = fn }
}

// WithPullTimeout bounds the resync pull done on becoming visible.
func WithPullTimeout(d time.Duration) Option { return func(e *Engine) { e.pullTimeout = d } }

type Engine struct {
	log         logx.Logger
	ch          datachannel.Channel
	path        string
	inv         Invalidator
	zones       Zones
	now         func() time.Time
	goFn        func(name string, run func(ctx context.Context))
	pullTimeout time.Duration

	state        atomic.Pointer[DisplayState]
	decodeErrors atomic.Uint64
	destroyed    atomic.Bool

	// guarded by mu
	mu          sync.Mutex
	rnd         Rand
	visible     bool
	ambient     bool
	caps        Capabilities
	loc         *time.Location
	unsubscribe func()
	stopZones   func()
}

func New(opts ...Option) *Engine {
	e := &Engine{
		path:        wire.Path,
		zones:       localZones{},
		now:         time.Now,
		pullTimeout: 5 * time.Second,
	}
	for _, o := range opts {
		o(e)
	}
	if e.log.IsZero() {
		e.log = logx.Nop()
	}
	if e.rnd == nil {
		seed := uint64(time.Now().UnixNano())
		e.rnd = rand.New(rand.NewPCG(seed, seed>>17|1))
	}
	if e.goFn == nil {
		e.goFn = func(_ string, run func(ctx context.Context)) { go run(context.Background()) }
	}
	e.loc = e.zones.Location()
	if e.loc == nil {
		e.loc = time.Local
	}
	e.state.Store(emptyState)
	return e
}

// State returns the current icon pair. The returned value must not be modified.
func (e *Engine) State() *DisplayState { return e.state.Load() }

// Dispatch applies ev and requests a redraw when the frame changed.
// It reports whether a redraw was requested.
func (e *Engine) Dispatch(ev Event) bool {
	redraw := e.apply(ev)
	if redraw && e.inv != nil {
		e.inv.Invalidate()
	}
	return redraw
}

func (e *Engine) apply(ev Event) bool {
	switch ev := ev.(type) {
	case VisibilityChanged:
		return e.onVisibility(ev.Visible)
	case TimeTick:
		return true
	case PropertiesChanged:
		e.mu.Lock()
		e.caps = Capabilities{LowBitAmbient: ev.LowBitAmbient, BurnInProtection: ev.BurnInProtection}
		e.mu.Unlock()
		e.log.Debug("display properties", logx.Bool("low_bit_ambient", ev.LowBitAmbient), logx.Bool("burn_in_protection", ev.BurnInProtection))
		return false
	case AmbientModeChanged:
		e.mu.Lock()
		changed := e.ambient != ev.Ambient
		e.ambient = ev.Ambient
		e.mu.Unlock()
		return changed
	case TimeZoneChanged:
		loc := ev.Location
		if loc == nil {
			loc = e.zones.Location()
		}
		if loc == nil {
			loc = time.Local
		}
		e.mu.Lock()
		e.loc = loc
		e.mu.Unlock()
		return true
	case DataChanged:
		return e.onData(ev.Item)
	default:
		return false
	}
}

func (e *Engine) onVisibility(visible bool) bool {
	if visible && e.destroyed.Load() {
		return false
	}
	e.mu.Lock()
	e.visible = visible
	if !visible {
		unsub := e.unsubscribe
		stop := e.stopZones
		e.unsubscribe = nil
		e.stopZones = nil
		e.mu.Unlock()
		if unsub != nil {
			unsub()
		}
		if stop != nil {
			stop()
		}
		return false
	}

	subscribe := e.ch != nil && e.unsubscribe == nil
	if subscribe {
		e.unsubscribe = e.ch.Subscribe(e.path, func(it datachannel.Item) {
			e.Dispatch(DataChanged{Item: it})
		})
	}
	if e.stopZones == nil {
		e.stopZones = e.zones.Watch(func() { e.Dispatch(TimeZoneChanged{}) })
	}
	// The zone may have changed while hidden.
	if loc := e.zones.Location(); loc != nil {
		e.loc = loc
	}
	e.mu.Unlock()

	if e.ch != nil {
		e.goFn("face.pull", e.pull)
	}
	return true
}

// pull fetches the current value once to cover changes missed while hidden.
func (e *Engine) pull(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, e.pullTimeout)
	defer cancel()
	it, ok, err := e.ch.PullCurrent(ctx, e.path)
	if err != nil {
		if !errors.Is(err, datachannel.ErrClosed) {
			e.log.Debug("resync pull failed", logx.String("path", e.path), logx.Err(err))
		}
		return
	}
	if !ok {
		return
	}
	e.Dispatch(DataChanged{Item: it})
}

func (e *Engine) onData(it datachannel.Item) bool {
	if it.Path != e.path || e.destroyed.Load() {
		return false
	}
	if stale(e.state.Load(), it.Seq) {
		return false
	}
	pair, err := wire.Unpack(it.Payload)
	if err != nil {
		e.decodeErrors.Add(1)
		e.log.Warn("payload rejected; keeping previous icons", logx.Uint64("seq", it.Seq), logx.Err(err))
		return true
	}
	next := &DisplayState{Pair: pair, Seq: it.Seq, UpdatedAt: e.now()}
	for {
		cur := e.state.Load()
		if stale(cur, it.Seq) {
			return false
		}
		if e.state.CompareAndSwap(cur, next) {
			break
		}
	}
	e.log.Debug("icons updated", logx.Int("icons", pair.Len()), logx.Uint64("seq", it.Seq))
	return true
}

// stale reports whether seq is not newer than what cur was decoded from.
// A pull and a change notification for the same publish carry the same seq.
func stale(cur *DisplayState, seq uint64) bool {
	return seq != 0 && seq <= cur.Seq
}

// Plan computes the frame for bounds at the current time. In ambient mode
// every call samples a fresh jitter offset.
func (e *Engine) Plan(bounds image.Rectangle) Plan {
	return e.PlanAt(bounds, e.now())
}

func (e *Engine) PlanAt(bounds image.Rectangle, now time.Time) Plan {
	e.mu.Lock()
	defer e.mu.Unlock()
	return buildPlan(planInput{
		bounds:  bounds,
		now:     now.In(e.loc),
		state:   e.state.Load(),
		ambient: e.ambient,
		caps:    e.caps,
		rnd:     e.rnd,
	})
}

func (e *Engine) Snapshot() Snapshot {
	st := e.state.Load()
	e.mu.Lock()
	defer e.mu.Unlock()
	return Snapshot{
		Visible:      e.visible,
		Ambient:      e.ambient,
		Capabilities: e.caps,
		Location:     e.loc.String(),
		Icons:        st.Pair.Len(),
		Seq:          st.Seq,
		UpdatedAt:    st.UpdatedAt,
		Subscribed:   e.unsubscribe != nil,
		DecodeErrors: e.decodeErrors.Load(),
	}
}

// Destroy tears the engine down: it drops the subscription and zone watch and
// clears the icons. Later events are ignored except for planning.
func (e *Engine) Destroy() {
	e.destroyed.Store(true)
	e.onVisibility(false)
	e.state.Store(emptyState)
}
