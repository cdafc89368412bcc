package clock

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "notifface/pkg/logx"
)

// DefaultTickSpec fires on every minute boundary.
const DefaultTickSpec = "* * * * *"

var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidSpec reports whether spec parses as a tick schedule.
func ValidSpec(spec string) error {
	if _, err := parser.Parse(normalizeSpec(spec)); err != nil {
		return fmt.Errorf("clock: tick %q: %w", spec, err)
	}
	return nil
}

func normalizeSpec(spec string) string {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return DefaultTickSpec
	}
	return spec
}

// Ticker calls fn on a cron schedule evaluated in a time zone. Changing the
// spec or the zone rebuilds the cron instance.
type Ticker struct {
	log logx.Logger
	fn  func()

	mu      sync.Mutex
	spec    string
	loc     *time.Location
	c       *cron.Cron
	running bool
}

func NewTicker(spec string, loc *time.Location, fn func(), log logx.Logger) (*Ticker, error) {
	if err := ValidSpec(spec); err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.Local
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Ticker{log: log, fn: fn, spec: normalizeSpec(spec), loc: loc}, nil
}

func (t *Ticker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return
	}
	t.running = true
	t.startLocked()
}

// Stop waits for a tick in flight to finish.
func (t *Ticker) Stop() {
	t.mu.Lock()
	c := t.c
	t.c = nil
	t.running = false
	t.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}

// Reconfigure swaps the schedule and zone. A bad spec leaves the ticker as is.
func (t *Ticker) Reconfigure(spec string, loc *time.Location) error {
	if err := ValidSpec(spec); err != nil {
		return err
	}
	spec = normalizeSpec(spec)
	t.mu.Lock()
	defer t.mu.Unlock()
	if loc == nil {
		loc = t.loc
	}
	if spec == t.spec && loc.String() == t.loc.String() {
		return nil
	}
	t.spec, t.loc = spec, loc
	if !t.running {
		return nil
	}
	if t.c != nil {
		<-t.c.Stop().Done()
	}
	t.startLocked()
	t.log.Info("tick rescheduled", logx.String("spec", spec), logx.String("tz", loc.String()))
	return nil
}

func (t *Ticker) Next() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.c == nil {
		return time.Time{}
	}
	entries := t.c.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (t *Ticker) startLocked() {
	t.c = cron.New(cron.WithParser(parser), cron.WithLocation(t.loc))
	fn := t.fn
	log := t.log
	// The spec was validated; AddFunc cannot fail here.
	_, _ = t.c.AddFunc(t.spec, func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic in tick", logx.Any("panic", r))
			}
		}()
		if fn != nil {
			fn()
		}
	})
	t.c.Start()
}
