// Package clock provides the companion's time sources: the minute tick and
// the device time zone.
package clock

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// LoadLocation resolves an IANA name. Empty and "Local" mean the process zone.
func LoadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("clock: timezone %q: %w", name, err)
	}
	return loc, nil
}

// ZoneSource holds the device time zone and broadcasts changes to watchers.
type ZoneSource struct {
	mu       sync.Mutex
	loc      *time.Location
	nextID   int
	watchers map[int]func()
}

func NewZoneSource(loc *time.Location) *ZoneSource {
	if loc == nil {
		loc = time.Local
	}
	return &ZoneSource{loc: loc, watchers: map[int]func(){}}
}

func (z *ZoneSource) Location() *time.Location {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.loc
}

// Watch registers fn for zone changes. The returned stop func is idempotent.
func (z *ZoneSource) Watch(fn func()) (stop func()) {
	if fn == nil {
		return func() {}
	}
	z.mu.Lock()
	id := z.nextID
	z.nextID++
	z.watchers[id] = fn
	z.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			z.mu.Lock()
			delete(z.watchers, id)
			z.mu.Unlock()
		})
	}
}

// Watchers returns the number of registered watchers.
func (z *ZoneSource) Watchers() int {
	z.mu.Lock()
	defer z.mu.Unlock()
	return len(z.watchers)
}

// Set switches the zone. Watchers run synchronously, outside the lock, only
// when the zone name actually changed. It reports whether it did.
func (z *ZoneSource) Set(loc *time.Location) bool {
	if loc == nil {
		return false
	}
	z.mu.Lock()
	if z.loc.String() == loc.String() {
		z.mu.Unlock()
		return false
	}
	z.loc = loc
	fns := make([]func(), 0, len(z.watchers))
	for _, fn := range z.watchers {
		fns = append(fns, fn)
	}
	z.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
	return true
}

// SetName is Set by IANA name.
func (z *ZoneSource) SetName(name string) (bool, error) {
	loc, err := LoadLocation(name)
	if err != nil {
		return false, err
	}
	return z.Set(loc), nil
}
