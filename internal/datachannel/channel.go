// Package datachannel is the best-effort, path-scoped key-value channel that
// carries icon payloads from the producer to the companion.
//
// Contract:
//   - Publish never blocks and never waits for delivery.
//   - A publish identical to the stored value for its path is a no-op.
//   - Slow subscribers miss change notifications; PullCurrent resyncs them.
package datachannel

import (
	"context"
	"errors"
	"time"

	"notifface/internal/wire"
)

var ErrClosed = errors.New("datachannel: closed")

// Item is one value at a path.
type Item struct {
	Path    string
	Payload wire.Payload
	// Urgent asks the channel to deliver ahead of its normal budget.
	Urgent bool

	// Set by the channel.
	Seq  uint64
	Time time.Time
}

// Channel is the producer/companion view of the sync channel.
type Channel interface {
	// Publish stores it.Payload at it.Path and notifies subscribers if the
	// value changed. Errors are informational; callers may ignore them.
	Publish(ctx context.Context, it Item) error
	// Subscribe registers fn for changes under path. The returned function
	// deregisters it and is safe to call more than once.
	Subscribe(path string, fn func(Item)) (unsubscribe func())
	// PullCurrent returns the last stored value at path, if any.
	PullCurrent(ctx context.Context, path string) (Item, bool, error)
}

// Stats are best-effort counters for observability.
type Stats struct {
	Published   uint64 `json:"published"`
	Unchanged   uint64 `json:"unchanged"`
	Notified    uint64 `json:"notified"`
	RateLimited uint64 `json:"rate_limited"`
	Dropped     uint64 `json:"dropped"`
	Subscribers int    `json:"subscribers"`
}
