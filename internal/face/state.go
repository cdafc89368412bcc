package face

import (
	"time"

	"notifface/internal/icon"
)

// DisplayState is the icon pair currently shown. Values are never mutated
// after being stored; a new sync result replaces the whole value.
type DisplayState struct {
	Pair icon.Pair
	// Seq is the channel sequence number the pair was decoded from (0 if none).
	Seq       uint64
	UpdatedAt time.Time
}

var emptyState = &DisplayState{}

// Capabilities are the display's hardware flags.
type Capabilities struct {
	LowBitAmbient    bool `json:"low_bit_ambient"`
	BurnInProtection bool `json:"burn_in_protection"`
}

// Snapshot is a read-only summary for debugging endpoints.
type Snapshot struct {
	Visible      bool         `json:"visible"`
	Ambient      bool         `json:"ambient"`
	Capabilities Capabilities `json:"capabilities"`
	Location     string       `json:"location"`
	Icons        int          `json:"icons"`
	Seq          uint64       `json:"seq"`
	UpdatedAt    time.Time    `json:"updated_at"`
	Subscribed   bool         `json:"subscribed"`
	DecodeErrors uint64       `json:"decode_errors"`
}
