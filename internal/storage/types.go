package storage

import (
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrClosed   = errors.New("storage closed")
)

// Config configures storage.
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// PayloadRecord is the stored state of one channel path.
type PayloadRecord struct {
	Path      string            `json:"path"`
	Data      map[string][]byte `json:"data"`
	Hash      uint64            `json:"hash"`
	UpdatedAt time.Time         `json:"updated_at"`
}
