package storage

import (
	"context"
	"errors"
	"strings"

	logx "notifface/pkg/logx"
)

// Store is the persistence API used by the data channel.
type Store interface {
	PutPayload(ctx context.Context, rec PayloadRecord) error
	GetPayload(ctx context.Context, path string) (rec PayloadRecord, ok bool, err error)
	ListPaths(ctx context.Context) ([]string, error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

// ValidDriver reports whether Open understands driver.
func ValidDriver(driver string) bool {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "none", "file", "sqlite", "sqlite3":
		return true
	default:
		return false
	}
}
