package host

import (
	"fmt"
	"strings"

	"notifface/internal/icon"
)

// Importance mirrors the host's ordered notification priority tiers.
type Importance int

const (
	ImportanceNone Importance = iota
	ImportanceMin
	ImportanceLow
	ImportanceDefault
	ImportanceHigh
	ImportanceMax
)

func (i Importance) String() string {
	switch i {
	case ImportanceNone:
		return "none"
	case ImportanceMin:
		return "min"
	case ImportanceLow:
		return "low"
	case ImportanceDefault:
		return "default"
	case ImportanceHigh:
		return "high"
	case ImportanceMax:
		return "max"
	default:
		return fmt.Sprintf("importance(%d)", int(i))
	}
}

// ParseImportance accepts the names printed by String. Empty means default.
func ParseImportance(s string) (Importance, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return ImportanceDefault, nil
	case "none":
		return ImportanceNone, nil
	case "min":
		return ImportanceMin, nil
	case "low":
		return ImportanceLow, nil
	case "default":
		return ImportanceDefault, nil
	case "high":
		return ImportanceHigh, nil
	case "max":
		return ImportanceMax, nil
	default:
		return ImportanceNone, fmt.Errorf("unknown importance %q", s)
	}
}

// Record is a read-only snapshot of one active host notification.
type Record struct {
	Key     string
	Package string
	Channel string
	Icon    icon.Handle
}

// Ranking looks up the importance the host assigned to a notification key.
type Ranking interface {
	Importance(key string) (Importance, bool)
}

// RankingMap is a Ranking backed by a plain map.
type RankingMap map[string]Importance

func (m RankingMap) Importance(key string) (Importance, bool) {
	v, ok := m[key]
	return v, ok
}

// Snapshot is the full set of active notifications at one instant.
type Snapshot struct {
	Records []Record
	Ranking Ranking
}
