// Package iconset turns a host notification snapshot into the deduplicated
// icon set (and its burn-in-safe twin) that is sent to the companion.
package iconset

import (
	"errors"
	"strings"

	"notifface/internal/host"
	"notifface/internal/icon"
	logx "notifface/pkg/logx"
)

const (
	DefaultSystemPackage     = "android"
	DefaultForegroundChannel = "FOREGROUND_SERVICE"
)

// Config holds the reserved identifiers of the persistent system
// notification that is always filtered out.
type Config struct {
	SystemPackage     string
	ForegroundChannel string
}

// Stats describes the last Build call.
type Stats struct {
	Seen       int
	Filtered   int
	Failed     int
	Duplicates int
	Kept       int
}

type Builder struct {
	cfg       Config
	log       logx.Logger
	rasterize func(icon.Handle) (*icon.Bitmap, error)

	last Stats
}

func New(cfg Config, log logx.Logger) *Builder {
	if strings.TrimSpace(cfg.SystemPackage) == "" {
		cfg.SystemPackage = DefaultSystemPackage
	}
	if strings.TrimSpace(cfg.ForegroundChannel) == "" {
		cfg.ForegroundChannel = DefaultForegroundChannel
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Builder{cfg: cfg, log: log, rasterize: icon.Rasterize}
}

// LastStats returns the counters of the most recent Build.
func (b *Builder) LastStats() Stats { return b.last }

// Include reports whether a notification with the given importance belongs
// in the icon row.
func (b *Builder) Include(r host.Record, imp host.Importance) bool {
	if imp <= host.ImportanceMin {
		return false
	}
	if r.Package == b.cfg.SystemPackage && r.Channel == b.cfg.ForegroundChannel {
		return false
	}
	return true
}

// Build scans records in order and returns the distinct icons in first-seen
// order, each paired with its burn-in-safe variant. Records whose icon cannot
// be rasterized are skipped.
func (b *Builder) Build(records []host.Record, ranking host.Ranking) icon.Pair {
	var st Stats
	var pair icon.Pair

	for _, r := range records {
		st.Seen++
		// No ranking entry means the host has not ranked it yet; treat as none.
		imp := host.ImportanceNone
		if ranking != nil {
			if v, ok := ranking.Importance(r.Key); ok {
				imp = v
			}
		}
		if !b.Include(r, imp) {
			st.Filtered++
			continue
		}

		bm, err := b.rasterize(r.Icon)
		if err != nil {
			st.Failed++
			if errors.Is(err, icon.ErrAssetUnavailable) {
				b.log.Debug("icon skipped", logx.String("key", r.Key), logx.String("package", r.Package), logx.Err(err))
			} else {
				b.log.Warn("icon rasterize failed", logx.String("key", r.Key), logx.Err(err))
			}
			continue
		}
		if contains(pair.Icons, bm) {
			st.Duplicates++
			continue
		}
		pair.Icons = append(pair.Icons, bm)
		pair.Safe = append(pair.Safe, icon.BurnInSafe(bm))
	}

	st.Kept = len(pair.Icons)
	b.last = st
	return pair
}

func contains(set []*icon.Bitmap, bm *icon.Bitmap) bool {
	for _, have := range set {
		if have.Equal(bm) {
			return true
		}
	}
	return false
}
