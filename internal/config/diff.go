package config

import (
	"hash/fnv"
	"reflect"
	"sort"
	"strings"

	logx "notifface/pkg/logx"
)

// SummarizeChange returns the changed top-level sections and safe
// structured attrs for logging them.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Host, newCfg.Host) {
		changed = append(changed, "host")
		attrs = append(attrs,
			logx.Bool("host.enabled", strings.TrimSpace(newCfg.Host.NotificationsFile) != ""),
			logx.String("host.notifications_file", strings.TrimSpace(newCfg.Host.NotificationsFile)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Channel, newCfg.Channel) {
		changed = append(changed, "channel")
		attrs = append(attrs,
			logx.String("channel.path", strings.TrimSpace(newCfg.Channel.Path)),
			logx.Float64("channel.rate_per_sec", newCfg.Channel.RatePerSec),
			logx.Bool("channel.persist", newCfg.Channel.Persist),
		)
	}

	// Storage: nil means disabled.
	var oS, nS StorageConfig
	if oldCfg.Storage != nil {
		oS = *oldCfg.Storage
	}
	if newCfg.Storage != nil {
		nS = *newCfg.Storage
	}
	if strings.TrimSpace(oS.Driver) != strings.TrimSpace(nS.Driver) ||
		strings.TrimSpace(oS.Path) != strings.TrimSpace(nS.Path) ||
		strings.TrimSpace(oS.BusyTimeout) != strings.TrimSpace(nS.BusyTimeout) {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(nS.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(nS.Path) != ""),
		)
	}

	if !reflect.DeepEqual(oldCfg.Face, newCfg.Face) {
		changed = append(changed, "face")
		attrs = append(attrs,
			logx.Int("face.width", newCfg.Face.Width),
			logx.Int("face.height", newCfg.Face.Height),
			logx.String("face.timezone", strings.TrimSpace(newCfg.Face.Timezone)),
			logx.Bool("face.low_bit_ambient", newCfg.Face.LowBitAmbient),
			logx.Bool("face.burn_in_protection", newCfg.Face.BurnInProtection),
			logx.String("face.ambient_after", strings.TrimSpace(newCfg.Face.AmbientAfter)),
			logx.String("face.tick", strings.TrimSpace(newCfg.Face.Tick)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Debug, newCfg.Debug) {
		changed = append(changed, "debug")
		attrs = append(attrs,
			logx.Bool("debug.enabled", newCfg.Debug.Enabled),
			logx.String("debug.addr", strings.TrimSpace(newCfg.Debug.Addr)),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

// hashBytes returns a stable 64-bit hash of bytes. Empty input returns 0.
func hashBytes(b []byte) uint64 {
	if len(b) == 0 {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
