package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"notifface/internal/clock"
	"notifface/internal/storage"
	logx "notifface/pkg/logx"
)

// Validate rejects configs that would fail at apply time. It is used both on
// first load and as the hot-reload gate.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if lv := strings.TrimSpace(cfg.Logging.Level); lv != "" && !logx.ValidLevel(lv) {
		add(fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level))
	}
	if cfg.Logging.File.Enabled && strings.TrimSpace(cfg.Logging.File.Path) == "" {
		add(errors.New("logging.file.path is required when logging.file.enabled"))
	}

	_, err := Duration("host.publish_timeout", cfg.Host.PublishTimeout, 0)
	add(err)

	if p := strings.TrimSpace(cfg.Channel.Path); p != "" && strings.ContainsAny(p, " \t\n") {
		add(fmt.Errorf("channel.path: must not contain whitespace: %q", p))
	}
	if cfg.Channel.RatePerSec < 0 {
		add(errors.New("channel.rate_per_sec must be >= 0"))
	}
	if cfg.Channel.Burst < 0 {
		add(errors.New("channel.burst must be >= 0"))
	}
	if cfg.Channel.SubscriberBuffer < 0 {
		add(errors.New("channel.subscriber_buffer must be >= 0"))
	}
	_, err = Duration("channel.pull_timeout", cfg.Channel.PullTimeout, 0)
	add(err)

	if s := cfg.Storage; s != nil {
		if !storage.ValidDriver(s.Driver) {
			add(fmt.Errorf("storage.driver: unknown driver %q", s.Driver))
		}
		d := strings.ToLower(strings.TrimSpace(s.Driver))
		if d != "" && d != "none" && strings.TrimSpace(s.Path) == "" {
			add(fmt.Errorf("storage.path is required for driver %q", d))
		}
		_, err = Duration("storage.busy_timeout", s.BusyTimeout, 0)
		add(err)
	}
	if cfg.Channel.Persist && !storageEnabled(cfg.Storage) {
		add(errors.New("channel.persist requires storage"))
	}

	if cfg.Face.Width <= 0 || cfg.Face.Height <= 0 {
		add(fmt.Errorf("face: width and height must be > 0 (got %dx%d)", cfg.Face.Width, cfg.Face.Height))
	}
	if _, err := clock.LoadLocation(cfg.Face.Timezone); err != nil {
		add(fmt.Errorf("face.timezone: %w", err))
	}
	_, err = Duration("face.ambient_after", cfg.Face.AmbientAfter, 0)
	add(err)
	if err := clock.ValidSpec(cfg.Face.Tick); err != nil {
		add(fmt.Errorf("face.tick: %w", err))
	}

	if cfg.Debug.Enabled {
		if addr := strings.TrimSpace(cfg.Debug.Addr); addr != "" {
			if _, _, err := net.SplitHostPort(addr); err != nil {
				add(fmt.Errorf("debug.addr: %w", err))
			}
		}
	}
	for _, f := range []struct{ key, raw string }{
		{"debug.read_timeout", cfg.Debug.ReadTimeout},
		{"debug.write_timeout", cfg.Debug.WriteTimeout},
		{"debug.idle_timeout", cfg.Debug.IdleTimeout},
	} {
		_, err = Duration(f.key, f.raw, 0)
		add(err)
	}

	return errors.Join(errs...)
}

func storageEnabled(s *StorageConfig) bool {
	if s == nil {
		return false
	}
	d := strings.ToLower(strings.TrimSpace(s.Driver))
	return d != "" && d != "none"
}

// Duration parses an optional, non-negative duration found at key. Empty or
// zero yields def.
func Duration(key, raw string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", key)
	}
	if d == 0 {
		return def, nil
	}
	return d, nil
}
