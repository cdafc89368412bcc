package app

import (
	"strings"
	"time"

	"notifface/internal/companion"
	"notifface/internal/config"
	"notifface/internal/datachannel"
	"notifface/internal/face"
	"notifface/internal/iconset"
	"notifface/internal/observability/debughttp"
	"notifface/internal/producer"
	"notifface/internal/storage"
	logx "notifface/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

// mapStorageConfig reports enabled=false for a missing section or the "none"
// driver.
func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	busy, err := config.Duration("storage.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, false, err
	}
	return storage.Config{
		Driver:      driver,
		Path:        strings.TrimSpace(sc.Path),
		BusyTimeout: busy,
	}, true, nil
}

func channelPath(cfg *config.Config) string {
	return datachannel.NormalizePath(cfg.Channel.Path)
}

func mapChannelOptions(cfg *config.Config, store storage.Store, log logx.Logger) []datachannel.Option {
	opts := []datachannel.Option{
		datachannel.WithLogger(log),
		datachannel.WithRate(cfg.Channel.RatePerSec, max(cfg.Channel.Burst, 1)),
	}
	if cfg.Channel.SubscriberBuffer > 0 {
		opts = append(opts, datachannel.WithBuffer(cfg.Channel.SubscriberBuffer))
	}
	if cfg.Channel.Persist && store != nil {
		opts = append(opts, datachannel.WithStore(store))
	}
	return opts
}

func mapProducerConfig(cfg *config.Config) (producer.Config, error) {
	timeout, err := config.Duration("host.publish_timeout", cfg.Host.PublishTimeout, 5*time.Second)
	if err != nil {
		return producer.Config{}, err
	}
	return producer.Config{
		Path: channelPath(cfg),
		Builder: iconset.Config{
			SystemPackage:     strings.TrimSpace(cfg.Host.SystemPackage),
			ForegroundChannel: strings.TrimSpace(cfg.Host.ForegroundChannel),
		},
		Timeout: timeout,
	}, nil
}

func mapCompanionConfig(cfg *config.Config) (companion.Config, error) {
	after, err := config.Duration("face.ambient_after", cfg.Face.AmbientAfter, 0)
	if err != nil {
		return companion.Config{}, err
	}
	pull, err := config.Duration("channel.pull_timeout", cfg.Channel.PullTimeout, 5*time.Second)
	if err != nil {
		return companion.Config{}, err
	}
	return companion.Config{
		Width:  cfg.Face.Width,
		Height: cfg.Face.Height,
		Caps: face.Capabilities{
			LowBitAmbient:    cfg.Face.LowBitAmbient,
			BurnInProtection: cfg.Face.BurnInProtection,
		},
		Timezone:     strings.TrimSpace(cfg.Face.Timezone),
		AmbientAfter: after,
		Tick:         strings.TrimSpace(cfg.Face.Tick),
		FramePath:    strings.TrimSpace(cfg.Face.FramePath),
		Path:         channelPath(cfg),
		PullTimeout:  pull,
	}, nil
}

func mapDebugConfig(cfg *config.Config) (debughttp.Config, error) {
	dc := cfg.Debug
	out := debughttp.Config{Enabled: dc.Enabled, Addr: strings.TrimSpace(dc.Addr)}
	if out.Addr == "" {
		out.Addr = debughttp.DefaultAddr
	}
	var err error
	if out.ReadTimeout, err = config.Duration("debug.read_timeout", dc.ReadTimeout, 5*time.Second); err != nil {
		return debughttp.Config{}, err
	}
	if out.WriteTimeout, err = config.Duration("debug.write_timeout", dc.WriteTimeout, 30*time.Second); err != nil {
		return debughttp.Config{}, err
	}
	if out.IdleTimeout, err = config.Duration("debug.idle_timeout", dc.IdleTimeout, 60*time.Second); err != nil {
		return debughttp.Config{}, err
	}
	return out, nil
}
