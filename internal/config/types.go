package config

// Config is the on-disk configuration. It is read as JSON or as YAML (by
// extension) and decoded strictly: unknown keys are rejected.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Logging LoggingConfig  `json:"logging"`
	Host    HostConfig     `json:"host"`
	Channel ChannelConfig  `json:"channel"`
	Storage *StorageConfig `json:"storage,omitempty"`
	Face    FaceConfig     `json:"face"`
	Debug   DebugConfig    `json:"debug,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// HostConfig is the producer side.
//
// Example:
//
//	"host": { "notifications_file": "./notifications.yaml" }
type HostConfig struct {
	// NotificationsFile is the YAML snapshot of active notifications. Empty
	// disables the producer.
	NotificationsFile string `json:"notifications_file"`
	// Reserved identifiers of the persistent system notification.
	SystemPackage     string `json:"system_package,omitempty"`
	ForegroundChannel string `json:"foreground_channel,omitempty"`
	PublishTimeout    string `json:"publish_timeout,omitempty"`
}

// ChannelConfig controls the data channel between producer and companion.
//
// Defaults (when fields are omitted/zero):
//   - path: "/foobar"
//   - rate_per_sec: 0 (no budget for non-urgent items)
//   - burst: 1
//   - subscriber_buffer: 8
//   - pull_timeout: "5s"
type ChannelConfig struct {
	Path             string  `json:"path,omitempty"`
	RatePerSec       float64 `json:"rate_per_sec,omitempty"`
	Burst            int     `json:"burst,omitempty"`
	SubscriberBuffer int     `json:"subscriber_buffer,omitempty"`
	// Persist keeps the last payload per path in storage and restores it on start.
	Persist     bool   `json:"persist,omitempty"`
	PullTimeout string `json:"pull_timeout,omitempty"`
}

// StorageConfig controls the optional persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./notifface.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite
}

// FaceConfig is the companion display.
type FaceConfig struct {
	Width  int `json:"width"`
	Height int `json:"height"`
	// Timezone is an IANA name; empty means the process zone. Changing it at
	// runtime behaves like a device time-zone broadcast.
	Timezone         string `json:"timezone,omitempty"`
	LowBitAmbient    bool   `json:"low_bit_ambient"`
	BurnInProtection bool   `json:"burn_in_protection"`
	// AmbientAfter enters ambient mode after this long without new icons.
	// "0s" or empty keeps the face active.
	AmbientAfter string `json:"ambient_after,omitempty"`
	// Tick is a cron spec (seconds optional); default every minute.
	Tick string `json:"tick,omitempty"`
	// FramePath receives a PNG of every redraw. Empty disables it.
	FramePath string `json:"frame_path,omitempty"`
}

// DebugConfig controls the optional debug HTTP server (pprof, frame, state).
//
// Prefer binding to localhost; the server has no authentication.
type DebugConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default: "127.0.0.1:6060"

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}
