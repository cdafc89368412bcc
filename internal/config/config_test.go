package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleYAML = `
logging:
  level: debug
  console: true
host:
  notifications_file: ./notifications.yaml
channel:
  rate_per_sec: 2
  persist: true
storage:
  driver: sqlite
  path: ./state.db
  busy_timeout: 3s
face:
  width: 400
  height: 400
  timezone: UTC
  low_bit_ambient: true
  burn_in_protection: true
  ambient_after: 30s
  tick: "* * * * *"
debug:
  enabled: true
  addr: 127.0.0.1:6060
`

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func valid() *Config {
	return &Config{Face: FaceConfig{Width: 320, Height: 320}}
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	m := NewConfigManager(writeConfig(t, "notifface.yaml", sampleYAML))
	cfg, err := m.Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Face.Width != 400 || !cfg.Face.BurnInProtection || cfg.Face.Timezone != "UTC" {
		t.Fatalf("face = %+v", cfg.Face)
	}
	if cfg.Storage == nil || cfg.Storage.Driver != "sqlite" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	if cfg.Channel.RatePerSec != 2 || !cfg.Channel.Persist {
		t.Fatalf("channel = %+v", cfg.Channel)
	}
	if m.Get() != cfg {
		t.Fatal("Load did not commit")
	}
}

func TestParseStrict(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"unknown.yaml":  "face: {width: 1, height: 1, colour: red}\n",
		"unknown.json":  `{"face": {"width": 1, "height": 1}, "extra": true}`,
		"trailing.json": `{"face": {"width": 1, "height": 1}} {}`,
		"list.yaml":     "- a\n- b\n",
	}
	for name, body := range cases {
		m := NewConfigManager(writeConfig(t, name, body))
		if _, err := m.Parse(); err == nil {
			t.Fatalf("%s: expected parse error", name)
		}
	}

	m := NewConfigManager(writeConfig(t, "empty.yaml", ""))
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("empty yaml: %v", err)
	}
	if err := Validate(cfg); err == nil {
		t.Fatal("empty config should fail validation (no face size)")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	if err := Validate(valid()); err != nil {
		t.Fatalf("Validate(minimal) = %v", err)
	}

	cases := []struct {
		name string
		edit func(*Config)
		want string
	}{
		{"size", func(c *Config) { c.Face.Height = 0 }, "face: width and height"},
		{"timezone", func(c *Config) { c.Face.Timezone = "Mars/Base" }, "face.timezone"},
		{"tick", func(c *Config) { c.Face.Tick = "sometimes" }, "face.tick"},
		{"ambient_after", func(c *Config) { c.Face.AmbientAfter = "-1s" }, "face.ambient_after"},
		{"level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"driver", func(c *Config) { c.Storage = &StorageConfig{Driver: "postgres", Path: "x"} }, "storage.driver"},
		{"storage path", func(c *Config) { c.Storage = &StorageConfig{Driver: "file"} }, "storage.path"},
		{"persist", func(c *Config) { c.Channel.Persist = true }, "channel.persist"},
		{"rate", func(c *Config) { c.Channel.RatePerSec = -1 }, "channel.rate_per_sec"},
		{"debug addr", func(c *Config) { c.Debug = DebugConfig{Enabled: true, Addr: "nope"} }, "debug.addr"},
		{"pull timeout", func(c *Config) { c.Channel.PullTimeout = "soon" }, "channel.pull_timeout"},
	}
	for _, tt := range cases {
		cfg := valid()
		tt.edit(cfg)
		err := Validate(cfg)
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Fatalf("%s: Validate() = %v, want error mentioning %q", tt.name, err, tt.want)
		}
	}
}

func TestDuration(t *testing.T) {
	t.Parallel()
	cases := []struct {
		raw  string
		def  time.Duration
		want time.Duration
		err  bool
	}{
		{"", 5 * time.Second, 5 * time.Second, false},
		{"0s", time.Second, time.Second, false},
		{"250ms", time.Second, 250 * time.Millisecond, false},
		{" 2m ", 0, 2 * time.Minute, false},
		{"-1s", 0, 0, true},
		{"fast", 0, 0, true},
	}
	for _, tt := range cases {
		got, err := Duration("k", tt.raw, tt.def)
		if (err != nil) != tt.err || got != tt.want {
			t.Fatalf("Duration(%q) = %v, %v; want %v, err=%v", tt.raw, got, err, tt.want, tt.err)
		}
	}
}

func TestSummarizeChange(t *testing.T) {
	t.Parallel()
	a := valid()
	b := valid()
	if sections, _ := SummarizeChange(a, b); len(sections) != 0 {
		t.Fatalf("sections = %v, want none", sections)
	}

	b.Face.Timezone = "Asia/Tokyo"
	b.Logging.Level = "debug"
	b.Storage = &StorageConfig{Driver: "file", Path: "x"}
	sections, attrs := SummarizeChange(a, b)
	want := []string{"face", "logging", "storage"}
	if strings.Join(sections, ",") != strings.Join(want, ",") {
		t.Fatalf("sections = %v, want %v", sections, want)
	}
	if len(attrs) == 0 {
		t.Fatal("expected attrs for changed sections")
	}

	if sections, _ := SummarizeChange(nil, a); !contains(sections, "face") {
		t.Fatalf("nil old config: sections = %v", sections)
	}
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}

func TestWatchPublishesValidChanges(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "c.json", `{"face": {"width": 100, "height": 100}}`)
	m := NewConfigManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatal(err)
	}
	m.SetValidator(func(_ context.Context, cfg *Config) error { return Validate(cfg) })
	sub := m.Subscribe(4)
	defer m.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()
	time.Sleep(100 * time.Millisecond)

	// Invalid: rejected, nothing published.
	if err := os.WriteFile(path, []byte(`{"face": {"width": 0, "height": 100}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(600 * time.Millisecond)
	select {
	case cfg := <-sub:
		t.Fatalf("invalid config published: %+v", cfg.Face)
	default:
	}

	if err := os.WriteFile(path, []byte(`{"face": {"width": 200, "height": 100}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case cfg := <-sub:
		if cfg.Face.Width != 200 {
			t.Fatalf("published width = %d, want 200", cfg.Face.Width)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("valid change not published")
	}
	if m.Get().Face.Width != 200 {
		t.Fatal("valid change not committed")
	}
}
