package host

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"notifface/internal/icon"
	logx "notifface/pkg/logx"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestParseImportance(t *testing.T) {
	t.Parallel()
	for imp := ImportanceNone; imp <= ImportanceMax; imp++ {
		got, err := ParseImportance(imp.String())
		if err != nil || got != imp {
			t.Fatalf("ParseImportance(%q) = %v, %v", imp.String(), got, err)
		}
	}
	if got, _ := ParseImportance(""); got != ImportanceDefault {
		t.Fatalf("empty importance = %v, want default", got)
	}
	if _, err := ParseImportance("urgent"); err == nil {
		t.Fatal("expected error for unknown importance")
	}
	if !(ImportanceMin < ImportanceLow && ImportanceLow < ImportanceDefault) {
		t.Fatal("importance tiers are not ordered")
	}
}

func TestFileSourceLoad(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "notifications.yaml")
	writeFile(t, path, `
notifications:
  - key: b
    package: com.chat
    channel: messages
    importance: high
    icon: icons/chat.png
  - key: a
    package: android
    channel: FOREGROUND_SERVICE
    importance: low
    icon: /abs/sys.png
  - key: c
    package: com.quiet
    icon: quiet.png
`)
	s := NewFileSource(path, logx.Nop())
	evs, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	want := []Event{NotificationPosted{Key: "a"}, NotificationPosted{Key: "b"}, NotificationPosted{Key: "c"}}
	if !reflect.DeepEqual(evs, want) {
		t.Fatalf("events = %#v, want %#v", evs, want)
	}

	snap := s.Snapshot()
	if len(snap.Records) != 3 || snap.Records[0].Key != "b" {
		t.Fatalf("records = %+v, want file order", snap.Records)
	}
	if got := snap.Records[0].Icon; got != icon.FileHandle(filepath.Join(dir, "icons/chat.png")) {
		t.Fatalf("relative icon = %v", got)
	}
	if got := snap.Records[1].Icon; got != icon.FileHandle("/abs/sys.png") {
		t.Fatalf("absolute icon = %v", got)
	}
	if imp, ok := snap.Ranking.Importance("b"); !ok || imp != ImportanceHigh {
		t.Fatalf("ranking b = %v, %v", imp, ok)
	}
	if _, ok := snap.Ranking.Importance("c"); ok {
		t.Fatal("entry without importance should be unranked")
	}
}

func TestFileSourceDiff(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "n.yaml")
	writeFile(t, path, "notifications:\n  - {key: a, importance: high}\n  - {key: b, importance: high}\n")
	s := NewFileSource(path, logx.Nop())
	if _, err := s.Load(); err != nil {
		t.Fatal(err)
	}

	writeFile(t, path, "notifications:\n  - {key: a, importance: high}\n  - {key: c, importance: max}\n")
	evs, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	want := []Event{NotificationPosted{Key: "c"}, NotificationRemoved{Key: "b"}}
	if !reflect.DeepEqual(evs, want) {
		t.Fatalf("events = %#v, want %#v", evs, want)
	}

	writeFile(t, path, "notifications:\n  - {key: a, importance: low}\n  - {key: c, importance: max}\n")
	evs, _ = s.Load()
	if !reflect.DeepEqual(evs, []Event{NotificationPosted{Key: "a"}}) {
		t.Fatalf("update events = %#v", evs)
	}

	evs, _ = s.Load()
	if len(evs) != 0 {
		t.Fatalf("reload without change produced %#v", evs)
	}
}

func TestFileSourceIconReplaced(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	iconPath := filepath.Join(dir, "chat.png")
	writeFile(t, iconPath, "v1")
	path := filepath.Join(dir, "n.yaml")
	writeFile(t, path, "notifications:\n  - {key: a, importance: high, icon: chat.png}\n  - {key: b, importance: high}\n")
	s := NewFileSource(path, logx.Nop())
	if _, err := s.Load(); err != nil {
		t.Fatal(err)
	}

	// Same path, new content; mtime moved explicitly so coarse clocks still differ.
	writeFile(t, iconPath, "version two")
	later := time.Now().Add(time.Hour)
	if err := os.Chtimes(iconPath, later, later); err != nil {
		t.Fatal(err)
	}
	evs, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(evs, []Event{NotificationPosted{Key: "a"}}) {
		t.Fatalf("events after icon replace = %#v", evs)
	}

	if evs, _ = s.Load(); len(evs) != 0 {
		t.Fatalf("reload without change produced %#v", evs)
	}

	if err := os.Remove(iconPath); err != nil {
		t.Fatal(err)
	}
	if evs, _ = s.Load(); !reflect.DeepEqual(evs, []Event{NotificationPosted{Key: "a"}}) {
		t.Fatalf("events after icon removal = %#v", evs)
	}
}

func TestFileSourceErrors(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	missing := NewFileSource(filepath.Join(dir, "missing.yaml"), logx.Nop())
	if evs, err := missing.Load(); err != nil || len(evs) != 0 {
		t.Fatalf("missing file = %v, %v; want empty", evs, err)
	}

	cases := map[string]string{
		"unknown field":  "notifications:\n  - {key: a, colour: red}\n",
		"bad importance": "notifications:\n  - {key: a, importance: loud}\n",
		"missing key":    "notifications:\n  - {package: x}\n",
		"not yaml":       "notifications: [\n",
	}
	for name, body := range cases {
		path := filepath.Join(dir, name+".yaml")
		writeFile(t, path, body)
		s := NewFileSource(path, logx.Nop())
		if _, err := s.Load(); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestFileSourceRun(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "n.yaml")
	writeFile(t, path, "notifications:\n  - {key: a, importance: high}\n")
	s := NewFileSource(path, logx.Nop())

	var (
		mu  sync.Mutex
		got []Event
	)
	has := func(want Event) bool {
		mu.Lock()
		defer mu.Unlock()
		for _, ev := range got {
			if ev == want {
				return true
			}
		}
		return false
	}
	wait := func(want Event) {
		t.Helper()
		deadline := time.Now().Add(3 * time.Second)
		for !has(want) {
			if time.Now().After(deadline) {
				t.Fatalf("event %#v not seen; got %#v", want, got)
			}
			time.Sleep(10 * time.Millisecond)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = s.Run(ctx, func(ev Event) {
			mu.Lock()
			got = append(got, ev)
			mu.Unlock()
		})
	}()

	wait(ListenerConnected{})
	if len(s.Snapshot().Records) != 1 {
		t.Fatal("snapshot not loaded before ListenerConnected")
	}
	writeFile(t, path, "notifications:\n  - {key: b, importance: high}\n")
	wait(NotificationPosted{Key: "b"})
	wait(NotificationRemoved{Key: "a"})
}
