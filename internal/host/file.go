package host

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	yaml "go.yaml.in/yaml/v3"

	"notifface/internal/fswatch"
	"notifface/internal/icon"
	logx "notifface/pkg/logx"
)

// FileSource serves notifications from a YAML file:
//
//	notifications:
//	  - key: "0|com.chat|7|null|10123"
//	    package: com.chat
//	    channel: messages
//	    importance: high
//	    icon: icons/chat.png
//
// Relative icon paths are resolved against the file's directory. A missing
// file is an empty snapshot. An entry without importance is unranked and is
// therefore treated as ImportanceNone by the builder.
//
// Only the YAML file is watched. An icon replaced on disk is noticed on the
// next reload (size or mtime changed) and reported as NotificationPosted;
// touching the YAML file forces that reload.
type FileSource struct {
	path string
	log  logx.Logger

	mu   sync.RWMutex
	snap Snapshot
	seen map[string]fileEntry

	// emitMu keeps callbacks ordered and outside mu, so a handler may call
	// Snapshot.
	emitMu sync.Mutex
}

type fileDoc struct {
	Notifications []fileEntry `yaml:"notifications"`
}

type fileEntry struct {
	Key        string `yaml:"key"`
	Package    string `yaml:"package"`
	Channel    string `yaml:"channel"`
	Importance string `yaml:"importance"`
	Icon       string `yaml:"icon"`

	// iconStamp is size and mtime of the resolved icon file.
	iconStamp string
}

func NewFileSource(path string, log logx.Logger) *FileSource {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &FileSource{
		path: path,
		log:  log,
		snap: Snapshot{Ranking: RankingMap{}},
		seen: map[string]fileEntry{},
	}
}

func (s *FileSource) Path() string { return s.path }

func (s *FileSource) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{Records: append([]Record(nil), s.snap.Records...), Ranking: s.snap.Ranking}
}

// Load reads the file and replaces the snapshot. It returns the events that
// describe the difference to the previous snapshot, in key order.
func (s *FileSource) Load() ([]Event, error) {
	entries, err := readFile(s.path)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(s.path)
	snap := Snapshot{Records: make([]Record, 0, len(entries))}
	ranking := RankingMap{}
	next := make(map[string]fileEntry, len(entries))
	for _, e := range entries {
		if _, dup := next[e.Key]; dup {
			s.log.Warn("duplicate notification key; keeping first", logx.String("key", e.Key))
			continue
		}
		if strings.TrimSpace(e.Importance) != "" {
			imp, err := ParseImportance(e.Importance)
			if err != nil {
				return nil, fmt.Errorf("host: notification %q: %w", e.Key, err)
			}
			ranking[e.Key] = imp
		}
		iconPath := e.Icon
		if iconPath != "" && !filepath.IsAbs(iconPath) {
			iconPath = filepath.Join(dir, iconPath)
		}
		e.iconStamp = stampFile(iconPath)
		next[e.Key] = e
		snap.Records = append(snap.Records, Record{
			Key:     e.Key,
			Package: e.Package,
			Channel: e.Channel,
			Icon:    icon.FileHandle(iconPath),
		})
	}
	snap.Ranking = ranking

	s.mu.Lock()
	prev := s.seen
	s.seen = next
	s.snap = snap
	s.mu.Unlock()

	return diff(prev, next), nil
}

// stampFile identifies a version of the file at path; "" when it can't be
// stat'ed (the builder reports the asset as unavailable).
func stampFile(path string) string {
	if path == "" {
		return ""
	}
	fi, err := os.Stat(path)
	if err != nil {
		return ""
	}
	return strconv.FormatInt(fi.Size(), 10) + ":" + strconv.FormatInt(fi.ModTime().UnixNano(), 10)
}

func diff(prev, next map[string]fileEntry) []Event {
	var posted, removed []string
	for k, e := range next {
		if old, ok := prev[k]; !ok || old != e {
			posted = append(posted, k)
		}
	}
	for k := range prev {
		if _, ok := next[k]; !ok {
			removed = append(removed, k)
		}
	}
	sort.Strings(posted)
	sort.Strings(removed)
	out := make([]Event, 0, len(posted)+len(removed))
	for _, k := range posted {
		out = append(out, NotificationPosted{Key: k})
	}
	for _, k := range removed {
		out = append(out, NotificationRemoved{Key: k})
	}
	return out
}

func readFile(path string) ([]fileEntry, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var doc fileDoc
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("host: parse %s: %w", path, err)
	}
	for i, e := range doc.Notifications {
		e.Key = strings.TrimSpace(e.Key)
		if e.Key == "" {
			return nil, fmt.Errorf("host: notification #%d: key is required", i)
		}
		doc.Notifications[i] = e
	}
	return doc.Notifications, nil
}

// Run loads the file, reports ListenerConnected and then one event per
// change until ctx is done. A file that fails to parse keeps the previous
// snapshot.
func (s *FileSource) Run(ctx context.Context, emit func(Event)) error {
	if _, err := s.Load(); err != nil {
		s.log.Warn("notification file unreadable; starting empty", logx.String("path", s.path), logx.Err(err))
	}
	s.emit(emit, []Event{ListenerConnected{}})

	reload := func() {
		evs, err := s.Load()
		if err != nil {
			s.log.Warn("notification file rejected", logx.String("path", s.path), logx.Err(err))
			return
		}
		if len(evs) > 0 {
			s.log.Debug("notifications changed", logx.Int("events", len(evs)))
		}
		s.emit(emit, evs)
	}
	// Pick up writes that happened between the first load and the watch.
	return fswatch.Watch(ctx, s.path, reload, fswatch.Options{Log: s.log, Started: reload})
}

func (s *FileSource) emit(fn func(Event), evs []Event) {
	if fn == nil || len(evs) == 0 {
		return
	}
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	for _, ev := range evs {
		fn(ev)
	}
}
