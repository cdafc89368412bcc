// Package producer runs on the host side: every listener event rebuilds the
// icon set from the full active notification list and publishes it.
package producer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"notifface/internal/datachannel"
	"notifface/internal/host"
	"notifface/internal/iconset"
	"notifface/internal/wire"
	logx "notifface/pkg/logx"
)

type Config struct {
	Path    string
	Builder iconset.Config
	// Timeout bounds one publish. Zero means no bound.
	Timeout time.Duration
}

// Status describes the most recent publish.
type Status struct {
	Event     string        `json:"event"`
	Icons     int           `json:"icons"`
	Build     iconset.Stats `json:"build"`
	Err       string        `json:"err,omitempty"`
	At        time.Time     `json:"at"`
	Publishes uint64        `json:"publishes"`
}

type Service struct {
	cfg     Config
	src     host.Source
	ch      datachannel.Channel
	builder *iconset.Builder
	log     logx.Logger

	// mu serializes rebuilds; the builder is not safe for concurrent use.
	mu     sync.Mutex
	status Status
}

func New(cfg Config, src host.Source, ch datachannel.Channel, log logx.Logger) *Service {
	if cfg.Path == "" {
		cfg.Path = wire.Path
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "producer"))
	return &Service{
		cfg:     cfg,
		src:     src,
		ch:      ch,
		builder: iconset.New(cfg.Builder, log),
		log:     log,
	}
}

// Dispatch handles one listener event. Failures are logged and dropped; the
// next event republishes the full set anyway.
func (s *Service) Dispatch(ctx context.Context, ev host.Event) {
	name := eventName(ev)
	if name == "" {
		return
	}
	if err := s.publish(ctx, name); err != nil {
		s.log.Warn("icon publish failed", logx.String("event", name), logx.Err(err))
	}
}

func (s *Service) publish(ctx context.Context, event string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.src.Snapshot()
	pair := s.builder.Build(snap.Records, snap.Ranking)
	st := Status{
		Event:     event,
		Icons:     pair.Len(),
		Build:     s.builder.LastStats(),
		At:        time.Now(),
		Publishes: s.status.Publishes,
	}
	defer func() { s.status = st }()

	payload, err := wire.Pack(pair)
	if err != nil {
		st.Err = err.Error()
		return err
	}
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}
	if err := s.ch.Publish(ctx, datachannel.Item{Path: s.cfg.Path, Payload: payload, Urgent: true}); err != nil {
		st.Err = err.Error()
		return fmt.Errorf("producer: publish %s: %w", s.cfg.Path, err)
	}
	st.Publishes++
	s.log.Debug("icons published",
		logx.String("event", event),
		logx.Int("icons", st.Icons),
		logx.Int("filtered", st.Build.Filtered),
		logx.Int("duplicates", st.Build.Duplicates),
		logx.Int("failed", st.Build.Failed),
	)
	return nil
}

func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func eventName(ev host.Event) string {
	switch ev.(type) {
	case host.ListenerConnected:
		return "connected"
	case host.NotificationPosted:
		return "posted"
	case host.NotificationRemoved:
		return "removed"
	default:
		return ""
	}
}
