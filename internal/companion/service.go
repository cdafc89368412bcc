// Package companion runs the display side: it drives the face engine from
// the data channel, the minute tick, the time zone and an idle timer that
// stands in for the device's ambient transitions, and renders each redraw.
package companion

import (
	"context"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"notifface/internal/clock"
	"notifface/internal/datachannel"
	"notifface/internal/face"
	"notifface/internal/runtime/supervisor"
	"notifface/internal/surface"
	logx "notifface/pkg/logx"
)

type Config struct {
	Width, Height int
	Caps          face.Capabilities
	Timezone      string
	// AmbientAfter enters ambient mode after this long without new icons.
	// Zero keeps the face active.
	AmbientAfter time.Duration
	Tick         string
	// FramePath receives a PNG per redraw. Empty disables frame output.
	FramePath   string
	Path        string
	PullTimeout time.Duration
}

// Status is the JSON summary served by the debug endpoint.
type Status struct {
	Face         face.Snapshot `json:"face"`
	Frames       uint64        `json:"frames"`
	FrameErrors  uint64        `json:"frame_errors"`
	LastFrameAt  time.Time     `json:"last_frame_at,omitzero"`
	NextTick     time.Time     `json:"next_tick,omitzero"`
	AmbientAfter string        `json:"ambient_after"`
}

type Service struct {
	log    logx.Logger
	ch     datachannel.Channel
	zones  *clock.ZoneSource
	raster *surface.Raster
	engine *face.Engine
	ticker *clock.Ticker

	redraw chan struct{}

	mu      sync.Mutex
	cfg     Config
	sup     *supervisor.Supervisor
	idle    *time.Timer
	lastSeq uint64

	frames      atomic.Uint64
	frameErrors atomic.Uint64
	lastFrameAt atomic.Int64
}

func New(cfg Config, ch datachannel.Channel, log logx.Logger) (*Service, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "companion"))
	loc, err := clock.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, err
	}
	raster, err := surface.NewRaster()
	if err != nil {
		return nil, err
	}

	s := &Service{
		log:    log,
		ch:     ch,
		zones:  clock.NewZoneSource(loc),
		raster: raster,
		redraw: make(chan struct{}, 1),
		cfg:    cfg,
	}
	opts := []face.Option{
		face.WithLogger(log.With(logx.String("comp", "face"))),
		face.WithInvalidator(face.InvalidatorFunc(s.Invalidate)),
		face.WithZones(s.zones),
		face.WithGo(s.goBackground),
	}
	if ch != nil {
		opts = append(opts, face.WithChannel(ch, cfg.Path))
	}
	if cfg.PullTimeout > 0 {
		opts = append(opts, face.WithPullTimeout(cfg.PullTimeout))
	}
	s.engine = face.New(opts...)

	s.ticker, err = clock.NewTicker(cfg.Tick, loc, func() { s.engine.Dispatch(face.TimeTick{}) }, log)
	if err != nil {
		_ = raster.Close()
		return nil, err
	}
	return s, nil
}

func (s *Service) Engine() *face.Engine { return s.engine }

// goBackground runs engine work under the service supervisor, or inline
// when the service is not started.
func (s *Service) goBackground(name string, run func(ctx context.Context)) {
	s.mu.Lock()
	sup := s.sup
	s.mu.Unlock()
	if sup == nil {
		run(context.Background())
		return
	}
	sup.Go0(name, run)
}

// Invalidate schedules a redraw. Bursts collapse into one.
func (s *Service) Invalidate() {
	select {
	case s.redraw <- struct{}{}:
	default:
	}
}

// Start shows the face: capability flags first, then visibility, then the
// tick and idle timer.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.sup != nil {
		s.mu.Unlock()
		return
	}
	s.sup = supervisor.New(ctx, supervisor.WithLogger(s.log))
	sup := s.sup
	caps := s.cfg.Caps
	s.mu.Unlock()

	sup.Go0("companion.redraw", s.redrawLoop)
	s.engine.Dispatch(face.PropertiesChanged{LowBitAmbient: caps.LowBitAmbient, BurnInProtection: caps.BurnInProtection})
	s.engine.Dispatch(face.VisibilityChanged{Visible: true})
	s.ticker.Start()
	s.resetIdle()
	s.log.Info("companion started",
		logx.Int("width", s.cfg.Width),
		logx.Int("height", s.cfg.Height),
		logx.String("tz", s.zones.Location().String()),
	)
}

// Stop hides the face and tears the engine down. A stopped service cannot be
// restarted.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	sup := s.sup
	s.sup = nil
	if s.idle != nil {
		s.idle.Stop()
		s.idle = nil
	}
	s.mu.Unlock()
	if sup == nil {
		return nil
	}
	s.ticker.Stop()
	s.engine.Dispatch(face.VisibilityChanged{Visible: false})
	err := sup.Stop(ctx)
	s.engine.Destroy()
	_ = s.raster.Close()
	return err
}

// SetVisible and SetAmbient let an operator drive the face by hand.
func (s *Service) SetVisible(v bool) { s.engine.Dispatch(face.VisibilityChanged{Visible: v}) }

func (s *Service) SetAmbient(v bool) {
	s.engine.Dispatch(face.AmbientModeChanged{Ambient: v})
	if !v {
		s.resetIdle()
	}
}

func (s *Service) bounds() image.Rectangle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return image.Rect(0, 0, s.cfg.Width, s.cfg.Height)
}

// Frame renders the current plan. Used by the debug server.
func (s *Service) Frame() (image.Image, error) {
	return s.raster.Render(s.engine.Plan(s.bounds()))
}

func (s *Service) redrawLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.redraw:
			s.noteData()
			s.draw()
		}
	}
}

// noteData leaves ambient mode and restarts the idle timer when a new icon
// set arrived since the last redraw.
func (s *Service) noteData() {
	seq := s.engine.State().Seq
	s.mu.Lock()
	changed := seq != s.lastSeq
	s.lastSeq = seq
	s.mu.Unlock()
	if !changed {
		return
	}
	if s.engine.Snapshot().Ambient {
		s.engine.Dispatch(face.AmbientModeChanged{Ambient: false})
	}
	s.resetIdle()
}

func (s *Service) draw() {
	s.mu.Lock()
	path := s.cfg.FramePath
	s.mu.Unlock()

	img, err := s.Frame()
	if err == nil && path != "" {
		err = surface.WriteFrame(path, img)
	}
	if err != nil {
		s.frameErrors.Add(1)
		s.log.Warn("redraw failed", logx.String("frame_path", path), logx.Err(err))
		return
	}
	s.frames.Add(1)
	s.lastFrameAt.Store(time.Now().UnixNano())
}

func (s *Service) resetIdle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.idle != nil {
		s.idle.Stop()
		s.idle = nil
	}
	if s.sup == nil || s.cfg.AmbientAfter <= 0 {
		return
	}
	s.idle = time.AfterFunc(s.cfg.AmbientAfter, func() {
		s.engine.Dispatch(face.AmbientModeChanged{Ambient: true})
	})
}

// Apply hot-applies cfg. Channel path changes need a restart.
func (s *Service) Apply(cfg Config) error {
	loc, err := clock.LoadLocation(cfg.Timezone)
	if err != nil {
		return err
	}
	if err := s.ticker.Reconfigure(cfg.Tick, loc); err != nil {
		return err
	}

	s.mu.Lock()
	prev := s.cfg
	cfg.Path = prev.Path
	s.cfg = cfg
	s.mu.Unlock()

	// Watchers redraw through the engine's zone subscription.
	s.zones.Set(loc)
	if cfg.Caps != prev.Caps {
		s.engine.Dispatch(face.PropertiesChanged{LowBitAmbient: cfg.Caps.LowBitAmbient, BurnInProtection: cfg.Caps.BurnInProtection})
		s.Invalidate()
	}
	if cfg.AmbientAfter != prev.AmbientAfter {
		s.resetIdle()
	}
	if cfg.Width != prev.Width || cfg.Height != prev.Height || cfg.FramePath != prev.FramePath {
		s.Invalidate()
	}
	return nil
}

func (s *Service) Status() Status {
	s.mu.Lock()
	after := s.cfg.AmbientAfter
	s.mu.Unlock()
	st := Status{
		Face:         s.engine.Snapshot(),
		Frames:       s.frames.Load(),
		FrameErrors:  s.frameErrors.Load(),
		NextTick:     s.ticker.Next(),
		AmbientAfter: after.String(),
	}
	if ns := s.lastFrameAt.Load(); ns != 0 {
		st.LastFrameAt = time.Unix(0, ns)
	}
	return st
}
