package draw

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/lox/bingohall/internal/bingo"
	"github.com/lox/bingohall/internal/metrics"
)

const (
	// DefaultInterval is the pause between two balls of a running draw.
	DefaultInterval = 1500 * time.Millisecond

	// EventUpdate carries a State snapshot to every client.
	EventUpdate = "admin_sorteo_update"
)

// Publisher delivers an event to every connected client.
type Publisher interface {
	Broadcast(event string, payload any)
}

// Recorder stores finished draws that ended on a pattern.
type Recorder interface {
	RecordDraw(ctx context.Context, entry bingo.DrawHistoryEntry) (bingo.DrawHistoryEntry, error)
}

// SessionConfig wires a Session.
type SessionConfig struct {
	Engine    *Engine
	Clock     quartz.Clock
	Interval  time.Duration
	Publisher Publisher
	Recorder  Recorder
	Operator  string
	Logger    *log.Logger
	Metrics   *metrics.Collector
}

// Session drives an Engine on a fixed interval and broadcasts every ball.
type Session struct {
	mu       sync.Mutex
	engine   *Engine
	clock    quartz.Clock
	interval time.Duration
	pub      Publisher
	recorder Recorder
	operator string
	logger   *log.Logger
	metrics  *metrics.Collector

	running bool
	cancel  context.CancelFunc
	gen     uint64
}

// NewSession creates an idle session.
func NewSession(cfg SessionConfig) *Session {
	if cfg.Clock == nil {
		cfg.Clock = quartz.NewReal()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.Operator == "" {
		cfg.Operator = "admin"
	}
	return &Session{
		engine:   cfg.Engine,
		clock:    cfg.Clock,
		interval: cfg.Interval,
		pub:      cfg.Publisher,
		recorder: cfg.Recorder,
		operator: cfg.Operator,
		logger:   cfg.Logger.WithPrefix("draw"),
		metrics:  cfg.Metrics,
	}
}

// Start begins a new draw and arms the interval. Starting while the interval
// is armed does nothing. A paused draw is abandoned and replaced.
func (s *Session) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Debug("Start ignored, draw already running")
		return
	}
	s.engine.Reset()
	s.engine.Start()
	s.arm()
	state := s.stateLocked()
	s.mu.Unlock()

	s.logger.Info("Manual draw started", "interval", s.interval)
	s.publish(state)
}

// PauseResume toggles the interval of an unfinished draw.
func (s *Session) PauseResume() {
	s.mu.Lock()
	if !s.engine.Active() {
		s.mu.Unlock()
		return
	}
	if s.running {
		s.disarm()
		s.logger.Info("Manual draw paused", "drawn", len(s.engine.drawn))
	} else {
		s.arm()
		s.logger.Info("Manual draw resumed", "drawn", len(s.engine.drawn))
	}
	state := s.stateLocked()
	s.mu.Unlock()

	s.publish(state)
}

// Stop cancels the interval without touching the draw.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disarm()
}

// State returns the current snapshot including the running flag.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Session) stateLocked() State {
	state := s.engine.State()
	state.Running = s.running
	return state
}

// arm must be called with mu held.
func (s *Session) arm() {
	s.disarm()
	s.gen++
	gen := s.gen
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true
	s.clock.TickerFunc(ctx, s.interval, func() error {
		s.tick(gen)
		return nil
	}, "draw", "tick")
}

// disarm must be called with mu held.
func (s *Session) disarm() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.running = false
}

func (s *Session) tick(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || !s.running {
		s.mu.Unlock()
		return
	}
	ball, drawn := s.engine.DrawNext()
	if drawn {
		s.metrics.RecordDraw()
	}
	if !s.engine.Active() {
		s.disarm()
	}
	state := s.stateLocked()
	s.mu.Unlock()

	if drawn {
		s.logger.Debug("Ball drawn", "ball", ball, "remaining", state.RemainingCount)
	}
	s.publish(state)

	if state.Won() {
		s.logger.Info("Manual draw finished", "pattern", state.WinningPattern, "balls", len(state.Drawn))
		s.record(state)
	} else if state.Finished {
		s.logger.Info("Manual draw exhausted without a pattern")
	}
}

func (s *Session) record(state State) {
	if s.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	entry := bingo.DrawHistoryEntry{
		Pattern:     state.WinningPattern,
		Numbers:     state.Drawn,
		PerformedBy: s.operator,
		Timestamp:   s.clock.Now(),
		State:       bingo.DrawPending,
	}
	if _, err := s.recorder.RecordDraw(ctx, entry); err != nil {
		s.logger.Error("Failed to record draw", "error", err)
	}
}

func (s *Session) publish(state State) {
	if s.pub != nil {
		s.pub.Broadcast(EventUpdate, state)
	}
}
