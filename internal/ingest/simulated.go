package ingest

import (
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/openclaw/notifyd/internal/notify"
)

// Defaults for SimulatedConfig fields left at zero.
const (
	DefaultEventInterval       = 45 * time.Second
	DefaultHealthInterval      = 10 * time.Second
	DefaultHiccupProbability   = 0.05
	DefaultRecoveryProbability = 0.7
	DefaultMaxFailedChecks     = 5
)

// SimulatedConfig tunes the Simulated channel.
type SimulatedConfig struct {
	// EventInterval is the gap between injected live events. Negative
	// disables injection.
	EventInterval time.Duration
	// HealthInterval is the period of the connection health check.
	HealthInterval time.Duration
	// HiccupProbability is the chance that a health check drops a live
	// link to reconnecting. Nil selects DefaultHiccupProbability; zero
	// never hiccups.
	HiccupProbability *float64
	// RecoveryProbability is the chance that a health check while
	// reconnecting brings the link back. Nil selects
	// DefaultRecoveryProbability.
	RecoveryProbability *float64
	// MaxFailedChecks is the number of consecutive failed recovery checks
	// after which the link goes offline. Negative never goes offline.
	MaxFailedChecks int
	// Templates are cycled through to produce live events. Empty selects
	// LiveTemplates.
	Templates []notify.Event
}

func (c *SimulatedConfig) applyDefaults() {
	if c.EventInterval == 0 {
		c.EventInterval = DefaultEventInterval
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = DefaultHealthInterval
	}
	if c.HiccupProbability == nil {
		p := DefaultHiccupProbability
		c.HiccupProbability = &p
	}
	if c.RecoveryProbability == nil {
		p := DefaultRecoveryProbability
		c.RecoveryProbability = &p
	}
	if c.MaxFailedChecks == 0 {
		c.MaxFailedChecks = DefaultMaxFailedChecks
	}
	if len(c.Templates) == 0 {
		c.Templates = LiveTemplates
	}
}

// TickerFunc starts a periodic tick source and returns its channel and a
// stop function.
type TickerFunc func(d time.Duration) (<-chan time.Time, func())

func realTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// SimulatedOption configures a Simulated channel.
type SimulatedOption func(*Simulated)

// WithTicker replaces time.NewTicker. Tests pass a function returning
// channels they drive by hand.
func WithTicker(fn TickerFunc) SimulatedOption {
	return func(s *Simulated) { s.newTicker = fn }
}

// WithRand replaces the random source used by the health check. fn must
// return values in [0, 1).
func WithRand(fn func() float64) SimulatedOption {
	return func(s *Simulated) { s.rand = fn }
}

// Simulated is a timer-driven Channel that injects template events at a
// fixed interval and runs a probabilistic health check:
//
//	live         -> reconnecting  with HiccupProbability per check
//	reconnecting -> live          with RecoveryProbability per check
//	reconnecting -> offline       after MaxFailedChecks failed checks in a row
//	offline      -> reconnecting  on Retry
//
// Events keep flowing while reconnecting; wrap the channel in a Gate to hold
// them back instead. The timers run only while at least one subscriber is
// registered.
type Simulated struct {
	cfg       SimulatedConfig
	logger    *slog.Logger
	newTicker TickerFunc
	rand      func() float64

	mu      sync.Mutex
	status  Status
	failed  int
	next    int
	subs    map[int]*subscriber
	nextSub int
	stopCh  chan struct{}
	doneCh  chan struct{}
	retryCh chan struct{}
}

// NewSimulated creates a Simulated channel in the live state.
func NewSimulated(cfg SimulatedConfig, logger *slog.Logger, opts ...SimulatedOption) *Simulated {
	cfg.applyDefaults()
	s := &Simulated{
		cfg:       cfg,
		logger:    logger,
		newTicker: realTicker,
		status:    StatusLive,
		subs:      make(map[int]*subscriber),
		retryCh:   make(chan struct{}, 1),
	}
	//nolint:gosec // connection flakiness simulation, not security.
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	s.rand = r.Float64
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Status implements Channel.
func (s *Simulated) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Subscribe implements Channel. The first subscriber starts the timers.
func (s *Simulated) Subscribe(onEvent EventFunc, onStatus StatusFunc) Subscription {
	sub := newSubscriber(onEvent, onStatus)

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = sub
	if s.stopCh == nil {
		s.stopCh = make(chan struct{})
		s.doneCh = make(chan struct{})
		go s.run(s.stopCh, s.doneCh)
		s.logger.Debug("ingest: simulated channel started",
			slog.Duration("event_interval", s.cfg.EventInterval),
			slog.Duration("health_interval", s.cfg.HealthInterval),
		)
	}
	s.mu.Unlock()

	return &subscription{release: func() { s.unsubscribe(id) }}
}

func (s *Simulated) unsubscribe(id int) {
	s.mu.Lock()
	sub, ok := s.subs[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.subs, id)
	var stopCh, doneCh chan struct{}
	if len(s.subs) == 0 && s.stopCh != nil {
		stopCh, doneCh = s.stopCh, s.doneCh
		s.stopCh, s.doneCh = nil, nil
	}
	s.mu.Unlock()

	sub.deactivate()
	if stopCh != nil {
		close(stopCh)
		<-doneCh
		s.logger.Debug("ingest: simulated channel stopped")
	}
}

// Retry moves an offline channel back to reconnecting. It is a no-op in any
// other state.
func (s *Simulated) Retry() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh == nil {
		// No timers running and nobody to notify.
		if s.status == StatusOffline {
			s.status = StatusReconnecting
			s.failed = 0
		}
		return
	}
	select {
	case s.retryCh <- struct{}{}:
	default:
	}
}

func (s *Simulated) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	var eventC <-chan time.Time
	if s.cfg.EventInterval > 0 {
		c, stopTicker := s.newTicker(s.cfg.EventInterval)
		defer stopTicker()
		eventC = c
	}
	healthC, stopHealth := s.newTicker(s.cfg.HealthInterval)
	defer stopHealth()

	for {
		select {
		case <-stop:
			return
		case now := <-eventC:
			s.emit(now)
		case <-healthC:
			s.checkHealth()
		case <-s.retryCh:
			s.retry()
		}
	}
}

func (s *Simulated) emit(now time.Time) {
	s.mu.Lock()
	e := s.cfg.Templates[s.next%len(s.cfg.Templates)]
	s.next++
	subs := s.snapshot()
	s.mu.Unlock()

	e.ID = notify.NewID()
	e.Timestamp = now
	e.Read = false
	for _, sub := range subs {
		sub.event(e)
	}
}

func (s *Simulated) checkHealth() {
	s.mu.Lock()
	prev := s.status
	switch s.status {
	case StatusLive:
		if s.rand() < *s.cfg.HiccupProbability {
			s.status = StatusReconnecting
			s.failed = 0
		}
	case StatusReconnecting:
		if s.rand() < *s.cfg.RecoveryProbability {
			s.status = StatusLive
			s.failed = 0
			break
		}
		s.failed++
		if s.cfg.MaxFailedChecks > 0 && s.failed >= s.cfg.MaxFailedChecks {
			s.status = StatusOffline
		}
	}
	next, failed := s.status, s.failed
	subs := s.snapshot()
	s.mu.Unlock()

	if next == prev {
		return
	}
	s.logger.Info("ingest: connection status changed",
		slog.String("from", string(prev)),
		slog.String("to", string(next)),
		slog.Int("failed_checks", failed),
	)
	for _, sub := range subs {
		sub.status(next)
	}
}

func (s *Simulated) retry() {
	s.mu.Lock()
	if s.status != StatusOffline {
		s.mu.Unlock()
		return
	}
	s.status = StatusReconnecting
	s.failed = 0
	subs := s.snapshot()
	s.mu.Unlock()

	s.logger.Info("ingest: retrying offline connection")
	for _, sub := range subs {
		sub.status(StatusReconnecting)
	}
}

// snapshot returns the current subscribers. Callers hold s.mu.
func (s *Simulated) snapshot() []*subscriber {
	out := make([]*subscriber, 0, len(s.subs))
	for _, sub := range s.subs {
		out = append(out, sub)
	}
	return out
}
