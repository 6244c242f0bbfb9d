package prefs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultWriteTimeout bounds a single backend write performed by the
// background writer.
const DefaultWriteTimeout = 5 * time.Second

// Store loads the preference document once and persists every change.
//
// Persistence never blocks the caller and never fails from the caller's
// point of view: Save hands the encoded document to a background writer
// goroutine and returns. When several saves arrive faster than the backend
// accepts them, only the most recent document is written (last write wins).
// Backend errors are logged and dropped.
//
// Load, Save, Update and Current must be called from a single goroutine
// (the engine loop). Close may be called from anywhere and is idempotent.
type Store struct {
	backend      Backend
	key          string
	logger       *slog.Logger
	writeTimeout time.Duration

	current Preferences

	pending   chan []byte
	stopCh    chan struct{}
	doneCh    chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once

	// onWrite, when set, is called after every backend write attempt. Tests
	// use it to wait for the writer.
	onWrite func(error)
}

// Option configures a Store.
type Option func(*Store)

// WithKey overrides DefaultKey.
func WithKey(key string) Option {
	return func(s *Store) { s.key = key }
}

// WithWriteTimeout overrides DefaultWriteTimeout.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Store) { s.writeTimeout = d }
}

// WithWriteHook registers fn to run after each background write attempt.
func WithWriteHook(fn func(error)) Option {
	return func(s *Store) { s.onWrite = fn }
}

// NewStore creates a Store over backend and starts its writer goroutine.
// The Store owns backend and closes it in Close.
func NewStore(backend Backend, logger *slog.Logger, opts ...Option) *Store {
	s := &Store{
		backend:      backend,
		key:          DefaultKey,
		logger:       logger,
		writeTimeout: DefaultWriteTimeout,
		current:      Defaults(),
		pending:      make(chan []byte, 1),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.writeLoop()
	return s
}

// Load reads the stored document and returns it merged over the defaults.
// It never fails: a missing key, a backend error or a corrupt document all
// yield Defaults (the latter two are logged).
func (s *Store) Load(ctx context.Context) Preferences {
	data, err := s.backend.Get(ctx, s.key)
	switch {
	case errors.Is(err, ErrNotFound):
		s.logger.Debug("prefs: no stored preferences, using defaults", slog.String("key", s.key))
		s.current = Defaults()
	case err != nil:
		s.logger.Warn("prefs: load failed, using defaults",
			slog.String("key", s.key), slog.Any("error", err))
		s.current = Defaults()
	default:
		p, err := Decode(data)
		if err != nil {
			s.logger.Warn("prefs: stored preferences corrupt, using defaults",
				slog.String("key", s.key), slog.Any("error", err))
		}
		s.current = p
	}
	return s.current.Clone()
}

// Current returns a copy of the last loaded or saved preferences.
func (s *Store) Current() Preferences {
	return s.current.Clone()
}

// Save records p as current and schedules it for persistence.
func (s *Store) Save(p Preferences) {
	s.current = p.Clone()

	data, err := Encode(p)
	if err != nil {
		s.logger.Error("prefs: encode failed, not saved", slog.Any("error", err))
		return
	}
	if s.closed.Load() {
		s.logger.Warn("prefs: store closed, save dropped", slog.String("key", s.key))
		return
	}

	// Single producer: after discarding a stale document there is always
	// room for the new one.
	for {
		select {
		case s.pending <- data:
			return
		default:
		}
		select {
		case <-s.pending:
		default:
		}
	}
}

// Update applies mutate to a copy of the current preferences, saves the
// result and returns it.
func (s *Store) Update(mutate func(*Preferences)) Preferences {
	p := s.current.Clone()
	mutate(&p)
	s.Save(p)
	return p.Clone()
}

// Close flushes a pending write, stops the writer and closes the backend.
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.stopCh)
		<-s.doneCh
		if err := s.backend.Close(); err != nil {
			s.logger.Warn("prefs: backend close failed", slog.Any("error", err))
		}
	})
}

// writeLoop is the background goroutine that drains pending documents into
// the backend. It exits when stopCh is closed, after a final flush.
func (s *Store) writeLoop() {
	defer close(s.doneCh)
	for {
		select {
		case data := <-s.pending:
			s.write(data)
		case <-s.stopCh:
			select {
			case data := <-s.pending:
				s.write(data)
			default:
			}
			return
		}
	}
}

func (s *Store) write(data []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
	defer cancel()

	err := s.backend.Put(ctx, s.key, data)
	if err != nil {
		s.logger.Warn("prefs: save failed", slog.String("key", s.key), slog.Any("error", err))
	}
	if s.onWrite != nil {
		s.onWrite(err)
	}
}
