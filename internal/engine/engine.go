// Package engine is the single owner of the notification session state.
//
// An Engine runs one goroutine (Run) that exclusively owns the notification
// store, the preference snapshot, grouping and cursor state, mute rules and
// the connection status. Every public method posts a closure into that loop
// and waits for it to be applied, so a mutation is visible to the very next
// View. Ingestion callbacks are posted the same way without waiting. No
// engine state is guarded by a mutex.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/openclaw/notifyd/internal/cursor"
	"github.com/openclaw/notifyd/internal/filter"
	"github.com/openclaw/notifyd/internal/group"
	"github.com/openclaw/notifyd/internal/ingest"
	"github.com/openclaw/notifyd/internal/journal"
	"github.com/openclaw/notifyd/internal/notify"
	"github.com/openclaw/notifyd/internal/prefs"
	"github.com/openclaw/notifyd/internal/store"
)

var (
	// ErrClosed is returned by every operation once the engine has stopped.
	ErrClosed = errors.New("engine: closed")
	// ErrAlreadyRunning is returned by Start and Run when the engine was
	// started before or has been closed.
	ErrAlreadyRunning = errors.New("engine: already running or closed")
)

// defaultInboxSize is the capacity of the operation queue.
const defaultInboxSize = 64

type lifecycle int

const (
	stateNew lifecycle = iota
	stateStarted
	stateRunning
	stateClosed
)

// Publisher receives a Change after every state transition. Publish is
// called from the engine loop and must not block.
type Publisher interface {
	Publish(notify.Change)
}

// Journal records user mutations. Append is called from the engine loop
// and must not block; journal.Writer satisfies it.
type Journal interface {
	Append(journal.Mutation)
}

// Options configures an Engine. Channel and Preferences are required.
type Options struct {
	Channel     ingest.Channel
	Preferences *prefs.Store
	Logger      *slog.Logger

	// GroupWindow and GroupMinSize tune the grouping engine; zero selects
	// group.DefaultWindow and group.DefaultMinSize.
	GroupWindow  time.Duration
	GroupMinSize int

	// Publisher and Journal are optional.
	Publisher Publisher
	Journal   Journal

	// Seed is ingested, newest first, by Start before the channel is
	// subscribed.
	Seed []notify.Event

	// Now defaults to time.Now.
	Now func() time.Time
}

// Engine composes the notification components behind one event loop.
// Create one with New, subscribe it with Start and drive it with Run.
type Engine struct {
	channel   ingest.Channel
	prefStore *prefs.Store
	logger    *slog.Logger
	publisher Publisher
	journal   Journal
	seed      []notify.Event
	now       func() time.Time

	inbox  chan func()
	stopCh chan struct{}
	// done is closed when the engine stops accepting operations; exited
	// once Run has fully returned, or at Close when it never ran.
	done   chan struct{}
	exited chan struct{}

	// mu guards the lifecycle fields only.
	mu    sync.Mutex
	state lifecycle
	sub   ingest.Subscription

	// Owned by the loop goroutine.
	store    *store.Store
	pref     prefs.Preferences
	grouper  *group.Grouper
	cursor   *cursor.Cursor
	criteria filter.Criteria
	mutes    []filter.MuteRule
	status   ingest.Status
	selected string
	items    []notify.Item
}

// New validates opts and returns an Engine that is not yet running.
func New(opts Options) (*Engine, error) {
	if opts.Channel == nil {
		return nil, errors.New("engine: Options.Channel is required")
	}
	if opts.Preferences == nil {
		return nil, errors.New("engine: Options.Preferences is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		channel:   opts.Channel,
		prefStore: opts.Preferences,
		logger:    opts.Logger,
		publisher: opts.Publisher,
		journal:   opts.Journal,
		seed:      opts.Seed,
		now:       opts.Now,
		inbox:     make(chan func(), defaultInboxSize),
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
		exited:    make(chan struct{}),
		store:     store.New(),
		pref:      prefs.Defaults(),
		grouper:   group.New(opts.GroupWindow, opts.GroupMinSize),
		cursor:    cursor.New(),
		status:    ingest.StatusLive,
	}, nil
}

// Start subscribes the engine to its channel, after loading preferences and
// ingesting the seed. Events pushed after Start returns are queued for the loop even if Run has
// not been scheduled yet. Start may be called once; Run calls it when the
// caller did not.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != stateNew {
		return ErrAlreadyRunning
	}
	e.startLocked(ctx)
	return nil
}

func (e *Engine) startLocked(ctx context.Context) {
	e.pref = e.prefStore.Load(ctx)
	for i := len(e.seed) - 1; i >= 0; i-- {
		if _, err := e.ingest(e.seed[i]); err != nil {
			e.logger.Warn("engine: dropping seed event", slog.String("id", e.seed[i].ID), slog.Any("error", err))
		}
	}

	// Status is read after subscribing so a transition in between is
	// replayed by the queued callback rather than lost.
	e.sub = e.channel.Subscribe(e.onEvent, e.onStatus)
	e.status = e.channel.Status()
	e.derive()
	e.state = stateStarted

	e.logger.Info("engine: started",
		slog.Int("events", e.store.Len()),
		slog.String("connection", string(e.status)),
	)
}

// Run processes operations until ctx is cancelled or Close is called,
// starting the engine first if needed. It unsubscribes from the channel
// before returning.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	if e.state == stateNew {
		e.startLocked(ctx)
	}
	if e.state != stateStarted {
		e.mu.Unlock()
		return ErrAlreadyRunning
	}
	e.state = stateRunning
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.state = stateClosed
		e.mu.Unlock()
		e.stop()
		close(e.exited)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-e.stopCh:
			return nil
		case op := <-e.inbox:
			op()
		}
	}
}

// Close stops the loop and waits for Run to return. It is idempotent. An
// engine closed before Run can no longer be run; one that was started but
// never run is unsubscribed here.
func (e *Engine) Close() {
	e.mu.Lock()
	prev := e.state
	e.state = stateClosed
	e.mu.Unlock()

	switch prev {
	case stateNew, stateStarted:
		e.stop()
		close(e.exited)
	case stateRunning:
		close(e.stopCh)
	}
	<-e.exited
}

// stop rejects further operations and releases the subscription. It runs
// exactly once, on the path that leaves the started or running state.
func (e *Engine) stop() {
	close(e.done)
	// Callbacks blocked on a full inbox see done and return, so this
	// cannot deadlock.
	if e.sub != nil {
		e.sub.Unsubscribe()
		e.logger.Info("engine: stopped")
	}
}

// call runs fn on the loop and returns its result.
func call[T any](ctx context.Context, e *Engine, fn func() T) (T, error) {
	var (
		out T
		ran = make(chan struct{})
	)
	op := func() {
		out = fn()
		close(ran)
	}

	select {
	case e.inbox <- op:
	case <-e.done:
		return out, ErrClosed
	case <-ctx.Done():
		return out, ctx.Err()
	}

	select {
	case <-ran:
		return out, nil
	case <-e.done:
		// The loop may have run op just before stopping.
		select {
		case <-ran:
			return out, nil
		default:
			var zero T
			return zero, ErrClosed
		}
	}
}

// post queues op without waiting. Used by channel callbacks.
func (e *Engine) post(op func()) {
	select {
	case e.inbox <- op:
	case <-e.done:
	}
}

func (e *Engine) onEvent(ev notify.Event) {
	e.post(func() {
		id, err := e.ingest(ev)
		if err != nil {
			e.logger.Warn("engine: dropping ingested event", slog.String("id", ev.ID), slog.Any("error", err))
			return
		}
		e.derive()
		e.publish(notify.ChangeIngested, id)
	})
}

func (e *Engine) onStatus(st ingest.Status) {
	e.post(func() {
		if st == e.status {
			return
		}
		e.logger.Info("engine: connection status",
			slog.String("from", string(e.status)),
			slog.String("to", string(st)),
		)
		e.status = st
		e.emit(notify.Change{Kind: notify.ChangeConnection, Status: string(st)})
	})
}

// ingest stores ev, filling in a missing id or timestamp, and returns the
// stored id.
func (e *Engine) ingest(ev notify.Event) (string, error) {
	if ev.ID == "" {
		ev.ID = notify.NewID()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = e.now()
	}
	return ev.ID, e.store.Ingest(ev)
}

// derive recomputes the visible list and clamps the cursor. Expired mute
// rules are dropped here.
func (e *Engine) derive() {
	now := e.now()
	e.mutes = filter.Prune(e.mutes, now)

	crit := e.criteria
	crit.Now = now
	crit.Mutes = e.mutes

	visible := filter.Apply(e.store.All(), e.pref, crit)
	e.items = e.grouper.Build(visible)
	e.cursor.Reset(len(e.items))
}

func (e *Engine) publish(kind notify.ChangeKind, ids ...string) {
	e.emit(notify.Change{Kind: kind, IDs: ids})
}

func (e *Engine) emit(c notify.Change) {
	if e.publisher == nil {
		return
	}
	c.At = e.now()
	e.publisher.Publish(c)
}

func (e *Engine) record(m journal.Mutation) {
	if e.journal != nil {
		e.journal.Append(m)
	}
}
