package ingest

import (
	"log/slog"
	"sync"

	"github.com/openclaw/notifyd/internal/notify"
)

// DefaultBacklogSize bounds the events a Gate holds while the link is down.
const DefaultBacklogSize = 256

// Gate wraps a Channel and holds events back while the inner channel is not
// live. When the link returns to live the held events are delivered in
// arrival order, before any later event. When the backlog is full the oldest
// held event is dropped.
type Gate struct {
	inner  Channel
	size   int
	logger *slog.Logger
}

// NewGate wraps inner. A non-positive size selects DefaultBacklogSize.
func NewGate(inner Channel, size int, logger *slog.Logger) *Gate {
	if size <= 0 {
		size = DefaultBacklogSize
	}
	return &Gate{inner: inner, size: size, logger: logger}
}

// Status implements Channel.
func (g *Gate) Status() Status { return g.inner.Status() }

// Retry forwards to the inner channel when it supports retrying.
func (g *Gate) Retry() {
	if r, ok := g.inner.(Retrier); ok {
		r.Retry()
	}
}

// Subscribe implements Channel. Each subscription has its own backlog.
func (g *Gate) Subscribe(onEvent EventFunc, onStatus StatusFunc) Subscription {
	b := &backlog{
		size:    g.size,
		logger:  g.logger,
		live:    g.inner.Status() == StatusLive,
		onEvent: onEvent,
	}
	return g.inner.Subscribe(b.event, func(st Status) {
		held := b.status(st)
		if onStatus != nil {
			onStatus(st)
		}
		if onEvent != nil {
			for _, e := range held {
				onEvent(e)
			}
		}
	})
}

type backlog struct {
	size    int
	logger  *slog.Logger
	onEvent EventFunc

	mu      sync.Mutex
	live    bool
	held    []notify.Event
	dropped int
}

func (b *backlog) event(e notify.Event) {
	b.mu.Lock()
	if b.live {
		b.mu.Unlock()
		if b.onEvent != nil {
			b.onEvent(e)
		}
		return
	}
	if len(b.held) == b.size {
		b.held = b.held[1:]
		b.dropped++
	}
	b.held = append(b.held, e)
	b.mu.Unlock()
}

// status records st and returns the events to release, if st is live.
func (b *backlog) status(st Status) []notify.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.live = st == StatusLive
	if !b.live || len(b.held) == 0 {
		return nil
	}
	held := b.held
	b.held = nil
	if b.dropped > 0 {
		b.logger.Warn("ingest: gate backlog overflowed while offline",
			slog.Int("dropped", b.dropped),
			slog.Int("released", len(held)),
		)
		b.dropped = 0
	}
	return held
}
