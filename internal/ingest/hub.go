package ingest

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/openclaw/notifyd/internal/notify"
)

// Hub is a Channel fed by in-process publishers, such as the REST publish
// endpoint. Every published event is delivered to every subscriber on the
// publisher's goroutine. It is safe for concurrent use.
//
// Status is whatever the publisher side last reported through SetStatus; a
// new Hub is live.
type Hub struct {
	subs   sync.Map // map[int64]*subscriber
	nextID atomic.Int64
	count  atomic.Int64

	mu     sync.Mutex
	status Status

	logger    *slog.Logger
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewHub returns a live Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{status: StatusLive, logger: logger}
}

// Subscribe implements Channel. Subscribing to a closed Hub returns a
// subscription that never delivers.
func (h *Hub) Subscribe(onEvent EventFunc, onStatus StatusFunc) Subscription {
	sub := newSubscriber(onEvent, onStatus)
	if h.closed.Load() {
		sub.deactivate()
		return &subscription{release: func() {}}
	}
	id := h.nextID.Add(1)
	h.subs.Store(id, sub)
	h.count.Add(1)
	return &subscription{release: func() {
		if _, loaded := h.subs.LoadAndDelete(id); loaded {
			h.count.Add(-1)
		}
		sub.deactivate()
	}}
}

// SubscriberCount returns the number of live subscriptions.
func (h *Hub) SubscriberCount() int {
	return int(h.count.Load())
}

// Status implements Channel.
func (h *Hub) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// SetStatus records a new link status and notifies subscribers when it
// changed.
func (h *Hub) SetStatus(st Status) {
	h.mu.Lock()
	prev := h.status
	h.status = st
	h.mu.Unlock()
	if prev == st || h.closed.Load() {
		return
	}
	h.logger.Info("ingest: hub status changed",
		slog.String("from", string(prev)),
		slog.String("to", string(st)),
	)
	h.subs.Range(func(_, v any) bool {
		v.(*subscriber).status(st)
		return true
	})
}

// Publish delivers e, unchanged, to every subscriber.
func (h *Hub) Publish(e notify.Event) {
	if h.closed.Load() {
		return
	}
	delivered := 0
	h.subs.Range(func(_, v any) bool {
		v.(*subscriber).event(e)
		delivered++
		return true
	})
	if delivered == 0 {
		h.logger.Warn("ingest: hub has no subscribers, dropping event", slog.String("id", e.ID))
	}
}

// Close drops every subscription. Publish and SetStatus are no-ops
// afterwards.
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		h.subs.Range(func(k, v any) bool {
			h.subs.Delete(k)
			v.(*subscriber).deactivate()
			h.count.Add(-1)
			return true
		})
	})
}
