// Package ingest provides the push-based event sources the engine consumes.
//
// A Channel pushes two things and nothing else: new events and connection
// status changes. The engine neither knows nor cares how events are
// produced; the Simulated channel stands in for a real event source, the Hub
// is fed by in-process publishers (the REST publish endpoint), and Gate
// wraps either to hold events back while the link is down.
package ingest

import (
	"sync"

	"github.com/openclaw/notifyd/internal/notify"
)

// Status is the health of the ingestion link.
type Status string

const (
	StatusLive         Status = "live"
	StatusReconnecting Status = "reconnecting"
	StatusOffline      Status = "offline"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusLive, StatusReconnecting, StatusOffline:
		return true
	}
	return false
}

// EventFunc receives a newly produced event.
type EventFunc func(notify.Event)

// StatusFunc receives the new status after every transition.
type StatusFunc func(Status)

// Subscription is returned by Channel.Subscribe.
type Subscription interface {
	// Unsubscribe stops event delivery and, once no subscriber remains,
	// any timers the channel runs. It is idempotent. It must not be called
	// from inside an EventFunc or StatusFunc.
	Unsubscribe()
}

// Channel is a push-based event source.
//
// Callbacks are invoked from a goroutine owned by the channel, never
// concurrently for the same subscription, and must not block for long.
type Channel interface {
	Subscribe(onEvent EventFunc, onStatus StatusFunc) Subscription
	Status() Status
}

// Retrier is implemented by channels that can be asked to leave the offline
// state.
type Retrier interface {
	Retry()
}

// subscriber is a registered pair of callbacks. active is cleared on
// Unsubscribe so that a delivery already in flight is skipped.
type subscriber struct {
	onEvent  EventFunc
	onStatus StatusFunc

	mu     sync.Mutex
	active bool
}

func newSubscriber(onEvent EventFunc, onStatus StatusFunc) *subscriber {
	return &subscriber{onEvent: onEvent, onStatus: onStatus, active: true}
}

func (s *subscriber) event(e notify.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active && s.onEvent != nil {
		s.onEvent(e)
	}
}

func (s *subscriber) status(st Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active && s.onStatus != nil {
		s.onStatus(st)
	}
}

// deactivate waits for an in-flight callback to return and prevents further
// ones.
func (s *subscriber) deactivate() {
	s.mu.Lock()
	s.active = false
	s.mu.Unlock()
}

// subscription adapts a release function into an idempotent Subscription.
type subscription struct {
	once    sync.Once
	release func()
}

func (s *subscription) Unsubscribe() {
	s.once.Do(s.release)
}
