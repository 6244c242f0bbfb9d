// Package store holds the authoritative in-memory notification collection.
//
// Events are kept newest-first (the canonical storage order; ingest
// prepends). The Store is not safe for concurrent use: it is owned by the
// engine's event loop, which serialises every call.
package store

import (
	"fmt"

	"github.com/openclaw/notifyd/internal/notify"
)

// Predicate selects events for Prune.
type Predicate func(notify.Event) bool

// ClearRead matches events that are read and not pinned. It backs the
// "clear read" bulk action.
func ClearRead(e notify.Event) bool {
	return e.Read && !e.Pinned
}

// Store is the notification collection plus per-event read/pinned state.
type Store struct {
	events []notify.Event // newest first
	index  map[string]struct{}
}

// New returns an empty Store.
func New() *Store {
	return &Store{index: make(map[string]struct{})}
}

// Len returns the number of stored events.
func (s *Store) Len() int { return len(s.events) }

// Ingest prepends e. It returns an error wrapping notify.ErrDuplicateID when
// an event with the same ID is already stored; the collection is unchanged
// in that case.
func (s *Store) Ingest(e notify.Event) error {
	if _, ok := s.index[e.ID]; ok {
		return fmt.Errorf("store: ingest %q: %w", e.ID, notify.ErrDuplicateID)
	}
	s.events = append(s.events, notify.Event{})
	copy(s.events[1:], s.events)
	s.events[0] = e
	s.index[e.ID] = struct{}{}
	return nil
}

// Get returns a copy of the event with id.
func (s *Store) Get(id string) (notify.Event, bool) {
	if i := s.find(id); i >= 0 {
		return s.events[i], true
	}
	return notify.Event{}, false
}

// MarkRead sets Read on id. It reports whether the event exists and was
// previously unread; absent ids are a no-op.
func (s *Store) MarkRead(id string) bool {
	i := s.find(id)
	if i < 0 || s.events[i].Read {
		return false
	}
	s.events[i].Read = true
	return true
}

// TogglePin flips Pinned on id. It reports whether the event exists.
func (s *Store) TogglePin(id string) bool {
	i := s.find(id)
	if i < 0 {
		return false
	}
	s.events[i].Pinned = !s.events[i].Pinned
	return true
}

// Dismiss removes id permanently. It reports whether anything was removed.
func (s *Store) Dismiss(id string) bool {
	i := s.find(id)
	if i < 0 {
		return false
	}
	s.events = append(s.events[:i], s.events[i+1:]...)
	delete(s.index, id)
	return true
}

// MarkAllRead sets Read on every event and returns the ids that changed.
func (s *Store) MarkAllRead() []string {
	var changed []string
	for i := range s.events {
		if !s.events[i].Read {
			s.events[i].Read = true
			changed = append(changed, s.events[i].ID)
		}
	}
	return changed
}

// Prune removes every event matching pred and returns the removed ids in
// storage order.
func (s *Store) Prune(pred Predicate) []string {
	var removed []string
	kept := s.events[:0]
	for _, e := range s.events {
		if pred(e) {
			removed = append(removed, e.ID)
			delete(s.index, e.ID)
			continue
		}
		kept = append(kept, e)
	}
	// Zero the tail so removed events are not retained by the backing array.
	for i := len(kept); i < len(s.events); i++ {
		s.events[i] = notify.Event{}
	}
	s.events = kept
	return removed
}

// All returns a copy of the collection in storage order.
func (s *Store) All() []notify.Event {
	out := make([]notify.Event, len(s.events))
	copy(out, s.events)
	return out
}

func (s *Store) find(id string) int {
	if _, ok := s.index[id]; !ok {
		return -1
	}
	for i := range s.events {
		if s.events[i].ID == id {
			return i
		}
	}
	return -1
}
