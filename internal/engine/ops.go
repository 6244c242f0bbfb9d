package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/openclaw/notifyd/internal/filter"
	"github.com/openclaw/notifyd/internal/ingest"
	"github.com/openclaw/notifyd/internal/journal"
	"github.com/openclaw/notifyd/internal/notify"
	"github.com/openclaw/notifyd/internal/prefs"
	"github.com/openclaw/notifyd/internal/store"
)

// ErrRetryUnsupported is returned by Retry when the channel cannot leave the
// offline state on request.
var ErrRetryUnsupported = errors.New("engine: channel does not support retry")

// Ingest stores ev directly, bypassing the channel. A missing id or
// timestamp is filled in. It returns the stored id, or an error wrapping
// notify.ErrDuplicateID.
func (e *Engine) Ingest(ctx context.Context, ev notify.Event) (string, error) {
	type result struct {
		id  string
		err error
	}
	r, err := call(ctx, e, func() result {
		id, err := e.ingest(ev)
		if err != nil {
			return result{err: err}
		}
		e.derive()
		e.publish(notify.ChangeIngested, id)
		return result{id: id}
	})
	if err != nil {
		return "", err
	}
	return r.id, r.err
}

// Event returns the stored event with id, visible or not.
func (e *Engine) Event(ctx context.Context, id string) (notify.Event, bool, error) {
	type result struct {
		ev notify.Event
		ok bool
	}
	r, err := call(ctx, e, func() result {
		ev, ok := e.store.Get(id)
		return result{ev, ok}
	})
	return r.ev, r.ok, err
}

// VisibleEvent returns the event with id only when preferences and active
// mute rules let it through. The session's view filters are not applied, so
// a lookup does not depend on what the list currently shows.
func (e *Engine) VisibleEvent(ctx context.Context, id string) (notify.Event, bool, error) {
	type result struct {
		ev notify.Event
		ok bool
	}
	r, err := call(ctx, e, func() result {
		ev, ok := e.store.Get(id)
		if !ok {
			return result{}
		}
		now := e.now()
		e.mutes = filter.Prune(e.mutes, now)
		if !filter.Visible(ev, e.pref, filter.Criteria{Now: now, Mutes: e.mutes}) {
			return result{}
		}
		return result{ev, true}
	})
	return r.ev, r.ok, err
}

// MarkRead marks id read. It reports whether anything changed; an absent or
// already read id is a no-op.
func (e *Engine) MarkRead(ctx context.Context, id string) (bool, error) {
	return call(ctx, e, func() bool { return e.markRead(id) })
}

func (e *Engine) markRead(id string) bool {
	if !e.store.MarkRead(id) {
		return false
	}
	e.record(journal.Mutation{Action: journal.ActionRead, IDs: []string{id}})
	e.derive()
	e.publish(notify.ChangeUpdated, id)
	return true
}

// TogglePin flips the pinned flag of id. It reports whether id exists.
func (e *Engine) TogglePin(ctx context.Context, id string) (bool, error) {
	return call(ctx, e, func() bool {
		if !e.store.TogglePin(id) {
			return false
		}
		ev, _ := e.store.Get(id)
		e.record(journal.Mutation{
			Action: journal.ActionPin,
			IDs:    []string{id},
			Detail: map[string]any{"pinned": ev.Pinned},
		})
		e.derive()
		e.publish(notify.ChangeUpdated, id)
		return true
	})
}

// Dismiss removes id permanently and clears the detail selection if it was
// showing id. It reports whether anything was removed.
func (e *Engine) Dismiss(ctx context.Context, id string) (bool, error) {
	return call(ctx, e, func() bool { return e.dismiss(id) })
}

func (e *Engine) dismiss(id string) bool {
	if !e.store.Dismiss(id) {
		return false
	}
	if e.selected == id {
		e.selected = ""
	}
	e.record(journal.Mutation{Action: journal.ActionDismiss, IDs: []string{id}})
	e.derive()
	e.publish(notify.ChangeRemoved, id)
	return true
}

// MarkAllRead marks every stored event read and returns how many changed.
func (e *Engine) MarkAllRead(ctx context.Context) (int, error) {
	return call(ctx, e, e.markAllRead)
}

func (e *Engine) markAllRead() int {
	ids := e.store.MarkAllRead()
	if len(ids) == 0 {
		return 0
	}
	e.record(journal.Mutation{Action: journal.ActionReadAll, IDs: ids})
	e.derive()
	e.publish(notify.ChangeUpdated, ids...)
	return len(ids)
}

// ClearRead removes every event that is read and not pinned and returns how
// many were removed.
func (e *Engine) ClearRead(ctx context.Context) (int, error) {
	return call(ctx, e, func() int { return e.prune(store.ClearRead, journal.ActionClearRead) })
}

// Prune removes every event matching pred and returns how many were
// removed. pred runs on the engine loop.
func (e *Engine) Prune(ctx context.Context, pred store.Predicate) (int, error) {
	return call(ctx, e, func() int { return e.prune(pred, journal.ActionPrune) })
}

func (e *Engine) prune(pred store.Predicate, action journal.Action) int {
	ids := e.store.Prune(pred)
	if len(ids) == 0 {
		return 0
	}
	if slices.Contains(ids, e.selected) {
		e.selected = ""
	}
	e.record(journal.Mutation{Action: action, IDs: ids})
	e.derive()
	e.publish(notify.ChangeRemoved, ids...)
	return len(ids)
}

// Open is called when the notification list is shown. With
// MarkAllReadOnOpen set it marks everything read and returns the count.
func (e *Engine) Open(ctx context.Context) (int, error) {
	return call(ctx, e, func() int {
		if !e.pref.MarkAllReadOnOpen {
			return 0
		}
		return e.markAllRead()
	})
}

// SetFilters replaces the transient UI filters. Criteria.Now and
// Criteria.Mutes are ignored; the engine supplies them. The cursor is
// clamped, not moved.
func (e *Engine) SetFilters(ctx context.Context, c filter.Criteria) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("engine: set filters: %w", err)
	}
	c.Now, c.Mutes = time.Time{}, nil
	_, err := call(ctx, e, func() struct{} {
		e.criteria = c
		e.derive()
		e.publish(notify.ChangeView)
		return struct{}{}
	})
	return err
}

// ToggleGroup flips the expansion of the group keyed by sourceKey and
// returns the new state.
func (e *Engine) ToggleGroup(ctx context.Context, sourceKey string) (bool, error) {
	return call(ctx, e, func() bool {
		expanded := e.grouper.Toggle(sourceKey)
		e.derive()
		e.publish(notify.ChangeView)
		return expanded
	})
}

// Preferences returns the current preference snapshot.
func (e *Engine) Preferences(ctx context.Context) (prefs.Preferences, error) {
	return call(ctx, e, func() prefs.Preferences { return e.pref.Clone() })
}

// UpdatePreferences applies mutate to the preferences, persists the result
// in the background and re-derives the list. mutate runs on the engine
// loop.
func (e *Engine) UpdatePreferences(ctx context.Context, mutate func(*prefs.Preferences)) (prefs.Preferences, error) {
	return call(ctx, e, func() prefs.Preferences {
		before := e.pref.Flat()
		e.pref = e.prefStore.Update(mutate)

		changed := make(map[string]any)
		for k, v := range e.pref.Flat() {
			if before[k] != v {
				changed[k] = v
			}
		}
		if len(changed) > 0 {
			e.record(journal.Mutation{Action: journal.ActionPreferences, Detail: changed})
		}
		e.derive()
		e.publish(notify.ChangePreferences)
		return e.pref.Clone()
	})
}

// AddMute installs r, replacing any rule with the same id. An empty id is
// generated. It returns the stored rule.
func (e *Engine) AddMute(ctx context.Context, r filter.MuteRule) (filter.MuteRule, error) {
	if err := r.Validate(); err != nil {
		return filter.MuteRule{}, fmt.Errorf("engine: add mute: %w", err)
	}
	if r.ID == "" {
		r.ID = notify.NewID()
	}
	return call(ctx, e, func() filter.MuteRule {
		e.mutes = slices.DeleteFunc(e.mutes, func(m filter.MuteRule) bool { return m.ID == r.ID })
		e.mutes = append(e.mutes, r)
		e.record(journal.Mutation{
			Action: journal.ActionMuteAdd,
			IDs:    []string{r.ID},
			Detail: map[string]any{"source": r.Source, "pattern": r.Pattern},
		})
		e.derive()
		e.publish(notify.ChangeView)
		return r
	})
}

// RemoveMute deletes the rule with id. It reports whether it existed.
func (e *Engine) RemoveMute(ctx context.Context, id string) (bool, error) {
	return call(ctx, e, func() bool {
		n := len(e.mutes)
		e.mutes = slices.DeleteFunc(e.mutes, func(m filter.MuteRule) bool { return m.ID == id })
		if len(e.mutes) == n {
			return false
		}
		e.record(journal.Mutation{Action: journal.ActionMuteRemove, IDs: []string{id}})
		e.derive()
		e.publish(notify.ChangeView)
		return true
	})
}

// Mutes returns the active mute rules.
func (e *Engine) Mutes(ctx context.Context) ([]filter.MuteRule, error) {
	return call(ctx, e, func() []filter.MuteRule {
		e.mutes = filter.Prune(e.mutes, e.now())
		return slices.Clone(e.mutes)
	})
}

// Connection returns the last status reported by the channel.
func (e *Engine) Connection(ctx context.Context) (ingest.Status, error) {
	return call(ctx, e, func() ingest.Status { return e.status })
}

// Retry asks the channel to leave the offline state. The resulting status
// arrives through the channel like any other transition.
func (e *Engine) Retry() error {
	r, ok := e.channel.(ingest.Retrier)
	if !ok {
		return ErrRetryUnsupported
	}
	r.Retry()
	return nil
}
