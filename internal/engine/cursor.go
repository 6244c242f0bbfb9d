package engine

import (
	"context"

	"github.com/openclaw/notifyd/internal/notify"
)

// Cursor operations act on the list as last derived and return the view
// after the operation.

// MoveDown moves focus to the next item, stopping at the last.
func (e *Engine) MoveDown(ctx context.Context) (View, error) {
	return call(ctx, e, func() View {
		e.cursor.MoveDown()
		return e.snapshot()
	})
}

// MoveUp moves focus to the previous item, stopping at the first.
func (e *Engine) MoveUp(ctx context.Context) (View, error) {
	return call(ctx, e, func() View {
		e.cursor.MoveUp()
		return e.snapshot()
	})
}

// Focus moves the cursor to i, clamped into range.
func (e *Engine) Focus(ctx context.Context, i int) (View, error) {
	return call(ctx, e, func() View {
		e.cursor.Set(i)
		return e.snapshot()
	})
}

// Activate opens the focused event (selecting it and marking it read) or
// toggles the focused group. The cursor does not move.
func (e *Engine) Activate(ctx context.Context) (View, error) {
	return call(ctx, e, func() View {
		if item, ok := e.focused(); ok {
			notify.Match(item,
				func(it notify.EventItem) struct{} {
					e.selected = it.Event.ID
					e.markRead(it.Event.ID)
					return struct{}{}
				},
				func(it notify.GroupItem) struct{} {
					e.grouper.Toggle(it.Group.SourceKey)
					e.derive()
					e.publish(notify.ChangeView)
					return struct{}{}
				},
			)
		}
		return e.snapshot()
	})
}

// MarkFocusedRead marks the focused event read. Group headers are ignored.
func (e *Engine) MarkFocusedRead(ctx context.Context) (View, error) {
	return call(ctx, e, func() View {
		if it, ok := e.focusedEvent(); ok {
			e.markRead(it.Event.ID)
		}
		return e.snapshot()
	})
}

// DismissFocused dismisses the focused event. Group headers are ignored.
// Focus stays at the same index, clamped to the shorter list.
func (e *Engine) DismissFocused(ctx context.Context) (View, error) {
	return call(ctx, e, func() View {
		if it, ok := e.focusedEvent(); ok {
			e.dismiss(it.Event.ID)
		}
		return e.snapshot()
	})
}

// ClearSelection closes the detail pane.
func (e *Engine) ClearSelection(ctx context.Context) (View, error) {
	return call(ctx, e, func() View {
		e.selected = ""
		return e.snapshot()
	})
}

func (e *Engine) focused() (notify.Item, bool) {
	i := e.cursor.Index()
	if i < 0 || i >= len(e.items) {
		return nil, false
	}
	return e.items[i], true
}

func (e *Engine) focusedEvent() (notify.EventItem, bool) {
	item, ok := e.focused()
	if !ok {
		return notify.EventItem{}, false
	}
	it, ok := item.(notify.EventItem)
	return it, ok
}
