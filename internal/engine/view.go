package engine

import (
	"context"
	"slices"

	"github.com/openclaw/notifyd/internal/filter"
	"github.com/openclaw/notifyd/internal/ingest"
	"github.com/openclaw/notifyd/internal/notify"
)

// Stats are aggregate counts over every stored event, visible or not.
type Stats struct {
	Total      int                     `json:"total"`
	Unread     int                     `json:"unread"`
	Pinned     int                     `json:"pinned"`
	BySeverity map[notify.Severity]int `json:"by_severity"`
}

// View is a snapshot of what the UI renders.
type View struct {
	// Items is the derived list: filtered, ordered and grouped.
	Items []notify.Item
	// Focused is the cursor position in Items, or -1 when Items is empty.
	Focused int
	// Selected is the id of the event shown in the detail pane, if any.
	Selected   string
	Connection ingest.Status
	Stats      Stats
	Filters    filter.Criteria
	Mutes      []filter.MuteRule
}

// FocusedItem returns the item under the cursor.
func (v View) FocusedItem() (notify.Item, bool) {
	if v.Focused < 0 || v.Focused >= len(v.Items) {
		return nil, false
	}
	return v.Items[v.Focused], true
}

// View re-derives the list against the current time and returns a snapshot.
func (e *Engine) View(ctx context.Context) (View, error) {
	return call(ctx, e, func() View {
		e.derive()
		return e.snapshot()
	})
}

// snapshot copies loop state into a View. Callers run on the loop.
func (e *Engine) snapshot() View {
	crit := e.criteria
	crit.Now, crit.Mutes = e.now(), nil
	return View{
		Items:      slices.Clone(e.items),
		Focused:    e.cursor.Index(),
		Selected:   e.selected,
		Connection: e.status,
		Stats:      e.stats(),
		Filters:    crit,
		Mutes:      slices.Clone(e.mutes),
	}
}

func (e *Engine) stats() Stats {
	s := Stats{BySeverity: make(map[notify.Severity]int, len(notify.Severities))}
	for _, sev := range notify.Severities {
		s.BySeverity[sev] = 0
	}
	for _, ev := range e.store.All() {
		s.Total++
		if !ev.Read {
			s.Unread++
		}
		if ev.Pinned {
			s.Pinned++
		}
		s.BySeverity[ev.Severity]++
	}
	return s
}
