// Package group collapses bursts of same-source notifications into
// expandable group headers.
//
// A burst is a run of events from one source whose timestamps fall within
// Window of the run's earliest member. The window is anchored: it does not
// slide forward as members join, so events at t, t+4m and t+8m form two runs
// ({t, t+4m} and {t+8m}) with a 5 minute window, not one.
package group

import (
	"slices"
	"time"

	"github.com/openclaw/notifyd/internal/notify"
)

const (
	// DefaultWindow is the span, measured from a run's earliest member,
	// within which later events join the run.
	DefaultWindow = 5 * time.Minute
	// DefaultMinSize is the smallest run rendered as a group.
	DefaultMinSize = 3
)

// Grouper builds the grouped list and remembers which sources the user has
// expanded. It is not safe for concurrent use; the engine loop owns it.
type Grouper struct {
	window   time.Duration
	minSize  int
	expanded map[string]bool
}

// New returns a Grouper. Non-positive arguments select the defaults.
func New(window time.Duration, minSize int) *Grouper {
	if window <= 0 {
		window = DefaultWindow
	}
	if minSize <= 0 {
		minSize = DefaultMinSize
	}
	return &Grouper{window: window, minSize: minSize, expanded: make(map[string]bool)}
}

// Toggle flips the expansion state of the group keyed by sourceKey and
// returns the new state. Toggling a key that does not currently qualify
// records the state anyway; the next Build drops it.
func (g *Grouper) Toggle(sourceKey string) bool {
	if g.expanded[sourceKey] {
		delete(g.expanded, sourceKey)
		return false
	}
	g.expanded[sourceKey] = true
	return true
}

// Expanded reports whether sourceKey is currently expanded.
func (g *Grouper) Expanded(sourceKey string) bool {
	return g.expanded[sourceKey]
}

// Build turns the filtered, ordered event list into list items. Runs of at
// least MinSize members are replaced by one GroupItem at the position of the
// run's most recent member; members follow the header, newest first, when
// the source is expanded. Every other event keeps its position.
//
// Expansion state is kept only for sources that still produce a group.
func (g *Grouper) Build(events []notify.Event) []notify.Item {
	pos := make(map[string]int, len(events))
	bySource := make(map[string][]notify.Event)
	for i, e := range events {
		pos[e.ID] = i
		if e.Source != "" {
			bySource[e.Source] = append(bySource[e.Source], e)
		}
	}

	// head maps the most recent member of each qualifying run to its run;
	// member marks every event absorbed into some group.
	head := make(map[string][]notify.Event)
	member := make(map[string]bool)
	qualifying := make(map[string]bool)

	for source, evs := range bySource {
		for _, run := range g.runs(evs) {
			if len(run) < g.minSize {
				continue
			}
			qualifying[source] = true
			// Newest first, ties in input order. The header takes the
			// position of the newest member, even when an older pinned
			// member sorts above it.
			slices.SortStableFunc(run, func(a, b notify.Event) int {
				if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
					return c
				}
				return pos[a.ID] - pos[b.ID]
			})
			head[run[0].ID] = run
			for _, e := range run {
				member[e.ID] = true
			}
		}
	}

	for key := range g.expanded {
		if !qualifying[key] {
			delete(g.expanded, key)
		}
	}

	items := make([]notify.Item, 0, len(events))
	for _, e := range events {
		if run, ok := head[e.ID]; ok {
			grp := g.summarise(run)
			items = append(items, notify.GroupItem{Group: grp})
			if grp.Expanded {
				for _, m := range run {
					items = append(items, notify.EventItem{Event: m, Group: grp.SourceKey})
				}
			}
			continue
		}
		if member[e.ID] {
			continue
		}
		items = append(items, notify.EventItem{Event: e})
	}
	return items
}

// runs splits one source's events into anchored windows, walking them in
// ascending timestamp order.
func (g *Grouper) runs(evs []notify.Event) [][]notify.Event {
	sorted := slices.Clone(evs)
	slices.SortStableFunc(sorted, func(a, b notify.Event) int {
		return a.Timestamp.Compare(b.Timestamp)
	})

	var out [][]notify.Event
	var cur []notify.Event
	var anchor time.Time
	for _, e := range sorted {
		if len(cur) > 0 && e.Timestamp.Sub(anchor) <= g.window {
			cur = append(cur, e)
			continue
		}
		if len(cur) > 0 {
			out = append(out, cur)
		}
		cur = []notify.Event{e}
		anchor = e.Timestamp
	}
	if len(cur) > 0 {
		out = append(out, cur)
	}
	return out
}

func (g *Grouper) summarise(run []notify.Event) notify.Group {
	grp := notify.Group{
		SourceKey:       run[0].Source,
		Count:           len(run),
		MemberIDs:       make([]string, len(run)),
		LatestTimestamp: run[0].Timestamp,
		Expanded:        g.expanded[run[0].Source],
		Severity:        run[0].Severity,
	}
	for i, e := range run {
		grp.MemberIDs[i] = e.ID
		if !e.Read {
			grp.Unread++
		}
		if e.Severity.Rank() < grp.Severity.Rank() {
			grp.Severity = e.Severity
		}
	}
	return grp
}
