package notify

import "time"

// Group is a derived, collapsible run of at least three events from the same
// source. It is recomputed on every view derivation and never stored.
type Group struct {
	SourceKey       string    `json:"source_key"`
	Count           int       `json:"count"`
	MemberIDs       []string  `json:"member_ids"` // newest first
	LatestTimestamp time.Time `json:"latest_timestamp"`
	Expanded        bool      `json:"expanded"`

	// Unread is the number of members not yet read; Severity is the most
	// severe member's severity.
	Unread   int      `json:"unread"`
	Severity Severity `json:"severity"`
}

// Item is one row of the derived notification list: either an EventItem or
// a GroupItem. The interface is sealed; use Match or a type switch.
type Item interface {
	isItem()
}

// EventItem is a plain event row. Group is the owning SourceKey when the
// event is rendered inline beneath an expanded group header, and empty for
// stand-alone events.
type EventItem struct {
	Event Event
	Group string
}

// GroupItem is a group header row.
type GroupItem struct {
	Group Group
}

func (EventItem) isItem() {}
func (GroupItem) isItem() {}

// Match dispatches item to onEvent or onGroup. Both handlers are required so
// that callers cannot forget the group case.
func Match[T any](item Item, onEvent func(EventItem) T, onGroup func(GroupItem) T) T {
	switch it := item.(type) {
	case EventItem:
		return onEvent(it)
	case GroupItem:
		return onGroup(it)
	default:
		panic("notify: unknown item type")
	}
}

// ChangeKind names what happened in a Change.
type ChangeKind string

const (
	ChangeIngested    ChangeKind = "ingested"
	ChangeUpdated     ChangeKind = "updated"
	ChangeRemoved     ChangeKind = "removed"
	ChangeConnection  ChangeKind = "connection"
	ChangePreferences ChangeKind = "preferences"
	ChangeView        ChangeKind = "view"
)

// Change describes one engine state transition. IDs lists the affected
// events for ingested/updated/removed changes; Status is set for connection
// changes.
type Change struct {
	Kind   ChangeKind `json:"kind"`
	IDs    []string   `json:"ids,omitempty"`
	Status string     `json:"status,omitempty"`
	At     time.Time  `json:"at"`
}
