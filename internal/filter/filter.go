// Package filter decides which stored notifications are visible and in what
// order. Everything here is a pure function of its inputs.
package filter

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/openclaw/notifyd/internal/notify"
	"github.com/openclaw/notifyd/internal/prefs"
)

// All is the wildcard value of the severity and category UI filters.
const All = "all"

// ReadFilter restricts the list by read state.
type ReadFilter string

const (
	ReadAll    ReadFilter = "all"
	ReadUnread ReadFilter = "unread"
	ReadRead   ReadFilter = "read"
)

// Criteria are the transient UI filters applied on top of the durable
// preferences. The zero value shows everything.
type Criteria struct {
	// Severity is All (or empty) or a notify.Severity.
	Severity string `json:"severity"`
	// Read is ReadAll (or empty), ReadUnread or ReadRead.
	Read ReadFilter `json:"read"`
	// Category is All (or empty) or a notify.Category.
	Category string `json:"category"`
	// Search is matched case-insensitively against title, body and source.
	Search string `json:"search"`
	// Since hides events older than Now-Since. Zero means no limit.
	Since time.Duration `json:"since"`

	// Now is the reference time for Since and mute expiry. A zero Now
	// disables both time-based rules.
	Now   time.Time  `json:"-"`
	Mutes []MuteRule `json:"-"`
}

// Validate rejects filter values outside their closed sets.
func (c Criteria) Validate() error {
	if c.Severity != "" && c.Severity != All && !notify.Severity(c.Severity).Valid() {
		return fmt.Errorf("filter: unknown severity %q", c.Severity)
	}
	switch c.Read {
	case "", ReadAll, ReadUnread, ReadRead:
	default:
		return fmt.Errorf("filter: unknown read filter %q", c.Read)
	}
	if c.Category != "" && c.Category != All && !notify.Category(c.Category).Valid() {
		return fmt.Errorf("filter: unknown category %q", c.Category)
	}
	if c.Since < 0 {
		return fmt.Errorf("filter: negative time range %s", c.Since)
	}
	return nil
}

// Visible reports whether e passes p and c. All rules must hold:
//
//  1. e's category is enabled in p.
//  2. e is critical, or its severity is enabled in p.
//  3. The severity filter is All or equals e's severity.
//  4. The read filter is All, or matches e's read state.
//  5. The category filter is All or equals e's category.
//  6. Search is empty, or a substring of title, body or source.
//  7. No active mute rule hides e.
//  8. Since is zero, or e is no older than Now-Since.
func Visible(e notify.Event, p prefs.Preferences, c Criteria) bool {
	if !p.Category(e.Category) {
		return false
	}
	if !p.Severity(e.Severity) {
		return false
	}
	if c.Severity != "" && c.Severity != All && notify.Severity(c.Severity) != e.Severity {
		return false
	}
	switch c.Read {
	case ReadUnread:
		if e.Read {
			return false
		}
	case ReadRead:
		if !e.Read {
			return false
		}
	}
	if c.Category != "" && c.Category != All && notify.Category(c.Category) != e.Category {
		return false
	}
	if !matchesSearch(e, c.Search) {
		return false
	}
	if !c.Now.IsZero() {
		for _, r := range c.Mutes {
			if r.Mutes(e, c.Now) {
				return false
			}
		}
		if c.Since > 0 && e.Timestamp.Before(c.Now.Add(-c.Since)) {
			return false
		}
	}
	return true
}

// matchesSearch treats the query literally: only "" matches everything, and
// whitespace is part of the needle.
func matchesSearch(e notify.Event, search string) bool {
	if search == "" {
		return true
	}
	q := strings.ToLower(search)
	return strings.Contains(strings.ToLower(e.Title), q) ||
		strings.Contains(strings.ToLower(e.Body), q) ||
		strings.Contains(strings.ToLower(e.Source), q)
}

// Apply returns the visible subset of events ordered pinned first, then by
// timestamp descending. Ties keep their input order.
func Apply(events []notify.Event, p prefs.Preferences, c Criteria) []notify.Event {
	out := make([]notify.Event, 0, len(events))
	for _, e := range events {
		if Visible(e, p, c) {
			out = append(out, e)
		}
	}
	slices.SortStableFunc(out, func(a, b notify.Event) int {
		if a.Pinned != b.Pinned {
			if a.Pinned {
				return -1
			}
			return 1
		}
		return b.Timestamp.Compare(a.Timestamp)
	})
	return out
}
