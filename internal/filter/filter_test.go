package filter_test

import (
	"testing"
	"time"

	"github.com/openclaw/notifyd/internal/filter"
	"github.com/openclaw/notifyd/internal/notify"
	"github.com/openclaw/notifyd/internal/prefs"
)

var now = time.Date(2026, 2, 21, 22, 0, 0, 0, time.UTC)

func event(id string, sev notify.Severity, cat notify.Category, age time.Duration) notify.Event {
	return notify.Event{
		ID:        id,
		Severity:  sev,
		Category:  cat,
		Title:     "Agent idle — Piper",
		Body:      "Piper has been idle for 47 minutes.",
		Source:    "Piper",
		Timestamp: now.Add(-age),
	}
}

func TestVisible_TruthTable(t *testing.T) {
	base := event("e", notify.SeverityWarning, notify.CategoryAgent, time.Minute)
	read := base
	read.Read = true
	critical := base
	critical.Severity = notify.SeverityCritical

	agentOff := prefs.Defaults()
	agentOff.CategoryEnabled[notify.CategoryAgent] = false
	warningOff := prefs.Defaults()
	warningOff.SeverityEnabled[notify.SeverityWarning] = false

	tests := []struct {
		name  string
		event notify.Event
		prefs prefs.Preferences
		crit  filter.Criteria
		want  bool
	}{
		{"defaults show everything", base, prefs.Defaults(), filter.Criteria{}, true},
		{"explicit all filters", base, prefs.Defaults(), filter.Criteria{Severity: filter.All, Read: filter.ReadAll, Category: filter.All}, true},

		{"rule 1: category disabled", base, agentOff, filter.Criteria{}, false},
		{"rule 1: critical does not bypass category", critical, agentOff, filter.Criteria{}, false},

		{"rule 2: severity disabled", base, warningOff, filter.Criteria{}, false},
		{"rule 2: critical always passes", critical, warningOff, filter.Criteria{}, true},

		{"rule 3: severity filter matches", base, prefs.Defaults(), filter.Criteria{Severity: "warning"}, true},
		{"rule 3: severity filter excludes", base, prefs.Defaults(), filter.Criteria{Severity: "info"}, false},

		{"rule 4: unread filter keeps unread", base, prefs.Defaults(), filter.Criteria{Read: filter.ReadUnread}, true},
		{"rule 4: unread filter drops read", read, prefs.Defaults(), filter.Criteria{Read: filter.ReadUnread}, false},
		{"rule 4: read filter keeps read", read, prefs.Defaults(), filter.Criteria{Read: filter.ReadRead}, true},
		{"rule 4: read filter drops unread", base, prefs.Defaults(), filter.Criteria{Read: filter.ReadRead}, false},

		{"rule 5: category filter matches", base, prefs.Defaults(), filter.Criteria{Category: "agent"}, true},
		{"rule 5: category filter excludes", base, prefs.Defaults(), filter.Criteria{Category: "cron"}, false},

		{"rule 6: search title", base, prefs.Defaults(), filter.Criteria{Search: "IDLE"}, true},
		{"rule 6: search body", base, prefs.Defaults(), filter.Criteria{Search: "47 minutes"}, true},
		{"rule 6: search source", base, prefs.Defaults(), filter.Criteria{Search: "piper"}, true},
		{"rule 6: search miss", base, prefs.Defaults(), filter.Criteria{Search: "gateway"}, false},
		{"rule 6: empty search", base, prefs.Defaults(), filter.Criteria{Search: ""}, true},
		{"rule 6: whitespace is literal", base, prefs.Defaults(), filter.Criteria{Search: "   "}, false},
		{"rule 6: single space matches spaced title", base, prefs.Defaults(), filter.Criteria{Search: " "}, true},
		{"rule 6: trailing space not trimmed", base, prefs.Defaults(), filter.Criteria{Search: "minutes "}, false},
		{"rule 6: inner space matched", base, prefs.Defaults(), filter.Criteria{Search: "agent idle"}, true},

		{"rule 7: muted", base, prefs.Defaults(), filter.Criteria{Now: now, Mutes: []filter.MuteRule{{Pattern: "agent idle*"}}}, false},
		{"rule 7: critical never muted", critical, prefs.Defaults(), filter.Criteria{Now: now, Mutes: []filter.MuteRule{{Pattern: "*"}}}, true},
		{"rule 7: expired mute", base, prefs.Defaults(), filter.Criteria{Now: now, Mutes: []filter.MuteRule{{Pattern: "*", ExpiresAt: now.Add(-time.Second)}}}, true},

		{"rule 8: inside range", base, prefs.Defaults(), filter.Criteria{Now: now, Since: 15 * time.Minute}, true},
		{"rule 8: outside range", event("old", notify.SeverityInfo, notify.CategoryAgent, time.Hour), prefs.Defaults(), filter.Criteria{Now: now, Since: 15 * time.Minute}, false},
		{"rule 8: no reference time", event("old", notify.SeverityInfo, notify.CategoryAgent, time.Hour), prefs.Defaults(), filter.Criteria{Since: 15 * time.Minute}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := filter.Visible(tt.event, tt.prefs, tt.crit); got != tt.want {
				t.Errorf("Visible = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestApply_PinnedFirstThenNewest(t *testing.T) {
	a := event("a", notify.SeverityCritical, notify.CategorySystem, 3*time.Minute)
	b := event("b", notify.SeverityWarning, notify.CategoryAgent, 2*time.Minute)
	c := event("c", notify.SeverityInfo, notify.CategoryAgent, 1*time.Minute)

	got := ids(filter.Apply([]notify.Event{a, b, c}, prefs.Defaults(), filter.Criteria{}))
	if want := []string{"c", "b", "a"}; !equal(got, want) {
		t.Fatalf("unpinned order = %v, want %v", got, want)
	}

	b.Pinned = true
	got = ids(filter.Apply([]notify.Event{c, b, a}, prefs.Defaults(), filter.Criteria{}))
	if want := []string{"b", "c", "a"}; !equal(got, want) {
		t.Errorf("pinned order = %v, want %v", got, want)
	}
}

func TestApply_StableOnEqualTimestamps(t *testing.T) {
	x := event("x", notify.SeverityInfo, notify.CategoryFile, time.Minute)
	y := event("y", notify.SeverityInfo, notify.CategoryFile, time.Minute)

	got := ids(filter.Apply([]notify.Event{x, y}, prefs.Defaults(), filter.Criteria{}))
	if want := []string{"x", "y"}; !equal(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	in := []notify.Event{
		event("old", notify.SeverityInfo, notify.CategoryFile, 2*time.Minute),
		event("new", notify.SeverityInfo, notify.CategoryFile, time.Minute),
	}
	_ = filter.Apply(in, prefs.Defaults(), filter.Criteria{})
	if in[0].ID != "old" {
		t.Error("Apply reordered its input")
	}
}

func TestCriteria_Validate(t *testing.T) {
	valid := []filter.Criteria{
		{},
		{Severity: "all", Read: "all", Category: "all"},
		{Severity: "critical", Read: "unread", Category: "session", Since: time.Hour},
	}
	for _, c := range valid {
		if err := c.Validate(); err != nil {
			t.Errorf("Validate(%+v) = %v", c, err)
		}
	}

	invalid := []filter.Criteria{
		{Severity: "fatal"},
		{Read: "archived"},
		{Category: "billing"},
		{Since: -time.Minute},
	}
	for _, c := range invalid {
		if err := c.Validate(); err == nil {
			t.Errorf("Validate(%+v) = nil, want error", c)
		}
	}
}

func ids(events []notify.Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.ID
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
