package notify_test

import (
	"testing"

	"github.com/openclaw/notifyd/internal/notify"
)

func TestMatch_DispatchesBothVariants(t *testing.T) {
	t.Parallel()

	kind := func(it notify.Item) string {
		return notify.Match(it,
			func(e notify.EventItem) string { return "event:" + e.Event.ID },
			func(g notify.GroupItem) string { return "group:" + g.Group.SourceKey },
		)
	}

	if got := kind(notify.EventItem{Event: notify.Event{ID: "a"}}); got != "event:a" {
		t.Errorf("event item = %q", got)
	}
	if got := kind(notify.GroupItem{Group: notify.Group{SourceKey: "Zara"}}); got != "group:Zara" {
		t.Errorf("group item = %q", got)
	}
}

func TestSeverityRank(t *testing.T) {
	t.Parallel()

	if notify.SeverityCritical.Rank() >= notify.SeverityWarning.Rank() {
		t.Error("critical must outrank warning")
	}
	if notify.Severity("bogus").Rank() != len(notify.Severities) {
		t.Error("unknown severity must rank last")
	}
	if notify.Severity("bogus").Valid() {
		t.Error("unknown severity reported valid")
	}
	if !notify.CategoryFile.Valid() || notify.Category("mail").Valid() {
		t.Error("category validity wrong")
	}
}

func TestNewID_Unique(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := notify.NewID()
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}
