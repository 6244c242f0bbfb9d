package ingest

import (
	"time"

	"github.com/openclaw/notifyd/internal/notify"
)

// SeedSpacing is the gap between consecutive seed events.
const SeedSpacing = 4*time.Minute + 42*time.Second

// seedUnread is the number of leading (most recent) seed events left unread.
const seedUnread = 5

var seed = []notify.Event{
	{
		Severity: notify.SeverityCritical,
		Category: notify.CategoryAgent,
		Title:    "Agent unresponsive — Zara",
		Body:     "Zara has not responded to its last 3 heartbeats. Auto-restart queued.",
		Source:   "Zara",
		Action:   &notify.Action{Label: "Force Restart", Kind: notify.ActionRetry},
		Meta:     "ops/zara",
	},
	{
		Severity: notify.SeverityWarning,
		Category: notify.CategoryModel,
		Title:    "Token budget at 87% — Opus 4.6",
		Body:     "Daily token budget for claude-opus-4-6 is 87% consumed. Current pace hits cap ~3 AM.",
		Action:   &notify.Action{Label: "View Usage", Kind: notify.ActionView},
		Meta:     "claude-opus-4-6",
	},
	{
		Severity: notify.SeveritySuccess,
		Category: notify.CategoryCron,
		Title:    "Cron job completed — UX Work Check",
		Body:     "Hourly UX work check (Luis) completed in 14.2s. 17 views shipped.",
		Source:   "Luis",
		Meta:     "cron:e61f3c46",
	},
	{
		Severity: notify.SeverityInfo,
		Category: notify.CategorySession,
		Title:    "New session opened — Xavier",
		Body:     "Xavier started a new reasoning session. Topic: UX review for Horizon UI.",
		Source:   "Xavier",
		Action:   &notify.Action{Label: "Join Session", Kind: notify.ActionOpen},
	},
	{
		Severity: notify.SeveritySuccess,
		Category: notify.CategoryAgent,
		Title:    "PR #44 opened — luis/ui-redesign",
		Body:     "Product & UI megabranch is ready for review. 17 views, full P2 polish, WCAG 2.1 AA.",
		Source:   "Luis",
		Action:   &notify.Action{Label: "View PR", Kind: notify.ActionOpen},
		Meta:     "dgarson/clawdbot#44",
	},
	{
		Severity: notify.SeverityWarning,
		Category: notify.CategoryAgent,
		Title:    "Agent idle — Piper",
		Body:     "Piper has been idle for 47 minutes with no active tasks or pending messages.",
		Source:   "Piper",
		Action:   &notify.Action{Label: "Assign Task", Kind: notify.ActionView},
	},
	{
		Severity: notify.SeverityInfo,
		Category: notify.CategoryFile,
		Title:    "Workspace snapshot created",
		Body:     "Auto-snapshot of /workspace/luis created (23 files, 4.2 MB). Kept for 7 days.",
		Meta:     "2026-02-21T22:04",
	},
	{
		Severity: notify.SeveritySuccess,
		Category: notify.CategorySystem,
		Title:    "Gateway daemon healthy",
		Body:     "All 3 nodes connected. Latency p99: 82 ms. Uptime: 14d 6h.",
		Meta:     "gateway:v2.4.1",
	},
	{
		Severity: notify.SeverityInfo,
		Category: notify.CategorySession,
		Title:    "Session archived — Roman sprint planning",
		Body:     "Session auto-archived after 2h inactivity. 847 messages, 14 tool calls.",
		Source:   "Roman",
	},
	{
		Severity: notify.SeverityCritical,
		Category: notify.CategorySystem,
		Title:    "Disk usage warning — 91% full",
		Body:     "/Users/openclaw: 91% capacity used (456 GB / 500 GB). Clean up workspace or expand storage.",
		Action:   &notify.Action{Label: "View Files", Kind: notify.ActionView},
		Pinned:   true,
	},
	{
		Severity: notify.SeverityInfo,
		Category: notify.CategoryCron,
		Title:    "Scheduled job queued — Daily digest",
		Body:     "Daily digest cron will fire in 8h 54m. Recipients: Xavier, Tim, Joey.",
		Meta:     "cron:daily-digest",
	},
	{
		Severity: notify.SeveritySuccess,
		Category: notify.CategoryModel,
		Title:    "New model available — claude-haiku-4-5",
		Body:     "claude-haiku-4-5 is now available in your account. 35% faster than 4.0 at same price.",
		Action:   &notify.Action{Label: "Try Model", Kind: notify.ActionOpen},
	},
}

// LiveTemplates are the events the Simulated channel injects, in rotation.
var LiveTemplates = []notify.Event{
	{
		Severity: notify.SeverityInfo,
		Category: notify.CategorySession,
		Title:    "Session heartbeat — Tim",
		Body:     "Tim's architecture review session is still active (112 minutes).",
		Source:   "Tim",
	},
	{
		Severity: notify.SeveritySuccess,
		Category: notify.CategoryCron,
		Title:    "Cron completed — Agent mail drain",
		Body:     "agent-mail.sh drain: 0 new messages in inbox.",
		Meta:     "cron:agent-mail",
	},
}

// SeedEvents returns the initial notification list, newest first, with the
// first event stamped at now and each later one SeedSpacing older. The five
// most recent are unread. Every call returns fresh ids.
func SeedEvents(now time.Time) []notify.Event {
	out := make([]notify.Event, len(seed))
	for i, e := range seed {
		e.ID = notify.NewID()
		e.Timestamp = now.Add(-time.Duration(i) * SeedSpacing)
		e.Read = i >= seedUnread
		if e.Action != nil {
			a := *e.Action
			e.Action = &a
		}
		out[i] = e
	}
	return out
}
