package rest

import (
	"context"

	"github.com/openclaw/notifyd/internal/engine"
	"github.com/openclaw/notifyd/internal/filter"
	"github.com/openclaw/notifyd/internal/ingest"
	"github.com/openclaw/notifyd/internal/notify"
	"github.com/openclaw/notifyd/internal/prefs"
)

// Engine is the subset of engine.Engine used by the REST handlers.
// Defining an interface allows handlers to be tested against a stub.
type Engine interface {
	View(ctx context.Context) (engine.View, error)
	SetFilters(ctx context.Context, c filter.Criteria) error
	Open(ctx context.Context) (int, error)

	Ingest(ctx context.Context, ev notify.Event) (string, error)
	Event(ctx context.Context, id string) (notify.Event, bool, error)
	VisibleEvent(ctx context.Context, id string) (notify.Event, bool, error)
	MarkRead(ctx context.Context, id string) (bool, error)
	TogglePin(ctx context.Context, id string) (bool, error)
	Dismiss(ctx context.Context, id string) (bool, error)
	MarkAllRead(ctx context.Context) (int, error)
	ClearRead(ctx context.Context) (int, error)
	ToggleGroup(ctx context.Context, sourceKey string) (bool, error)

	MoveUp(ctx context.Context) (engine.View, error)
	MoveDown(ctx context.Context) (engine.View, error)
	Activate(ctx context.Context) (engine.View, error)
	MarkFocusedRead(ctx context.Context) (engine.View, error)
	DismissFocused(ctx context.Context) (engine.View, error)
	ClearSelection(ctx context.Context) (engine.View, error)

	Preferences(ctx context.Context) (prefs.Preferences, error)
	UpdatePreferences(ctx context.Context, mutate func(*prefs.Preferences)) (prefs.Preferences, error)

	Mutes(ctx context.Context) ([]filter.MuteRule, error)
	AddMute(ctx context.Context, r filter.MuteRule) (filter.MuteRule, error)
	RemoveMute(ctx context.Context, id string) (bool, error)

	Connection(ctx context.Context) (ingest.Status, error)
	Retry() error
}

// EventPublisher pushes an event into the ingestion channel. ingest.Hub
// satisfies it.
type EventPublisher interface {
	Publish(notify.Event)
}

var _ Engine = (*engine.Engine)(nil)
