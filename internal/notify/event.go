// Package notify defines the notification data model shared by every engine
// component: the immutable Event with its read/pinned state bundle, the
// derived Group, the sealed Item variant that makes up the rendered list, and
// the Change records pushed to observers.
package notify

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrDuplicateID is returned when an event is ingested whose ID is already
// present in the store. It indicates a broken id generator; callers may log
// and drop the event.
var ErrDuplicateID = errors.New("notify: duplicate event id")

// Severity classifies how urgent an event is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
	SeveritySuccess  Severity = "success"
)

// Severities lists every severity, most severe first.
var Severities = []Severity{SeverityCritical, SeverityWarning, SeverityInfo, SeveritySuccess}

// Valid reports whether s is one of the known severities.
func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityWarning, SeverityInfo, SeveritySuccess:
		return true
	}
	return false
}

// Rank orders severities; lower is more severe. Unknown values rank last.
func (s Severity) Rank() int {
	for i, v := range Severities {
		if v == s {
			return i
		}
	}
	return len(Severities)
}

// Category is the functional area an event belongs to.
type Category string

const (
	CategoryAgent   Category = "agent"
	CategorySystem  Category = "system"
	CategoryCron    Category = "cron"
	CategoryModel   Category = "model"
	CategorySession Category = "session"
	CategoryFile    Category = "file"
)

// Categories lists every category in display order.
var Categories = []Category{
	CategoryAgent, CategorySystem, CategoryCron,
	CategoryModel, CategorySession, CategoryFile,
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	for _, v := range Categories {
		if v == c {
			return true
		}
	}
	return false
}

// ActionKind tags the suggested remediation attached to an event.
type ActionKind string

const (
	ActionRetry   ActionKind = "retry"
	ActionView    ActionKind = "view"
	ActionDismiss ActionKind = "dismiss"
	ActionOpen    ActionKind = "open"
)

// Action is a single suggested remediation. The engine never interprets it.
type Action struct {
	Label string     `json:"label"`
	Kind  ActionKind `json:"kind"`
}

// Event is one notification. Everything except Read and Pinned is fixed at
// creation time.
type Event struct {
	ID        string    `json:"id"`
	Severity  Severity  `json:"severity"`
	Category  Category  `json:"category"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`

	// Source names the originating actor (usually an agent) and is the
	// grouping key. Empty means the event is never grouped.
	Source string  `json:"source,omitempty"`
	Action *Action `json:"action,omitempty"`
	Meta   string  `json:"meta,omitempty"`

	Read   bool `json:"read"`
	Pinned bool `json:"pinned"`
}

// NewID returns a fresh event identifier.
func NewID() string {
	return uuid.NewString()
}
