// Package prefs provides the durable notification preference record and the
// Store that loads and persists it.
//
// # Document format
//
// Preferences are serialised as one flat key-value JSON object stored under
// a single well-known key in a pluggable Backend:
//
//	{
//	  "category.agent": true,
//	  "category.cron": false,
//	  "severity.info": true,
//	  "markAllReadOnOpen": false
//	}
//
// Decoding is lenient: comments and trailing commas are accepted (the file
// backend is meant to be hand-editable), unknown keys are ignored, and keys
// that are missing or hold a non-boolean value keep their default. A document
// that cannot be parsed at all yields the defaults.
package prefs

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/jsonc"

	"github.com/openclaw/notifyd/internal/notify"
)

// DefaultKey is the well-known storage key of the preference document.
const DefaultKey = "notification-center.preferences"

const (
	categoryPrefix = "category."
	severityPrefix = "severity."
	keyMarkAllRead = "markAllReadOnOpen"
)

// Filterable lists the severities that preferences can disable. Critical has
// no entry and is always enabled.
var Filterable = []notify.Severity{
	notify.SeverityWarning,
	notify.SeverityInfo,
	notify.SeveritySuccess,
}

// Preferences is the per-session notification visibility record.
type Preferences struct {
	CategoryEnabled   map[notify.Category]bool
	SeverityEnabled   map[notify.Severity]bool
	MarkAllReadOnOpen bool
}

// Defaults returns the preference record used when nothing is stored: every
// category and severity enabled, auto-mark-read off.
func Defaults() Preferences {
	p := Preferences{
		CategoryEnabled: make(map[notify.Category]bool, len(notify.Categories)),
		SeverityEnabled: make(map[notify.Severity]bool, len(Filterable)),
	}
	for _, c := range notify.Categories {
		p.CategoryEnabled[c] = true
	}
	for _, s := range Filterable {
		p.SeverityEnabled[s] = true
	}
	return p
}

// Category reports whether c is enabled. Unknown categories are enabled.
func (p Preferences) Category(c notify.Category) bool {
	enabled, ok := p.CategoryEnabled[c]
	return !ok || enabled
}

// Severity reports whether s is enabled. Critical is always enabled.
func (p Preferences) Severity(s notify.Severity) bool {
	if s == notify.SeverityCritical {
		return true
	}
	enabled, ok := p.SeverityEnabled[s]
	return !ok || enabled
}

// Clone returns a deep copy of p so callers can mutate it freely.
func (p Preferences) Clone() Preferences {
	out := Preferences{
		CategoryEnabled:   make(map[notify.Category]bool, len(p.CategoryEnabled)),
		SeverityEnabled:   make(map[notify.Severity]bool, len(p.SeverityEnabled)),
		MarkAllReadOnOpen: p.MarkAllReadOnOpen,
	}
	for k, v := range p.CategoryEnabled {
		out.CategoryEnabled[k] = v
	}
	for k, v := range p.SeverityEnabled {
		out.SeverityEnabled[k] = v
	}
	return out
}

// Equal reports whether p and q describe the same visibility settings.
func (p Preferences) Equal(q Preferences) bool {
	if p.MarkAllReadOnOpen != q.MarkAllReadOnOpen {
		return false
	}
	for _, c := range notify.Categories {
		if p.Category(c) != q.Category(c) {
			return false
		}
	}
	for _, s := range Filterable {
		if p.Severity(s) != q.Severity(s) {
			return false
		}
	}
	return true
}

// Flat returns p as the flat key-value document.
func (p Preferences) Flat() map[string]bool {
	doc := make(map[string]bool, len(notify.Categories)+len(Filterable)+1)
	for _, c := range notify.Categories {
		doc[categoryPrefix+string(c)] = p.Category(c)
	}
	for _, s := range Filterable {
		doc[severityPrefix+string(s)] = p.Severity(s)
	}
	doc[keyMarkAllRead] = p.MarkAllReadOnOpen
	return doc
}

// Encode serialises p as the flat JSON document.
func Encode(p Preferences) ([]byte, error) {
	data, err := json.Marshal(p.Flat())
	if err != nil {
		return nil, fmt.Errorf("prefs: encode: %w", err)
	}
	return data, nil
}

// Decode parses a stored document and merges it over the defaults field by
// field. It returns an error only when data is not a JSON object at all; the
// returned Preferences are usable (defaults) in that case too.
func Decode(data []byte) (Preferences, error) {
	p := Defaults()
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(jsonc.ToJSON(data), &raw); err != nil {
		return p, fmt.Errorf("prefs: decode: %w", err)
	}
	Merge(&p, raw)
	return p, nil
}

// Merge applies the recognised boolean keys of raw onto p. Keys that are
// unknown or whose value is not a JSON boolean are skipped. It returns the
// keys that were applied.
func Merge(p *Preferences, raw map[string]json.RawMessage) []string {
	if p.CategoryEnabled == nil {
		p.CategoryEnabled = make(map[notify.Category]bool)
	}
	if p.SeverityEnabled == nil {
		p.SeverityEnabled = make(map[notify.Severity]bool)
	}
	var applied []string
	for key, value := range raw {
		var b bool
		if err := json.Unmarshal(value, &b); err != nil {
			continue
		}
		switch {
		case key == keyMarkAllRead:
			p.MarkAllReadOnOpen = b
		case strings.HasPrefix(key, categoryPrefix):
			c := notify.Category(strings.TrimPrefix(key, categoryPrefix))
			if !c.Valid() {
				continue
			}
			p.CategoryEnabled[c] = b
		case strings.HasPrefix(key, severityPrefix):
			s := notify.Severity(strings.TrimPrefix(key, severityPrefix))
			if !filterable(s) {
				continue
			}
			p.SeverityEnabled[s] = b
		default:
			continue
		}
		applied = append(applied, key)
	}
	return applied
}

func filterable(s notify.Severity) bool {
	for _, f := range Filterable {
		if f == s {
			return true
		}
	}
	return false
}
