package rest

import (
	"errors"
	"fmt"
	"time"

	"github.com/openclaw/notifyd/internal/engine"
	"github.com/openclaw/notifyd/internal/filter"
	"github.com/openclaw/notifyd/internal/ingest"
	"github.com/openclaw/notifyd/internal/notify"
)

// Item type tags in viewDTO.Items.
const (
	itemEvent = "event"
	itemGroup = "group"
)

type itemDTO struct {
	Type  string        `json:"type"`
	Event *notify.Event `json:"event,omitempty"`
	Group *notify.Group `json:"group,omitempty"`
	// Parent is the source key of the expanded group an inline member
	// belongs to.
	Parent string `json:"parent,omitempty"`
}

type filtersDTO struct {
	Severity string `json:"severity"`
	Read     string `json:"read"`
	Category string `json:"category"`
	Search   string `json:"search"`
	// Since is a Go duration string ("1h", "30m"); empty means no limit.
	Since string `json:"since"`
}

type viewDTO struct {
	Items      []itemDTO         `json:"items"`
	Focused    int               `json:"focused"`
	Selected   string            `json:"selected,omitempty"`
	Connection ingest.Status     `json:"connection"`
	Stats      engine.Stats      `json:"stats"`
	Filters    filtersDTO        `json:"filters"`
	Mutes      []filter.MuteRule `json:"mutes"`
}

type muteDTO struct {
	ID      string `json:"id"`
	Source  string `json:"source"`
	Pattern string `json:"pattern"`
	// ExpiresAt (RFC3339) wins over Duration. Neither means the rule never
	// expires.
	ExpiresAt *time.Time `json:"expires_at"`
	Duration  string     `json:"duration"`
}

func toViewDTO(v engine.View) viewDTO {
	out := viewDTO{
		Items:      make([]itemDTO, 0, len(v.Items)),
		Focused:    v.Focused,
		Selected:   v.Selected,
		Connection: v.Connection,
		Stats:      v.Stats,
		Filters:    toFiltersDTO(v.Filters),
		Mutes:      v.Mutes,
	}
	if out.Mutes == nil {
		out.Mutes = []filter.MuteRule{}
	}
	for _, item := range v.Items {
		out.Items = append(out.Items, notify.Match(item,
			func(it notify.EventItem) itemDTO {
				ev := it.Event
				return itemDTO{Type: itemEvent, Event: &ev, Parent: it.Group}
			},
			func(it notify.GroupItem) itemDTO {
				g := it.Group
				return itemDTO{Type: itemGroup, Group: &g}
			},
		))
	}
	return out
}

func toFiltersDTO(c filter.Criteria) filtersDTO {
	f := filtersDTO{
		Severity: c.Severity,
		Read:     string(c.Read),
		Category: c.Category,
		Search:   c.Search,
	}
	if c.Since > 0 {
		f.Since = c.Since.String()
	}
	return f
}

func (f filtersDTO) criteria() (filter.Criteria, error) {
	c := filter.Criteria{
		Severity: f.Severity,
		Read:     filter.ReadFilter(f.Read),
		Category: f.Category,
		Search:   f.Search,
	}
	if f.Since != "" {
		d, err := time.ParseDuration(f.Since)
		if err != nil {
			return c, errors.New("'since' must be a duration such as 1h or 30m")
		}
		c.Since = d
	}
	return c, c.Validate()
}

func (m muteDTO) rule(now time.Time) (filter.MuteRule, error) {
	r := filter.MuteRule{ID: m.ID, Source: m.Source, Pattern: m.Pattern}
	switch {
	case m.ExpiresAt != nil:
		r.ExpiresAt = *m.ExpiresAt
	case m.Duration != "":
		d, err := time.ParseDuration(m.Duration)
		if err != nil || d <= 0 {
			return r, errors.New("'duration' must be a positive duration such as 1h")
		}
		r.ExpiresAt = now.Add(d)
	}
	return r, r.Validate()
}

// validateEvent checks the fields a published event must carry.
func validateEvent(ev notify.Event) error {
	if !ev.Severity.Valid() {
		return fmt.Errorf("'severity' %q must be one of critical, warning, info, success", ev.Severity)
	}
	if !ev.Category.Valid() {
		return fmt.Errorf("'category' %q is not a known category", ev.Category)
	}
	if ev.Title == "" {
		return errors.New("'title' is required")
	}
	return nil
}
