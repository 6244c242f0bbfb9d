package filter

import (
	"errors"
	"strings"
	"time"

	"github.com/openclaw/notifyd/internal/notify"
)

// ErrEmptyPattern is returned by MuteRule.Validate for a rule without a
// title pattern.
var ErrEmptyPattern = errors.New("filter: mute rule pattern is empty")

// MuteRule silences non-critical events whose title matches Pattern until
// ExpiresAt. Source, when set, restricts the rule to one originating actor.
type MuteRule struct {
	ID        string    `json:"id"`
	Source    string    `json:"source,omitempty"`
	Pattern   string    `json:"pattern"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Validate reports whether r can be installed.
func (r MuteRule) Validate() error {
	if strings.TrimSpace(r.Pattern) == "" {
		return ErrEmptyPattern
	}
	return nil
}

// Active reports whether r is still in force at now. A zero ExpiresAt never
// expires.
func (r MuteRule) Active(now time.Time) bool {
	return r.ExpiresAt.IsZero() || now.Before(r.ExpiresAt)
}

// Mutes reports whether r hides e at now. Critical events are never muted.
func (r MuteRule) Mutes(e notify.Event, now time.Time) bool {
	if e.Severity == notify.SeverityCritical || !r.Active(now) {
		return false
	}
	if r.Source != "" && !strings.EqualFold(r.Source, e.Source) {
		return false
	}
	return Glob(r.Pattern, e.Title)
}

// Glob reports whether s matches pattern, case-insensitively, where '*'
// matches any run of characters (including none) and every other character
// matches itself.
//
// filepath.Match is not used because '*' there stops at path separators and
// titles routinely contain '/', and because '[' and '\' would need escaping.
func Glob(pattern, s string) bool {
	pattern = strings.ToLower(pattern)
	s = strings.ToLower(s)

	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return pattern == s
	}

	first, last := parts[0], parts[len(parts)-1]
	if !strings.HasPrefix(s, first) {
		return false
	}
	s = s[len(first):]
	for _, mid := range parts[1 : len(parts)-1] {
		i := strings.Index(s, mid)
		if i < 0 {
			return false
		}
		s = s[i+len(mid):]
	}
	return strings.HasSuffix(s, last)
}

// Prune returns the rules still active at now.
func Prune(rules []MuteRule, now time.Time) []MuteRule {
	out := rules[:0:0]
	for _, r := range rules {
		if r.Active(now) {
			out = append(out, r)
		}
	}
	return out
}
