package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/openclaw/notifyd/internal/ingest"
	"github.com/openclaw/notifyd/internal/notify"
)

// Styles holds the lipgloss styles used by the view.
type Styles struct {
	Title    lipgloss.Style
	Faint    lipgloss.Style
	Focused  lipgloss.Style
	Unread   lipgloss.Style
	Group    lipgloss.Style
	Detail   lipgloss.Style
	Error    lipgloss.Style
	Severity map[notify.Severity]lipgloss.Style
	Status   map[ingest.Status]lipgloss.Style
}

// DefaultStyles uses the 16-colour ANSI palette so the view reads on both
// light and dark terminals.
func DefaultStyles() Styles {
	return Styles{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		Faint:   lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		Focused: lipgloss.NewStyle().Bold(true).Background(lipgloss.Color("236")),
		Unread:  lipgloss.NewStyle().Bold(true),
		Group:   lipgloss.NewStyle().Foreground(lipgloss.Color("14")),
		Detail: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("8")).
			Padding(0, 1),
		Error: lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		Severity: map[notify.Severity]lipgloss.Style{
			notify.SeverityCritical: lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
			notify.SeverityWarning:  lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
			notify.SeverityInfo:     lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
			notify.SeveritySuccess:  lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		},
		Status: map[ingest.Status]lipgloss.Style{
			ingest.StatusLive:         lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
			ingest.StatusReconnecting: lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
			ingest.StatusOffline:      lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		},
	}
}

var severityIcons = map[notify.Severity]string{
	notify.SeverityCritical: "✖",
	notify.SeverityWarning:  "▲",
	notify.SeverityInfo:     "●",
	notify.SeveritySuccess:  "✔",
}

func (s Styles) severity(sev notify.Severity) string {
	icon, ok := severityIcons[sev]
	if !ok {
		icon = "?"
	}
	if st, ok := s.Severity[sev]; ok {
		return st.Render(icon)
	}
	return icon
}

func (s Styles) status(st ingest.Status) string {
	label := "● " + string(st)
	if style, ok := s.Status[st]; ok {
		return style.Render(label)
	}
	return label
}
