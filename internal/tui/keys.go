package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the key bindings of the notification centre.
type KeyMap struct {
	Up   key.Binding
	Down key.Binding

	// Activate opens the focused event in the detail pane, or expands and
	// collapses the focused group.
	Activate key.Binding
	Close    key.Binding

	MarkRead  key.Binding
	Pin       key.Binding
	Dismiss   key.Binding
	ReadAll   key.Binding
	ClearRead key.Binding

	// Filter cycling.
	CycleSeverity key.Binding
	CycleRead     key.Binding
	CycleCategory key.Binding
	CycleSince    key.Binding

	Search      key.Binding
	SearchClear key.Binding

	ToggleAutoRead key.Binding
	Retry          key.Binding
	Help           key.Binding
	Quit           key.Binding
}

// DefaultKeyMap is the built-in binding set: vim-style j/k alongside the
// arrow keys.
var DefaultKeyMap = KeyMap{
	Up: key.NewBinding(
		key.WithKeys("k", "up"),
		key.WithHelp("k/↑", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("j", "down"),
		key.WithHelp("j/↓", "down"),
	),
	Activate: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "open/expand"),
	),
	Close: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "close detail"),
	),
	MarkRead: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "mark read"),
	),
	Pin: key.NewBinding(
		key.WithKeys("p"),
		key.WithHelp("p", "pin"),
	),
	Dismiss: key.NewBinding(
		key.WithKeys("d", "delete"),
		key.WithHelp("d", "dismiss"),
	),
	ReadAll: key.NewBinding(
		key.WithKeys("R"),
		key.WithHelp("R", "read all"),
	),
	ClearRead: key.NewBinding(
		key.WithKeys("C"),
		key.WithHelp("C", "clear read"),
	),
	CycleSeverity: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "severity"),
	),
	CycleRead: key.NewBinding(
		key.WithKeys("u"),
		key.WithHelp("u", "read state"),
	),
	CycleCategory: key.NewBinding(
		key.WithKeys("c"),
		key.WithHelp("c", "category"),
	),
	CycleSince: key.NewBinding(
		key.WithKeys("w"),
		key.WithHelp("w", "time range"),
	),
	Search: key.NewBinding(
		key.WithKeys("/", "ctrl+f"),
		key.WithHelp("/", "search"),
	),
	SearchClear: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "clear search"),
	),
	ToggleAutoRead: key.NewBinding(
		key.WithKeys("m"),
		key.WithHelp("m", "auto mark-read"),
	),
	Retry: key.NewBinding(
		key.WithKeys("t"),
		key.WithHelp("t", "retry link"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "help"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// ShortHelp implements help.KeyMap.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Activate, k.MarkRead, k.Pin, k.Dismiss, k.Search, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Activate, k.Close},
		{k.MarkRead, k.Pin, k.Dismiss, k.ReadAll, k.ClearRead},
		{k.CycleSeverity, k.CycleRead, k.CycleCategory, k.CycleSince, k.Search},
		{k.ToggleAutoRead, k.Retry, k.Help, k.Quit},
	}
}
