// Package tui is a terminal notification centre over an in-process engine.
//
// The Model owns no notification state of its own. Every key press is turned
// into an engine operation run inside a tea.Cmd, and the engine's reply (a
// fresh engine.View) replaces what is rendered. Changes pushed by ingestion
// arrive on an optional channel and trigger a refresh, and a periodic tick
// keeps relative timestamps, mute expiry and the time range current.
package tui

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/openclaw/notifyd/internal/engine"
	"github.com/openclaw/notifyd/internal/filter"
	"github.com/openclaw/notifyd/internal/notify"
	"github.com/openclaw/notifyd/internal/prefs"
)

// Engine is the subset of engine.Engine driven by the TUI.
type Engine interface {
	View(ctx context.Context) (engine.View, error)
	Open(ctx context.Context) (int, error)
	SetFilters(ctx context.Context, c filter.Criteria) error

	TogglePin(ctx context.Context, id string) (bool, error)
	MarkAllRead(ctx context.Context) (int, error)
	ClearRead(ctx context.Context) (int, error)

	MoveUp(ctx context.Context) (engine.View, error)
	MoveDown(ctx context.Context) (engine.View, error)
	Activate(ctx context.Context) (engine.View, error)
	MarkFocusedRead(ctx context.Context) (engine.View, error)
	DismissFocused(ctx context.Context) (engine.View, error)
	ClearSelection(ctx context.Context) (engine.View, error)

	Preferences(ctx context.Context) (prefs.Preferences, error)
	UpdatePreferences(ctx context.Context, mutate func(*prefs.Preferences)) (prefs.Preferences, error)

	Retry() error
}

var _ Engine = (*engine.Engine)(nil)

const (
	// refreshInterval re-derives the view against the clock.
	refreshInterval = 30 * time.Second
	opTimeout       = 5 * time.Second
)

var (
	severityCycle = []string{
		filter.All,
		string(notify.SeverityCritical),
		string(notify.SeverityWarning),
		string(notify.SeverityInfo),
		string(notify.SeveritySuccess),
	}
	readCycle     = []filter.ReadFilter{filter.ReadAll, filter.ReadUnread, filter.ReadRead}
	categoryCycle = func() []string {
		out := []string{filter.All}
		for _, c := range notify.Categories {
			out = append(out, string(c))
		}
		return out
	}()
	sinceCycle = []time.Duration{0, 15 * time.Minute, time.Hour, 6 * time.Hour, 24 * time.Hour}
)

// viewMsg carries a fresh snapshot, and optionally a line for the status
// bar.
type viewMsg struct {
	view   engine.View
	notice string
}

type prefsMsg struct{ prefs prefs.Preferences }

type noticeMsg string

type errMsg struct{ err error }

// changeMsg reports that at least one engine change arrived.
type changeMsg struct{ prefs bool }

type tickMsg time.Time

// Model is the bubbletea model of the notification centre.
type Model struct {
	engine  Engine
	changes <-chan notify.Change
	keys    KeyMap
	styles  Styles
	help    help.Model
	now     func() time.Time

	view     engine.View
	loaded   bool
	autoRead bool

	searching bool
	search    string

	notice string
	err    error

	width, height int
}

// Option configures a Model.
type Option func(*Model)

// WithChanges makes the model refresh whenever a change arrives on ch.
func WithChanges(ch <-chan notify.Change) Option {
	return func(m *Model) { m.changes = ch }
}

// WithKeyMap replaces DefaultKeyMap.
func WithKeyMap(k KeyMap) Option {
	return func(m *Model) { m.keys = k }
}

// WithStyles replaces DefaultStyles.
func WithStyles(s Styles) Option {
	return func(m *Model) { m.styles = s }
}

// WithClock sets the time source used for relative timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Model) { m.now = now }
}

// New returns a Model over eng.
func New(eng Engine, opts ...Option) Model {
	m := Model{
		engine: eng,
		keys:   DefaultKeyMap,
		styles: DefaultStyles(),
		help:   help.New(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(&m)
	}
	return m
}

// Init opens the list, loads preferences and starts the change listener
// and refresh tick.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.open(), m.loadPrefs(), m.listen(), m.tick())
}

// ---- commands ---------------------------------------------------------------

func opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), opTimeout)
}

// open marks the list opened, which applies mark-all-read-on-open.
func (m Model) open() tea.Cmd {
	eng := m.engine
	return func() tea.Msg {
		ctx, cancel := opContext()
		defer cancel()
		n, err := eng.Open(ctx)
		if err != nil {
			return errMsg{err}
		}
		v, err := eng.View(ctx)
		if err != nil {
			return errMsg{err}
		}
		msg := viewMsg{view: v}
		if n > 0 {
			msg.notice = fmt.Sprintf("marked %d read on open", n)
		}
		return msg
	}
}

func (m Model) refresh() tea.Cmd {
	return m.viewOp(m.engine.View)
}

func (m Model) loadPrefs() tea.Cmd {
	eng := m.engine
	return func() tea.Msg {
		ctx, cancel := opContext()
		defer cancel()
		p, err := eng.Preferences(ctx)
		if err != nil {
			return errMsg{err}
		}
		return prefsMsg{p}
	}
}

// listen waits for the next engine change and coalesces any that are
// already queued behind it.
func (m Model) listen() tea.Cmd {
	ch := m.changes
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		c, ok := <-ch
		if !ok {
			return nil
		}
		msg := changeMsg{prefs: c.Kind == notify.ChangePreferences}
		for {
			select {
			case c, ok := <-ch:
				if !ok {
					return msg
				}
				msg.prefs = msg.prefs || c.Kind == notify.ChangePreferences
			default:
				return msg
			}
		}
	}
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// viewOp runs an engine operation that returns a view.
func (m Model) viewOp(op func(context.Context) (engine.View, error)) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := opContext()
		defer cancel()
		v, err := op(ctx)
		if err != nil {
			return errMsg{err}
		}
		return viewMsg{view: v}
	}
}

// then runs op and follows it with a fresh view. op may return a notice.
func (m Model) then(op func(context.Context) (string, error)) tea.Cmd {
	eng := m.engine
	return func() tea.Msg {
		ctx, cancel := opContext()
		defer cancel()
		notice, err := op(ctx)
		if err != nil {
			return errMsg{err}
		}
		v, err := eng.View(ctx)
		if err != nil {
			return errMsg{err}
		}
		return viewMsg{view: v, notice: notice}
	}
}

func (m Model) count(op func(context.Context) (int, error), format string) tea.Cmd {
	return m.then(func(ctx context.Context) (string, error) {
		n, err := op(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf(format, n), nil
	})
}

func (m Model) setFilters(c filter.Criteria) tea.Cmd {
	eng := m.engine
	return m.then(func(ctx context.Context) (string, error) {
		return "", eng.SetFilters(ctx, c)
	})
}

func (m Model) togglePin() tea.Cmd {
	it, ok := m.view.FocusedItem()
	if !ok {
		return nil
	}
	ev, ok := it.(notify.EventItem)
	if !ok {
		return nil
	}
	eng, id := m.engine, ev.Event.ID
	return m.then(func(ctx context.Context) (string, error) {
		pinned, err := eng.TogglePin(ctx, id)
		if err != nil {
			return "", err
		}
		if pinned {
			return "pinned", nil
		}
		return "unpinned", nil
	})
}

func (m Model) toggleAutoRead() tea.Cmd {
	eng := m.engine
	return func() tea.Msg {
		ctx, cancel := opContext()
		defer cancel()
		p, err := eng.UpdatePreferences(ctx, func(p *prefs.Preferences) {
			p.MarkAllReadOnOpen = !p.MarkAllReadOnOpen
		})
		if err != nil {
			return errMsg{err}
		}
		return prefsMsg{p}
	}
}

func (m Model) retry() tea.Cmd {
	eng := m.engine
	return func() tea.Msg {
		if err := eng.Retry(); err != nil {
			if errors.Is(err, engine.ErrRetryUnsupported) {
				return noticeMsg("retry is not supported by this channel")
			}
			return errMsg{err}
		}
		return noticeMsg("retrying connection")
	}
}

// ---- update -----------------------------------------------------------------

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		return m, nil

	case viewMsg:
		m.view = msg.view
		m.loaded = true
		m.err = nil
		if msg.notice != "" {
			m.notice = msg.notice
		}
		return m, nil

	case prefsMsg:
		m.autoRead = msg.prefs.MarkAllReadOnOpen
		return m, nil

	case noticeMsg:
		m.notice = string(msg)
		return m, nil

	case errMsg:
		m.err = msg.err
		if errors.Is(msg.err, engine.ErrClosed) {
			return m, tea.Quit
		}
		return m, nil

	case changeMsg:
		cmds := []tea.Cmd{m.refresh(), m.listen()}
		if msg.prefs {
			cmds = append(cmds, m.loadPrefs())
		}
		return m, tea.Batch(cmds...)

	case tickMsg:
		return m, tea.Batch(m.refresh(), m.tick())

	case tea.KeyMsg:
		m.notice = ""
		if m.searching {
			return m.handleSearchKey(msg)
		}
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	c := m.view.Filters
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil

	case key.Matches(msg, m.keys.Up):
		return m, m.viewOp(m.engine.MoveUp)
	case key.Matches(msg, m.keys.Down):
		return m, m.viewOp(m.engine.MoveDown)
	case key.Matches(msg, m.keys.Activate):
		return m, m.viewOp(m.engine.Activate)
	case key.Matches(msg, m.keys.Close):
		if m.view.Selected == "" {
			return m, nil
		}
		return m, m.viewOp(m.engine.ClearSelection)

	case key.Matches(msg, m.keys.MarkRead):
		return m, m.viewOp(m.engine.MarkFocusedRead)
	case key.Matches(msg, m.keys.Dismiss):
		return m, m.viewOp(m.engine.DismissFocused)
	case key.Matches(msg, m.keys.Pin):
		return m, m.togglePin()
	case key.Matches(msg, m.keys.ReadAll):
		return m, m.count(m.engine.MarkAllRead, "marked %d read")
	case key.Matches(msg, m.keys.ClearRead):
		return m, m.count(m.engine.ClearRead, "cleared %d read")

	case key.Matches(msg, m.keys.CycleSeverity):
		c.Severity = next(severityCycle, orAll(c.Severity))
		return m, m.setFilters(c)
	case key.Matches(msg, m.keys.CycleRead):
		cur := c.Read
		if cur == "" {
			cur = filter.ReadAll
		}
		c.Read = next(readCycle, cur)
		return m, m.setFilters(c)
	case key.Matches(msg, m.keys.CycleCategory):
		c.Category = next(categoryCycle, orAll(c.Category))
		return m, m.setFilters(c)
	case key.Matches(msg, m.keys.CycleSince):
		c.Since = next(sinceCycle, c.Since)
		return m, m.setFilters(c)

	case key.Matches(msg, m.keys.Search):
		m.searching = true
		m.search = c.Search
		return m, nil

	case key.Matches(msg, m.keys.ToggleAutoRead):
		return m, m.toggleAutoRead()
	case key.Matches(msg, m.keys.Retry):
		return m, m.retry()
	}
	return m, nil
}

// handleSearchKey edits the search query. Every edit is applied at once.
func (m Model) handleSearchKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	c := m.view.Filters
	switch {
	case msg.Type == tea.KeyCtrlC:
		return m, tea.Quit

	case key.Matches(msg, m.keys.SearchClear):
		// Esc clears the query first, then leaves search mode.
		if m.search == "" {
			m.searching = false
			return m, nil
		}
		m.search = ""

	case msg.Type == tea.KeyEnter:
		m.searching = false
		return m, nil

	case msg.Type == tea.KeyBackspace:
		runes := []rune(m.search)
		if len(runes) == 0 {
			return m, nil
		}
		m.search = string(runes[:len(runes)-1])

	case msg.Type == tea.KeySpace:
		m.search += " "

	case msg.Type == tea.KeyRunes:
		m.search += string(msg.Runes)

	default:
		return m, nil
	}
	c.Search = m.search
	return m, m.setFilters(c)
}

func orAll(s string) string {
	if s == "" {
		return filter.All
	}
	return s
}

// next returns the element after cur in cycle, wrapping around. An unknown
// cur yields the first element.
func next[T comparable](cycle []T, cur T) T {
	i := slices.Index(cycle, cur)
	return cycle[(i+1)%len(cycle)]
}

// ---- view -------------------------------------------------------------------

// View implements tea.Model.
func (m Model) View() string {
	if !m.loaded {
		if m.err != nil {
			return m.styles.Error.Render("error: "+m.err.Error()) + "\n"
		}
		return "Loading notifications…\n"
	}

	var b strings.Builder
	b.WriteString(m.header())
	b.WriteString("\n")
	b.WriteString(m.filterLine())
	b.WriteString("\n\n")
	b.WriteString(m.list())
	if d := m.detail(); d != "" {
		b.WriteString("\n")
		b.WriteString(d)
	}
	b.WriteString("\n")
	switch {
	case m.err != nil:
		b.WriteString(m.styles.Error.Render("error: " + m.err.Error()))
		b.WriteString("\n")
	case m.notice != "":
		b.WriteString(m.styles.Faint.Render(m.notice))
		b.WriteString("\n")
	}
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m Model) header() string {
	st := m.view.Stats
	parts := []string{
		m.styles.Title.Render("Notifications"),
		fmt.Sprintf("%d unread", st.Unread),
	}
	if n := st.BySeverity[notify.SeverityCritical]; n > 0 {
		parts = append(parts, m.styles.Severity[notify.SeverityCritical].Render(fmt.Sprintf("%d critical", n)))
	}
	if st.Pinned > 0 {
		parts = append(parts, fmt.Sprintf("%d pinned", st.Pinned))
	}
	parts = append(parts, m.styles.status(m.view.Connection))
	if m.autoRead {
		parts = append(parts, m.styles.Faint.Render("auto mark-read"))
	}
	return strings.Join(parts, "  ")
}

func (m Model) filterLine() string {
	c := m.view.Filters
	since := "any"
	if c.Since > 0 {
		since = formatRange(c.Since)
	}
	read := string(c.Read)
	if read == "" {
		read = string(filter.ReadAll)
	}
	line := fmt.Sprintf("severity: %s  read: %s  category: %s  range: %s",
		orAll(c.Severity), read, orAll(c.Category), since)
	switch {
	case m.searching:
		line += "  search: /" + m.search + "▏"
	case c.Search != "":
		line += "  search: " + c.Search
	}
	if n := len(m.view.Mutes); n > 0 {
		line += fmt.Sprintf("  mutes: %d", n)
	}
	return m.styles.Faint.Render(line)
}

// list renders the rows, scrolled so the focused row stays visible when
// the terminal height is known.
func (m Model) list() string {
	items := m.view.Items
	if len(items) == 0 {
		if m.view.Stats.Total == 0 {
			return m.styles.Faint.Render("No notifications.")
		}
		return m.styles.Faint.Render("No notifications match the current filters.")
	}

	start, end := 0, len(items)
	if rows := m.listHeight(); rows > 0 && rows < len(items) {
		start = max(0, m.view.Focused-rows/2)
		end = min(len(items), start+rows)
		start = max(0, end-rows)
	}

	now := m.now()
	lines := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		marker := "  "
		if i == m.view.Focused {
			marker = m.styles.Focused.Render("›") + " "
		}
		row := notify.Match(items[i],
			func(e notify.EventItem) string { return m.eventRow(e, now) },
			func(g notify.GroupItem) string { return m.groupRow(g, now) },
		)
		lines = append(lines, marker+row)
	}
	return strings.Join(lines, "\n")
}

// listHeight is the number of rows left for the list after the header,
// filter line, detail pane and footer. Zero means unbounded.
func (m Model) listHeight() int {
	if m.height == 0 {
		return 0
	}
	reserved := 6
	if m.view.Selected != "" {
		reserved += 8
	}
	return max(3, m.height-reserved)
}

func (m Model) eventRow(it notify.EventItem, now time.Time) string {
	ev := it.Event
	var b strings.Builder
	if it.Group != "" {
		b.WriteString("  └ ")
	}
	if ev.Read {
		b.WriteString("  ")
	} else {
		b.WriteString("• ")
	}
	b.WriteString(m.styles.severity(ev.Severity))
	b.WriteString(" ")
	if ev.Pinned {
		b.WriteString("★ ")
	}
	if ev.Read {
		b.WriteString(ev.Title)
	} else {
		b.WriteString(m.styles.Unread.Render(ev.Title))
	}
	if ev.Source != "" && it.Group == "" {
		b.WriteString(m.styles.Faint.Render(" · " + ev.Source))
	}
	b.WriteString("  ")
	b.WriteString(m.styles.Faint.Render(relativeTime(now, ev.Timestamp)))
	return b.String()
}

func (m Model) groupRow(it notify.GroupItem, now time.Time) string {
	g := it.Group
	arrow := "▸"
	if g.Expanded {
		arrow = "▾"
	}
	label := fmt.Sprintf("%s %s · %d notifications", arrow, g.SourceKey, g.Count)
	if g.Unread > 0 {
		label += fmt.Sprintf(" · %d unread", g.Unread)
	}
	return m.styles.severity(g.Severity) + " " + m.styles.Group.Render(label) +
		"  " + m.styles.Faint.Render(relativeTime(now, g.LatestTimestamp))
}

// detail renders the selected event, if it is still in the list.
func (m Model) detail() string {
	if m.view.Selected == "" {
		return ""
	}
	var (
		ev    notify.Event
		found bool
	)
	for _, it := range m.view.Items {
		if e, ok := it.(notify.EventItem); ok && e.Event.ID == m.view.Selected {
			ev, found = e.Event, true
			break
		}
	}
	if !found {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.styles.severity(ev.Severity) + " " + m.styles.Title.Render(ev.Title))
	b.WriteString("\n")
	meta := []string{string(ev.Severity), string(ev.Category)}
	if ev.Source != "" {
		meta = append(meta, ev.Source)
	}
	meta = append(meta, ev.Timestamp.Local().Format("Jan 2 15:04:05"), relativeTime(m.now(), ev.Timestamp))
	b.WriteString(m.styles.Faint.Render(strings.Join(meta, " · ")))
	if ev.Body != "" {
		b.WriteString("\n\n")
		b.WriteString(ev.Body)
	}
	if ev.Meta != "" {
		b.WriteString("\n")
		b.WriteString(m.styles.Faint.Render(ev.Meta))
	}
	if ev.Action != nil {
		b.WriteString("\n\n")
		b.WriteString(fmt.Sprintf("[%s] (%s)", ev.Action.Label, ev.Action.Kind))
	}

	style := m.styles.Detail
	if m.width > 4 {
		style = style.Width(m.width - 4)
	}
	return style.Render(b.String())
}

// relativeTime formats the age of ts: "just now" under a minute, then whole
// minutes, hours and days.
func relativeTime(now, ts time.Time) string {
	d := now.Sub(ts)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d/time.Minute))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d/time.Hour))
	default:
		return fmt.Sprintf("%dd ago", int(d/(24*time.Hour)))
	}
}

func formatRange(d time.Duration) string {
	switch {
	case d%(24*time.Hour) == 0:
		return fmt.Sprintf("%dd", int(d/(24*time.Hour)))
	case d%time.Hour == 0:
		return fmt.Sprintf("%dh", int(d/time.Hour))
	case d%time.Minute == 0:
		return fmt.Sprintf("%dm", int(d/time.Minute))
	default:
		return d.String()
	}
}
