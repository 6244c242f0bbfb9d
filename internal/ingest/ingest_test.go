package ingest_test

import (
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/openclaw/notifyd/internal/ingest"
	"github.com/openclaw/notifyd/internal/notify"
)

const (
	eventEvery  = 45 * time.Second
	healthEvery = 10 * time.Second
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// manualTickers hands out unbuffered tick channels keyed by interval so a
// test can drive the simulated channel's loop one tick at a time.
type manualTickers struct {
	mu      sync.Mutex
	chans   map[time.Duration]chan time.Time
	created chan struct{}
	stopped atomic.Int32
}

func newManualTickers() *manualTickers {
	return &manualTickers{
		chans:   make(map[time.Duration]chan time.Time),
		created: make(chan struct{}, 8),
	}
}

func (m *manualTickers) ticker(d time.Duration) (<-chan time.Time, func()) {
	ch := make(chan time.Time)
	m.mu.Lock()
	m.chans[d] = ch
	m.mu.Unlock()
	m.created <- struct{}{}
	return ch, func() { m.stopped.Add(1) }
}

// awaitStart blocks until n tickers have been created.
func (m *manualTickers) awaitStart(t *testing.T, n int) {
	t.Helper()
	for range n {
		select {
		case <-m.created:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for ticker creation")
		}
	}
}

// tick delivers one tick on the ticker for d.
func (m *manualTickers) tick(t *testing.T, d time.Duration, at time.Time) {
	t.Helper()
	m.mu.Lock()
	ch := m.chans[d]
	m.mu.Unlock()
	select {
	case ch <- at:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out delivering %s tick", d)
	}
}

// scripted returns the given values in order, then 0.99 forever.
func scripted(vals ...float64) func() float64 {
	return func() float64 {
		if len(vals) == 0 {
			return 0.99
		}
		v := vals[0]
		vals = vals[1:]
		return v
	}
}

type recorder struct {
	events   chan notify.Event
	statuses chan ingest.Status
}

func newRecorder() *recorder {
	return &recorder{
		events:   make(chan notify.Event, 32),
		statuses: make(chan ingest.Status, 32),
	}
}

func (r *recorder) onEvent(e notify.Event)   { r.events <- e }
func (r *recorder) onStatus(s ingest.Status) { r.statuses <- s }
func (r *recorder) subscribe(ch ingest.Channel) ingest.Subscription {
	return ch.Subscribe(r.onEvent, r.onStatus)
}

func (r *recorder) nextEvent(t *testing.T) notify.Event {
	t.Helper()
	select {
	case e := <-r.events:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return notify.Event{}
	}
}

func (r *recorder) nextStatus(t *testing.T) ingest.Status {
	t.Helper()
	select {
	case s := <-r.statuses:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for status")
		return ""
	}
}

func (r *recorder) noEvent(t *testing.T) {
	t.Helper()
	select {
	case e := <-r.events:
		t.Fatalf("unexpected event %q", e.Title)
	default:
	}
}

func newSimulated(t *testing.T, cfg ingest.SimulatedConfig, rnd func() float64) (*ingest.Simulated, *manualTickers) {
	t.Helper()
	cfg.EventInterval = eventEvery
	cfg.HealthInterval = healthEvery
	ticks := newManualTickers()
	sim := ingest.NewSimulated(cfg, quietLogger(),
		ingest.WithTicker(ticks.ticker),
		ingest.WithRand(rnd),
	)
	return sim, ticks
}

func TestSimulated_InjectsTemplatesInRotation(t *testing.T) {
	sim, ticks := newSimulated(t, ingest.SimulatedConfig{}, scripted())
	rec := newRecorder()
	sub := rec.subscribe(sim)
	defer sub.Unsubscribe()
	ticks.awaitStart(t, 2)

	at := time.Date(2026, 2, 21, 22, 0, 0, 0, time.UTC)
	var got []notify.Event
	for i := range 3 {
		ticks.tick(t, eventEvery, at.Add(time.Duration(i)*eventEvery))
		got = append(got, rec.nextEvent(t))
	}

	if got[0].Title != ingest.LiveTemplates[0].Title || got[1].Title != ingest.LiveTemplates[1].Title ||
		got[2].Title != ingest.LiveTemplates[0].Title {
		t.Errorf("titles = %q, %q, %q; want templates in rotation", got[0].Title, got[1].Title, got[2].Title)
	}
	if got[0].ID == "" || got[0].ID == got[2].ID {
		t.Errorf("ids not fresh: %q, %q", got[0].ID, got[2].ID)
	}
	if !got[1].Timestamp.Equal(at.Add(eventEvery)) {
		t.Errorf("timestamp = %v, want tick time", got[1].Timestamp)
	}
	if got[0].Read {
		t.Error("injected events must be unread")
	}
}

func TestSimulated_HiccupAndRecovery(t *testing.T) {
	// 0.01 < hiccup 0.05: drop. 0.5 < recovery 0.7: recover.
	sim, ticks := newSimulated(t, ingest.SimulatedConfig{}, scripted(0.01, 0.5))
	rec := newRecorder()
	sub := rec.subscribe(sim)
	defer sub.Unsubscribe()
	ticks.awaitStart(t, 2)

	if sim.Status() != ingest.StatusLive {
		t.Fatalf("initial status = %s, want live", sim.Status())
	}
	ticks.tick(t, healthEvery, time.Now())
	if s := rec.nextStatus(t); s != ingest.StatusReconnecting {
		t.Fatalf("after hiccup: %s, want reconnecting", s)
	}
	ticks.tick(t, healthEvery, time.Now())
	if s := rec.nextStatus(t); s != ingest.StatusLive {
		t.Fatalf("after recovery: %s, want live", s)
	}
	// 0.99: no hiccup, no notification.
	ticks.tick(t, healthEvery, time.Now())
	select {
	case s := <-rec.statuses:
		t.Errorf("unexpected status %s on a healthy check", s)
	default:
	}
}

func TestSimulated_GoesOfflineAndRetries(t *testing.T) {
	sim, ticks := newSimulated(t, ingest.SimulatedConfig{MaxFailedChecks: 2}, scripted(0.0, 0.9, 0.9))
	rec := newRecorder()
	sub := rec.subscribe(sim)
	defer sub.Unsubscribe()
	ticks.awaitStart(t, 2)

	ticks.tick(t, healthEvery, time.Now())
	if s := rec.nextStatus(t); s != ingest.StatusReconnecting {
		t.Fatalf("status = %s, want reconnecting", s)
	}
	ticks.tick(t, healthEvery, time.Now()) // first failed check
	ticks.tick(t, healthEvery, time.Now()) // second failed check
	if s := rec.nextStatus(t); s != ingest.StatusOffline {
		t.Fatalf("status = %s, want offline", s)
	}

	// Offline ignores health ticks.
	ticks.tick(t, healthEvery, time.Now())

	sim.Retry()
	if s := rec.nextStatus(t); s != ingest.StatusReconnecting {
		t.Fatalf("after Retry: %s, want reconnecting", s)
	}
	if sim.Status() != ingest.StatusReconnecting {
		t.Errorf("Status() = %s, want reconnecting", sim.Status())
	}
}

func TestSimulated_EventsFlowWhileReconnecting(t *testing.T) {
	sim, ticks := newSimulated(t, ingest.SimulatedConfig{}, scripted(0.0))
	rec := newRecorder()
	sub := rec.subscribe(sim)
	defer sub.Unsubscribe()
	ticks.awaitStart(t, 2)

	ticks.tick(t, healthEvery, time.Now())
	rec.nextStatus(t)
	ticks.tick(t, eventEvery, time.Now())
	rec.nextEvent(t)
}

func TestSimulated_ZeroHiccupProbabilityNeverDrops(t *testing.T) {
	never := 0.0
	sim, ticks := newSimulated(t, ingest.SimulatedConfig{HiccupProbability: &never}, scripted(0.0, 0.0))
	rec := newRecorder()
	sub := rec.subscribe(sim)
	defer sub.Unsubscribe()
	ticks.awaitStart(t, 2)

	ticks.tick(t, healthEvery, time.Now())
	ticks.tick(t, healthEvery, time.Now())
	// Ticks are handled in order, so the checks ran before this event.
	ticks.tick(t, eventEvery, time.Now())
	rec.nextEvent(t)

	if sim.Status() != ingest.StatusLive {
		t.Errorf("Status() = %s, want live", sim.Status())
	}
	select {
	case st := <-rec.statuses:
		t.Errorf("unexpected status %s", st)
	default:
	}
}

func TestSimulated_UnsubscribeStopsTimersAndIsIdempotent(t *testing.T) {
	sim, ticks := newSimulated(t, ingest.SimulatedConfig{}, scripted())
	rec := newRecorder()
	sub := rec.subscribe(sim)
	ticks.awaitStart(t, 2)

	sub.Unsubscribe()
	sub.Unsubscribe()

	if n := ticks.stopped.Load(); n != 2 {
		t.Errorf("stopped tickers = %d, want 2", n)
	}
	rec.noEvent(t)
}

func TestSimulated_TimersRunWhileAnySubscriberRemains(t *testing.T) {
	sim, ticks := newSimulated(t, ingest.SimulatedConfig{}, scripted())
	first, second := newRecorder(), newRecorder()
	s1 := first.subscribe(sim)
	s2 := second.subscribe(sim)
	defer s2.Unsubscribe()
	ticks.awaitStart(t, 2)

	s1.Unsubscribe()
	if n := ticks.stopped.Load(); n != 0 {
		t.Fatalf("tickers stopped with a subscriber left: %d", n)
	}
	ticks.tick(t, eventEvery, time.Now())
	second.nextEvent(t)
	first.noEvent(t)
}

func TestSimulated_RetryWithoutSubscribers(t *testing.T) {
	sim, ticks := newSimulated(t, ingest.SimulatedConfig{MaxFailedChecks: 1}, scripted(0.0, 0.9))
	rec := newRecorder()
	sub := rec.subscribe(sim)
	ticks.awaitStart(t, 2)
	ticks.tick(t, healthEvery, time.Now())
	ticks.tick(t, healthEvery, time.Now())
	rec.nextStatus(t)
	if s := rec.nextStatus(t); s != ingest.StatusOffline {
		t.Fatalf("status = %s, want offline", s)
	}
	sub.Unsubscribe()

	sim.Retry()
	if sim.Status() != ingest.StatusReconnecting {
		t.Errorf("Status() = %s, want reconnecting", sim.Status())
	}
}

func TestHub_FansOutAndUnsubscribes(t *testing.T) {
	hub := ingest.NewHub(quietLogger())
	a, b := newRecorder(), newRecorder()
	subA := a.subscribe(hub)
	subB := b.subscribe(hub)
	defer subB.Unsubscribe()

	if hub.SubscriberCount() != 2 {
		t.Fatalf("SubscriberCount = %d, want 2", hub.SubscriberCount())
	}
	hub.Publish(notify.Event{ID: "e1"})
	if a.nextEvent(t).ID != "e1" || b.nextEvent(t).ID != "e1" {
		t.Fatal("event not delivered to both subscribers")
	}

	subA.Unsubscribe()
	subA.Unsubscribe()
	if hub.SubscriberCount() != 1 {
		t.Errorf("SubscriberCount after unsubscribe = %d, want 1", hub.SubscriberCount())
	}
	hub.Publish(notify.Event{ID: "e2"})
	b.nextEvent(t)
	a.noEvent(t)
}

func TestHub_SetStatus(t *testing.T) {
	hub := ingest.NewHub(quietLogger())
	rec := newRecorder()
	defer rec.subscribe(hub).Unsubscribe()

	hub.SetStatus(ingest.StatusLive) // unchanged: no callback
	hub.SetStatus(ingest.StatusOffline)
	if s := rec.nextStatus(t); s != ingest.StatusOffline {
		t.Fatalf("status = %s, want offline", s)
	}
	if hub.Status() != ingest.StatusOffline {
		t.Errorf("Status() = %s", hub.Status())
	}
	select {
	case s := <-rec.statuses:
		t.Errorf("extra status %s", s)
	default:
	}
}

func TestHub_Close(t *testing.T) {
	hub := ingest.NewHub(quietLogger())
	rec := newRecorder()
	rec.subscribe(hub)

	hub.Close()
	hub.Close()
	hub.Publish(notify.Event{ID: "late"})
	rec.noEvent(t)

	after := newRecorder()
	after.subscribe(hub).Unsubscribe()
	hub.Publish(notify.Event{ID: "later"})
	after.noEvent(t)
}

func TestGate_HoldsEventsUntilLive(t *testing.T) {
	hub := ingest.NewHub(quietLogger())
	gate := ingest.NewGate(hub, 0, quietLogger())
	rec := newRecorder()
	defer rec.subscribe(gate).Unsubscribe()

	hub.Publish(notify.Event{ID: "live-1"})
	if rec.nextEvent(t).ID != "live-1" {
		t.Fatal("event not passed through while live")
	}

	hub.SetStatus(ingest.StatusReconnecting)
	rec.nextStatus(t)
	hub.Publish(notify.Event{ID: "held-1"})
	hub.Publish(notify.Event{ID: "held-2"})
	rec.noEvent(t)

	hub.SetStatus(ingest.StatusLive)
	if s := rec.nextStatus(t); s != ingest.StatusLive {
		t.Fatalf("status = %s, want live", s)
	}
	if id := rec.nextEvent(t).ID; id != "held-1" {
		t.Errorf("first released = %s, want held-1", id)
	}
	if id := rec.nextEvent(t).ID; id != "held-2" {
		t.Errorf("second released = %s, want held-2", id)
	}
}

func TestGate_BacklogDropsOldest(t *testing.T) {
	hub := ingest.NewHub(quietLogger())
	hub.SetStatus(ingest.StatusOffline)
	gate := ingest.NewGate(hub, 2, quietLogger())
	rec := newRecorder()
	defer rec.subscribe(gate).Unsubscribe()

	for _, id := range []string{"a", "b", "c"} {
		hub.Publish(notify.Event{ID: id})
	}
	hub.SetStatus(ingest.StatusLive)
	rec.nextStatus(t)
	if id := rec.nextEvent(t).ID; id != "b" {
		t.Errorf("first released = %s, want b", id)
	}
	if id := rec.nextEvent(t).ID; id != "c" {
		t.Errorf("second released = %s, want c", id)
	}
	rec.noEvent(t)
}

func TestGate_ForwardsRetry(t *testing.T) {
	sim, ticks := newSimulated(t, ingest.SimulatedConfig{MaxFailedChecks: 1}, scripted(0.0, 0.9))
	gate := ingest.NewGate(sim, 0, quietLogger())
	rec := newRecorder()
	defer rec.subscribe(gate).Unsubscribe()
	ticks.awaitStart(t, 2)

	ticks.tick(t, healthEvery, time.Now())
	ticks.tick(t, healthEvery, time.Now())
	rec.nextStatus(t)
	if s := rec.nextStatus(t); s != ingest.StatusOffline {
		t.Fatalf("status = %s, want offline", s)
	}
	var r ingest.Retrier = gate
	r.Retry()
	if s := rec.nextStatus(t); s != ingest.StatusReconnecting {
		t.Errorf("after Retry: %s, want reconnecting", s)
	}
}

func TestSeedEvents(t *testing.T) {
	now := time.Date(2026, 2, 21, 22, 0, 0, 0, time.UTC)
	evs := ingest.SeedEvents(now)

	if len(evs) != 12 {
		t.Fatalf("len = %d, want 12", len(evs))
	}
	seen := make(map[string]bool)
	for i, e := range evs {
		if seen[e.ID] {
			t.Errorf("duplicate id %s", e.ID)
		}
		seen[e.ID] = true
		if want := now.Add(-time.Duration(i) * ingest.SeedSpacing); !e.Timestamp.Equal(want) {
			t.Errorf("event %d timestamp = %v, want %v", i, e.Timestamp, want)
		}
		if e.Read != (i > 4) {
			t.Errorf("event %d read = %v", i, e.Read)
		}
		if !e.Severity.Valid() || !e.Category.Valid() {
			t.Errorf("event %d has invalid classification %s/%s", i, e.Severity, e.Category)
		}
	}
	if !evs[9].Pinned || evs[9].Severity != notify.SeverityCritical {
		t.Errorf("disk usage event = %+v, want pinned critical", evs[9])
	}

	again := ingest.SeedEvents(now)
	if again[0].ID == evs[0].ID {
		t.Error("SeedEvents reused ids across calls")
	}
	again[0].Action.Label = "changed"
	if evs[0].Action.Label == "changed" {
		t.Error("seed actions are shared between calls")
	}
}
