package websocket_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/openclaw/notifyd/internal/notify"
	ws "github.com/openclaw/notifyd/internal/server/websocket"
)

func newTestBroadcaster() *ws.Broadcaster {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return ws.NewBroadcaster(logger, 16)
}

// TestBroadcasterRegisterUnregister verifies that Register/Unregister work and
// that ClientCount tracks the number of connected clients.
func TestBroadcasterRegisterUnregister(t *testing.T) {
	t.Parallel()

	bc := newTestBroadcaster()

	if got := bc.ClientCount(); got != 0 {
		t.Fatalf("expected 0 clients after init, got %d", got)
	}

	c1 := bc.Register("c1")
	c2 := bc.Register("c2")

	if got := bc.ClientCount(); got != 2 {
		t.Fatalf("expected 2 clients, got %d", got)
	}

	if c1.ID() != "c1" {
		t.Errorf("client ID mismatch: got %q, want %q", c1.ID(), "c1")
	}

	bc.Unregister("c1")
	if got := bc.ClientCount(); got != 1 {
		t.Fatalf("expected 1 client after unregister, got %d", got)
	}

	// Send channel should be closed after unregister.
	select {
	case _, ok := <-c1.Send():
		if ok {
			t.Error("expected send channel to be closed after Unregister")
		}
	default:
		t.Error("expected send channel to be closed (readable), not blocked")
	}

	bc.Unregister("c2")
	_ = c2
	if got := bc.ClientCount(); got != 0 {
		t.Fatalf("expected 0 clients, got %d", got)
	}
}

// TestBroadcasterBroadcast verifies that Broadcast delivers the message to all
// registered clients with correct JSON structure.
func TestBroadcasterBroadcast(t *testing.T) {
	t.Parallel()

	bc := newTestBroadcaster()

	c1 := bc.Register("c1")
	c2 := bc.Register("c2")
	defer bc.Unregister("c1")
	defer bc.Unregister("c2")

	bc.Broadcast(ws.Message{
		Type: "updated",
		Data: ws.ChangeData{IDs: []string{"n-1"}, At: "2026-02-21T22:00:00Z"},
	})

	deadline := time.After(100 * time.Millisecond)
	for _, ch := range []<-chan []byte{c1.Send(), c2.Send()} {
		select {
		case raw, ok := <-ch:
			if !ok {
				t.Fatal("send channel closed unexpectedly")
			}
			var got ws.Message
			if err := json.Unmarshal(raw, &got); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got.Type != "updated" {
				t.Errorf("got type %q, want %q", got.Type, "updated")
			}
			if len(got.Data.IDs) != 1 || got.Data.IDs[0] != "n-1" {
				t.Errorf("got ids %v, want [n-1]", got.Data.IDs)
			}
		case <-deadline:
			t.Fatal("timeout waiting for broadcast message")
		}
	}
}

// TestBroadcasterPublish verifies that Publish reaches both anonymous
// subscribers and WebSocket clients, with the change kind as the frame type.
func TestBroadcasterPublish(t *testing.T) {
	t.Parallel()

	bc := newTestBroadcaster()
	defer bc.Close()

	sub := bc.Subscribe(context.Background())
	c := bc.Register("c1")

	at := time.Date(2026, 2, 21, 22, 0, 0, 0, time.UTC)
	bc.Publish(notify.Change{Kind: notify.ChangeConnection, Status: "offline", At: at})

	select {
	case got := <-sub:
		if got.Kind != notify.ChangeConnection || got.Status != "offline" {
			t.Errorf("subscriber got %+v", got)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("subscriber did not receive the change")
	}

	select {
	case raw := <-c.Send():
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		data, _ := m["data"].(map[string]any)
		if m["type"] != "connection" || data["status"] != "offline" || data["at"] != "2026-02-21T22:00:00Z" {
			t.Errorf("frame = %s", raw)
		}
		if _, ok := data["ids"]; ok {
			t.Errorf("empty ids should be omitted: %s", raw)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("client did not receive the frame")
	}
}

// TestBroadcasterSubscribeContextCancel verifies that cancelling the context
// closes the subscription channel.
func TestBroadcasterSubscribeContextCancel(t *testing.T) {
	t.Parallel()

	bc := newTestBroadcaster()
	ctx, cancel := context.WithCancel(context.Background())
	sub := bc.Subscribe(ctx)
	cancel()

	select {
	case _, ok := <-sub:
		if ok {
			t.Error("expected closed channel after cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("subscription not closed after cancel")
	}
	// A second Unsubscribe is a no-op.
	bc.Unsubscribe(sub)
}

// TestBroadcasterClose verifies that Close releases every channel and that
// later calls are no-ops.
func TestBroadcasterClose(t *testing.T) {
	t.Parallel()

	bc := newTestBroadcaster()
	sub := bc.Subscribe(context.Background())
	c := bc.Register("c1")
	bc.Close()
	bc.Close()

	if _, ok := <-sub; ok {
		t.Error("subscriber channel open after Close")
	}
	if _, ok := <-c.Send(); ok {
		t.Error("client channel open after Close")
	}
	if bc.ClientCount() != 0 {
		t.Errorf("ClientCount = %d after Close", bc.ClientCount())
	}

	bc.Publish(notify.Change{Kind: notify.ChangeView})
	if _, ok := <-bc.Subscribe(context.Background()); ok {
		t.Error("Subscribe after Close should return a closed channel")
	}
	if _, ok := <-bc.Register("late").Send(); ok {
		t.Error("Register after Close should return a closed channel")
	}
}

// TestBroadcasterDropsWhenBufferFull verifies that a slow client's send buffer
// fills up and subsequent messages are dropped (Dropped counter is incremented).
func TestBroadcasterDropsWhenBufferFull(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	bc := ws.NewBroadcaster(logger, 2) // tiny buffer

	c := bc.Register("slow-client")
	defer bc.Unregister("slow-client")

	msg := ws.Message{Type: "view"}

	bc.Broadcast(msg)
	bc.Broadcast(msg)
	bc.Broadcast(msg)

	if got := c.Dropped.Load(); got < 1 {
		t.Errorf("expected at least 1 drop, got %d", got)
	}
}

// TestBroadcasterUnregisterNonexistent verifies that unregistering an unknown
// client ID is a no-op and does not panic.
func TestBroadcasterUnregisterNonexistent(t *testing.T) {
	t.Parallel()

	bc := newTestBroadcaster()
	bc.Unregister("does-not-exist")
}

// TestBroadcastEmptyRoom verifies that broadcasting with no clients registered
// does not panic or block.
func TestBroadcastEmptyRoom(t *testing.T) {
	t.Parallel()

	bc := newTestBroadcaster()
	bc.Broadcast(ws.Message{Type: "view"})
	bc.Publish(notify.Change{Kind: notify.ChangeView})
}
