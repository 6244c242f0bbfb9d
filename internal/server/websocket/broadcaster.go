// Package websocket streams engine changes to connected clients.
//
// Design notes
//
//   - Each WebSocket client has a dedicated buffered channel of JSON-encoded
//     change frames. A non-blocking send is used so that a slow or
//     disconnected client never applies back-pressure to the engine loop.
//   - Named clients are tracked in a sync.Map keyed by client ID to allow
//     concurrent reads without a global lock on the hot broadcast path.
//   - Anonymous subscribers (the TUI) receive notify.Change values directly
//     via a second sync.Map.
//   - Closing a subscription or unregistering a client signals the associated
//     pump goroutine to exit cleanly.
package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/openclaw/notifyd/internal/notify"
)

// ChangeData is the payload of a Message.
type ChangeData struct {
	IDs    []string `json:"ids,omitempty"`
	Status string   `json:"status,omitempty"`
	At     string   `json:"at"`
}

// Message is the JSON envelope pushed to WebSocket clients. Type is the
// notify.ChangeKind.
type Message struct {
	Type string     `json:"type"`
	Data ChangeData `json:"data"`
}

// Client represents a single connected WebSocket client. It is created by
// Broadcaster.Register and is valid until Broadcaster.Unregister is called.
type Client struct {
	id      string
	send    chan []byte
	Dropped atomic.Int64 // incremented when the send buffer is full
}

// ID returns the client's unique identifier.
func (c *Client) ID() string { return c.id }

// Send returns a receive-only channel on which JSON-encoded frames are
// delivered. The channel is closed when the client is unregistered.
func (c *Client) Send() <-chan []byte { return c.send }

// Broadcaster fans engine changes out to all connected WebSocket clients
// (Register/Unregister/Broadcast) and to all anonymous channel subscribers
// (Subscribe/Unsubscribe). Publish feeds both and satisfies
// engine.Publisher. It is safe for concurrent use.
type Broadcaster struct {
	clients   sync.Map // map[string]*Client
	clientCnt atomic.Int64

	subs sync.Map // map[<-chan notify.Change]chan notify.Change

	bufSize int
	logger  *slog.Logger

	closed    atomic.Bool
	closeOnce sync.Once
}

// NewBroadcaster creates a Broadcaster. bufSize is the per-client and
// per-subscriber buffer depth; 0 selects 64.
func NewBroadcaster(logger *slog.Logger, bufSize int) *Broadcaster {
	if bufSize <= 0 {
		bufSize = 64
	}
	return &Broadcaster{
		bufSize: bufSize,
		logger:  logger,
	}
}

// Register creates a new Client with the given id. The caller must call
// Unregister(id) when the client disconnects.
//
// If the broadcaster is already closed, Register returns a Client whose Send
// channel is already closed.
func (b *Broadcaster) Register(id string) *Client {
	c := &Client{
		id:   id,
		send: make(chan []byte, b.bufSize),
	}
	if b.closed.Load() {
		close(c.send)
		return c
	}
	b.clients.Store(id, c)
	b.clientCnt.Add(1)
	return c
}

// Unregister removes the client with id and closes its Send channel.
// Unknown ids are ignored.
func (b *Broadcaster) Unregister(id string) {
	if v, loaded := b.clients.LoadAndDelete(id); loaded {
		c := v.(*Client)
		close(c.send)
		b.clientCnt.Add(-1)
	}
}

// ClientCount returns the number of currently registered WebSocket clients.
func (b *Broadcaster) ClientCount() int {
	return int(b.clientCnt.Load())
}

// Broadcast marshals msg to JSON and delivers it to every registered client
// with a non-blocking send. When a client's buffer is full the message is
// dropped and the client's Dropped counter is incremented.
func (b *Broadcaster) Broadcast(msg Message) {
	if b.closed.Load() {
		return
	}

	raw, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error("websocket broadcaster: marshal failed", slog.Any("error", err))
		return
	}

	b.clients.Range(func(_, v any) bool {
		c := v.(*Client)
		select {
		case c.send <- raw:
		default:
			c.Dropped.Add(1)
			b.logger.Warn("websocket broadcaster: client buffer full, dropping change",
				slog.String("client_id", c.id),
				slog.String("type", msg.Type),
			)
		}
		return true
	})
}

// Subscribe registers an anonymous subscriber. When the buffer is full a
// Publish drops the change for that subscriber rather than blocking.
//
// The channel is closed when ctx is cancelled, on Unsubscribe, or on Close.
func (b *Broadcaster) Subscribe(ctx context.Context) <-chan notify.Change {
	ch := make(chan notify.Change, b.bufSize)
	if b.closed.Load() {
		close(ch)
		return ch
	}
	b.subs.Store((<-chan notify.Change)(ch), ch)

	if ctx != nil {
		go func() {
			<-ctx.Done()
			b.Unsubscribe(ch)
		}()
	}

	return ch
}

// Unsubscribe removes the subscription associated with ch and closes it.
// It is safe to call after Close.
func (b *Broadcaster) Unsubscribe(ch <-chan notify.Change) {
	if actual, loaded := b.subs.LoadAndDelete(ch); loaded {
		close(actual.(chan notify.Change))
	}
}

// Publish delivers c to every anonymous subscriber and broadcasts it as a
// Message to every WebSocket client. It never blocks.
func (b *Broadcaster) Publish(c notify.Change) {
	if b.closed.Load() {
		return
	}

	b.subs.Range(func(_, value any) bool {
		ch := value.(chan notify.Change)
		select {
		case ch <- c:
		default:
			b.logger.Warn("websocket broadcaster: subscriber buffer full, dropping change",
				slog.String("type", string(c.Kind)),
			)
		}
		return true
	})

	b.Broadcast(Message{
		Type: string(c.Kind),
		Data: ChangeData{
			IDs:    c.IDs,
			Status: c.Status,
			At:     c.At.UTC().Format(time.RFC3339Nano),
		},
	})
}

// Close removes all subscriptions and registered clients and closes every
// channel. Afterwards Publish and Broadcast are no-ops and Subscribe returns
// a closed channel.
func (b *Broadcaster) Close() {
	b.closeOnce.Do(func() {
		b.closed.Store(true)

		b.subs.Range(func(key, value any) bool {
			b.subs.Delete(key)
			close(value.(chan notify.Change))
			return true
		})

		b.clients.Range(func(key, value any) bool {
			b.clients.Delete(key)
			c := value.(*Client)
			close(c.send)
			b.clientCnt.Add(-1)
			return true
		})
	})
}
