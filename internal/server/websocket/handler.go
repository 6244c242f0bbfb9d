package websocket

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultPingInterval is how often an idle stream is pinged.
const DefaultPingInterval = 30 * time.Second

// Handler serves the change stream. After the upgrade it sends the optional
// greeting, then forwards every frame the Broadcaster queues for the client.
// Client pings are answered; a client close frame is echoed and ends the
// stream. Data frames from the client are ignored.
type Handler struct {
	bc           *Broadcaster
	logger       *slog.Logger
	writeTimeout time.Duration
	pingInterval time.Duration
	greeting     func(context.Context) (Message, error)
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithGreeting sends the message returned by fn as the first frame of every
// connection. An error from fn skips the greeting.
func WithGreeting(fn func(context.Context) (Message, error)) HandlerOption {
	return func(h *Handler) { h.greeting = fn }
}

// WithPingInterval overrides DefaultPingInterval. Zero disables pings.
func WithPingInterval(d time.Duration) HandlerOption {
	return func(h *Handler) { h.pingInterval = d }
}

// NewHandler creates a Handler backed by bc. writeTimeout bounds every frame
// write; ≤ 0 selects 10 seconds.
func NewHandler(bc *Broadcaster, logger *slog.Logger, writeTimeout time.Duration, opts ...HandlerOption) *Handler {
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	h := &Handler{
		bc:           bc,
		logger:       logger,
		writeTimeout: writeTimeout,
		pingInterval: DefaultPingInterval,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, rd, err := upgrade(w, r)
	if err != nil {
		var ue *upgradeError
		if errors.As(err, &ue) {
			http.Error(w, ue.msg, ue.status)
			return
		}
		h.logger.Error("websocket: upgrade failed", slog.Any("error", err))
		return
	}

	clientID := uuid.NewString()
	client := h.bc.Register(clientID)
	defer h.bc.Unregister(clientID)

	st := &stream{conn: conn, writeTimeout: h.writeTimeout}
	defer st.close()

	log := h.logger.With(slog.String("client_id", clientID))
	log.Info("websocket: client connected", slog.String("remote_addr", conn.RemoteAddr().String()))

	if h.greeting != nil {
		if err := h.greet(r.Context(), st); err != nil {
			log.Warn("websocket: greeting failed", slog.Any("error", err))
		}
	}

	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		h.readClient(st, rd, log)
	}()
	h.forward(st, client, clientGone, log)
}

func (h *Handler) greet(ctx context.Context, st *stream) error {
	msg, err := h.greeting(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return st.write(opText, raw)
}

// forward drains the client's queue into text frames and keeps the link
// alive with pings until the client goes away or the Broadcaster closes.
func (h *Handler) forward(st *stream, c *Client, clientGone <-chan struct{}, log *slog.Logger) {
	var pingC <-chan time.Time
	if h.pingInterval > 0 {
		t := time.NewTicker(h.pingInterval)
		defer t.Stop()
		pingC = t.C
	}

	for {
		select {
		case <-clientGone:
			return
		case raw, ok := <-c.Send():
			if !ok {
				_ = st.write(opClose, closeGoingAway)
				return
			}
			if err := st.write(opText, raw); err != nil {
				log.Warn("websocket: write change failed", slog.Any("error", err))
				return
			}
		case <-pingC:
			if err := st.write(opPing, nil); err != nil {
				log.Warn("websocket: ping failed", slog.Any("error", err))
				return
			}
		}
	}
}

// readClient handles control frames until the client closes or the
// connection fails.
func (h *Handler) readClient(st *stream, rd *bufio.Reader, log *slog.Logger) {
	defer func() {
		if v := recover(); v != nil {
			log.Error("websocket: read loop panic recovered", slog.Any("recover", v))
		}
	}()
	defer st.close()

	for {
		f, err := readFrame(rd)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Debug("websocket: dropping client", slog.Any("error", err))
			}
			return
		}
		switch f.op {
		case opPing:
			if err := st.write(opPong, f.payload); err != nil {
				return
			}
		case opClose:
			_ = st.write(opClose, closeReply(f.payload))
			log.Debug("websocket: client closed the stream")
			return
		}
	}
}

// stream serialises frame writes from the forward loop and the reader.
type stream struct {
	conn         net.Conn
	writeTimeout time.Duration

	mu        sync.Mutex
	buf       []byte
	closeOnce sync.Once
}

func (s *stream) write(op byte, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		return err
	}
	s.buf = appendFrame(s.buf[:0], op, payload)
	_, err := s.conn.Write(s.buf)
	return err
}

func (s *stream) close() {
	s.closeOnce.Do(func() { s.conn.Close() })
}

type upgradeError struct {
	status int
	msg    string
}

func (e *upgradeError) Error() string { return e.msg }

// upgrade validates the handshake (RFC 6455 §4.2), hijacks the connection
// and writes the 101 response.
func upgrade(w http.ResponseWriter, r *http.Request) (net.Conn, *bufio.Reader, error) {
	if !strings.EqualFold(r.Header.Get("Upgrade"), "websocket") ||
		!strings.Contains(strings.ToLower(r.Header.Get("Connection")), "upgrade") {
		return nil, nil, &upgradeError{http.StatusUpgradeRequired, "websocket upgrade required"}
	}
	key := r.Header.Get("Sec-WebSocket-Key")
	if key == "" {
		return nil, nil, &upgradeError{http.StatusBadRequest, "missing Sec-WebSocket-Key"}
	}
	hj, ok := w.(http.Hijacker)
	if !ok {
		return nil, nil, &upgradeError{http.StatusInternalServerError, "server does not support hijacking"}
	}

	conn, rw, err := hj.Hijack()
	if err != nil {
		return nil, nil, err
	}
	_, _ = rw.WriteString("HTTP/1.1 101 Switching Protocols\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Accept: " + acceptKey(key) + "\r\n\r\n")
	if err := rw.Flush(); err != nil {
		conn.Close()
		return nil, nil, err
	}
	return conn, rw.Reader, nil
}
