package journal

import (
	"log/slog"
	"sync"
)

// Writer appends mutations to a Journal from a background goroutine so that
// callers never wait on file I/O. Mutations are written in the order they
// were appended. Write errors are logged and dropped.
//
// Append may be called from any goroutine. Close flushes everything queued,
// then closes the Journal.
type Writer struct {
	journal *Journal
	logger  *slog.Logger

	mu     sync.Mutex
	queue  []Mutation
	closed bool

	wake      chan struct{}
	stopCh    chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once
	closeErr  error

	// onWrite, when set, is called after every append attempt.
	onWrite func(Record, error)
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithAppendHook registers fn to run after each background append.
func WithAppendHook(fn func(Record, error)) WriterOption {
	return func(w *Writer) { w.onWrite = fn }
}

// NewWriter starts a writer goroutine over j. The Writer owns j.
func NewWriter(j *Journal, logger *slog.Logger, opts ...WriterOption) *Writer {
	w := &Writer{
		journal: j,
		logger:  logger,
		wake:    make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	go w.writeLoop()
	return w
}

// Append queues m and returns immediately.
func (w *Writer) Append(m Mutation) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		w.logger.Warn("journal: writer closed, mutation dropped", slog.String("action", string(m.Action)))
		return
	}
	w.queue = append(w.queue, m)
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Close writes any queued mutations, stops the writer and closes the
// Journal. It is idempotent and returns the Journal's close error.
func (w *Writer) Close() error {
	w.closeOnce.Do(func() {
		w.mu.Lock()
		w.closed = true
		w.mu.Unlock()
		close(w.stopCh)
		<-w.doneCh
		w.closeErr = w.journal.Close()
	})
	return w.closeErr
}

func (w *Writer) writeLoop() {
	defer close(w.doneCh)
	for {
		select {
		case <-w.wake:
			w.drain()
		case <-w.stopCh:
			w.drain()
			return
		}
	}
}

func (w *Writer) drain() {
	w.mu.Lock()
	batch := w.queue
	w.queue = nil
	w.mu.Unlock()

	for _, m := range batch {
		r, err := w.journal.Record(m)
		if err != nil {
			w.logger.Warn("journal: append failed",
				slog.String("action", string(m.Action)),
				slog.Any("error", err),
			)
		}
		if w.onWrite != nil {
			w.onWrite(r, err)
		}
	}
}
