package logging

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// DefaultQueueSize is the default number of records an AsyncHandler buffers.
const DefaultQueueSize = 1024

type asyncEntry struct {
	handler slog.Handler
	record  slog.Record
}

// asyncCore is shared by an AsyncHandler and every handler derived from it.
type asyncCore struct {
	mu      sync.RWMutex
	closed  bool
	queue   chan asyncEntry
	done    chan struct{}
	dropped atomic.Uint64
}

// AsyncHandler queues records on a bounded channel and writes them from a
// single goroutine. When the queue is full the record is dropped and
// counted, so Handle never blocks.
type AsyncHandler struct {
	inner slog.Handler
	core  *asyncCore
}

// NewAsyncHandler wraps inner. queueSize <= 0 uses DefaultQueueSize.
func NewAsyncHandler(inner slog.Handler, queueSize int) *AsyncHandler {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	core := &asyncCore{
		queue: make(chan asyncEntry, queueSize),
		done:  make(chan struct{}),
	}
	go core.run()
	return &AsyncHandler{inner: inner, core: core}
}

func (c *asyncCore) run() {
	defer close(c.done)
	for e := range c.queue {
		_ = e.handler.Handle(context.Background(), e.record)
	}
}

// Enabled implements slog.Handler.
func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *AsyncHandler) Handle(ctx context.Context, r slog.Record) error {
	h.core.mu.RLock()
	defer h.core.mu.RUnlock()

	if h.core.closed {
		// Late records after Close are written inline.
		return h.inner.Handle(ctx, r)
	}

	select {
	case h.core.queue <- asyncEntry{handler: h.inner, record: r.Clone()}:
	default:
		h.core.dropped.Add(1)
	}
	return nil
}

// WithAttrs implements slog.Handler.
func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithAttrs(attrs), core: h.core}
}

// WithGroup implements slog.Handler.
func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithGroup(name), core: h.core}
}

// Dropped returns the number of records discarded because the queue was full.
func (h *AsyncHandler) Dropped() uint64 {
	return h.core.dropped.Load()
}

// Close flushes queued records and stops the writer goroutine. It is safe to
// call more than once.
func (h *AsyncHandler) Close() {
	h.core.mu.Lock()
	if !h.core.closed {
		h.core.closed = true
		close(h.core.queue)
	}
	h.core.mu.Unlock()
	<-h.core.done
}
