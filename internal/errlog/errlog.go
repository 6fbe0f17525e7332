// Package errlog collects error-level log output for the current cycle so it
// can be persisted alongside the cycle's readings.
package errlog

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
)

// Buffer accumulates rendered error records. It is shared by every Handler
// derived from it.
type Buffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

// New returns an empty buffer.
func New() *Buffer { return &Buffer{} }

// Text returns everything recorded since the last Reset.
func (b *Buffer) Text() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Len reports the number of buffered bytes.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Len()
}

// Reset discards the buffered text.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Reset()
}

func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// Wrap returns a handler that forwards every record to next and also renders
// records at slog.LevelError or above into b.
func (b *Buffer) Wrap(next slog.Handler) slog.Handler {
	return &Handler{
		next:    next,
		capture: slog.NewTextHandler(b, &slog.HandlerOptions{Level: slog.LevelError}),
	}
}

// Handler tees records to the wrapped handler and the error buffer.
type Handler struct {
	next    slog.Handler
	capture slog.Handler
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level) || h.capture.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	var err error
	if h.next.Enabled(ctx, r.Level) {
		err = h.next.Handle(ctx, r)
	}
	if h.capture.Enabled(ctx, r.Level) {
		if cerr := h.capture.Handle(ctx, r.Clone()); err == nil {
			err = cerr
		}
	}
	return err
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{next: h.next.WithAttrs(attrs), capture: h.capture.WithAttrs(attrs)}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{next: h.next.WithGroup(name), capture: h.capture.WithGroup(name)}
}
