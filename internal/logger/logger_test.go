package logger

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/tsunghuanghsieh/db-trigger-ws-sse/internal/config"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}

	for _, c := range cases {
		if got := parseLevel(c.in); got != c.want {
			t.Errorf("parseLevel(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestNewSync(t *testing.T) {
	log, closer := New(config.Logging{Level: "info", Service: "test"})
	if log == nil {
		t.Fatal("expected non-nil logger")
	}
	closer.Close()
}

// countingHandler records how many records it handled.
type countingHandler struct {
	handled atomic.Int64
}

func (h *countingHandler) Enabled(context.Context, slog.Level) bool { return true }
func (h *countingHandler) Handle(context.Context, slog.Record) error {
	h.handled.Add(1)
	return nil
}
func (h *countingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *countingHandler) WithGroup(string) slog.Handler      { return h }

func TestAsyncHandlerFlushOnClose(t *testing.T) {
	inner := &countingHandler{}
	h := NewAsyncHandler(inner, 16, 1)
	log := slog.New(h)

	for range 10 {
		log.Info("event")
	}
	h.Close()

	if got := inner.handled.Load(); got != 10 {
		t.Fatalf("expected 10 handled records after close, got %d", got)
	}
}

func TestAsyncHandlerCloseIdempotent(t *testing.T) {
	h := NewAsyncHandler(&countingHandler{}, 1, 1)
	h.Close()
	h.Close()
}

func TestRequestIDContext(t *testing.T) {
	ctx := context.Background()
	if RequestID(ctx) != "" {
		t.Fatal("expected empty request ID on fresh context")
	}

	ctx = WithRequestID(ctx, "abc123")
	if got := RequestID(ctx); got != "abc123" {
		t.Fatalf("expected abc123, got %q", got)
	}
}
