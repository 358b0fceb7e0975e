package sse

import (
	"bufio"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tsunghuanghsieh/db-trigger-ws-sse/internal/domain/counter"
	"github.com/tsunghuanghsieh/db-trigger-ws-sse/internal/service"
)

// mockStore implements counterstore.Store for testing.
type mockStore struct {
	value atomic.Int64
}

func (m *mockStore) Current(context.Context) (int64, error)   { return m.value.Load(), nil }
func (m *mockStore) Increment(context.Context) (int64, error) { return m.value.Add(1), nil }

func TestWriteEventFraming(t *testing.T) {
	var buf bytes.Buffer
	if err := writeEvent(&buf, counter.Update{Count: 42}); err != nil {
		t.Fatalf("writeEvent: %v", err)
	}
	if got := buf.String(); got != "data: {\"count\":42}\n\n" {
		t.Fatalf("unexpected frame: %q", got)
	}
}

func TestSubscriberLatestWins(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub := &subscriber{ctx: ctx, cancel: cancel, pending: make(chan counter.Update, 1)}

	// Three deliveries without a reader: only the newest survives.
	for i := int64(1); i <= 3; i++ {
		if err := sub.Deliver(context.Background(), counter.Update{Count: i}); err != nil {
			t.Fatalf("deliver %d: %v", i, err)
		}
	}

	select {
	case u := <-sub.pending:
		if u.Count != 3 {
			t.Fatalf("expected latest value 3, got %d", u.Count)
		}
	default:
		t.Fatal("expected a pending update")
	}
}

func TestSubscriberDeliverAfterClose(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sub := &subscriber{ctx: ctx, cancel: cancel, pending: make(chan counter.Update, 1)}

	sub.Close()
	if err := sub.Deliver(context.Background(), counter.Update{Count: 1}); err == nil {
		t.Fatal("expected error delivering to closed subscriber")
	}
}

func readEvent(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	var data string
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		if line == "" {
			return data
		}
		data = strings.TrimPrefix(line, "data: ")
	}
}

func waitForLen(t *testing.T, reg *service.Registry, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for reg.Len() != want {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for registry length %d, have %d", want, reg.Len())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSSEStream(t *testing.T) {
	reg := service.NewRegistry()
	store := &mockStore{}
	store.value.Store(7)

	srv := httptest.NewServer(NewHandler(reg, store))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET stream: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected event-stream content type, got %q", ct)
	}

	reader := bufio.NewReader(resp.Body)

	// Initial value is queued before the stream starts.
	if got := readEvent(t, reader); got != `{"count":7}` {
		t.Fatalf("expected initial event, got %q", got)
	}

	waitForLen(t, reg, 1)

	store.value.Store(8)
	service.NewDispatcher(reg, nil).Broadcast(context.Background(), 8)

	if got := readEvent(t, reader); got != `{"count":8}` {
		t.Fatalf("expected pushed event, got %q", got)
	}
}

func TestSSEDisconnectDeregisters(t *testing.T) {
	reg := service.NewRegistry()
	srv := httptest.NewServer(NewHandler(reg, &mockStore{}))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET stream: %v", err)
	}

	waitForLen(t, reg, 1)

	_ = resp.Body.Close()
	waitForLen(t, reg, 0)
}
