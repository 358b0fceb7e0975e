package service

import (
	"context"
	"sync"
	"testing"

	"github.com/tsunghuanghsieh/db-trigger-ws-sse/internal/domain/counter"
)

// mockSubscriber implements broadcast.Subscriber for testing.
type mockSubscriber struct {
	mu        sync.Mutex
	delivered []counter.Update
	failWith  error
	closed    int
}

func (m *mockSubscriber) Deliver(_ context.Context, u counter.Update) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	m.delivered = append(m.delivered, u)
	return nil
}

func (m *mockSubscriber) Close() {
	m.mu.Lock()
	m.closed++
	m.mu.Unlock()
}

func (m *mockSubscriber) received() []counter.Update {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]counter.Update(nil), m.delivered...)
}

func TestRegistryRegisterDeregister(t *testing.T) {
	r := NewRegistry()

	h1 := r.Register(&mockSubscriber{})
	h2 := r.Register(&mockSubscriber{})
	if h1 == h2 {
		t.Fatal("expected unique handles")
	}
	if r.Len() != 2 {
		t.Fatalf("expected 2 subscribers, got %d", r.Len())
	}

	r.Deregister(h1)
	if r.Len() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", r.Len())
	}
}

func TestRegistryDeregisterIdempotent(t *testing.T) {
	r := NewRegistry()

	// Never-registered handle is a no-op.
	r.Deregister("nope")

	h := r.Register(&mockSubscriber{})
	r.Deregister(h)
	r.Deregister(h)

	if r.Len() != 0 {
		t.Fatalf("expected empty registry, got %d", r.Len())
	}
}

func TestRegistrySnapshotIsolation(t *testing.T) {
	r := NewRegistry()
	r.Register(&mockSubscriber{})
	h := r.Register(&mockSubscriber{})

	snap := r.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected snapshot of 2, got %d", len(snap))
	}

	// Mutating the registry does not affect the snapshot already taken.
	r.Deregister(h)
	if len(snap) != 2 {
		t.Fatalf("snapshot changed after deregister: %d", len(snap))
	}
	if len(r.Snapshot()) != 1 {
		t.Fatalf("expected 1 in fresh snapshot, got %d", len(r.Snapshot()))
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h := r.Register(&mockSubscriber{})
			r.Snapshot()
			r.Deregister(h)
		}()
	}
	wg.Wait()

	if r.Len() != 0 {
		t.Fatalf("expected empty registry after churn, got %d", r.Len())
	}
}
