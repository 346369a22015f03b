package session

import (
	"context"
	"testing"
	"time"

	"hrportal/internal/domain/auth"
)

func TestRegistryReusesInitializedProvider(t *testing.T) {
	store := NewMemoryStore()
	data, _ := EncodeSnapshot(Session{ID: "1", FullName: "A", Email: "a@b.com", Role: auth.RoleEmployee})
	_ = store.Save(context.Background(), SlotFor("client-1"), data)

	reg := NewRegistry(func(slot string) *Provider {
		return NewProvider(slot, store, newStubExchange())
	})

	first := reg.Get(context.Background(), "client-1")
	if first.Loading() || !first.Authenticated() {
		t.Fatal("expected restored, settled provider")
	}
	if first.Slot() != "hr_portal_user:client-1" {
		t.Fatalf("unexpected slot %s", first.Slot())
	}
	if reg.Get(context.Background(), "client-1") != first {
		t.Fatal("expected the same provider for the same client")
	}
	if other := reg.Get(context.Background(), "client-2"); other == first || other.Authenticated() {
		t.Fatal("clients must not share sessions")
	}
	if reg.Len() != 2 {
		t.Fatalf("expected 2 providers, got %d", reg.Len())
	}
}

func TestRegistryInitializesWithCancelledContext(t *testing.T) {
	reg := NewRegistry(func(slot string) *Provider {
		return NewProvider(slot, NewMemoryStore(), newStubExchange())
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if p := reg.Get(ctx, "client-1"); p.Loading() {
		t.Fatal("expected provider to finish booting")
	}
}

func TestRegistryEvictsIdleProviders(t *testing.T) {
	now := time.Now()
	reg := NewRegistry(func(slot string) *Provider {
		return NewProvider(slot, NewMemoryStore(), newStubExchange())
	})
	reg.now = func() time.Time { return now }

	reg.Get(context.Background(), "stale")
	now = now.Add(time.Hour)
	reg.Get(context.Background(), "active")

	if evicted := reg.Evict(30 * time.Minute); evicted != 1 {
		t.Fatalf("expected 1 eviction, got %d", evicted)
	}
	if reg.Len() != 1 {
		t.Fatalf("expected 1 provider left, got %d", reg.Len())
	}
}

func TestRegistryOldClientIDLosesMovedSession(t *testing.T) {
	store := NewMemoryStore()
	reg := NewRegistry(func(slot string) *Provider {
		return NewProvider(slot, store, newStubExchange())
	})
	ctx := context.Background()

	p := reg.Get(ctx, "planted")
	if _, err := p.Login(ctx, "admin@example.com", "password123", MoveTo(SlotFor("fresh"))); err != nil {
		t.Fatalf("login: %v", err)
	}

	// Before Move runs, the old id must already be anonymous.
	if old := reg.Get(ctx, "planted"); old == p || old.Authenticated() {
		t.Fatal("old client id still reaches the signed-in provider")
	}
	if got := reg.Get(ctx, "fresh"); got != p || !got.Authenticated() {
		t.Fatal("expected the moved provider under the new client id")
	}
}

func TestRegistryMoveAndForget(t *testing.T) {
	reg := NewRegistry(func(slot string) *Provider {
		return NewProvider(slot, NewMemoryStore(), newStubExchange())
	})
	ctx := context.Background()

	p := reg.Get(ctx, "a")
	reg.Move("a", "b")
	if reg.Get(ctx, "a") != p {
		t.Fatal("move must be ignored while the provider still owns the old slot")
	}

	if _, err := p.Login(ctx, "anyone@else.com", "x", MoveTo(SlotFor("b"))); err != nil {
		t.Fatalf("login: %v", err)
	}
	reg.Move("a", "b")
	if reg.Len() != 1 || reg.Get(ctx, "b") != p {
		t.Fatal("expected provider re-keyed under b")
	}

	reg.Forget("b")
	if reg.Len() != 0 {
		t.Fatalf("expected empty registry, got %d", reg.Len())
	}
}

func TestRegistryRefreshCountsWrites(t *testing.T) {
	store := NewMemoryStore()
	reg := NewRegistry(func(slot string) *Provider {
		return NewProvider(slot, store, newStubExchange())
	})
	ctx := context.Background()

	if _, err := reg.Get(ctx, "signed-in").Login(ctx, "anyone@else.com", "x"); err != nil {
		t.Fatalf("login: %v", err)
	}
	reg.Get(ctx, "anonymous")

	if n := reg.Refresh(ctx, 0); n != 1 {
		t.Fatalf("expected 1 refreshed snapshot, got %d", n)
	}
}
