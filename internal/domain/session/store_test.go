package session

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"hrportal/internal/domain/auth"
)

func TestSnapshotEncodeRejectsPartialSession(t *testing.T) {
	if _, err := EncodeSnapshot(Session{ID: "1", Role: auth.RoleAdmin}); !errors.Is(err, ErrMalformedSnapshot) {
		t.Fatalf("expected malformed error, got %v", err)
	}
}

func TestSnapshotCarriesVersion(t *testing.T) {
	data, err := EncodeSnapshot(Session{ID: "1", FullName: "A", Email: "a@b.com", Role: auth.RoleEmployee, Avatar: "/placeholder.svg"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := `{"version":1,"id":"1","fullName":"A","email":"a@b.com","role":"employee","avatar":"/placeholder.svg"}`
	if string(data) != want {
		t.Fatalf("unexpected snapshot layout:\n got %s\nwant %s", data, want)
	}
}

func TestFileStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}

	if _, err := store.Load(ctx, testSlot); !errors.Is(err, ErrSnapshotNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := store.Save(ctx, testSlot, []byte("one")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Save(ctx, testSlot, []byte("two")); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, err := store.Load(ctx, testSlot)
	if err != nil || string(got) != "two" {
		t.Fatalf("unexpected load %q err=%v", got, err)
	}
	if err := store.Delete(ctx, testSlot); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Delete(ctx, testSlot); err != nil {
		t.Fatalf("delete of missing slot must be a no-op: %v", err)
	}
	if err := store.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestFileStorePurge(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	_ = store.Save(ctx, "old", []byte("x"))
	_ = store.Save(ctx, "fresh", []byte("y"))
	past := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(store.path("old"), past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	removed, err := store.Purge(ctx, time.Hour)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 purged snapshot, got %d", removed)
	}
	if _, err := store.Load(ctx, "fresh"); err != nil {
		t.Fatalf("fresh snapshot should survive: %v", err)
	}
}

func TestNewFileStoreRequiresDir(t *testing.T) {
	if _, err := NewFileStore(" "); err == nil {
		t.Fatal("expected error for empty dir")
	}
}

func TestMemoryStoreCopiesData(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	data := []byte("abc")
	_ = store.Save(ctx, testSlot, data)
	data[0] = 'z'

	got, _ := store.Load(ctx, testSlot)
	if string(got) != "abc" {
		t.Fatalf("store must not alias caller buffers, got %q", got)
	}
}
