package session

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrSnapshotNotFound = errors.New("session snapshot not found")

// SnapshotStore holds persisted snapshots by slot name. Delete of a missing
// slot is not an error.
type SnapshotStore interface {
	Load(ctx context.Context, slot string) ([]byte, error)
	Save(ctx context.Context, slot string, data []byte) error
	Delete(ctx context.Context, slot string) error
}

// Purger is implemented by stores without native expiry.
type Purger interface {
	Purge(ctx context.Context, olderThan time.Duration) (int64, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type memoryEntry struct {
	data    []byte
	updated time.Time
}

type MemoryStore struct {
	mu    sync.RWMutex
	slots map[string]memoryEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{slots: map[string]memoryEntry{}}
}

func (s *MemoryStore) Load(_ context.Context, slot string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.slots[slot]
	if !ok {
		return nil, ErrSnapshotNotFound
	}
	return append([]byte(nil), entry.data...), nil
}

func (s *MemoryStore) Save(_ context.Context, slot string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[slot] = memoryEntry{data: append([]byte(nil), data...), updated: time.Now()}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, slot string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.slots, slot)
	return nil
}

func (s *MemoryStore) Purge(_ context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for slot, entry := range s.slots {
		if entry.updated.Before(cutoff) {
			delete(s.slots, slot)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}
