package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// SlotPrefix namespaces the persisted snapshot of each client.
const SlotPrefix = "hr_portal_user:"

func SlotFor(clientID string) string {
	return SlotPrefix + clientID
}

func clientOf(slot string) (string, bool) {
	return strings.CutPrefix(slot, SlotPrefix)
}

type Factory func(slot string) *Provider

type registryEntry struct {
	provider *Provider
	lastSeen time.Time
}

// Registry keeps one Provider per browser client. Providers are created on
// first use and initialized before they are handed out.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*registryEntry
	factory Factory
	now     func() time.Time
	logger  zerolog.Logger
}

func NewRegistry(factory Factory) *Registry {
	return &Registry{
		entries: map[string]*registryEntry{},
		factory: factory,
		now:     time.Now,
		logger:  zerolog.Nop(),
	}
}

func (r *Registry) WithLogger(logger zerolog.Logger) *Registry {
	r.logger = logger
	return r
}

func (r *Registry) Get(ctx context.Context, clientID string) *Provider {
	r.mu.Lock()
	entry, ok := r.entries[clientID]
	if ok && entry.provider.Slot() != SlotFor(clientID) {
		// The Session moved to another client id; this id starts over.
		r.rekeyLocked(clientID, entry)
		ok = false
	}
	if !ok {
		entry = &registryEntry{provider: r.factory(SlotFor(clientID))}
		r.entries[clientID] = entry
	}
	entry.lastSeen = r.now()
	provider := entry.provider
	r.mu.Unlock()

	// The first request may be cancelled while the snapshot is read; the
	// restore must still finish for the callers waiting behind it.
	provider.Initialize(context.WithoutCancel(ctx))
	return provider
}

// Move re-keys the provider of oldID under newID once a sign-in has moved
// its Session to newID's slot.
func (r *Registry) Move(oldID, newID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[oldID]
	if !ok || entry.provider.Slot() != SlotFor(newID) {
		return
	}
	delete(r.entries, oldID)
	entry.lastSeen = r.now()
	r.entries[newID] = entry
}

// Forget drops the provider of clientID without touching its snapshot.
func (r *Registry) Forget(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, clientID)
}

func (r *Registry) rekeyLocked(clientID string, entry *registryEntry) {
	delete(r.entries, clientID)
	movedTo, ok := clientOf(entry.provider.Slot())
	if !ok {
		return
	}
	if _, taken := r.entries[movedTo]; !taken {
		r.entries[movedTo] = entry
	}
}

// Refresh rewrites the snapshots of signed-in providers not written for
// olderThan. It returns how many snapshots were written.
func (r *Registry) Refresh(ctx context.Context, olderThan time.Duration) int {
	r.mu.Lock()
	providers := make([]*Provider, 0, len(r.entries))
	for _, entry := range r.entries {
		providers = append(providers, entry.provider)
	}
	r.mu.Unlock()

	refreshed := 0
	for _, p := range providers {
		wrote, err := p.Refresh(ctx, olderThan)
		if err != nil {
			r.logger.Warn().Err(err).Str("slot", p.Slot()).Msg("snapshot refresh failed")
			continue
		}
		if wrote {
			refreshed++
		}
	}
	return refreshed
}

// Evict drops providers idle for longer than idle. Their snapshots stay in
// the store, so the next request restores them.
func (r *Registry) Evict(idle time.Duration) int {
	cutoff := r.now().Add(-idle)
	r.mu.Lock()
	defer r.mu.Unlock()
	evicted := 0
	for clientID, entry := range r.entries {
		if entry.lastSeen.Before(cutoff) && !entry.provider.Loading() {
			delete(r.entries, clientID)
			evicted++
		}
	}
	return evicted
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
