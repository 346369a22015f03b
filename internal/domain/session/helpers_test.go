package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"hrportal/internal/domain/auth"
)

type stubExchange struct {
	mu       sync.Mutex
	block    chan struct{}
	started  chan struct{}
	accounts map[string]bool
	fail     error
	calls    int
}

func newStubExchange() *stubExchange {
	return &stubExchange{accounts: map[string]bool{}}
}

func (e *stubExchange) wait(ctx context.Context) error {
	e.mu.Lock()
	e.calls++
	block, started := e.block, e.started
	e.mu.Unlock()
	if started != nil {
		close(started)
	}
	if block == nil {
		return nil
	}
	select {
	case <-block:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *stubExchange) Authenticate(ctx context.Context, creds Credentials) (Identity, error) {
	if err := e.wait(ctx); err != nil {
		return Identity{}, err
	}
	if e.fail != nil {
		return Identity{}, e.fail
	}
	if creds.Secret == "wrong" {
		return Identity{}, fmt.Errorf("bad secret: %w", auth.ErrAuthentication)
	}
	role := auth.RoleEmployee
	name := "Employee User"
	if creds.Identifier == "admin@example.com" {
		role = auth.RoleAdmin
		name = "Admin User"
	}
	return Identity{ID: "id-" + creds.Identifier, FullName: name, Email: creds.Identifier, Role: role}, nil
}

func (e *stubExchange) CreateAccount(ctx context.Context, profile Profile) (Identity, error) {
	if err := e.wait(ctx); err != nil {
		return Identity{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	key := strings.ToLower(profile.Email)
	if e.accounts[key] {
		return Identity{}, auth.ErrAccountExists
	}
	e.accounts[key] = true
	// Claims an elevated role to prove the provider ignores it.
	return Identity{ID: "new-" + key, FullName: profile.FullName, Email: profile.Email, Role: auth.RoleAdmin}, nil
}

type countingStore struct {
	*MemoryStore
	mu      sync.Mutex
	saves   int
	deletes int
	saveErr error
	loadErr error
	panics  bool
}

func newCountingStore() *countingStore {
	return &countingStore{MemoryStore: NewMemoryStore()}
}

func (s *countingStore) Load(ctx context.Context, slot string) ([]byte, error) {
	if s.panics {
		panic("store exploded")
	}
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return s.MemoryStore.Load(ctx, slot)
}

func (s *countingStore) Save(ctx context.Context, slot string, data []byte) error {
	s.mu.Lock()
	s.saves++
	s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	return s.MemoryStore.Save(ctx, slot, data)
}

func (s *countingStore) Delete(ctx context.Context, slot string) error {
	s.mu.Lock()
	s.deletes++
	s.mu.Unlock()
	return s.MemoryStore.Delete(ctx, slot)
}

func (s *countingStore) has(slot string) bool {
	_, err := s.MemoryStore.Load(context.Background(), slot)
	return !errors.Is(err, ErrSnapshotNotFound)
}

// reverseSealer is a reversible stand-in for the AES service.
type reverseSealer struct{}

func (reverseSealer) Encrypt(plain []byte) ([]byte, error) {
	return reverse(plain), nil
}

func (reverseSealer) Decrypt(ciphertext []byte) ([]byte, error) {
	return reverse(ciphertext), nil
}

func reverse(in []byte) []byte {
	out := make([]byte, len(in))
	for i, b := range in {
		out[len(in)-1-i] = b
	}
	return out
}

const testSlot = "hr_portal_user:test"

func bootedProvider(store SnapshotStore, exchange CredentialExchange, opts ...Option) *Provider {
	p := NewProvider(testSlot, store, exchange, opts...)
	p.Initialize(context.Background())
	return p
}
