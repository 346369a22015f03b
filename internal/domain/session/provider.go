package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"hrportal/internal/domain/auth"
)

const (
	defaultExchangeTimeout = 10 * time.Second
	defaultStorageTimeout  = 5 * time.Second
)

// Observer receives one outcome per provider operation.
type Observer interface {
	ObserveOperation(op, outcome string)
}

type Option func(*Provider)

func WithSealer(sealer Sealer) Option {
	return func(p *Provider) {
		p.sealer = sealer
	}
}

func WithExchangeTimeout(timeout time.Duration) Option {
	return func(p *Provider) {
		if timeout > 0 {
			p.timeout = timeout
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(p *Provider) {
		p.logger = logger
	}
}

func WithObserver(observer Observer) Option {
	return func(p *Provider) {
		if observer != nil {
			p.observer = observer
		}
	}
}

// SignInOption tunes a single Login or Register call.
type SignInOption func(*signIn)

type signIn struct {
	otp  string
	slot string
}

// WithOTP supplies a one-time second-factor code.
func WithOTP(code string) SignInOption {
	return func(s *signIn) {
		s.otp = strings.TrimSpace(code)
	}
}

// MoveTo persists the new Session under slot instead of the current one.
// On success the provider is bound to slot and the old snapshot is removed;
// on failure nothing moves.
func MoveTo(slot string) SignInOption {
	return func(s *signIn) {
		s.slot = slot
	}
}

func (p *Provider) signInOptions(opts []SignInOption) signIn {
	cfg := signIn{slot: p.Slot()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.slot == "" {
		cfg.slot = p.Slot()
	}
	return cfg
}

// Provider owns the Session of one client slot. It is the only writer of
// both the in-memory Session and the persisted snapshot.
type Provider struct {
	slot     string
	store    SnapshotStore
	exchange CredentialExchange
	sealer   Sealer
	timeout  time.Duration
	logger   zerolog.Logger
	observer Observer

	initOnce sync.Once

	// storeMu orders snapshot writes against logout.
	storeMu sync.Mutex

	mu         sync.RWMutex
	current    *Session
	loading    bool
	booted     bool
	generation uint64
	savedAt    time.Time
	now        func() time.Time
}

func NewProvider(slot string, store SnapshotStore, exchange CredentialExchange, opts ...Option) *Provider {
	p := &Provider{
		slot:     slot,
		store:    store,
		exchange: exchange,
		timeout:  defaultExchangeTimeout,
		logger:   zerolog.Nop(),
		observer: nopObserver{},
		loading:  true,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With().Str("slot", slot).Logger()
	return p
}

// Slot names the snapshot the provider currently owns. It changes when a
// sign-in moves the Session.
func (p *Provider) Slot() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.slot
}

// Initialize adopts the persisted snapshot, if any. It runs once; loading is
// cleared on every path, including a panicking store.
func (p *Provider) Initialize(ctx context.Context) {
	p.initOnce.Do(func() {
		var restored *Session
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error().Interface("panic", r).Msg("session restore panicked")
				restored = nil
				p.observer.ObserveOperation("initialize", "error")
			}
			p.mu.Lock()
			p.current = restored
			p.loading = false
			p.booted = true
			p.mu.Unlock()
		}()

		loadCtx, cancel := context.WithTimeout(ctx, defaultStorageTimeout)
		defer cancel()

		s, err := p.readSnapshot(loadCtx)
		switch {
		case err == nil:
			restored = &s
			p.logger.Debug().Str("role", s.Role.String()).Msg("session restored")
			p.observer.ObserveOperation("initialize", "restored")
		case errors.Is(err, ErrSnapshotNotFound):
			p.observer.ObserveOperation("initialize", "empty")
		default:
			p.logger.Warn().Err(err).Msg("discarding unreadable session snapshot")
			p.observer.ObserveOperation("initialize", "discarded")
		}
	})
}

func (p *Provider) readSnapshot(ctx context.Context) (Session, error) {
	data, err := p.store.Load(ctx, p.Slot())
	if err != nil {
		return Session{}, err
	}
	if p.sealer != nil {
		data, err = p.sealer.Decrypt(data)
		if err != nil {
			return Session{}, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
		}
	}
	return DecodeSnapshot(data)
}

// Login exchanges credentials for a Session. On any failure the previous
// Session is left untouched.
func (p *Provider) Login(ctx context.Context, identifier, secret string, opts ...SignInOption) (Session, error) {
	cfg := p.signInOptions(opts)
	creds := Credentials{Identifier: strings.TrimSpace(identifier), Secret: secret, OTP: cfg.otp}
	if creds.Identifier == "" || creds.Secret == "" {
		p.observer.ObserveOperation("login", "validation_error")
		return Session{}, fmt.Errorf("%w: identifier and secret are required", auth.ErrValidation)
	}

	gen, err := p.begin()
	if err != nil {
		p.observer.ObserveOperation("login", "busy")
		return Session{}, err
	}

	s, err := p.complete(ctx, gen, cfg.slot, func(ctx context.Context) (Session, error) {
		identity, err := p.exchange.Authenticate(ctx, creds)
		if err != nil {
			return Session{}, classifyExchangeError(err)
		}
		return identity.session(), nil
	})
	p.observer.ObserveOperation("login", outcome(err))
	if err != nil {
		p.logger.Info().Err(err).Msg("login failed")
		return Session{}, err
	}
	p.logger.Info().Str("role", s.Role.String()).Msg("login succeeded")
	return s, nil
}

// Register creates an account and signs it in with the default role.
// Validation happens before loading is raised.
func (p *Provider) Register(ctx context.Context, profile Profile, opts ...SignInOption) (Session, error) {
	cfg := p.signInOptions(opts)
	profile.FullName = strings.TrimSpace(profile.FullName)
	profile.Email = strings.TrimSpace(profile.Email)
	if err := validateProfile(profile); err != nil {
		p.observer.ObserveOperation("register", "validation_error")
		return Session{}, err
	}

	gen, err := p.begin()
	if err != nil {
		p.observer.ObserveOperation("register", "busy")
		return Session{}, err
	}

	s, err := p.complete(ctx, gen, cfg.slot, func(ctx context.Context) (Session, error) {
		identity, err := p.exchange.CreateAccount(ctx, profile)
		if err != nil {
			if errors.Is(err, auth.ErrAccountExists) {
				return Session{}, fmt.Errorf("%w: %w", auth.ErrValidation, err)
			}
			return Session{}, classifyExchangeError(err)
		}
		s := identity.session()
		s.Role = auth.DefaultRole
		if s.FullName == "" {
			s.FullName = profile.FullName
		}
		if s.Avatar == "" {
			s.Avatar = profile.Avatar
		}
		return s, nil
	})
	p.observer.ObserveOperation("register", outcome(err))
	if err != nil {
		p.logger.Info().Err(err).Msg("registration failed")
		return Session{}, err
	}
	p.logger.Info().Msg("registration succeeded")
	return s, nil
}

// Logout clears the Session and removes the snapshot. It is idempotent; a
// login still in flight is invalidated. The Session is cleared even when
// the store fails, and the store error is returned.
func (p *Provider) Logout(ctx context.Context) error {
	p.storeMu.Lock()
	defer p.storeMu.Unlock()

	p.mu.Lock()
	hadSession := p.current != nil
	p.current = nil
	p.generation++
	p.mu.Unlock()

	err := p.store.Delete(ctx, p.Slot())
	if err != nil {
		p.logger.Warn().Err(err).Msg("snapshot delete failed")
		p.observer.ObserveOperation("logout", "error")
		return fmt.Errorf("delete session snapshot: %w", err)
	}
	if hadSession {
		p.logger.Info().Msg("logged out")
		p.observer.ObserveOperation("logout", "success")
	} else {
		p.observer.ObserveOperation("logout", "noop")
	}
	return nil
}

func (p *Provider) begin() (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loading {
		return 0, auth.ErrBusy
	}
	p.loading = true
	return p.generation, nil
}

// complete runs an exchange, persists the result and adopts it. Loading is
// cleared on every exit path.
func (p *Provider) complete(ctx context.Context, gen uint64, slot string, exchange func(context.Context) (Session, error)) (result Session, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().Interface("panic", r).Msg("credential exchange panicked")
			result, err = Session{}, fmt.Errorf("%w: exchange failed", auth.ErrAuthentication)
		}
		p.mu.Lock()
		p.loading = false
		p.mu.Unlock()
	}()

	exchangeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	s, err := exchange(exchangeCtx)
	if err != nil {
		return Session{}, err
	}
	if !s.complete() {
		return Session{}, fmt.Errorf("%w: exchange returned an incomplete identity", auth.ErrAuthentication)
	}

	if err := p.persist(ctx, gen, slot, s); err != nil {
		return Session{}, err
	}
	return s, nil
}

// persist writes the snapshot to slot and only then adopts s, rebinding the
// provider when slot differs from the current one.
func (p *Provider) persist(ctx context.Context, gen uint64, slot string, s Session) error {
	data, err := p.seal(s)
	if err != nil {
		return err
	}

	p.storeMu.Lock()
	defer p.storeMu.Unlock()

	if p.stale(gen) {
		return fmt.Errorf("%w: signed out while signing in", auth.ErrAuthentication)
	}
	saveCtx, cancel := context.WithTimeout(ctx, defaultStorageTimeout)
	defer cancel()
	if err := p.store.Save(saveCtx, slot, data); err != nil {
		return fmt.Errorf("persist session snapshot: %w", err)
	}

	p.mu.Lock()
	previous := p.slot
	p.current = &s
	p.slot = slot
	p.savedAt = p.now()
	p.mu.Unlock()

	if previous != slot {
		if err := p.store.Delete(saveCtx, previous); err != nil {
			p.logger.Warn().Err(err).Str("previousSlot", previous).Msg("old snapshot not removed after move")
		}
	}
	return nil
}

func (p *Provider) seal(s Session) ([]byte, error) {
	data, err := EncodeSnapshot(s)
	if err != nil {
		return nil, err
	}
	if p.sealer != nil {
		data, err = p.sealer.Encrypt(data)
		if err != nil {
			return nil, fmt.Errorf("seal session snapshot: %w", err)
		}
	}
	return data, nil
}

// Refresh rewrites the snapshot of a signed-in provider when it was last
// written more than olderThan ago, so stale-snapshot purges never remove a
// Session that is still held in memory. It reports whether it wrote.
func (p *Provider) Refresh(ctx context.Context, olderThan time.Duration) (bool, error) {
	p.storeMu.Lock()
	defer p.storeMu.Unlock()

	p.mu.RLock()
	current, slot, savedAt, loading := p.current, p.slot, p.savedAt, p.loading
	p.mu.RUnlock()
	if current == nil || loading || p.now().Sub(savedAt) < olderThan {
		return false, nil
	}

	data, err := p.seal(*current)
	if err != nil {
		return false, err
	}
	saveCtx, cancel := context.WithTimeout(ctx, defaultStorageTimeout)
	defer cancel()
	if err := p.store.Save(saveCtx, slot, data); err != nil {
		return false, fmt.Errorf("refresh session snapshot: %w", err)
	}

	p.mu.Lock()
	p.savedAt = p.now()
	p.mu.Unlock()
	return true, nil
}

func (p *Provider) stale(gen uint64) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return gen != p.generation
}

func (p *Provider) Current() (Session, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.current == nil {
		return Session{}, false
	}
	return *p.current, true
}

func (p *Provider) Authenticated() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current != nil
}

func (p *Provider) Loading() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.loading
}

func (p *Provider) Phase() Phase {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return phaseOf(p.booted, p.current)
}

// classifyExchangeError keeps the exchange cause while making sure callers
// see an authentication failure, including for timeouts and cancellation.
func classifyExchangeError(err error) error {
	if errors.Is(err, auth.ErrAuthentication) {
		return err
	}
	return fmt.Errorf("%w: %w", auth.ErrAuthentication, err)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, auth.ErrValidation):
		return "validation_error"
	case errors.Is(err, auth.ErrAuthentication):
		return "authentication_error"
	default:
		return "error"
	}
}

type nopObserver struct{}

func (nopObserver) ObserveOperation(string, string) {}
