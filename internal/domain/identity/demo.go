package identity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"hrportal/internal/domain/auth"
	"hrportal/internal/domain/session"
)

const demoAvatar = "/placeholder.svg"

// DemoExchange accepts any non-blank credentials after a simulated round
// trip. Identifiers on the elevated list get the admin role; everyone else
// is an employee. Meant for demos and local development only.
type DemoExchange struct {
	elevated map[string]struct{}
	latency  time.Duration
}

func NewDemoExchange(elevatedEmails []string, latency time.Duration) *DemoExchange {
	elevated := make(map[string]struct{}, len(elevatedEmails))
	for _, email := range elevatedEmails {
		if normalized := normalizeEmail(email); normalized != "" {
			elevated[normalized] = struct{}{}
		}
	}
	return &DemoExchange{elevated: elevated, latency: latency}
}

func (d *DemoExchange) Authenticate(ctx context.Context, creds session.Credentials) (session.Identity, error) {
	if err := d.roundTrip(ctx); err != nil {
		return session.Identity{}, err
	}
	email := normalizeEmail(creds.Identifier)
	if email == "" || creds.Secret == "" {
		return session.Identity{}, fmt.Errorf("blank credentials: %w", auth.ErrAuthentication)
	}

	identity := session.Identity{
		ID:       stableID(email),
		FullName: "Employee User",
		Email:    strings.TrimSpace(creds.Identifier),
		Role:     auth.RoleEmployee,
		Avatar:   demoAvatar,
	}
	if _, ok := d.elevated[email]; ok {
		identity.FullName = "Admin User"
		identity.Role = auth.RoleAdmin
	}
	return identity, nil
}

func (d *DemoExchange) CreateAccount(ctx context.Context, profile session.Profile) (session.Identity, error) {
	if err := d.roundTrip(ctx); err != nil {
		return session.Identity{}, err
	}
	return session.Identity{
		ID:       uuid.NewString(),
		FullName: strings.TrimSpace(profile.FullName),
		Email:    strings.TrimSpace(profile.Email),
		Role:     auth.DefaultRole,
		Avatar:   profile.Avatar,
	}, nil
}

func (d *DemoExchange) roundTrip(ctx context.Context) error {
	if d.latency <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d.latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func stableID(email string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("mailto:"+email)).String()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
