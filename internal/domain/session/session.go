package session

import (
	"context"
	"strings"

	"hrportal/internal/domain/auth"
)

// Session is the authenticated user of one browser client. It is either
// absent or fully populated; Avatar is the only optional field.
type Session struct {
	ID       string    `json:"id"`
	FullName string    `json:"fullName"`
	Email    string    `json:"email"`
	Role     auth.Role `json:"role"`
	Avatar   string    `json:"avatar,omitempty"`
}

func (s Session) complete() bool {
	return strings.TrimSpace(s.ID) != "" &&
		strings.TrimSpace(s.FullName) != "" &&
		strings.TrimSpace(s.Email) != "" &&
		s.Role.Valid()
}

// Identity is what a credential exchange vouches for. Role is the
// authoritative claim of the exchange.
type Identity struct {
	ID       string
	FullName string
	Email    string
	Role     auth.Role
	Avatar   string
}

func (i Identity) session() Session {
	return Session{
		ID:       i.ID,
		FullName: i.FullName,
		Email:    strings.TrimSpace(i.Email),
		Role:     i.Role,
		Avatar:   i.Avatar,
	}
}

type Credentials struct {
	Identifier string
	Secret     string
	OTP        string
}

// Profile is the registration payload.
type Profile struct {
	FullName string `json:"fullName" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Avatar   string `json:"avatar" validate:"omitempty,max=512"`
}

// CredentialExchange turns credentials into an Identity. Implementations
// return auth.ErrAuthentication for rejected credentials and
// auth.ErrAccountExists for duplicate registrations.
type CredentialExchange interface {
	Authenticate(ctx context.Context, creds Credentials) (Identity, error)
	CreateAccount(ctx context.Context, profile Profile) (Identity, error)
}
