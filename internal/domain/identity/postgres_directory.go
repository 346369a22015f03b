package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pquerna/otp/totp"
	"github.com/rs/zerolog"

	"hrportal/internal/domain/auth"
	"hrportal/internal/domain/session"
)

const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"

	mfaIssuer = "HR Portal"
)

var (
	ErrMFARequired = errors.New("mfa code required")
	ErrMFAInvalid  = errors.New("invalid mfa code")
)

// PostgresDirectory checks credentials against the users table. The role
// column is the authoritative role claim.
type PostgresDirectory struct {
	DB     *pgxpool.Pool
	Sealer session.Sealer
	Logger zerolog.Logger
}

func NewPostgresDirectory(db *pgxpool.Pool, sealer session.Sealer, logger zerolog.Logger) *PostgresDirectory {
	return &PostgresDirectory{DB: db, Sealer: sealer, Logger: logger}
}

func (d *PostgresDirectory) Authenticate(ctx context.Context, creds session.Credentials) (session.Identity, error) {
	var id, fullName, email, roleName, hash, avatar string
	var mfaEnabled bool
	var mfaSecretEnc []byte
	err := d.DB.QueryRow(ctx, `
    SELECT id::text, full_name, email, role, password_hash, COALESCE(avatar, ''), mfa_enabled, mfa_secret_enc
    FROM users
    WHERE lower(email) = lower($1) AND status = $2
  `, creds.Identifier, UserStatusActive).Scan(&id, &fullName, &email, &roleName, &hash, &avatar, &mfaEnabled, &mfaSecretEnc)
	if errors.Is(err, pgx.ErrNoRows) {
		return session.Identity{}, fmt.Errorf("invalid credentials: %w", auth.ErrAuthentication)
	}
	if err != nil {
		return session.Identity{}, fmt.Errorf("lookup user: %w", err)
	}

	if err := auth.CheckPassword(hash, creds.Secret); err != nil {
		return session.Identity{}, fmt.Errorf("invalid credentials: %w", auth.ErrAuthentication)
	}
	if err := checkSecondFactor(mfaEnabled, mfaSecretEnc, creds.OTP, d.Sealer); err != nil {
		return session.Identity{}, err
	}

	role, err := auth.ParseRole(roleName)
	if err != nil {
		return session.Identity{}, fmt.Errorf("user %s has an unusable role: %w", id, auth.ErrAuthentication)
	}

	if _, err := d.DB.Exec(ctx, "UPDATE users SET last_login = now() WHERE id = $1", id); err != nil {
		d.Logger.Warn().Str("userId", id).Err(err).Msg("update last_login failed")
	}

	return session.Identity{ID: id, FullName: fullName, Email: email, Role: role, Avatar: avatar}, nil
}

func (d *PostgresDirectory) CreateAccount(ctx context.Context, profile session.Profile) (session.Identity, error) {
	hash, err := auth.HashPassword(profile.Password)
	if err != nil {
		return session.Identity{}, err
	}

	var id string
	err = d.DB.QueryRow(ctx, `
    INSERT INTO users (full_name, email, password_hash, role, avatar, status)
    VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
    RETURNING id::text
  `, profile.FullName, profile.Email, hash, auth.DefaultRole.String(), profile.Avatar, UserStatusActive).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return session.Identity{}, auth.ErrAccountExists
		}
		return session.Identity{}, fmt.Errorf("insert user: %w", err)
	}

	return session.Identity{
		ID:       id,
		FullName: profile.FullName,
		Email:    profile.Email,
		Role:     auth.DefaultRole,
		Avatar:   profile.Avatar,
	}, nil
}

// EnrollMFA generates a TOTP secret for the account and returns the
// provisioning URL to show as a QR code.
func (d *PostgresDirectory) EnrollMFA(ctx context.Context, email string) (string, error) {
	key, err := totp.Generate(totp.GenerateOpts{Issuer: mfaIssuer, AccountName: normalizeEmail(email)})
	if err != nil {
		return "", err
	}
	secret := []byte(key.Secret())
	if d.Sealer != nil {
		secret, err = d.Sealer.Encrypt(secret)
		if err != nil {
			return "", err
		}
	}
	tag, err := d.DB.Exec(ctx, `
    UPDATE users SET mfa_secret_enc = $1, mfa_enabled = true
    WHERE lower(email) = lower($2)
  `, secret, email)
	if err != nil {
		return "", err
	}
	if tag.RowsAffected() == 0 {
		return "", fmt.Errorf("user %s: %w", email, auth.ErrNotFound)
	}
	return key.URL(), nil
}

func checkSecondFactor(enabled bool, sealed []byte, code string, sealer session.Sealer) error {
	if !enabled {
		return nil
	}
	if code == "" {
		return fmt.Errorf("%w: %w", auth.ErrAuthentication, ErrMFARequired)
	}
	secret := sealed
	if sealer != nil {
		plain, err := sealer.Decrypt(sealed)
		if err != nil {
			return fmt.Errorf("%w: %w", auth.ErrAuthentication, ErrMFAInvalid)
		}
		secret = plain
	}
	if len(secret) == 0 || !totp.Validate(code, string(secret)) {
		return fmt.Errorf("%w: %w", auth.ErrAuthentication, ErrMFAInvalid)
	}
	return nil
}
