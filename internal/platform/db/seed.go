package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"hrportal/internal/domain/auth"
	"hrportal/internal/platform/config"
)

// Seed ensures the initial administrator account exists. It reports whether
// a new row was inserted.
func Seed(ctx context.Context, pool *pgxpool.Pool, cfg config.DatabaseConfig) (bool, error) {
	return ensureAdminUser(ctx, pool, cfg.SeedAdminName, cfg.SeedAdminEmail, cfg.SeedAdminPassword)
}

func ensureAdminUser(ctx context.Context, pool *pgxpool.Pool, name, email, password string) (bool, error) {
	email = strings.TrimSpace(email)
	if email == "" || strings.TrimSpace(password) == "" {
		return false, nil
	}
	if strings.TrimSpace(name) == "" {
		name = "Administrator"
	}

	var id string
	err := pool.QueryRow(ctx, "SELECT id::text FROM users WHERE lower(email) = lower($1)", email).Scan(&id)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("lookup seed admin: %w", err)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return false, err
	}

	_, err = pool.Exec(ctx, `
    INSERT INTO users (full_name, email, password_hash, role, status)
    VALUES ($1, $2, $3, $4, 'active')
  `, name, email, hash, auth.RoleAdmin.String())
	if err != nil {
		return false, fmt.Errorf("insert seed admin: %w", err)
	}
	return true, nil
}
