package identity

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"hrportal/internal/domain/auth"
	"hrportal/internal/domain/session"
)

type fileAccount struct {
	ID           string `yaml:"id"`
	Email        string `yaml:"email"`
	FullName     string `yaml:"fullName"`
	Role         string `yaml:"role"`
	Avatar       string `yaml:"avatar"`
	PasswordHash string `yaml:"passwordHash"`
	Password     string `yaml:"password"`
}

type fileDocument struct {
	Accounts []fileAccount `yaml:"accounts"`
}

type directoryAccount struct {
	identity session.Identity
	hash     string
}

// FileDirectory authenticates against accounts read from a YAML file.
// Registrations live in memory until restart.
type FileDirectory struct {
	mu       sync.RWMutex
	accounts map[string]directoryAccount
}

func LoadFileDirectory(path string) (*FileDirectory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read account file: %w", err)
	}
	return ParseFileDirectory(data)
}

func ParseFileDirectory(data []byte) (*FileDirectory, error) {
	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse account file: %w", err)
	}

	dir := &FileDirectory{accounts: map[string]directoryAccount{}}
	for i, acc := range doc.Accounts {
		email := normalizeEmail(acc.Email)
		if email == "" {
			return nil, fmt.Errorf("account %d: email is required", i)
		}
		if _, dup := dir.accounts[email]; dup {
			return nil, fmt.Errorf("account %s: duplicate email", email)
		}
		role, err := auth.ParseRole(acc.Role)
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", email, err)
		}
		hash := acc.PasswordHash
		if hash == "" {
			if acc.Password == "" {
				return nil, fmt.Errorf("account %s: password or passwordHash is required", email)
			}
			hash, err = auth.HashPassword(acc.Password)
			if err != nil {
				return nil, fmt.Errorf("account %s: %w", email, err)
			}
		}
		id := acc.ID
		if id == "" {
			id = stableID(email)
		}
		name := strings.TrimSpace(acc.FullName)
		if name == "" {
			name = email
		}
		dir.accounts[email] = directoryAccount{
			identity: session.Identity{ID: id, FullName: name, Email: strings.TrimSpace(acc.Email), Role: role, Avatar: acc.Avatar},
			hash:     hash,
		}
	}
	return dir, nil
}

func (d *FileDirectory) Authenticate(ctx context.Context, creds session.Credentials) (session.Identity, error) {
	if err := ctx.Err(); err != nil {
		return session.Identity{}, err
	}
	d.mu.RLock()
	acc, ok := d.accounts[normalizeEmail(creds.Identifier)]
	d.mu.RUnlock()
	if !ok {
		return session.Identity{}, fmt.Errorf("invalid credentials: %w", auth.ErrAuthentication)
	}
	if err := auth.CheckPassword(acc.hash, creds.Secret); err != nil {
		return session.Identity{}, fmt.Errorf("invalid credentials: %w", auth.ErrAuthentication)
	}
	return acc.identity, nil
}

func (d *FileDirectory) CreateAccount(ctx context.Context, profile session.Profile) (session.Identity, error) {
	if err := ctx.Err(); err != nil {
		return session.Identity{}, err
	}
	email := normalizeEmail(profile.Email)
	hash, err := auth.HashPassword(profile.Password)
	if err != nil {
		return session.Identity{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.accounts[email]; exists {
		return session.Identity{}, auth.ErrAccountExists
	}
	identity := session.Identity{
		ID:       uuid.NewString(),
		FullName: strings.TrimSpace(profile.FullName),
		Email:    strings.TrimSpace(profile.Email),
		Role:     auth.DefaultRole,
		Avatar:   profile.Avatar,
	}
	d.accounts[email] = directoryAccount{identity: identity, hash: hash}
	return identity, nil
}

func (d *FileDirectory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.accounts)
}
