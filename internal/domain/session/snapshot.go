package session

import (
	"encoding/json"
	"errors"
	"fmt"

	"hrportal/internal/domain/auth"
)

// SnapshotVersion is bumped whenever the persisted layout changes. Older
// snapshots are discarded instead of being misread.
const SnapshotVersion = 1

var ErrMalformedSnapshot = errors.New("malformed session snapshot")

// Sealer protects snapshot bytes at rest.
type Sealer interface {
	Encrypt(plain []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

type snapshotDoc struct {
	Version  int    `json:"version"`
	ID       string `json:"id"`
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	Avatar   string `json:"avatar,omitempty"`
}

func EncodeSnapshot(s Session) ([]byte, error) {
	if !s.complete() {
		return nil, fmt.Errorf("encode snapshot: %w", ErrMalformedSnapshot)
	}
	return json.Marshal(snapshotDoc{
		Version:  SnapshotVersion,
		ID:       s.ID,
		FullName: s.FullName,
		Email:    s.Email,
		Role:     s.Role.String(),
		Avatar:   s.Avatar,
	})
}

func DecodeSnapshot(data []byte) (Session, error) {
	var doc snapshotDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}
	if doc.Version != SnapshotVersion {
		return Session{}, fmt.Errorf("%w: unsupported version %d", ErrMalformedSnapshot, doc.Version)
	}
	role, err := auth.ParseRole(doc.Role)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}
	s := Session{
		ID:       doc.ID,
		FullName: doc.FullName,
		Email:    doc.Email,
		Role:     role,
		Avatar:   doc.Avatar,
	}
	if !s.complete() {
		return Session{}, fmt.Errorf("%w: missing required fields", ErrMalformedSnapshot)
	}
	return s, nil
}
