package session

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresStore struct {
	DB *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{DB: db}
}

func (s *PostgresStore) Load(ctx context.Context, slot string) ([]byte, error) {
	var payload []byte
	err := s.DB.QueryRow(ctx, "SELECT payload FROM session_snapshots WHERE slot = $1", slot).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, err
	}
	return payload, nil
}

func (s *PostgresStore) Save(ctx context.Context, slot string, data []byte) error {
	_, err := s.DB.Exec(ctx, `
    INSERT INTO session_snapshots (slot, payload, updated_at)
    VALUES ($1, $2, now())
    ON CONFLICT (slot) DO UPDATE SET payload = EXCLUDED.payload, updated_at = now()
  `, slot, data)
	return err
}

func (s *PostgresStore) Delete(ctx context.Context, slot string) error {
	_, err := s.DB.Exec(ctx, "DELETE FROM session_snapshots WHERE slot = $1", slot)
	return err
}

func (s *PostgresStore) Purge(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := s.DB.Exec(ctx, "DELETE FROM session_snapshots WHERE updated_at < $1", time.Now().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.DB.Ping(ctx)
}
