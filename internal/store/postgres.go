package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
)

// PostgresSnapshots keeps the collections in portal_snapshots, one row per
// key. Payloads are TEXT so a damaged row still loads and is discarded by
// the store rather than rejected by the database.
type PostgresSnapshots struct {
	db *sql.DB
}

func NewPostgresSnapshots(db *sql.DB) *PostgresSnapshots {
	return &PostgresSnapshots{db: db}
}

func (s *PostgresSnapshots) DB() *sql.DB {
	return s.db
}

func (s *PostgresSnapshots) Get(ctx context.Context, key string) ([]byte, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM portal_snapshots WHERE key=$1`, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select snapshot %s: %w", key, err)
	}
	return []byte(payload), nil
}

func (s *PostgresSnapshots) PutAll(ctx context.Context, snapshots map[string][]byte) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	keys := make([]string, 0, len(snapshots))
	for key := range snapshots {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO portal_snapshots (key, payload, updated_at)
			VALUES ($1, $2, NOW())
			ON CONFLICT (key) DO UPDATE SET payload = EXCLUDED.payload, updated_at = NOW()
		`, key, string(snapshots[key])); err != nil {
			return fmt.Errorf("upsert snapshot %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshots: %w", err)
	}
	return nil
}
