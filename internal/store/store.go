// Package store implements the persistence API over Postgres: the
// mutable config rows the settings cache syncs against, and the session
// log trail. Remote calls surface their errors; nothing here retries.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"mailroom.app/engine/core/db"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

type Store struct {
	db     *db.DB
	logURL string
}

func New(database *db.DB, logURL string) *Store {
	return &Store{db: database, logURL: strings.TrimRight(logURL, "/")}
}

// --- Config -----------------------------------------------------------------

func (s *Store) GetConfig(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.Pool().Query(ctx, `SELECT key, value FROM config`)
	if err != nil {
		return nil, fmt.Errorf("querying config: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scanning config row: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

func (s *Store) UpdateConfig(ctx context.Context, data map[string]string) error {
	return s.db.WithTx(ctx, func(tx pgx.Tx) error {
		for k, v := range data {
			_, err := tx.Exec(ctx, `
				INSERT INTO config (key, value) VALUES ($1, $2)
				ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
				k, v)
			if err != nil {
				return fmt.Errorf("upserting config key %q: %w", k, err)
			}
		}
		return nil
	})
}

func (s *Store) DeleteConfig(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := s.db.Pool().Exec(ctx, `DELETE FROM config WHERE key = ANY($1)`, keys)
	if err != nil {
		return fmt.Errorf("deleting config keys: %w", err)
	}
	return nil
}
