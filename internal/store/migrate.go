package store

import (
	"context"
	_ "embed"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// EnsureSchema applies the idempotent schema. Both binaries call it at
// startup; statements are IF NOT EXISTS so racing processes are safe.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Pool().Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}
