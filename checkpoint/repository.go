package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound is returned by Advance when no checkpoint row exists.
	ErrNotFound = errors.New("checkpoint: not found")
)

// Store is the durable cursor contract used by the pipeline.
type Store interface {
	GetOrCreate(ctx context.Context, tenantID string, defaultCursor time.Time) (Checkpoint, error)
	Advance(ctx context.Context, tenantID string, cursor time.Time) error
}

// PGStore implements Store backed by PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewStore creates a PostgreSQL-backed checkpoint store.
func NewStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// GetOrCreate returns the tenant's checkpoint, creating it at defaultCursor if
// none exists. Concurrent first polls of the same tenant converge on a single
// row via the conflict clause.
func (s *PGStore) GetOrCreate(ctx context.Context, tenantID string, defaultCursor time.Time) (Checkpoint, error) {
	const insertSQL = `
		INSERT INTO polling_checkpoints (tenant_id, last_change_cursor)
		VALUES ($1, $2)
		ON CONFLICT (tenant_id) DO NOTHING
	`
	if _, err := s.pool.Exec(ctx, insertSQL, tenantID, defaultCursor); err != nil {
		return Checkpoint{}, fmt.Errorf("checkpoint: create: %w", err)
	}

	const selectSQL = `
		SELECT tenant_id, last_change_cursor, updated_at
		FROM polling_checkpoints
		WHERE tenant_id = $1
	`
	var cp Checkpoint
	err := s.pool.QueryRow(ctx, selectSQL, tenantID).Scan(&cp.TenantID, &cp.LastChangeCursor, &cp.UpdatedAt)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("checkpoint: get: %w", err)
	}
	return cp, nil
}

// Advance moves the cursor. It is the only mutator and must run after, never
// before, the corresponding changes are fully resolved.
func (s *PGStore) Advance(ctx context.Context, tenantID string, cursor time.Time) error {
	const updateSQL = `
		UPDATE polling_checkpoints
		SET last_change_cursor = $2,
		    updated_at = now()
		WHERE tenant_id = $1
	`
	tag, err := s.pool.Exec(ctx, updateSQL, tenantID, cursor)
	if err != nil {
		return fmt.Errorf("checkpoint: advance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
