package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TestPGStore_Integration connects to a real PostgreSQL via DATABASE_URL and
// verifies the checkpoint row lifecycle: creation at the default cursor,
// idempotent re-creation, and advancement.
func TestPGStore_Integration(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL is empty; set it to a live PostgreSQL to run integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect pool: %v", err)
	}
	defer pool.Close()

	tenantID := fmt.Sprintf("itest-tenant-%d", time.Now().UnixNano())
	if _, err := pool.Exec(ctx, `INSERT INTO tenants (id, company_name) VALUES ($1, $2)`, tenantID, "Integration Clinic"); err != nil {
		t.Fatalf("seed tenant: %v", err)
	}
	t.Cleanup(func() {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel2()
		pool.Exec(ctx2, `DELETE FROM polling_checkpoints WHERE tenant_id = $1`, tenantID)
		pool.Exec(ctx2, `DELETE FROM tenants WHERE id = $1`, tenantID)
	})

	store := NewStore(pool)
	defaultCursor := time.Now().UTC().Add(-720 * time.Hour).Truncate(time.Microsecond)

	cp, err := store.GetOrCreate(ctx, tenantID, defaultCursor)
	if err != nil {
		t.Fatalf("get or create (first): %v", err)
	}
	if !cp.LastChangeCursor.Equal(defaultCursor) {
		t.Fatalf("expected default cursor %v, got %v", defaultCursor, cp.LastChangeCursor)
	}

	// Replaying with a different default must keep the stored cursor.
	cp, err = store.GetOrCreate(ctx, tenantID, time.Now().UTC())
	if err != nil {
		t.Fatalf("get or create (replay): %v", err)
	}
	if !cp.LastChangeCursor.Equal(defaultCursor) {
		t.Fatalf("replay must not reset cursor; got %v", cp.LastChangeCursor)
	}

	advanced := time.Now().UTC().Truncate(time.Microsecond)
	if err := store.Advance(ctx, tenantID, advanced); err != nil {
		t.Fatalf("advance: %v", err)
	}
	cp, err = store.GetOrCreate(ctx, tenantID, defaultCursor)
	if err != nil {
		t.Fatalf("get or create (after advance): %v", err)
	}
	if !cp.LastChangeCursor.Equal(advanced) {
		t.Fatalf("expected advanced cursor %v, got %v", advanced, cp.LastChangeCursor)
	}

	if err := store.Advance(ctx, "itest-missing-tenant", advanced); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing tenant, got %v", err)
	}
}
