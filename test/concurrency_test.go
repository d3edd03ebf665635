package test

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"receiptflow/checkpoint"
	"receiptflow/ledger"
	"receiptflow/test/infra"
)

var (
	flConcurrency = flag.Int("concurrency", 16, "number of concurrent writers")
	flDSN         = flag.String("dsn", "", "existing Postgres DSN to reuse (avoids Docker)")
)

// TestLedgerConcurrency races many writers on the same idempotency key against
// a real PostgreSQL and asserts exactly one of them records the delivery.
func TestLedgerConcurrency(t *testing.T) {
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pool, teardown := mustPool(t, ctx)
	defer pool.Close()
	defer func() {
		if err := teardown(context.Background()); err != nil {
			t.Logf("teardown warning: %v", err)
		}
	}()

	tenantID := fmt.Sprintf("race-tenant-%d", time.Now().UnixNano())
	l := ledger.NewLedger(pool)

	var recorded, duplicated atomic.Int64
	g, ctx2 := errgroup.WithContext(ctx)
	for i := 0; i < *flConcurrency; i++ {
		g.Go(func() error {
			err := l.RecordSent(ctx2, ledger.Entry{
				TenantID:      tenantID,
				InstallmentID: "inst-race",
				AttachmentURL: "https://attachments.contaazul.com/doc-race",
				Recipient:     "race@example.com",
				SentAt:        time.Now().UTC(),
			})
			switch {
			case err == nil:
				recorded.Add(1)
			case errors.Is(err, ledger.ErrDuplicateEntry):
				duplicated.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("writers errored: %v", err)
	}

	if recorded.Load() != 1 {
		t.Fatalf("expected exactly 1 successful record, got %d", recorded.Load())
	}
	if want := int64(*flConcurrency - 1); duplicated.Load() != want {
		t.Fatalf("expected %d duplicate rejections, got %d", want, duplicated.Load())
	}

	var rows int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM sent_receipts WHERE tenant_id = $1`, tenantID).Scan(&rows); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if rows != 1 {
		t.Fatalf("expected a single ledger row, got %d", rows)
	}
}

// TestCheckpointConcurrency races first-poll initializations of one tenant and
// asserts every worker converges on a single cursor row.
func TestCheckpointConcurrency(t *testing.T) {
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pool, teardown := mustPool(t, ctx)
	defer pool.Close()
	defer func() {
		if err := teardown(context.Background()); err != nil {
			t.Logf("teardown warning: %v", err)
		}
	}()

	tenantID := fmt.Sprintf("race-tenant-%d", time.Now().UnixNano())
	if _, err := pool.Exec(ctx, `INSERT INTO tenants (id) VALUES ($1)`, tenantID); err != nil {
		t.Fatalf("seed tenant: %v", err)
	}

	store := checkpoint.NewStore(pool)

	cursors := make([]time.Time, *flConcurrency)
	g, ctx2 := errgroup.WithContext(ctx)
	for i := 0; i < *flConcurrency; i++ {
		g.Go(func() error {
			// Each worker proposes a distinct default; only one can win.
			def := time.Now().UTC().Add(-time.Duration(i+1) * time.Hour).Truncate(time.Microsecond)
			cp, err := store.GetOrCreate(ctx2, tenantID, def)
			if err != nil {
				return err
			}
			cursors[i] = cp.LastChangeCursor
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("workers errored: %v", err)
	}

	for i := 1; i < len(cursors); i++ {
		if !cursors[i].Equal(cursors[0]) {
			t.Fatalf("workers observed diverging cursors: %v vs %v", cursors[0], cursors[i])
		}
	}

	var rows int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM polling_checkpoints WHERE tenant_id = $1`, tenantID).Scan(&rows); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if rows != 1 {
		t.Fatalf("expected a single checkpoint row, got %d", rows)
	}
}

func mustPool(t *testing.T, ctx context.Context) (*pgxpool.Pool, func(context.Context) error) {
	t.Helper()

	var (
		pgC        *infra.PGContainer
		dsn        string
		err        error
		usedShared bool
	)

	switch {
	case *flDSN != "":
		dsn = *flDSN
		usedShared = true
		pgC = &infra.PGContainer{}
	case os.Getenv("RECEIPTFLOW_TEST_PG_DSN") != "":
		dsn = os.Getenv("RECEIPTFLOW_TEST_PG_DSN")
		usedShared = true
		pgC = &infra.PGContainer{}
	default:
		if !dockerAvailable(ctx) {
			dsn, err = infra.InitLocalDatabase(ctx)
			if err != nil {
				t.Skipf("no Docker and no local PostgreSQL: %v", err)
			}
			pgC = &infra.PGContainer{}
			break
		}
		pgC, dsn, err = infra.StartPostgres16(ctx, "")
		if err != nil {
			t.Fatalf("start postgres: %v", err)
		}
	}
	t.Cleanup(func() { _ = pgC.Terminate(context.Background()) })

	pool, teardown, err := infra.ApplyMigrations(ctx, dsn, usedShared)
	if err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return pool, teardown
}

func dockerAvailable(ctx context.Context) bool {
	if _, err := exec.LookPath("docker"); err != nil {
		return false
	}
	c := exec.CommandContext(ctx, "docker", "info")
	c.Stdout = io.Discard
	c.Stderr = io.Discard
	return c.Run() == nil
}
