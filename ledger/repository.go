package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrDuplicateEntry signals the insert hit the idempotency constraint:
	// another attempt already recorded this exact key. Callers treat this as
	// already delivered, not as a failure.
	ErrDuplicateEntry = errors.New("ledger: duplicate entry")
)

// Ledger is the append-only authority on what has already been delivered.
// No update or delete is exposed.
type Ledger interface {
	IsSent(ctx context.Context, tenantID, installmentID, attachmentURL string) (bool, error)
	RecordSent(ctx context.Context, entry Entry) error
}

// PGLedger implements Ledger backed by PostgreSQL. The uniqueness check and
// the write are a single constrained insert, so concurrent or retried
// attempts cannot double-record.
type PGLedger struct {
	pool *pgxpool.Pool
}

// NewLedger creates a PostgreSQL-backed delivery ledger.
func NewLedger(pool *pgxpool.Pool) *PGLedger {
	return &PGLedger{pool: pool}
}

// IsSent reports whether an entry exists for the idempotency key.
func (l *PGLedger) IsSent(ctx context.Context, tenantID, installmentID, attachmentURL string) (bool, error) {
	const selectSQL = `
		SELECT EXISTS (
			SELECT 1 FROM sent_receipts
			WHERE tenant_id = $1 AND installment_id = $2 AND attachment_url = $3
		)
	`
	var sent bool
	if err := l.pool.QueryRow(ctx, selectSQL, tenantID, installmentID, attachmentURL).Scan(&sent); err != nil {
		return false, fmt.Errorf("ledger: check sent: %w", err)
	}
	return sent, nil
}

// RecordSent appends a delivery record, returning ErrDuplicateEntry when the
// idempotency key already exists.
func (l *PGLedger) RecordSent(ctx context.Context, entry Entry) error {
	if entry.TenantID == "" || entry.InstallmentID == "" || entry.AttachmentURL == "" {
		return fmt.Errorf("ledger: incomplete idempotency key")
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("ledger: marshal metadata: %w", err)
	}

	const insertSQL = `
		INSERT INTO sent_receipts (id, tenant_id, installment_id, attachment_url, recipient, sent_at, content_hash, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = l.pool.Exec(ctx, insertSQL,
		entry.ID,
		entry.TenantID,
		entry.InstallmentID,
		entry.AttachmentURL,
		entry.Recipient,
		entry.SentAt,
		entry.ContentHash,
		metadata,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateEntry
		}
		return fmt.Errorf("ledger: record sent: %w", err)
	}
	return nil
}
