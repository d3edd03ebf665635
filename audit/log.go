package audit

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Outcome of one delivery attempt.
type Outcome string

const (
	OutcomeSent    Outcome = "sent"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

// Attempt is one row of the delivery outcome log. The log exists for
// observability only and never gates idempotency.
type Attempt struct {
	TenantID     string
	AttachmentID string
	Recipient    string
	Outcome      Outcome
	Reason       string
}

// Log records delivery attempts, append-only.
type Log interface {
	Record(ctx context.Context, attempt Attempt) error
}

// PGLog implements Log backed by PostgreSQL.
type PGLog struct {
	pool *pgxpool.Pool
}

// NewLog creates a PostgreSQL-backed delivery log.
func NewLog(pool *pgxpool.Pool) *PGLog {
	return &PGLog{pool: pool}
}

func (l *PGLog) Record(ctx context.Context, attempt Attempt) error {
	const insertSQL = `
		INSERT INTO delivery_log (id, tenant_id, attachment_id, recipient, outcome, reason)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := l.pool.Exec(ctx, insertSQL,
		uuid.NewString(),
		attempt.TenantID,
		attempt.AttachmentID,
		attempt.Recipient,
		string(attempt.Outcome),
		attempt.Reason,
	)
	if err != nil {
		return fmt.Errorf("audit: record attempt: %w", err)
	}
	return nil
}
