package ledger

import "time"

// Entry records one confirmed delivery. The (tenant, installment, attachment
// URL) triple is the idempotency key; an entry exists exactly once per
// delivered receipt and is never mutated.
type Entry struct {
	ID            string
	TenantID      string
	InstallmentID string
	AttachmentURL string
	Recipient     string
	SentAt        time.Time
	ContentHash   string
	Metadata      map[string]string
}
