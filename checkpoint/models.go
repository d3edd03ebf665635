package checkpoint

import "time"

// Checkpoint is the durable high-water mark of processed remote changes for
// one tenant. It is mutated only by the pipeline, only after a cycle's work is
// fully committed.
type Checkpoint struct {
	TenantID         string
	LastChangeCursor time.Time
	UpdatedAt        time.Time
}

// EffectiveSince is the cursor actually sent to the changed-since query. Every
// cycle re-queries a trailing window behind the confirmed cursor to tolerate
// clock skew and late remote commits; the delivery ledger makes the resulting
// overlap safe.
func EffectiveSince(cursor time.Time, safetyWindow time.Duration) time.Time {
	return cursor.Add(-safetyWindow)
}
