package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"receiptflow/audit"
	"receiptflow/checkpoint"
	"receiptflow/credential"
	"receiptflow/document"
	"receiptflow/ledger"
	"receiptflow/notifier"
	"receiptflow/recipient"
	"receiptflow/remote"
	"receiptflow/tenant"
)

// RemoteAPI is the slice of the accounting client the pipeline depends on.
type RemoteAPI interface {
	ListReceivables(ctx context.Context, cred credential.Credential, since time.Time, status string) ([]remote.Receivable, error)
	GetReceivable(ctx context.Context, cred credential.Credential, receivableID string) (remote.ReceivableDetails, error)
	GetInstallment(ctx context.Context, cred credential.Credential, installmentID string) (remote.InstallmentDetails, error)
}

// DocumentFetcher retrieves and validates one receipt document.
type DocumentFetcher interface {
	Fetch(ctx context.Context, url string) (*document.Document, error)
}

// CycleStats summarizes one polling cycle.
type CycleStats struct {
	Delivered int
	Skipped   int
	Failed    int
}

func (s *CycleStats) merge(other CycleStats) {
	s.Delivered += other.Delivered
	s.Skipped += other.Skipped
	s.Failed += other.Failed
}

// itemOutcome is the terminal/non-terminal classification of one attachment.
// Only outcomeFailed holds the checkpoint back; delivered and skipped items
// are resolved and never revisited.
type itemOutcome int

const (
	outcomeDelivered itemOutcome = iota
	outcomeSkipped
	outcomeFailed
)

// Deps enumerates the pipeline's collaborators.
type Deps struct {
	Tenants     tenant.Repository
	Credentials credential.Provider
	Client      RemoteAPI
	Fetcher     DocumentFetcher
	Checkpoints checkpoint.Store
	Ledger      ledger.Ledger
	Audit       audit.Log
	Notifier    notifier.Notifier
	Fallback    recipient.Resolver

	InitialLookback time.Duration
	SafetyWindow    time.Duration

	Logger  *slog.Logger
	Metrics *Metrics
}

// Processor drives one polling cycle per tenant: checkpoint, changed-since
// query, expansion into installments and attachments, dedup, fetch, delivery,
// ledger record, checkpoint advance. It holds no per-cycle state and is safely
// restartable.
type Processor struct {
	deps        Deps
	now         func() time.Time
	idGenerator func() string
}

// NewProcessor wires a pipeline from its collaborators.
func NewProcessor(deps Deps) *Processor {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Processor{
		deps:        deps,
		now:         time.Now,
		idGenerator: uuid.NewString,
	}
}

// WithClock overrides the time source.
func (p *Processor) WithClock(now func() time.Time) *Processor {
	p.now = now
	return p
}

// WithIDGenerator overrides ledger entry ID generation.
func (p *Processor) WithIDGenerator(gen func() string) *Processor {
	p.idGenerator = gen
	return p
}

// RunCycle processes every active tenant once, sequentially. One tenant's
// failure never blocks the others.
func (p *Processor) RunCycle(ctx context.Context) (CycleStats, error) {
	start := p.now()

	tenants, err := p.deps.Tenants.ListActive(ctx)
	if err != nil {
		return CycleStats{}, fmt.Errorf("pipeline: list tenants: %w", err)
	}

	var stats CycleStats
	for _, t := range tenants {
		tenantStats, err := p.processTenant(ctx, t)
		stats.merge(tenantStats)
		if err != nil {
			if p.deps.Metrics != nil {
				p.deps.Metrics.TenantCycleFailures.Inc()
			}
			p.deps.Logger.Error("tenant cycle aborted", "tenant", t.ID, "error", err)
			stats.Failed++
			continue
		}
	}

	if p.deps.Metrics != nil {
		p.deps.Metrics.CyclesTotal.Inc()
		p.deps.Metrics.DeliveredTotal.Add(float64(stats.Delivered))
		p.deps.Metrics.SkippedTotal.Add(float64(stats.Skipped))
		p.deps.Metrics.FailedTotal.Add(float64(stats.Failed))
		p.deps.Metrics.CycleDurationSeconds.Observe(p.now().Sub(start).Seconds())
	}

	p.deps.Logger.Info("cycle complete",
		"tenants", len(tenants),
		"delivered", stats.Delivered,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
	)
	return stats, nil
}

// processTenant runs one tenant's cycle. Any error aborts the tenant cleanly
// with the checkpoint untouched; the next scheduled cycle resumes from the
// same point.
func (p *Processor) processTenant(ctx context.Context, t tenant.Tenant) (CycleStats, error) {
	cred, err := p.deps.Credentials.Valid(ctx, t.ID)
	if err != nil {
		return CycleStats{}, fmt.Errorf("pipeline: credential for %s: %w", t.ID, err)
	}
	if cred.Expired(p.now()) {
		return CycleStats{}, fmt.Errorf("pipeline: credential for %s expired: %w", t.ID, credential.ErrUnavailable)
	}

	cp, err := p.deps.Checkpoints.GetOrCreate(ctx, t.ID, p.now().Add(-p.deps.InitialLookback))
	if err != nil {
		return CycleStats{}, err
	}
	since := checkpoint.EffectiveSince(cp.LastChangeCursor, p.deps.SafetyWindow)
	queryEnd := p.now()

	receivables, err := p.deps.Client.ListReceivables(ctx, cred, since, remote.StatusReceived)
	if err != nil {
		return CycleStats{}, fmt.Errorf("pipeline: query changes for %s: %w", t.ID, err)
	}

	p.deps.Logger.Debug("processing changes",
		"tenant", t.ID,
		"since", since,
		"changes", len(receivables),
	)

	var stats CycleStats

	// Cursor candidate: the query end time, pulled back to the earliest change
	// that still has unresolved items so the next cycle re-surfaces it.
	cursor := queryEnd
	cursorPinned := false
	for _, rcv := range receivables {
		rcvStats, pending := p.processReceivable(ctx, t, cred, rcv)
		stats.merge(rcvStats)
		if !pending {
			continue
		}
		if rcv.ChangedAt.IsZero() {
			// Unknown change timestamp: hold the cursor where it was.
			cursor = cp.LastChangeCursor
			cursorPinned = true
		} else if !cursorPinned && rcv.ChangedAt.Before(cursor) {
			cursor = rcv.ChangedAt
		}
	}

	if err := p.deps.Checkpoints.Advance(ctx, t.ID, cursor); err != nil {
		return stats, fmt.Errorf("pipeline: advance checkpoint for %s: %w", t.ID, err)
	}
	return stats, nil
}

// processReceivable expands one change into installments and attachments.
// pending is true when at least one item failed recoverably and the
// checkpoint must not advance past this change.
func (p *Processor) processReceivable(ctx context.Context, t tenant.Tenant, cred credential.Credential, rcv remote.Receivable) (stats CycleStats, pending bool) {
	logger := p.deps.Logger.With("tenant", t.ID, "receivable", rcv.ID)

	if rcv.ID == "" {
		logger.Warn("change without id; skipping")
		stats.Skipped++
		return stats, false
	}

	details, err := p.deps.Client.GetReceivable(ctx, cred, rcv.ID)
	if err != nil {
		if permanentRemote(err) {
			logger.Warn("receivable detail rejected by remote; skipping", "error", err)
			stats.Skipped++
			return stats, false
		}
		logger.Error("receivable detail fetch failed", "error", err)
		stats.Failed++
		return stats, true
	}

	if len(details.Installments) == 0 {
		logger.Debug("change carries no installments")
		return stats, false
	}

	for _, inst := range details.Installments {
		if inst.ID == "" {
			logger.Warn("installment without id; skipping")
			stats.Skipped++
			continue
		}
		if !inst.Settled() {
			continue
		}

		instDetails, err := p.deps.Client.GetInstallment(ctx, cred, inst.ID)
		if err != nil {
			if permanentRemote(err) {
				logger.Warn("installment detail rejected by remote; skipping", "installment", inst.ID, "error", err)
				stats.Skipped++
				continue
			}
			logger.Error("installment detail fetch failed", "installment", inst.ID, "error", err)
			stats.Failed++
			pending = true
			continue
		}

		for _, att := range instDetails.Attachments {
			switch p.processAttachment(ctx, t, rcv.CustomerName, instDetails.Installment, att) {
			case outcomeDelivered:
				stats.Delivered++
			case outcomeSkipped:
				stats.Skipped++
			case outcomeFailed:
				stats.Failed++
				pending = true
			}
		}
	}
	return stats, pending
}

// processAttachment runs the per-item path: dedup check, fetch and validate,
// recipient resolution, delivery, ledger record. The dedup check comes first
// so already-delivered items cost nothing; the ledger write happens only
// after the notifier confirms acceptance.
func (p *Processor) processAttachment(ctx context.Context, t tenant.Tenant, customerName string, inst remote.Installment, att remote.Attachment) itemOutcome {
	logger := p.deps.Logger.With("tenant", t.ID, "installment", inst.ID, "attachment", att.ID)

	if att.URL == "" {
		logger.Warn("attachment without url; skipping")
		return outcomeSkipped
	}

	sent, err := p.deps.Ledger.IsSent(ctx, t.ID, inst.ID, att.URL)
	if err != nil {
		logger.Error("ledger check failed", "error", err)
		return outcomeFailed
	}
	if sent {
		logger.Debug("already delivered; short-circuit")
		return outcomeSkipped
	}

	doc, err := p.deps.Fetcher.Fetch(ctx, att.URL)
	if err != nil {
		if document.IsValidation(err) {
			logger.Warn("document rejected by validation; skipping", "error", err)
			p.recordAttempt(ctx, t.ID, att.ID, "", audit.OutcomeSkipped, "validation: "+err.Error())
			return outcomeSkipped
		}
		logger.Error("document fetch failed", "error", err)
		p.recordAttempt(ctx, t.ID, att.ID, "", audit.OutcomeFailed, "fetch: "+err.Error())
		return outcomeFailed
	}

	email := inst.RecipientEmail
	if email == "" && p.deps.Fallback != nil {
		if resolved, ok := p.deps.Fallback.Resolve(customerName); ok {
			email = resolved
		}
	}
	if email == "" {
		logger.Warn("no recipient resolved; permanently skipping", "customer", customerName)
		p.recordAttempt(ctx, t.ID, att.ID, "", audit.OutcomeSkipped, "recipient unresolved")
		return outcomeSkipped
	}

	delivery := notifier.Delivery{
		Recipient:    email,
		CustomerName: customerName,
		Amount:       inst.Amount,
		PaidDate:     inst.PaidDate,
		Content:      doc.Bytes,
		Filename:     doc.Filename,
	}
	if err := p.deps.Notifier.Deliver(ctx, delivery); err != nil {
		logger.Error("delivery not accepted", "recipient", email, "error", err)
		p.recordAttempt(ctx, t.ID, att.ID, email, audit.OutcomeFailed, "notifier: "+err.Error())
		return outcomeFailed
	}

	entry := ledger.Entry{
		ID:            p.idGenerator(),
		TenantID:      t.ID,
		InstallmentID: inst.ID,
		AttachmentURL: att.URL,
		Recipient:     email,
		SentAt:        p.now(),
		ContentHash:   doc.SHA256,
		Metadata: map[string]string{
			"customer_name": customerName,
			"amount":        strconv.FormatFloat(inst.Amount, 'f', 2, 64),
		},
	}
	if inst.PaidDate != nil {
		entry.Metadata["payment_date"] = inst.PaidDate.UTC().Format(time.RFC3339)
	}

	if err := p.deps.Ledger.RecordSent(ctx, entry); err != nil {
		if errors.Is(err, ledger.ErrDuplicateEntry) {
			logger.Debug("concurrent attempt already recorded delivery")
			return outcomeDelivered
		}
		// The receipt went out but the ledger write failed; the item stays
		// pending and the uniqueness constraint absorbs the redo.
		logger.Error("ledger record failed after delivery", "error", err)
		p.recordAttempt(ctx, t.ID, att.ID, email, audit.OutcomeFailed, "ledger: "+err.Error())
		return outcomeFailed
	}

	p.recordAttempt(ctx, t.ID, att.ID, email, audit.OutcomeSent, "")
	logger.Info("receipt delivered", "recipient", email, "hash", doc.SHA256[:8])
	return outcomeDelivered
}

// recordAttempt writes to the outcome log; audit failures are logged but do
// not alter item outcomes.
func (p *Processor) recordAttempt(ctx context.Context, tenantID, attachmentID, recipientEmail string, outcome audit.Outcome, reason string) {
	if p.deps.Audit == nil {
		return
	}
	attempt := audit.Attempt{
		TenantID:     tenantID,
		AttachmentID: attachmentID,
		Recipient:    recipientEmail,
		Outcome:      outcome,
		Reason:       reason,
	}
	if err := p.deps.Audit.Record(ctx, attempt); err != nil {
		p.deps.Logger.Error("audit record failed", "tenant", tenantID, "error", err)
	}
}

// permanentRemote reports whether the remote error is a non-retryable client
// fault (4xx other than 429). Those items are skipped, never retried.
func permanentRemote(err error) bool {
	var statusErr *remote.StatusError
	return errors.As(err, &statusErr) && statusErr.Permanent()
}
