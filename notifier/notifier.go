package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Rejection reasons a notifier implementation may report.
const (
	ReasonInvalidRecipient  = "invalid recipient"
	ReasonOversizedDocument = "oversized document"
)

// RejectedError signals the notifier refused the delivery outright.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("notifier: delivery rejected: %s", e.Reason)
}

// Delivery is one receipt handed off for outbound delivery.
type Delivery struct {
	Recipient    string
	CustomerName string
	Amount       float64
	PaidDate     *time.Time
	Content      []byte
	Filename     string
}

// Notifier delivers a receipt to its recipient. Implementations live in the
// surrounding application; the pipeline only requires acceptance semantics:
// a nil return means the delivery was accepted and may be recorded.
type Notifier interface {
	Deliver(ctx context.Context, delivery Delivery) error
}

// LogNotifier accepts every delivery and logs it. Used for dry runs and as a
// placeholder until the surrounding application wires a real transport.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a dry-run notifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Deliver(_ context.Context, delivery Delivery) error {
	n.logger.Info("dry-run delivery",
		"recipient", delivery.Recipient,
		"customer", delivery.CustomerName,
		"filename", delivery.Filename,
		"bytes", len(delivery.Content),
	)
	return nil
}

// SizeLimited wraps a notifier with an outbound attachment cap. Transports
// commonly cap attachments below the document fetcher's own limit.
type SizeLimited struct {
	inner    Notifier
	maxBytes int64
}

// NewSizeLimited caps attachment size before handing off to inner. A
// non-positive maxBytes disables the cap.
func NewSizeLimited(inner Notifier, maxBytes int64) *SizeLimited {
	return &SizeLimited{inner: inner, maxBytes: maxBytes}
}

func (n *SizeLimited) Deliver(ctx context.Context, delivery Delivery) error {
	if n.maxBytes > 0 && int64(len(delivery.Content)) > n.maxBytes {
		return &RejectedError{Reason: ReasonOversizedDocument}
	}
	return n.inner.Deliver(ctx, delivery)
}
