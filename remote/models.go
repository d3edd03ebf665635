package remote

import "time"

// Settlement statuses the remote API reports on installments. Only settled
// installments carry receipts worth delivering.
const (
	StatusReceived = "received"
	StatusPaid     = "paid"
	StatusSettled  = "settled"
)

// Receivable is a financial change record returned by the changed-since query.
type Receivable struct {
	ID           string     `json:"id"`
	CustomerName string     `json:"customerName"`
	TotalAmount  float64    `json:"totalAmount"`
	ChangedAt    time.Time  `json:"changedAt"`
	ReceivedDate *time.Time `json:"receivedDate"`
}

// ReceivableDetails expands a receivable into its installments.
type ReceivableDetails struct {
	Receivable
	Installments []Installment `json:"installments"`
}

// Installment is one settlement unit of a receivable.
type Installment struct {
	ID             string     `json:"id"`
	Status         string     `json:"status"`
	Amount         float64    `json:"amount"`
	PaymentID      string     `json:"paymentId"`
	PaidDate       *time.Time `json:"paidDate"`
	RecipientEmail string     `json:"recipientEmail"`
}

// Settled reports whether the installment reached a settled state.
func (i Installment) Settled() bool {
	switch i.Status {
	case StatusReceived, StatusPaid, StatusSettled:
		return true
	default:
		return false
	}
}

// InstallmentDetails expands an installment into its receipt attachments.
type InstallmentDetails struct {
	Installment
	Attachments []Attachment `json:"attachments"`
}

// Attachment references a receipt document by URL.
type Attachment struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

type receivablePage struct {
	Data []Receivable `json:"data"`
}
