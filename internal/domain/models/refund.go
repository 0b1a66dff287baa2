package models

import "time"

// RefundStatus represents the state of a refund
type RefundStatus string

const (
	RefundStatusPending   RefundStatus = "pending"
	RefundStatusSucceeded RefundStatus = "succeeded"
	RefundStatusFailed    RefundStatus = "failed"
)

// Refund represents a refund against a settled charge. ReferenceID is the
// caller-chosen domain-idempotency key, unique per (app_id, reference_id).
type Refund struct {
	ID             string
	AppID          string
	CustomerID     string
	ChargeID       string
	PSPRefundID    string
	Status         RefundStatus
	AmountCents    int64
	Currency       string
	Reason         string
	ReferenceID    string
	FailureCode    string
	FailureMessage string
	Metadata       map[string]string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
