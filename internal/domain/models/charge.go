package models

import "time"

// ChargeStatus represents the state of a one-time charge
type ChargeStatus string

const (
	ChargeStatusPending   ChargeStatus = "pending"
	ChargeStatusSucceeded ChargeStatus = "succeeded"
	ChargeStatusFailed    ChargeStatus = "failed"
)

// Charge represents a one-time charge. ReferenceID is the caller-chosen
// domain-idempotency key, unique per (app_id, reference_id) when present.
// A pending row with a null PSP charge id is authoritative evidence that the
// business operation was attempted; the PSP id records that the processor
// accepted it.
type Charge struct {
	ID             string
	AppID          string
	CustomerID     string
	SubscriptionID string
	InvoiceID      string
	PSPChargeID    string
	Status         ChargeStatus
	AmountCents    int64
	Currency       string
	Reason         string
	ReferenceID    string
	ServiceDate    *time.Time
	Note           string
	FailureCode    string
	FailureMessage string
	Metadata       map[string]string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Settled reports whether the charge was accepted by the processor
func (c *Charge) Settled() bool {
	return c.PSPChargeID != "" && c.Status == ChargeStatusSucceeded
}
