package models

import "time"

// Dispute represents a chargeback/dispute reported by the PSP via webhook.
// Rows are created and updated exclusively by webhook dispatch.
type Dispute struct {
	ID            string
	AppID         string
	CustomerID    string
	ChargeID      string
	PSPDisputeID  string
	Status        string
	AmountCents   int64
	Currency      string
	Reason        string
	EvidenceDueBy *time.Time
	Metadata      map[string]string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
