package models

import "time"

// PaymentMethodType represents the kind of tokenized payment instrument
type PaymentMethodType string

const (
	PaymentMethodTypeCard     PaymentMethodType = "card"
	PaymentMethodTypeACHDebit PaymentMethodType = "ach_debit"
	PaymentMethodTypeEFTDebit PaymentMethodType = "eft_debit"
)

// PaymentMethod stores only masked data for a PSP-tokenized instrument.
// Full PANs, CVVs, account numbers, and routing numbers are never accepted,
// stored, or logged.
type PaymentMethod struct {
	ID                 string
	AppID              string
	CustomerID         string
	PSPPaymentMethodID string
	Type               PaymentMethodType
	Brand              string
	Last4              string
	ExpMonth           int
	ExpYear            int
	BankName           string
	BankLast4          string
	IsDefault          bool
	DeletedAt          *time.Time
	Metadata           map[string]string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Deleted reports whether the method has been soft-deleted
func (pm *PaymentMethod) Deleted() bool {
	return pm.DeletedAt != nil
}
