package models

import "time"

// CustomerStatus represents the lifecycle status of a customer
type CustomerStatus string

const (
	CustomerStatusActive     CustomerStatus = "active"
	CustomerStatusDelinquent CustomerStatus = "delinquent"
	CustomerStatusDeleted    CustomerStatus = "deleted"
)

// Customer represents a billing customer scoped to a tenant application.
// DefaultPaymentMethodToken is a denormalized fast path; the authoritative
// default is the is_default flag on the payment method row, updated in the
// same transaction.
type Customer struct {
	ID                        string
	AppID                     string
	ExternalCustomerID        string
	PSPCustomerID             string
	Email                     string
	Name                      string
	DefaultPaymentMethodToken string
	DefaultPaymentMethodType  string
	Status                    CustomerStatus
	DelinquentSince           *time.Time
	Metadata                  map[string]string
	CreatedAt                 time.Time
	UpdatedAt                 time.Time
}

// JurisdictionCode resolves the customer's tax jurisdiction from metadata.
// Order: explicit jurisdiction_code, then state.
func (c *Customer) JurisdictionCode() string {
	if c.Metadata == nil {
		return ""
	}
	if code, ok := c.Metadata["jurisdiction_code"]; ok && code != "" {
		return code
	}
	return c.Metadata["state"]
}

// Segment returns the customer segment carried in metadata, if any.
func (c *Customer) Segment() string {
	if c.Metadata == nil {
		return ""
	}
	return c.Metadata["segment"]
}

// IsTaxExemptFor reports whether the customer carries a tax exemption for
// the given tax type in metadata (key "tax_exempt" holds the exempt type,
// or "all").
func (c *Customer) IsTaxExemptFor(taxType string) bool {
	if c.Metadata == nil {
		return false
	}
	exempt, ok := c.Metadata["tax_exempt"]
	if !ok {
		return false
	}
	return exempt == "all" || exempt == taxType
}
