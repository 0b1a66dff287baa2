package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TaxRate is app-scoped reference data. Rate is a fraction in [0, 1].
type TaxRate struct {
	ID               string
	AppID            string
	JurisdictionCode string
	TaxType          string
	Rate             decimal.Decimal
	EffectiveDate    time.Time
	ExpirationDate   *time.Time
	Description      string
	CreatedAt        time.Time
}

// ActiveAt reports whether the rate is in force at the given instant
func (t *TaxRate) ActiveAt(now time.Time) bool {
	if now.Before(t.EffectiveDate) {
		return false
	}
	return t.ExpirationDate == nil || now.Before(*t.ExpirationDate)
}
