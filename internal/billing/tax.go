package billing

import (
	"github.com/kevin07696/billing-service/internal/domain/models"
	"github.com/shopspring/decimal"
)

// TaxLine records one applied rate
type TaxLine struct {
	TaxRateID        string          `json:"tax_rate_id"`
	JurisdictionCode string          `json:"jurisdiction_code"`
	TaxType          string          `json:"tax_type"`
	Rate             decimal.Decimal `json:"rate"`
	TaxCents         int64           `json:"tax_cents"`
}

// TaxResult is the outcome of a tax calculation over a discounted subtotal
type TaxResult struct {
	TaxableCents  int64     `json:"taxable_cents"`
	TotalTaxCents int64     `json:"total_tax_cents"`
	Lines         []TaxLine `json:"lines"`
	Exempt        bool      `json:"exempt"`
}

// CalculateTax sums round(taxable x rate) across the applicable rates.
// Callers resolve the jurisdiction and filter rates to the active window;
// exemption is evaluated per rate's tax type against the customer record.
func CalculateTax(taxableCents int64, rates []*models.TaxRate, exemptFor func(taxType string) bool) *TaxResult {
	result := &TaxResult{TaxableCents: taxableCents}
	if taxableCents <= 0 {
		return result
	}

	taxable := decimal.NewFromInt(taxableCents)
	exemptAll := true
	for _, r := range rates {
		if exemptFor != nil && exemptFor(r.TaxType) {
			continue
		}
		exemptAll = false
		cents := RoundCents(taxable.Mul(r.Rate))
		result.Lines = append(result.Lines, TaxLine{
			TaxRateID:        r.ID,
			JurisdictionCode: r.JurisdictionCode,
			TaxType:          r.TaxType,
			Rate:             r.Rate,
			TaxCents:         cents,
		})
		result.TotalTaxCents += cents
	}
	result.Exempt = len(rates) > 0 && exemptAll
	return result
}
