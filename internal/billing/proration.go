package billing

import (
	"time"

	"github.com/kevin07696/billing-service/internal/domain"
	"github.com/shopspring/decimal"
)

// ProrationKind classifies the net outcome of a proration
type ProrationKind string

const (
	ProrationCharge ProrationKind = "proration_charge"
	ProrationCredit ProrationKind = "proration_credit"
)

// ProrationParams describes a mid-period plan change
type ProrationParams struct {
	PeriodStart   time.Time
	PeriodEnd     time.Time
	ChangeDate    time.Time
	OldPriceCents int64
	NewPriceCents int64
}

// ProrationResult is the full breakdown of a proration calculation
type ProrationResult struct {
	DaysTotal     int             `json:"days_total"`
	DaysRemaining int             `json:"days_remaining"`
	Factor        decimal.Decimal `json:"factor"`
	CreditCents   int64           `json:"credit_cents"`
	ChargeCents   int64           `json:"charge_cents"`
	NetCents      int64           `json:"net_cents"`
	Kind          ProrationKind   `json:"kind"`
}

// Prorate computes the credit for the unused remainder of the old price and
// the charge for the remainder of the new price. All dates are normalized to
// UTC midnight; the factor is days_remaining/days_total clamped to [0, 1].
func Prorate(params ProrationParams) (*ProrationResult, error) {
	start := utcMidnight(params.PeriodStart)
	end := utcMidnight(params.PeriodEnd)
	change := utcMidnight(params.ChangeDate)

	daysTotal := int(end.Sub(start).Hours() / 24)
	if daysTotal <= 0 {
		return nil, domain.NewValidationError("period_end", "billing period must end after it starts")
	}
	if params.OldPriceCents < 0 || params.NewPriceCents < 0 {
		return nil, domain.NewValidationError("price_cents", "prices must be non-negative")
	}

	daysRemaining := int(end.Sub(change).Hours() / 24)
	if daysRemaining < 0 {
		daysRemaining = 0
	}
	if daysRemaining > daysTotal {
		daysRemaining = daysTotal
	}

	factor := decimal.NewFromInt(int64(daysRemaining)).Div(decimal.NewFromInt(int64(daysTotal)))

	credit := RoundCents(decimal.NewFromInt(params.OldPriceCents).Mul(factor))
	charge := RoundCents(decimal.NewFromInt(params.NewPriceCents).Mul(factor))
	net := charge - credit

	kind := ProrationCharge
	if net < 0 {
		kind = ProrationCredit
	}

	return &ProrationResult{
		DaysTotal:     daysTotal,
		DaysRemaining: daysRemaining,
		Factor:        factor,
		CreditCents:   credit,
		ChargeCents:   charge,
		NetCents:      net,
		Kind:          kind,
	}, nil
}

func utcMidnight(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
