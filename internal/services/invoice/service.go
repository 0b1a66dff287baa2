package invoice

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/kevin07696/billing-service/internal/billing"
	"github.com/kevin07696/billing-service/internal/domain"
	"github.com/kevin07696/billing-service/internal/domain/models"
	"github.com/kevin07696/billing-service/internal/domain/ports"
	"go.uber.org/zap"
)

// Service composes the financial calculators over app-scoped reference
// data. Order of operations is contractual: proration happened upstream,
// discounts apply to the subtotal, tax applies to the discounted
// remainder. Quote is pure; Finalize persists the audit trail.
type Service struct {
	db        ports.DBPort
	customers ports.CustomerRepository
	coupons   ports.CouponRepository
	taxRates  ports.TaxRateRepository
	audit     ports.AuditRepository
	logger    *zap.Logger
	now       func() time.Time
}

// NewService creates an invoice service
func NewService(db ports.DBPort, customers ports.CustomerRepository, coupons ports.CouponRepository, taxRates ports.TaxRateRepository, audit ports.AuditRepository, logger *zap.Logger) *Service {
	return &Service{
		db:        db,
		customers: customers,
		coupons:   coupons,
		taxRates:  taxRates,
		audit:     audit,
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock overrides the time source, for tests
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// QuoteParams are the inputs to a billing quote
type QuoteParams struct {
	CustomerID           string
	SubtotalCents        int64
	CouponCodes          []string
	JurisdictionOverride string
	ProductTypes         []string
	Quantity             int
}

// Quote is the computed breakdown for a subtotal
type Quote struct {
	SubtotalCents int64                   `json:"subtotal_cents"`
	Discount      *billing.DiscountResult `json:"discount"`
	Tax           *billing.TaxResult      `json:"tax"`
	TotalCents    int64                   `json:"total_cents"`
}

// Preview computes discount stacking and tax for a subtotal without
// writing anything. Missing coupon codes are reported as rejections
// rather than failing the quote.
func (s *Service) Preview(ctx context.Context, appID string, params QuoteParams) (*Quote, error) {
	if params.SubtotalCents <= 0 {
		return nil, domain.ErrValidationAmountInvalid
	}

	var cust *models.Customer
	if params.CustomerID != "" {
		var err error
		cust, err = s.customers.GetByID(ctx, nil, appID, params.CustomerID)
		if err != nil {
			return nil, err
		}
	}

	now := s.now().UTC()
	dctx := billing.DiscountContext{
		Now:           now,
		ProductTypes:  params.ProductTypes,
		TotalQuantity: params.Quantity,
	}
	if cust != nil {
		dctx.CustomerSegment = cust.Segment()
	}

	coupons, err := s.resolveCoupons(ctx, appID, params.CouponCodes)
	if err != nil {
		return nil, err
	}
	discount := billing.ApplyDiscounts(params.SubtotalCents, coupons.found, dctx)
	discount.Rejected = append(discount.Rejected, coupons.missing...)

	jurisdiction := params.JurisdictionOverride
	if jurisdiction == "" && cust != nil {
		jurisdiction = cust.JurisdictionCode()
	}

	var rates []*models.TaxRate
	if jurisdiction != "" {
		rates, err = s.taxRates.ListActiveByJurisdiction(ctx, nil, appID, jurisdiction, now)
		if err != nil {
			return nil, err
		}
	}
	var exemptFor func(string) bool
	if cust != nil {
		exemptFor = cust.IsTaxExemptFor
	}
	tax := billing.CalculateTax(discount.RemainderCents, rates, exemptFor)

	return &Quote{
		SubtotalCents: params.SubtotalCents,
		Discount:      discount,
		Tax:           tax,
		TotalCents:    discount.RemainderCents + tax.TotalTaxCents,
	}, nil
}

// Finalize persists the audit trail for a committed invoice: one
// discount_application row per applied coupon (with a redemption count
// bump), one tax_calculation row per tax line. All rows commit together.
func (s *Service) Finalize(ctx context.Context, appID, invoiceID string, quote *Quote) error {
	if invoiceID == "" {
		return domain.NewValidationError("invoice_id", "invoice_id is required")
	}
	if quote == nil {
		return domain.NewValidationError("quote", "quote is required")
	}

	return s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if quote.Discount != nil {
			for _, app := range quote.Discount.Applied {
				detail := map[string]interface{}{
					"code":             app.Code,
					"applied_to_cents": app.AppliedToCents,
				}
				if err := s.audit.RecordDiscountApplication(ctx, tx, appID, invoiceID, app.CouponID, app.DiscountCents, detail); err != nil {
					return err
				}
				if err := s.coupons.IncrementRedemptions(ctx, tx, appID, app.CouponID); err != nil {
					return err
				}
			}
		}
		if quote.Tax != nil {
			for _, line := range quote.Tax.Lines {
				detail := map[string]interface{}{
					"jurisdiction_code": line.JurisdictionCode,
					"tax_type":          line.TaxType,
					"rate":              line.Rate.String(),
					"taxable_cents":     quote.Tax.TaxableCents,
				}
				if err := s.audit.RecordTaxCalculation(ctx, tx, appID, invoiceID, line.TaxRateID, line.TaxCents, detail); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

type resolvedCoupons struct {
	found   []*models.Coupon
	missing []billing.CouponRejection
}

func (s *Service) resolveCoupons(ctx context.Context, appID string, codes []string) (*resolvedCoupons, error) {
	out := &resolvedCoupons{}
	if len(codes) == 0 {
		return out, nil
	}
	coupons, err := s.coupons.ListByCodes(ctx, nil, appID, codes)
	if err != nil {
		return nil, err
	}
	byCode := make(map[string]*models.Coupon, len(coupons))
	for _, c := range coupons {
		byCode[c.Code] = c
	}
	for _, code := range codes {
		if c, ok := byCode[code]; ok {
			out.found = append(out.found, c)
		} else {
			out.missing = append(out.missing, billing.CouponRejection{Code: code, Reason: "coupon not found"})
		}
	}
	return out, nil
}
