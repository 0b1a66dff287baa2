package ports

import (
	"context"
	"time"

	"github.com/kevin07696/billing-service/internal/domain/models"
)

// CouponRepository persists app-scoped coupons, unique per (app_id, code)
type CouponRepository interface {
	Create(ctx context.Context, tx DBTX, coupon *models.Coupon) error
	GetByCode(ctx context.Context, tx DBTX, appID, code string) (*models.Coupon, error)
	ListByCodes(ctx context.Context, tx DBTX, appID string, codes []string) ([]*models.Coupon, error)
	IncrementRedemptions(ctx context.Context, tx DBTX, appID, couponID string) error
}

// TaxRateRepository persists app-scoped tax rates
type TaxRateRepository interface {
	Create(ctx context.Context, tx DBTX, rate *models.TaxRate) error
	ListActiveByJurisdiction(ctx context.Context, tx DBTX, appID, jurisdictionCode string, at time.Time) ([]*models.TaxRate, error)
}

// AuditRepository appends calculation audit rows (discount applications,
// tax calculations, proration events). Rows are append-only.
type AuditRepository interface {
	RecordDiscountApplication(ctx context.Context, tx DBTX, appID, invoiceID, couponID string, amountCents int64, detail map[string]interface{}) error
	RecordTaxCalculation(ctx context.Context, tx DBTX, appID, invoiceID, taxRateID string, amountCents int64, detail map[string]interface{}) error
	RecordProrationEvent(ctx context.Context, tx DBTX, appID, subscriptionID, kind string, amountCents int64, detail map[string]interface{}) error
}
