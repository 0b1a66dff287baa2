package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/kevin07696/billing-service/internal/domain/ports"
)

// AuditRepository implements ports.AuditRepository with append-only inserts
type AuditRepository struct {
	db ports.DBPort
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db ports.DBPort) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) exec(tx ports.DBTX) ports.DBTX {
	if tx != nil {
		return tx
	}
	return r.db.GetDB()
}

// RecordDiscountApplication appends a discount audit row
func (r *AuditRepository) RecordDiscountApplication(ctx context.Context, tx ports.DBTX, appID, invoiceID, couponID string, amountCents int64, detail map[string]interface{}) error {
	cid, err := uuid.Parse(couponID)
	if err != nil {
		return fmt.Errorf("invalid coupon ID: %w", err)
	}
	detailJSON, err := marshalJSON(detail, "{}")
	if err != nil {
		return err
	}
	_, err = r.exec(tx).Exec(ctx, `
		INSERT INTO discount_applications (id, app_id, invoice_id, coupon_id, amount_cents, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())`,
		uuid.New(), appID, invoiceID, cid, amountCents, detailJSON,
	)
	if err != nil {
		return fmt.Errorf("record discount application: %w", err)
	}
	return nil
}

// RecordTaxCalculation appends a tax audit row
func (r *AuditRepository) RecordTaxCalculation(ctx context.Context, tx ports.DBTX, appID, invoiceID, taxRateID string, amountCents int64, detail map[string]interface{}) error {
	tid, err := uuid.Parse(taxRateID)
	if err != nil {
		return fmt.Errorf("invalid tax rate ID: %w", err)
	}
	detailJSON, err := marshalJSON(detail, "{}")
	if err != nil {
		return err
	}
	_, err = r.exec(tx).Exec(ctx, `
		INSERT INTO tax_calculations (id, app_id, invoice_id, tax_rate_id, amount_cents, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())`,
		uuid.New(), appID, invoiceID, tid, amountCents, detailJSON,
	)
	if err != nil {
		return fmt.Errorf("record tax calculation: %w", err)
	}
	return nil
}

// RecordProrationEvent appends a proration audit row
func (r *AuditRepository) RecordProrationEvent(ctx context.Context, tx ports.DBTX, appID, subscriptionID, kind string, amountCents int64, detail map[string]interface{}) error {
	sid, err := uuid.Parse(subscriptionID)
	if err != nil {
		return fmt.Errorf("invalid subscription ID: %w", err)
	}
	detailJSON, err := marshalJSON(detail, "{}")
	if err != nil {
		return err
	}
	_, err = r.exec(tx).Exec(ctx, `
		INSERT INTO proration_events (id, app_id, subscription_id, kind, amount_cents, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())`,
		uuid.New(), appID, sid, kind, amountCents, detailJSON,
	)
	if err != nil {
		return fmt.Errorf("record proration event: %w", err)
	}
	return nil
}
