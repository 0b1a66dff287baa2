package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kevin07696/billing-service/internal/domain/models"
	"github.com/kevin07696/billing-service/internal/domain/ports"
)

const taxRateColumns = `id, app_id, jurisdiction_code, tax_type, rate, effective_date,
	expiration_date, description, created_at`

// TaxRateRepository implements ports.TaxRateRepository
type TaxRateRepository struct {
	db ports.DBPort
}

// NewTaxRateRepository creates a new tax rate repository
func NewTaxRateRepository(db ports.DBPort) *TaxRateRepository {
	return &TaxRateRepository{db: db}
}

func (r *TaxRateRepository) exec(tx ports.DBTX) ports.DBTX {
	if tx != nil {
		return tx
	}
	return r.db.GetDB()
}

// Create inserts a new tax rate row
func (r *TaxRateRepository) Create(ctx context.Context, tx ports.DBTX, rate *models.TaxRate) error {
	id, err := uuid.Parse(rate.ID)
	if err != nil {
		return fmt.Errorf("invalid tax rate ID: %w", err)
	}
	_, err = r.exec(tx).Exec(ctx, `
		INSERT INTO tax_rates (`+taxRateColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())`,
		id, rate.AppID, rate.JurisdictionCode, rate.TaxType, rate.Rate,
		rate.EffectiveDate, rate.ExpirationDate, nullText(rate.Description),
	)
	if err != nil {
		return fmt.Errorf("create tax rate: %w", err)
	}
	return nil
}

// ListActiveByJurisdiction returns the rates in force for a jurisdiction at
// the given instant, ordered by tax type for stable invoice lines.
func (r *TaxRateRepository) ListActiveByJurisdiction(ctx context.Context, tx ports.DBTX, appID, jurisdictionCode string, at time.Time) ([]*models.TaxRate, error) {
	rows, err := r.exec(tx).Query(ctx, `
		SELECT `+taxRateColumns+`
		FROM tax_rates
		WHERE app_id = $1 AND jurisdiction_code = $2
		  AND effective_date <= $3
		  AND (expiration_date IS NULL OR expiration_date > $3)
		ORDER BY tax_type`,
		appID, jurisdictionCode, at,
	)
	if err != nil {
		return nil, fmt.Errorf("list tax rates: %w", err)
	}
	defer rows.Close()

	var rates []*models.TaxRate
	for rows.Next() {
		rate, err := scanTaxRate(rows)
		if err != nil {
			return nil, err
		}
		rates = append(rates, rate)
	}
	return rates, rows.Err()
}

func scanTaxRate(row pgx.Row) (*models.TaxRate, error) {
	var (
		t           models.TaxRate
		id          uuid.UUID
		description pgtype.Text
	)
	err := row.Scan(&id, &t.AppID, &t.JurisdictionCode, &t.TaxType, &t.Rate,
		&t.EffectiveDate, &t.ExpirationDate, &description, &t.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan tax rate: %w", err)
	}

	t.ID = id.String()
	t.Description = description.String
	return &t, nil
}
