package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kevin07696/billing-service/internal/domain"
	"github.com/kevin07696/billing-service/internal/domain/models"
	"github.com/kevin07696/billing-service/internal/domain/ports"
)

const chargeColumns = `id, app_id, customer_id, subscription_id, invoice_id, psp_charge_id,
	status, amount_cents, currency, reason, reference_id, service_date,
	note, failure_code, failure_message, metadata, created_at, updated_at`

// ChargeRepository implements ports.ChargeRepository
type ChargeRepository struct {
	db ports.DBPort
}

// NewChargeRepository creates a new charge repository
func NewChargeRepository(db ports.DBPort) *ChargeRepository {
	return &ChargeRepository{db: db}
}

func (r *ChargeRepository) exec(tx ports.DBTX) ports.DBTX {
	if tx != nil {
		return tx
	}
	return r.db.GetDB()
}

// Create inserts a new charge row. A unique violation on
// (app_id, reference_id) comes back as a conflict so the caller can load
// the row that won the race.
func (r *ChargeRepository) Create(ctx context.Context, tx ports.DBTX, charge *models.Charge) error {
	id, err := uuid.Parse(charge.ID)
	if err != nil {
		return fmt.Errorf("invalid charge ID: %w", err)
	}
	customerID, err := uuid.Parse(charge.CustomerID)
	if err != nil {
		return fmt.Errorf("invalid customer ID: %w", err)
	}
	var subscriptionID *uuid.UUID
	if charge.SubscriptionID != "" {
		sid, err := uuid.Parse(charge.SubscriptionID)
		if err != nil {
			return fmt.Errorf("invalid subscription ID: %w", err)
		}
		subscriptionID = &sid
	}
	metadata, err := marshalMetadata(charge.Metadata)
	if err != nil {
		return err
	}

	_, err = r.exec(tx).Exec(ctx, `
		INSERT INTO charges (`+chargeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, now(), now())`,
		id, charge.AppID, customerID, subscriptionID, nullText(charge.InvoiceID),
		nullText(charge.PSPChargeID), string(charge.Status), charge.AmountCents,
		charge.Currency, nullText(charge.Reason), nullText(charge.ReferenceID),
		charge.ServiceDate, nullText(charge.Note), nullText(charge.FailureCode),
		nullText(charge.FailureMessage), metadata,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.WrapError(domain.ErrorCodeConflict, "charge reference_id already used", err)
		}
		return fmt.Errorf("create charge: %w", err)
	}
	return nil
}

// GetByID retrieves a charge scoped by app
func (r *ChargeRepository) GetByID(ctx context.Context, tx ports.DBTX, appID, id string) (*models.Charge, error) {
	cid, err := uuid.Parse(id)
	if err != nil {
		return nil, domain.ErrChargeNotFound
	}
	row := r.exec(tx).QueryRow(ctx, `
		SELECT `+chargeColumns+`
		FROM charges
		WHERE app_id = $1 AND id = $2`,
		appID, cid,
	)
	return scanCharge(row)
}

// GetByReferenceID retrieves a charge by its domain-idempotency key
func (r *ChargeRepository) GetByReferenceID(ctx context.Context, tx ports.DBTX, appID, referenceID string) (*models.Charge, error) {
	row := r.exec(tx).QueryRow(ctx, `
		SELECT `+chargeColumns+`
		FROM charges
		WHERE app_id = $1 AND reference_id = $2`,
		appID, referenceID,
	)
	return scanCharge(row)
}

// GetByPSPChargeID retrieves a charge by the processor's id, scoped by app
func (r *ChargeRepository) GetByPSPChargeID(ctx context.Context, tx ports.DBTX, appID, pspChargeID string) (*models.Charge, error) {
	row := r.exec(tx).QueryRow(ctx, `
		SELECT `+chargeColumns+`
		FROM charges
		WHERE app_id = $1 AND psp_charge_id = $2`,
		appID, pspChargeID,
	)
	return scanCharge(row)
}

// Update persists mutable charge fields
func (r *ChargeRepository) Update(ctx context.Context, tx ports.DBTX, charge *models.Charge) error {
	id, err := uuid.Parse(charge.ID)
	if err != nil {
		return fmt.Errorf("invalid charge ID: %w", err)
	}
	metadata, err := marshalMetadata(charge.Metadata)
	if err != nil {
		return err
	}

	tag, err := r.exec(tx).Exec(ctx, `
		UPDATE charges
		SET psp_charge_id = $3, status = $4, failure_code = $5, failure_message = $6,
		    invoice_id = $7, metadata = $8, updated_at = now()
		WHERE app_id = $1 AND id = $2`,
		charge.AppID, id, nullText(charge.PSPChargeID), string(charge.Status),
		nullText(charge.FailureCode), nullText(charge.FailureMessage),
		nullText(charge.InvoiceID), metadata,
	)
	if err != nil {
		return fmt.Errorf("update charge: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrChargeNotFound
	}
	return nil
}

// ListByCustomer lists charges for a customer, newest first
func (r *ChargeRepository) ListByCustomer(ctx context.Context, tx ports.DBTX, appID, customerID string) ([]*models.Charge, error) {
	cid, err := uuid.Parse(customerID)
	if err != nil {
		return nil, domain.ErrCustomerNotFound
	}
	rows, err := r.exec(tx).Query(ctx, `
		SELECT `+chargeColumns+`
		FROM charges
		WHERE app_id = $1 AND customer_id = $2
		ORDER BY created_at DESC`,
		appID, cid,
	)
	if err != nil {
		return nil, fmt.Errorf("list charges: %w", err)
	}
	defer rows.Close()

	var charges []*models.Charge
	for rows.Next() {
		charge, err := scanCharge(rows)
		if err != nil {
			return nil, err
		}
		charges = append(charges, charge)
	}
	return charges, rows.Err()
}

func scanCharge(row pgx.Row) (*models.Charge, error) {
	var (
		c              models.Charge
		id             uuid.UUID
		customerID     uuid.UUID
		subscriptionID *uuid.UUID
		invoiceID      pgtype.Text
		pspChargeID    pgtype.Text
		status         string
		reason         pgtype.Text
		referenceID    pgtype.Text
		note           pgtype.Text
		failureCode    pgtype.Text
		failureMessage pgtype.Text
		metadata       []byte
	)
	err := row.Scan(&id, &c.AppID, &customerID, &subscriptionID, &invoiceID,
		&pspChargeID, &status, &c.AmountCents, &c.Currency, &reason,
		&referenceID, &c.ServiceDate, &note, &failureCode, &failureMessage,
		&metadata, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrChargeNotFound
		}
		return nil, fmt.Errorf("scan charge: %w", err)
	}

	c.ID = id.String()
	c.CustomerID = customerID.String()
	if subscriptionID != nil {
		c.SubscriptionID = subscriptionID.String()
	}
	c.InvoiceID = invoiceID.String
	c.PSPChargeID = pspChargeID.String
	c.Status = models.ChargeStatus(status)
	c.Reason = reason.String
	c.ReferenceID = referenceID.String
	c.Note = note.String
	c.FailureCode = failureCode.String
	c.FailureMessage = failureMessage.String
	if c.Metadata, err = unmarshalMetadata(metadata); err != nil {
		return nil, err
	}
	return &c, nil
}
