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

const paymentMethodColumns = `id, app_id, customer_id, psp_payment_method_id, type, brand, last4,
	exp_month, exp_year, bank_name, bank_last4, is_default, deleted_at,
	metadata, created_at, updated_at`

// PaymentMethodRepository implements ports.PaymentMethodRepository
type PaymentMethodRepository struct {
	db ports.DBPort
}

// NewPaymentMethodRepository creates a new payment method repository
func NewPaymentMethodRepository(db ports.DBPort) *PaymentMethodRepository {
	return &PaymentMethodRepository{db: db}
}

func (r *PaymentMethodRepository) exec(tx ports.DBTX) ports.DBTX {
	if tx != nil {
		return tx
	}
	return r.db.GetDB()
}

// Upsert inserts a method or revives/updates the existing row for the same
// PSP token, clearing deleted_at on re-attach.
func (r *PaymentMethodRepository) Upsert(ctx context.Context, tx ports.DBTX, method *models.PaymentMethod) error {
	id, err := uuid.Parse(method.ID)
	if err != nil {
		return fmt.Errorf("invalid payment method ID: %w", err)
	}
	customerID, err := uuid.Parse(method.CustomerID)
	if err != nil {
		return fmt.Errorf("invalid customer ID: %w", err)
	}
	metadata, err := marshalMetadata(method.Metadata)
	if err != nil {
		return err
	}

	_, err = r.exec(tx).Exec(ctx, `
		INSERT INTO payment_methods (`+paymentMethodColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NULL, $13, now(), now())
		ON CONFLICT (psp_payment_method_id) DO UPDATE
		SET customer_id = EXCLUDED.customer_id,
		    type = EXCLUDED.type,
		    brand = EXCLUDED.brand,
		    last4 = EXCLUDED.last4,
		    exp_month = EXCLUDED.exp_month,
		    exp_year = EXCLUDED.exp_year,
		    bank_name = EXCLUDED.bank_name,
		    bank_last4 = EXCLUDED.bank_last4,
		    deleted_at = NULL,
		    metadata = EXCLUDED.metadata,
		    updated_at = now()`,
		id, method.AppID, customerID, method.PSPPaymentMethodID,
		string(method.Type), nullText(method.Brand), nullText(method.Last4),
		nullInt4(method.ExpMonth), nullInt4(method.ExpYear),
		nullText(method.BankName), nullText(method.BankLast4),
		method.IsDefault, metadata,
	)
	if err != nil {
		return fmt.Errorf("upsert payment method: %w", err)
	}
	return nil
}

// GetByPSPID retrieves a method by the PSP token, scoped by app. Soft-deleted
// rows are returned so callers can re-attach them.
func (r *PaymentMethodRepository) GetByPSPID(ctx context.Context, tx ports.DBTX, appID, pspPaymentMethodID string) (*models.PaymentMethod, error) {
	row := r.exec(tx).QueryRow(ctx, `
		SELECT `+paymentMethodColumns+`
		FROM payment_methods
		WHERE app_id = $1 AND psp_payment_method_id = $2`,
		appID, pspPaymentMethodID,
	)
	return scanPaymentMethod(row)
}

// ListByCustomer returns non-deleted methods, default first then newest first
func (r *PaymentMethodRepository) ListByCustomer(ctx context.Context, tx ports.DBTX, appID, customerID string) ([]*models.PaymentMethod, error) {
	cid, err := uuid.Parse(customerID)
	if err != nil {
		return nil, domain.ErrCustomerNotFound
	}
	rows, err := r.exec(tx).Query(ctx, `
		SELECT `+paymentMethodColumns+`
		FROM payment_methods
		WHERE app_id = $1 AND customer_id = $2 AND deleted_at IS NULL
		ORDER BY is_default DESC, created_at DESC`,
		appID, cid,
	)
	if err != nil {
		return nil, fmt.Errorf("list payment methods: %w", err)
	}
	defer rows.Close()

	var methods []*models.PaymentMethod
	for rows.Next() {
		pm, err := scanPaymentMethod(rows)
		if err != nil {
			return nil, err
		}
		methods = append(methods, pm)
	}
	return methods, rows.Err()
}

// SoftDelete sets deleted_at and clears is_default
func (r *PaymentMethodRepository) SoftDelete(ctx context.Context, tx ports.DBTX, appID, pspPaymentMethodID string) error {
	tag, err := r.exec(tx).Exec(ctx, `
		UPDATE payment_methods
		SET deleted_at = now(), is_default = false, updated_at = now()
		WHERE app_id = $1 AND psp_payment_method_id = $2 AND deleted_at IS NULL`,
		appID, pspPaymentMethodID,
	)
	if err != nil {
		return fmt.Errorf("soft delete payment method: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPaymentMethodNotFound
	}
	return nil
}

// ClearDefaults clears is_default on all of the customer's methods
func (r *PaymentMethodRepository) ClearDefaults(ctx context.Context, tx ports.DBTX, appID, customerID string) error {
	cid, err := uuid.Parse(customerID)
	if err != nil {
		return domain.ErrCustomerNotFound
	}
	_, err = r.exec(tx).Exec(ctx, `
		UPDATE payment_methods
		SET is_default = false, updated_at = now()
		WHERE app_id = $1 AND customer_id = $2 AND is_default = true`,
		appID, cid,
	)
	if err != nil {
		return fmt.Errorf("clear default payment methods: %w", err)
	}
	return nil
}

// SetDefault marks a single method as the default
func (r *PaymentMethodRepository) SetDefault(ctx context.Context, tx ports.DBTX, appID, pspPaymentMethodID string) error {
	tag, err := r.exec(tx).Exec(ctx, `
		UPDATE payment_methods
		SET is_default = true, updated_at = now()
		WHERE app_id = $1 AND psp_payment_method_id = $2 AND deleted_at IS NULL`,
		appID, pspPaymentMethodID,
	)
	if err != nil {
		return fmt.Errorf("set default payment method: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPaymentMethodNotFound
	}
	return nil
}

func scanPaymentMethod(row pgx.Row) (*models.PaymentMethod, error) {
	var (
		pm         models.PaymentMethod
		id         uuid.UUID
		customerID uuid.UUID
		pmType     string
		brand      pgtype.Text
		last4      pgtype.Text
		expMonth   pgtype.Int4
		expYear    pgtype.Int4
		bankName   pgtype.Text
		bankLast4  pgtype.Text
		metadata   []byte
	)
	err := row.Scan(&id, &pm.AppID, &customerID, &pm.PSPPaymentMethodID, &pmType,
		&brand, &last4, &expMonth, &expYear, &bankName, &bankLast4,
		&pm.IsDefault, &pm.DeletedAt, &metadata, &pm.CreatedAt, &pm.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPaymentMethodNotFound
		}
		return nil, fmt.Errorf("scan payment method: %w", err)
	}

	pm.ID = id.String()
	pm.CustomerID = customerID.String()
	pm.Type = models.PaymentMethodType(pmType)
	pm.Brand = brand.String
	pm.Last4 = last4.String
	pm.ExpMonth = int(expMonth.Int32)
	pm.ExpYear = int(expYear.Int32)
	pm.BankName = bankName.String
	pm.BankLast4 = bankLast4.String
	if pm.Metadata, err = unmarshalMetadata(metadata); err != nil {
		return nil, err
	}
	return &pm, nil
}
