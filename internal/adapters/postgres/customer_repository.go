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

const customerColumns = `id, app_id, external_customer_id, psp_customer_id, email, name,
	default_payment_method_token, default_payment_method_type, status,
	delinquent_since, metadata, created_at, updated_at`

// CustomerRepository implements ports.CustomerRepository with hand-written SQL
type CustomerRepository struct {
	db ports.DBPort
}

// NewCustomerRepository creates a new customer repository
func NewCustomerRepository(db ports.DBPort) *CustomerRepository {
	return &CustomerRepository{db: db}
}

func (r *CustomerRepository) exec(tx ports.DBTX) ports.DBTX {
	if tx != nil {
		return tx
	}
	return r.db.GetDB()
}

// Create inserts a new customer row
func (r *CustomerRepository) Create(ctx context.Context, tx ports.DBTX, customer *models.Customer) error {
	id, err := uuid.Parse(customer.ID)
	if err != nil {
		return fmt.Errorf("invalid customer ID: %w", err)
	}
	metadata, err := marshalMetadata(customer.Metadata)
	if err != nil {
		return err
	}

	_, err = r.exec(tx).Exec(ctx, `
		INSERT INTO customers (`+customerColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now(), now())`,
		id, customer.AppID, nullText(customer.ExternalCustomerID),
		nullText(customer.PSPCustomerID), customer.Email, customer.Name,
		nullText(customer.DefaultPaymentMethodToken), nullText(customer.DefaultPaymentMethodType),
		string(customer.Status), customer.DelinquentSince, metadata,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.WrapError(domain.ErrorCodeConflict, "customer already exists", err)
		}
		return fmt.Errorf("create customer: %w", err)
	}
	return nil
}

// GetByID retrieves a customer scoped by app
func (r *CustomerRepository) GetByID(ctx context.Context, tx ports.DBTX, appID, id string) (*models.Customer, error) {
	cid, err := uuid.Parse(id)
	if err != nil {
		return nil, domain.ErrCustomerNotFound
	}
	row := r.exec(tx).QueryRow(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE app_id = $1 AND id = $2 AND status <> 'deleted'`,
		appID, cid,
	)
	return scanCustomer(row)
}

// GetByExternalID retrieves a customer by the caller's external id, scoped by app
func (r *CustomerRepository) GetByExternalID(ctx context.Context, tx ports.DBTX, appID, externalCustomerID string) (*models.Customer, error) {
	row := r.exec(tx).QueryRow(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE app_id = $1 AND external_customer_id = $2 AND status <> 'deleted'`,
		appID, externalCustomerID,
	)
	return scanCustomer(row)
}

// GetByPSPCustomerID retrieves a customer by the processor's id, scoped by app
func (r *CustomerRepository) GetByPSPCustomerID(ctx context.Context, tx ports.DBTX, appID, pspCustomerID string) (*models.Customer, error) {
	row := r.exec(tx).QueryRow(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE app_id = $1 AND psp_customer_id = $2 AND status <> 'deleted'`,
		appID, pspCustomerID,
	)
	return scanCustomer(row)
}

// Update persists mutable customer fields
func (r *CustomerRepository) Update(ctx context.Context, tx ports.DBTX, customer *models.Customer) error {
	id, err := uuid.Parse(customer.ID)
	if err != nil {
		return fmt.Errorf("invalid customer ID: %w", err)
	}
	metadata, err := marshalMetadata(customer.Metadata)
	if err != nil {
		return err
	}

	tag, err := r.exec(tx).Exec(ctx, `
		UPDATE customers
		SET external_customer_id = $3, psp_customer_id = $4, email = $5, name = $6,
		    default_payment_method_token = $7, default_payment_method_type = $8,
		    status = $9, delinquent_since = $10, metadata = $11, updated_at = now()
		WHERE app_id = $1 AND id = $2`,
		customer.AppID, id, nullText(customer.ExternalCustomerID),
		nullText(customer.PSPCustomerID), customer.Email, customer.Name,
		nullText(customer.DefaultPaymentMethodToken), nullText(customer.DefaultPaymentMethodType),
		string(customer.Status), customer.DelinquentSince, metadata,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.WrapError(domain.ErrorCodeConflict, "external_customer_id already in use", err)
		}
		return fmt.Errorf("update customer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCustomerNotFound
	}
	return nil
}

// SetDefaultPaymentMethod updates the denormalized default-method fast path
func (r *CustomerRepository) SetDefaultPaymentMethod(ctx context.Context, tx ports.DBTX, appID, customerID, token, pmType string) error {
	cid, err := uuid.Parse(customerID)
	if err != nil {
		return domain.ErrCustomerNotFound
	}
	tag, err := r.exec(tx).Exec(ctx, `
		UPDATE customers
		SET default_payment_method_token = $3, default_payment_method_type = $4, updated_at = now()
		WHERE app_id = $1 AND id = $2`,
		appID, cid, nullText(token), nullText(pmType),
	)
	if err != nil {
		return fmt.Errorf("set default payment method: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCustomerNotFound
	}
	return nil
}

func scanCustomer(row pgx.Row) (*models.Customer, error) {
	var (
		c            models.Customer
		id           uuid.UUID
		externalID   pgtype.Text
		pspID        pgtype.Text
		defaultToken pgtype.Text
		defaultType  pgtype.Text
		status       string
		metadata     []byte
	)
	err := row.Scan(&id, &c.AppID, &externalID, &pspID, &c.Email, &c.Name,
		&defaultToken, &defaultType, &status, &c.DelinquentSince,
		&metadata, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrCustomerNotFound
		}
		return nil, fmt.Errorf("scan customer: %w", err)
	}

	c.ID = id.String()
	c.ExternalCustomerID = externalID.String
	c.PSPCustomerID = pspID.String
	c.DefaultPaymentMethodToken = defaultToken.String
	c.DefaultPaymentMethodType = defaultType.String
	c.Status = models.CustomerStatus(status)
	if c.Metadata, err = unmarshalMetadata(metadata); err != nil {
		return nil, err
	}
	return &c, nil
}
