package ports

import (
	"context"

	"github.com/kevin07696/billing-service/internal/domain/models"
)

// CustomerRepository persists customers. Every query is scoped by appID;
// appID is always the first data parameter.
type CustomerRepository interface {
	Create(ctx context.Context, tx DBTX, customer *models.Customer) error
	GetByID(ctx context.Context, tx DBTX, appID, id string) (*models.Customer, error)
	GetByExternalID(ctx context.Context, tx DBTX, appID, externalCustomerID string) (*models.Customer, error)
	GetByPSPCustomerID(ctx context.Context, tx DBTX, appID, pspCustomerID string) (*models.Customer, error)
	Update(ctx context.Context, tx DBTX, customer *models.Customer) error

	// SetDefaultPaymentMethod updates the denormalized default-method fast
	// path on the customer row. Callers run it in the same transaction as
	// the is_default flag flip on payment methods.
	SetDefaultPaymentMethod(ctx context.Context, tx DBTX, appID, customerID, token, pmType string) error
}
