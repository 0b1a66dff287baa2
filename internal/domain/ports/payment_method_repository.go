package ports

import (
	"context"

	"github.com/kevin07696/billing-service/internal/domain/models"
)

// PaymentMethodRepository persists tokenized payment methods (masked data only)
type PaymentMethodRepository interface {
	// Upsert inserts by psp_payment_method_id or revives/updates an existing
	// row (clearing deleted_at on re-attach).
	Upsert(ctx context.Context, tx DBTX, method *models.PaymentMethod) error
	GetByPSPID(ctx context.Context, tx DBTX, appID, pspPaymentMethodID string) (*models.PaymentMethod, error)

	// ListByCustomer returns non-deleted methods, default first then newest first.
	ListByCustomer(ctx context.Context, tx DBTX, appID, customerID string) ([]*models.PaymentMethod, error)

	// SoftDelete sets deleted_at and clears is_default.
	SoftDelete(ctx context.Context, tx DBTX, appID, pspPaymentMethodID string) error

	// ClearDefaults clears is_default on all of the customer's methods.
	ClearDefaults(ctx context.Context, tx DBTX, appID, customerID string) error

	// SetDefault marks a single method as the default.
	SetDefault(ctx context.Context, tx DBTX, appID, pspPaymentMethodID string) error
}
