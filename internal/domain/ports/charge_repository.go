package ports

import (
	"context"

	"github.com/kevin07696/billing-service/internal/domain/models"
)

// ChargeRepository persists one-time charges. Create surfaces unique
// violations on (app_id, reference_id) as domain.ErrConflict wrapping the
// driver error so the service can recover the winning row.
type ChargeRepository interface {
	Create(ctx context.Context, tx DBTX, charge *models.Charge) error
	GetByID(ctx context.Context, tx DBTX, appID, id string) (*models.Charge, error)
	GetByReferenceID(ctx context.Context, tx DBTX, appID, referenceID string) (*models.Charge, error)
	GetByPSPChargeID(ctx context.Context, tx DBTX, appID, pspChargeID string) (*models.Charge, error)
	Update(ctx context.Context, tx DBTX, charge *models.Charge) error
	ListByCustomer(ctx context.Context, tx DBTX, appID, customerID string) ([]*models.Charge, error)
}

// RefundRepository persists refunds with the same domain-idempotency recovery
// contract as ChargeRepository.
type RefundRepository interface {
	Create(ctx context.Context, tx DBTX, refund *models.Refund) error
	GetByID(ctx context.Context, tx DBTX, appID, id string) (*models.Refund, error)
	GetByReferenceID(ctx context.Context, tx DBTX, appID, referenceID string) (*models.Refund, error)
	GetByPSPRefundID(ctx context.Context, tx DBTX, appID, pspRefundID string) (*models.Refund, error)
	Update(ctx context.Context, tx DBTX, refund *models.Refund) error
}

// DisputeRepository persists webhook-driven disputes
type DisputeRepository interface {
	Upsert(ctx context.Context, tx DBTX, dispute *models.Dispute) error
	GetByPSPDisputeID(ctx context.Context, tx DBTX, appID, pspDisputeID string) (*models.Dispute, error)
	ListByCustomer(ctx context.Context, tx DBTX, appID, customerID string) ([]*models.Dispute, error)
}
