package ports

import (
	"context"

	"github.com/kevin07696/billing-service/internal/domain/models"
)

// SubscriptionRepository persists subscriptions
type SubscriptionRepository interface {
	Create(ctx context.Context, tx DBTX, sub *models.Subscription) error
	GetByID(ctx context.Context, tx DBTX, appID, id string) (*models.Subscription, error)
	GetByPSPID(ctx context.Context, tx DBTX, appID, pspSubscriptionID string) (*models.Subscription, error)
	Update(ctx context.Context, tx DBTX, sub *models.Subscription) error
	ListByCustomer(ctx context.Context, tx DBTX, appID, customerID string) ([]*models.Subscription, error)
}
