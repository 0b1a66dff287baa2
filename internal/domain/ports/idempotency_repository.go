package ports

import (
	"context"

	"github.com/kevin07696/billing-service/internal/domain/models"
)

// IdempotencyRepository is the persistent request-level replay cache,
// unique per (app_id, key).
type IdempotencyRepository interface {
	Get(ctx context.Context, tx DBTX, appID, key string) (*models.IdempotencyRecord, error)

	// Put inserts the completed response. On a concurrent duplicate the
	// unique constraint fires; Put surfaces it as domain.ErrConflict so the
	// caller can re-read the winner's record.
	Put(ctx context.Context, tx DBTX, record *models.IdempotencyRecord) error

	// DeleteExpired removes entries past their TTL. Returns rows removed.
	DeleteExpired(ctx context.Context, tx DBTX) (int64, error)
}
