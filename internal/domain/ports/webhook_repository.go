package ports

import (
	"context"

	"github.com/kevin07696/billing-service/internal/domain/models"
)

// WebhookRepository persists webhook envelopes. InsertEnvelope is the
// at-most-once gate: the unique constraint on event_id linearizes duplicate
// deliveries.
type WebhookRepository interface {
	// InsertEnvelope inserts a new envelope in status received. Returns
	// duplicate=true (and no error) when an envelope with the same event_id
	// already exists.
	InsertEnvelope(ctx context.Context, tx DBTX, envelope *models.WebhookEnvelope) (duplicate bool, err error)

	GetByEventID(ctx context.Context, tx DBTX, appID, eventID string) (*models.WebhookEnvelope, error)

	// UpdateStatus transitions the envelope and stamps processed_at for
	// terminal success.
	UpdateStatus(ctx context.Context, tx DBTX, appID, eventID string, status models.WebhookStatus, processErr string) error

	// ResetForReplay moves a failed envelope back to received so the raw
	// event can be reposted by the offline replay tool.
	ResetForReplay(ctx context.Context, tx DBTX, appID, eventID string) error
}
