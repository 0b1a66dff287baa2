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

const webhookColumns = `id, app_id, event_id, event_type, status, attempts, error,
	received_at, processed_at`

// WebhookRepository implements ports.WebhookRepository
type WebhookRepository struct {
	db ports.DBPort
}

// NewWebhookRepository creates a new webhook repository
func NewWebhookRepository(db ports.DBPort) *WebhookRepository {
	return &WebhookRepository{db: db}
}

func (r *WebhookRepository) exec(tx ports.DBTX) ports.DBTX {
	if tx != nil {
		return tx
	}
	return r.db.GetDB()
}

// InsertEnvelope records a delivery in status received. The unique
// constraint on event_id makes redelivery a no-op: duplicate=true, no error.
func (r *WebhookRepository) InsertEnvelope(ctx context.Context, tx ports.DBTX, envelope *models.WebhookEnvelope) (bool, error) {
	id, err := uuid.Parse(envelope.ID)
	if err != nil {
		return false, fmt.Errorf("invalid envelope ID: %w", err)
	}
	tag, err := r.exec(tx).Exec(ctx, `
		INSERT INTO webhook_envelopes (id, app_id, event_id, event_type, status, attempts, received_at)
		VALUES ($1, $2, $3, $4, $5, 0, now())
		ON CONFLICT (event_id) DO NOTHING`,
		id, envelope.AppID, envelope.EventID, envelope.EventType,
		string(models.WebhookStatusReceived),
	)
	if err != nil {
		return false, fmt.Errorf("insert webhook envelope: %w", err)
	}
	return tag.RowsAffected() == 0, nil
}

// GetByEventID retrieves an envelope, scoped by app
func (r *WebhookRepository) GetByEventID(ctx context.Context, tx ports.DBTX, appID, eventID string) (*models.WebhookEnvelope, error) {
	row := r.exec(tx).QueryRow(ctx, `
		SELECT `+webhookColumns+`
		FROM webhook_envelopes
		WHERE app_id = $1 AND event_id = $2`,
		appID, eventID,
	)
	return scanWebhookEnvelope(row)
}

// UpdateStatus transitions the envelope, bumping attempts on each processing
// transition and stamping processed_at on terminal success.
func (r *WebhookRepository) UpdateStatus(ctx context.Context, tx ports.DBTX, appID, eventID string, status models.WebhookStatus, processErr string) error {
	tag, err := r.exec(tx).Exec(ctx, `
		UPDATE webhook_envelopes
		SET status = $3,
		    error = $4,
		    attempts = attempts + CASE WHEN $3 = 'processing' THEN 1 ELSE 0 END,
		    processed_at = CASE WHEN $3 = 'processed' THEN now() ELSE processed_at END
		WHERE app_id = $1 AND event_id = $2`,
		appID, eventID, string(status), nullText(processErr),
	)
	if err != nil {
		return fmt.Errorf("update webhook status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrWebhookNotFound
	}
	return nil
}

// ResetForReplay moves a failed envelope back to received
func (r *WebhookRepository) ResetForReplay(ctx context.Context, tx ports.DBTX, appID, eventID string) error {
	tag, err := r.exec(tx).Exec(ctx, `
		UPDATE webhook_envelopes
		SET status = 'received', error = NULL, processed_at = NULL
		WHERE app_id = $1 AND event_id = $2 AND status = 'failed'`,
		appID, eventID,
	)
	if err != nil {
		return fmt.Errorf("reset webhook envelope: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrWebhookNotFound
	}
	return nil
}

func scanWebhookEnvelope(row pgx.Row) (*models.WebhookEnvelope, error) {
	var (
		e       models.WebhookEnvelope
		id      uuid.UUID
		status  string
		procErr pgtype.Text
	)
	err := row.Scan(&id, &e.AppID, &e.EventID, &e.EventType, &status,
		&e.Attempts, &procErr, &e.ReceivedAt, &e.ProcessedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrWebhookNotFound
		}
		return nil, fmt.Errorf("scan webhook envelope: %w", err)
	}

	e.ID = id.String()
	e.Status = models.WebhookStatus(status)
	e.Error = procErr.String
	return &e, nil
}
