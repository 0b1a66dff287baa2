package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/kevin07696/billing-service/internal/domain"
	"github.com/kevin07696/billing-service/internal/domain/models"
	"github.com/kevin07696/billing-service/internal/domain/ports"
)

// IdempotencyRepository implements ports.IdempotencyRepository
type IdempotencyRepository struct {
	db ports.DBPort
}

// NewIdempotencyRepository creates a new idempotency repository
func NewIdempotencyRepository(db ports.DBPort) *IdempotencyRepository {
	return &IdempotencyRepository{db: db}
}

func (r *IdempotencyRepository) exec(tx ports.DBTX) ports.DBTX {
	if tx != nil {
		return tx
	}
	return r.db.GetDB()
}

// Get retrieves an unexpired record for (app_id, key). Expired rows are
// treated as absent; DeleteExpired reaps them later.
func (r *IdempotencyRepository) Get(ctx context.Context, tx ports.DBTX, appID, key string) (*models.IdempotencyRecord, error) {
	var rec models.IdempotencyRecord
	err := r.exec(tx).QueryRow(ctx, `
		SELECT app_id, key, request_hash, status_code, response_body, expires_at, created_at
		FROM idempotency_records
		WHERE app_id = $1 AND key = $2 AND expires_at > now()`,
		appID, key,
	).Scan(&rec.AppID, &rec.Key, &rec.RequestHash, &rec.StatusCode,
		&rec.ResponseBody, &rec.ExpiresAt, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get idempotency record: %w", err)
	}
	return &rec, nil
}

// Put inserts the completed response, surfacing a concurrent duplicate as a
// conflict so the caller can re-read the winner's record.
func (r *IdempotencyRepository) Put(ctx context.Context, tx ports.DBTX, record *models.IdempotencyRecord) error {
	_, err := r.exec(tx).Exec(ctx, `
		INSERT INTO idempotency_records (app_id, key, request_hash, status_code, response_body, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())`,
		record.AppID, record.Key, record.RequestHash, record.StatusCode,
		record.ResponseBody, record.ExpiresAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.WrapError(domain.ErrorCodeConflict, "idempotency key already recorded", err)
		}
		return fmt.Errorf("put idempotency record: %w", err)
	}
	return nil
}

// DeleteExpired removes entries past their TTL
func (r *IdempotencyRepository) DeleteExpired(ctx context.Context, tx ports.DBTX) (int64, error) {
	tag, err := r.exec(tx).Exec(ctx, `
		DELETE FROM idempotency_records WHERE expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("delete expired idempotency records: %w", err)
	}
	return tag.RowsAffected(), nil
}
