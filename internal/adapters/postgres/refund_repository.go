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

const refundColumns = `id, app_id, customer_id, charge_id, psp_refund_id, status,
	amount_cents, currency, reason, reference_id, failure_code,
	failure_message, metadata, created_at, updated_at`

// RefundRepository implements ports.RefundRepository
type RefundRepository struct {
	db ports.DBPort
}

// NewRefundRepository creates a new refund repository
func NewRefundRepository(db ports.DBPort) *RefundRepository {
	return &RefundRepository{db: db}
}

func (r *RefundRepository) exec(tx ports.DBTX) ports.DBTX {
	if tx != nil {
		return tx
	}
	return r.db.GetDB()
}

// Create inserts a new refund row, surfacing (app_id, reference_id)
// collisions as a conflict.
func (r *RefundRepository) Create(ctx context.Context, tx ports.DBTX, refund *models.Refund) error {
	id, err := uuid.Parse(refund.ID)
	if err != nil {
		return fmt.Errorf("invalid refund ID: %w", err)
	}
	customerID, err := uuid.Parse(refund.CustomerID)
	if err != nil {
		return fmt.Errorf("invalid customer ID: %w", err)
	}
	chargeID, err := uuid.Parse(refund.ChargeID)
	if err != nil {
		return fmt.Errorf("invalid charge ID: %w", err)
	}
	metadata, err := marshalMetadata(refund.Metadata)
	if err != nil {
		return err
	}

	_, err = r.exec(tx).Exec(ctx, `
		INSERT INTO refunds (`+refundColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now(), now())`,
		id, refund.AppID, customerID, chargeID, nullText(refund.PSPRefundID),
		string(refund.Status), refund.AmountCents, refund.Currency,
		nullText(refund.Reason), refund.ReferenceID, nullText(refund.FailureCode),
		nullText(refund.FailureMessage), metadata,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.WrapError(domain.ErrorCodeConflict, "refund reference_id already used", err)
		}
		return fmt.Errorf("create refund: %w", err)
	}
	return nil
}

// GetByID retrieves a refund scoped by app
func (r *RefundRepository) GetByID(ctx context.Context, tx ports.DBTX, appID, id string) (*models.Refund, error) {
	rid, err := uuid.Parse(id)
	if err != nil {
		return nil, domain.ErrRefundNotFound
	}
	row := r.exec(tx).QueryRow(ctx, `
		SELECT `+refundColumns+`
		FROM refunds
		WHERE app_id = $1 AND id = $2`,
		appID, rid,
	)
	return scanRefund(row)
}

// GetByReferenceID retrieves a refund by its domain-idempotency key
func (r *RefundRepository) GetByReferenceID(ctx context.Context, tx ports.DBTX, appID, referenceID string) (*models.Refund, error) {
	row := r.exec(tx).QueryRow(ctx, `
		SELECT `+refundColumns+`
		FROM refunds
		WHERE app_id = $1 AND reference_id = $2`,
		appID, referenceID,
	)
	return scanRefund(row)
}

// GetByPSPRefundID retrieves a refund by the processor's id, scoped by app
func (r *RefundRepository) GetByPSPRefundID(ctx context.Context, tx ports.DBTX, appID, pspRefundID string) (*models.Refund, error) {
	row := r.exec(tx).QueryRow(ctx, `
		SELECT `+refundColumns+`
		FROM refunds
		WHERE app_id = $1 AND psp_refund_id = $2`,
		appID, pspRefundID,
	)
	return scanRefund(row)
}

// Update persists mutable refund fields
func (r *RefundRepository) Update(ctx context.Context, tx ports.DBTX, refund *models.Refund) error {
	id, err := uuid.Parse(refund.ID)
	if err != nil {
		return fmt.Errorf("invalid refund ID: %w", err)
	}
	metadata, err := marshalMetadata(refund.Metadata)
	if err != nil {
		return err
	}

	tag, err := r.exec(tx).Exec(ctx, `
		UPDATE refunds
		SET psp_refund_id = $3, status = $4, failure_code = $5, failure_message = $6,
		    metadata = $7, updated_at = now()
		WHERE app_id = $1 AND id = $2`,
		refund.AppID, id, nullText(refund.PSPRefundID), string(refund.Status),
		nullText(refund.FailureCode), nullText(refund.FailureMessage), metadata,
	)
	if err != nil {
		return fmt.Errorf("update refund: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRefundNotFound
	}
	return nil
}

func scanRefund(row pgx.Row) (*models.Refund, error) {
	var (
		rf             models.Refund
		id             uuid.UUID
		customerID     uuid.UUID
		chargeID       uuid.UUID
		pspRefundID    pgtype.Text
		status         string
		reason         pgtype.Text
		failureCode    pgtype.Text
		failureMessage pgtype.Text
		metadata       []byte
	)
	err := row.Scan(&id, &rf.AppID, &customerID, &chargeID, &pspRefundID,
		&status, &rf.AmountCents, &rf.Currency, &reason, &rf.ReferenceID,
		&failureCode, &failureMessage, &metadata, &rf.CreatedAt, &rf.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRefundNotFound
		}
		return nil, fmt.Errorf("scan refund: %w", err)
	}

	rf.ID = id.String()
	rf.CustomerID = customerID.String()
	rf.ChargeID = chargeID.String()
	rf.PSPRefundID = pspRefundID.String
	rf.Status = models.RefundStatus(status)
	rf.Reason = reason.String
	rf.FailureCode = failureCode.String
	rf.FailureMessage = failureMessage.String
	if rf.Metadata, err = unmarshalMetadata(metadata); err != nil {
		return nil, err
	}
	return &rf, nil
}
