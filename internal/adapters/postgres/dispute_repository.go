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

const disputeColumns = `id, app_id, customer_id, charge_id, psp_dispute_id, status,
	amount_cents, currency, reason, evidence_due_by, metadata, created_at, updated_at`

// DisputeRepository implements ports.DisputeRepository
type DisputeRepository struct {
	db ports.DBPort
}

// NewDisputeRepository creates a new dispute repository
func NewDisputeRepository(db ports.DBPort) *DisputeRepository {
	return &DisputeRepository{db: db}
}

func (r *DisputeRepository) exec(tx ports.DBTX) ports.DBTX {
	if tx != nil {
		return tx
	}
	return r.db.GetDB()
}

// Upsert inserts a dispute or updates the existing row for the same PSP
// dispute id. Dispute webhooks replay, so this is the only write path.
func (r *DisputeRepository) Upsert(ctx context.Context, tx ports.DBTX, dispute *models.Dispute) error {
	id, err := uuid.Parse(dispute.ID)
	if err != nil {
		return fmt.Errorf("invalid dispute ID: %w", err)
	}
	customerID, err := uuid.Parse(dispute.CustomerID)
	if err != nil {
		return fmt.Errorf("invalid customer ID: %w", err)
	}
	var chargeID *uuid.UUID
	if dispute.ChargeID != "" {
		cid, err := uuid.Parse(dispute.ChargeID)
		if err != nil {
			return fmt.Errorf("invalid charge ID: %w", err)
		}
		chargeID = &cid
	}
	metadata, err := marshalMetadata(dispute.Metadata)
	if err != nil {
		return err
	}

	_, err = r.exec(tx).Exec(ctx, `
		INSERT INTO disputes (`+disputeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now(), now())
		ON CONFLICT (app_id, psp_dispute_id) DO UPDATE
		SET status = EXCLUDED.status,
		    amount_cents = EXCLUDED.amount_cents,
		    reason = EXCLUDED.reason,
		    evidence_due_by = EXCLUDED.evidence_due_by,
		    charge_id = COALESCE(EXCLUDED.charge_id, disputes.charge_id),
		    metadata = EXCLUDED.metadata,
		    updated_at = now()`,
		id, dispute.AppID, customerID, chargeID, dispute.PSPDisputeID,
		dispute.Status, dispute.AmountCents, dispute.Currency,
		nullText(dispute.Reason), dispute.EvidenceDueBy, metadata,
	)
	if err != nil {
		return fmt.Errorf("upsert dispute: %w", err)
	}
	return nil
}

// GetByPSPDisputeID retrieves a dispute by the processor's id, scoped by app
func (r *DisputeRepository) GetByPSPDisputeID(ctx context.Context, tx ports.DBTX, appID, pspDisputeID string) (*models.Dispute, error) {
	row := r.exec(tx).QueryRow(ctx, `
		SELECT `+disputeColumns+`
		FROM disputes
		WHERE app_id = $1 AND psp_dispute_id = $2`,
		appID, pspDisputeID,
	)
	return scanDispute(row)
}

// ListByCustomer lists disputes for a customer, newest first
func (r *DisputeRepository) ListByCustomer(ctx context.Context, tx ports.DBTX, appID, customerID string) ([]*models.Dispute, error) {
	cid, err := uuid.Parse(customerID)
	if err != nil {
		return nil, domain.ErrCustomerNotFound
	}
	rows, err := r.exec(tx).Query(ctx, `
		SELECT `+disputeColumns+`
		FROM disputes
		WHERE app_id = $1 AND customer_id = $2
		ORDER BY created_at DESC`,
		appID, cid,
	)
	if err != nil {
		return nil, fmt.Errorf("list disputes: %w", err)
	}
	defer rows.Close()

	var disputes []*models.Dispute
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			return nil, err
		}
		disputes = append(disputes, d)
	}
	return disputes, rows.Err()
}

func scanDispute(row pgx.Row) (*models.Dispute, error) {
	var (
		d          models.Dispute
		id         uuid.UUID
		customerID uuid.UUID
		chargeID   *uuid.UUID
		reason     pgtype.Text
		metadata   []byte
	)
	err := row.Scan(&id, &d.AppID, &customerID, &chargeID, &d.PSPDisputeID,
		&d.Status, &d.AmountCents, &d.Currency, &reason, &d.EvidenceDueBy,
		&metadata, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrDisputeNotFound
		}
		return nil, fmt.Errorf("scan dispute: %w", err)
	}

	d.ID = id.String()
	d.CustomerID = customerID.String()
	if chargeID != nil {
		d.ChargeID = chargeID.String()
	}
	d.Reason = reason.String
	if d.Metadata, err = unmarshalMetadata(metadata); err != nil {
		return nil, err
	}
	return &d, nil
}
