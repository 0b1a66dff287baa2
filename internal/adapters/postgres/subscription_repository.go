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

const subscriptionColumns = `id, app_id, customer_id, psp_subscription_id, plan_id, plan_name,
	price_cents, status, interval_unit, interval_count, billing_cycle_anchor,
	current_period_start, current_period_end, cancel_at_period_end,
	cancel_at, canceled_at, ended_at, payment_method_token,
	payment_method_type, metadata, created_at, updated_at`

// SubscriptionRepository implements ports.SubscriptionRepository
type SubscriptionRepository struct {
	db ports.DBPort
}

// NewSubscriptionRepository creates a new subscription repository
func NewSubscriptionRepository(db ports.DBPort) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

func (r *SubscriptionRepository) exec(tx ports.DBTX) ports.DBTX {
	if tx != nil {
		return tx
	}
	return r.db.GetDB()
}

// Create inserts a new subscription row
func (r *SubscriptionRepository) Create(ctx context.Context, tx ports.DBTX, sub *models.Subscription) error {
	id, err := uuid.Parse(sub.ID)
	if err != nil {
		return fmt.Errorf("invalid subscription ID: %w", err)
	}
	customerID, err := uuid.Parse(sub.CustomerID)
	if err != nil {
		return fmt.Errorf("invalid customer ID: %w", err)
	}
	metadata, err := marshalMetadata(sub.Metadata)
	if err != nil {
		return err
	}

	_, err = r.exec(tx).Exec(ctx, `
		INSERT INTO subscriptions (`+subscriptionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		        $15, $16, $17, $18, $19, $20, now(), now())`,
		id, sub.AppID, customerID, nullText(sub.PSPSubscriptionID),
		sub.PlanID, sub.PlanName, sub.PriceCents, string(sub.Status),
		string(sub.IntervalUnit), sub.IntervalCount, sub.BillingCycleAnchor,
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.CancelAtPeriodEnd,
		sub.CancelAt, sub.CanceledAt, sub.EndedAt,
		sub.PaymentMethodToken, sub.PaymentMethodType, metadata,
	)
	if err != nil {
		return fmt.Errorf("create subscription: %w", err)
	}
	return nil
}

// GetByID retrieves a subscription scoped by app
func (r *SubscriptionRepository) GetByID(ctx context.Context, tx ports.DBTX, appID, id string) (*models.Subscription, error) {
	sid, err := uuid.Parse(id)
	if err != nil {
		return nil, domain.ErrSubscriptionNotFound
	}
	row := r.exec(tx).QueryRow(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE app_id = $1 AND id = $2`,
		appID, sid,
	)
	return scanSubscription(row)
}

// GetByPSPID retrieves a subscription by the processor's id, scoped by app
func (r *SubscriptionRepository) GetByPSPID(ctx context.Context, tx ports.DBTX, appID, pspSubscriptionID string) (*models.Subscription, error) {
	row := r.exec(tx).QueryRow(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE app_id = $1 AND psp_subscription_id = $2`,
		appID, pspSubscriptionID,
	)
	return scanSubscription(row)
}

// Update persists mutable subscription fields
func (r *SubscriptionRepository) Update(ctx context.Context, tx ports.DBTX, sub *models.Subscription) error {
	id, err := uuid.Parse(sub.ID)
	if err != nil {
		return fmt.Errorf("invalid subscription ID: %w", err)
	}
	metadata, err := marshalMetadata(sub.Metadata)
	if err != nil {
		return err
	}

	tag, err := r.exec(tx).Exec(ctx, `
		UPDATE subscriptions
		SET psp_subscription_id = $3, plan_id = $4, plan_name = $5, price_cents = $6,
		    status = $7, interval_unit = $8, interval_count = $9,
		    billing_cycle_anchor = $10, current_period_start = $11,
		    current_period_end = $12, cancel_at_period_end = $13, cancel_at = $14,
		    canceled_at = $15, ended_at = $16, payment_method_token = $17,
		    payment_method_type = $18, metadata = $19, updated_at = now()
		WHERE app_id = $1 AND id = $2`,
		sub.AppID, id, nullText(sub.PSPSubscriptionID), sub.PlanID, sub.PlanName,
		sub.PriceCents, string(sub.Status), string(sub.IntervalUnit),
		sub.IntervalCount, sub.BillingCycleAnchor, sub.CurrentPeriodStart,
		sub.CurrentPeriodEnd, sub.CancelAtPeriodEnd, sub.CancelAt,
		sub.CanceledAt, sub.EndedAt, sub.PaymentMethodToken,
		sub.PaymentMethodType, metadata,
	)
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSubscriptionNotFound
	}
	return nil
}

// ListByCustomer lists subscriptions for a customer, newest first
func (r *SubscriptionRepository) ListByCustomer(ctx context.Context, tx ports.DBTX, appID, customerID string) ([]*models.Subscription, error) {
	cid, err := uuid.Parse(customerID)
	if err != nil {
		return nil, domain.ErrCustomerNotFound
	}
	rows, err := r.exec(tx).Query(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE app_id = $1 AND customer_id = $2
		ORDER BY created_at DESC`,
		appID, cid,
	)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*models.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func scanSubscription(row pgx.Row) (*models.Subscription, error) {
	var (
		s            models.Subscription
		id           uuid.UUID
		customerID   uuid.UUID
		pspID        pgtype.Text
		status       string
		intervalUnit string
		metadata     []byte
	)
	err := row.Scan(&id, &s.AppID, &customerID, &pspID, &s.PlanID, &s.PlanName,
		&s.PriceCents, &status, &intervalUnit, &s.IntervalCount,
		&s.BillingCycleAnchor, &s.CurrentPeriodStart, &s.CurrentPeriodEnd,
		&s.CancelAtPeriodEnd, &s.CancelAt, &s.CanceledAt, &s.EndedAt,
		&s.PaymentMethodToken, &s.PaymentMethodType, &metadata,
		&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("scan subscription: %w", err)
	}

	s.ID = id.String()
	s.CustomerID = customerID.String()
	s.PSPSubscriptionID = pspID.String
	s.Status = models.SubscriptionStatus(status)
	s.IntervalUnit = models.IntervalUnit(intervalUnit)
	if s.Metadata, err = unmarshalMetadata(metadata); err != nil {
		return nil, err
	}
	return &s, nil
}
