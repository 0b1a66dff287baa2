package subscription

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kevin07696/billing-service/internal/billing"
	"github.com/kevin07696/billing-service/internal/domain"
	"github.com/kevin07696/billing-service/internal/domain/models"
	"github.com/kevin07696/billing-service/internal/domain/ports"
	"go.uber.org/zap"
)

// updatableFields is the whitelist for subscription updates. Interval
// fields are deliberately absent: the processor does not permit interval
// mutation, so cycle changes go through ChangeCycle.
var updatableFields = map[string]bool{
	"plan_id":     true,
	"plan_name":   true,
	"price_cents": true,
	"metadata":    true,
}

// Service owns the subscription lifecycle: create, cancel (now or at
// period end), the create-new-plus-cancel-old billing cycle swap, and
// mid-period prorations.
type Service struct {
	db        ports.DBPort
	customers ports.CustomerRepository
	subs      ports.SubscriptionRepository
	audit     ports.AuditRepository
	gateway   ports.PaymentGateway
	logger    *zap.Logger
	now       func() time.Time
}

// NewService creates a subscription service
func NewService(db ports.DBPort, customers ports.CustomerRepository, subs ports.SubscriptionRepository, audit ports.AuditRepository, gateway ports.PaymentGateway, logger *zap.Logger) *Service {
	return &Service{
		db:        db,
		customers: customers,
		subs:      subs,
		audit:     audit,
		gateway:   gateway,
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock overrides the time source, for tests
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CreateParams are the caller-supplied fields for subscription creation
type CreateParams struct {
	CustomerID         string
	PlanID             string
	PlanName           string
	PriceCents         int64
	IntervalUnit       string
	IntervalCount      int
	PaymentMethodToken string
	BillingCycleAnchor *time.Time
	Metadata           map[string]string
}

// Create provisions a subscription. The PSP create is fail-fast: no local
// row persists for a failed creation. The payment method falls back to
// the customer's default when none is supplied.
func (s *Service) Create(ctx context.Context, appID string, params CreateParams) (*models.Subscription, error) {
	if err := validateCreate(params); err != nil {
		return nil, err
	}

	cust, err := s.customers.GetByID(ctx, nil, appID, params.CustomerID)
	if err != nil {
		return nil, err
	}
	if cust.PSPCustomerID == "" {
		return nil, domain.NewDomainError(domain.ErrorCodePrecondition, "customer has no processor account")
	}

	token := params.PaymentMethodToken
	pmType := ""
	if token == "" {
		token = cust.DefaultPaymentMethodToken
		pmType = cust.DefaultPaymentMethodType
	}
	if token == "" {
		return nil, domain.NewDomainError(domain.ErrorCodePrecondition, "customer has no default payment method")
	}

	intervalCount := params.IntervalCount
	if intervalCount <= 0 {
		intervalCount = 1
	}

	pspSub, err := s.gateway.CreateSubscription(ctx, appID, &ports.PSPSubscriptionRequest{
		CustomerID:         cust.PSPCustomerID,
		PriceCents:         params.PriceCents,
		Currency:           "usd",
		IntervalUnit:       params.IntervalUnit,
		IntervalCount:      intervalCount,
		PaymentMethodToken: token,
		BillingCycleAnchor: params.BillingCycleAnchor,
		Metadata:           params.Metadata,
	})
	if err != nil {
		return nil, err
	}

	sub := &models.Subscription{
		ID:                 uuid.New().String(),
		AppID:              appID,
		CustomerID:         cust.ID,
		PSPSubscriptionID:  pspSub.ID,
		PlanID:             params.PlanID,
		PlanName:           params.PlanName,
		PriceCents:         params.PriceCents,
		Status:             models.SubscriptionStatus(pspSub.Status),
		IntervalUnit:       models.IntervalUnit(params.IntervalUnit),
		IntervalCount:      intervalCount,
		BillingCycleAnchor: params.BillingCycleAnchor,
		CurrentPeriodStart: pspSub.CurrentPeriodStart,
		CurrentPeriodEnd:   pspSub.CurrentPeriodEnd,
		PaymentMethodToken: token,
		PaymentMethodType:  pmType,
		Metadata:           params.Metadata,
	}
	if sub.Status == "" {
		sub.Status = models.SubStatusActive
	}

	if err := s.subs.Create(ctx, nil, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

func validateCreate(params CreateParams) error {
	e := domain.NewDomainError(domain.ErrorCodeValidationFailed, "validation failed")
	if params.CustomerID == "" {
		e.WithFieldError("customer_id", "customer_id is required")
	}
	if params.PlanID == "" {
		e.WithFieldError("plan_id", "plan_id is required")
	}
	if params.PriceCents <= 0 {
		e.WithFieldError("price_cents", "price_cents must be a positive integer")
	}
	if !models.ValidIntervalUnit(params.IntervalUnit) {
		e.WithFieldError("interval_unit", "interval_unit must be one of day, week, month, year")
	}
	if len(e.FieldErrors) > 0 {
		return e
	}
	return nil
}

// GetByID retrieves a subscription scoped by app
func (s *Service) GetByID(ctx context.Context, appID, id string) (*models.Subscription, error) {
	return s.subs.GetByID(ctx, nil, appID, id)
}

// ListByCustomer lists a customer's subscriptions
func (s *Service) ListByCustomer(ctx context.Context, appID, customerID string) ([]*models.Subscription, error) {
	if _, err := s.customers.GetByID(ctx, nil, appID, customerID); err != nil {
		return nil, err
	}
	return s.subs.ListByCustomer(ctx, nil, appID, customerID)
}

// Cancel ends a subscription. With atPeriodEnd the local flag flips and
// the PSP update is best-effort; the status stays active until the
// subscription.updated webhook marks it canceled. Immediate cancellation
// is fail-fast against the PSP before any local mutation.
func (s *Service) Cancel(ctx context.Context, appID, id string, atPeriodEnd bool) (*models.Subscription, error) {
	sub, err := s.subs.GetByID(ctx, nil, appID, id)
	if err != nil {
		return nil, err
	}
	if sub.Terminated() {
		return sub, nil
	}

	if atPeriodEnd {
		sub.CancelAtPeriodEnd = true
		if err := s.subs.Update(ctx, nil, sub); err != nil {
			return nil, err
		}
		if sub.PSPSubscriptionID != "" {
			if _, err := s.gateway.CancelSubscription(ctx, appID, sub.PSPSubscriptionID, true); err != nil {
				s.logger.Warn("PSP cancel-at-period-end sync failed",
					zap.String("app_id", appID),
					zap.String("subscription_id", sub.ID),
					zap.Error(err),
				)
			}
		}
		return sub, nil
	}

	if sub.PSPSubscriptionID != "" {
		if _, err := s.gateway.CancelSubscription(ctx, appID, sub.PSPSubscriptionID, false); err != nil {
			return nil, err
		}
	}

	now := s.now().UTC()
	sub.Status = models.SubStatusCanceled
	sub.CanceledAt = &now
	sub.EndedAt = &now
	if err := s.subs.Update(ctx, nil, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// Update applies whitelisted field changes. Any field outside the
// whitelist, interval fields above all, rejects the whole request naming
// the offending fields. Price changes affect future billing only.
func (s *Service) Update(ctx context.Context, appID, id string, fields map[string]interface{}) (*models.Subscription, error) {
	var unsupported []string
	for name := range fields {
		if !updatableFields[name] {
			unsupported = append(unsupported, name)
		}
	}
	if len(unsupported) > 0 {
		sort.Strings(unsupported)
		return nil, domain.NewDomainError(domain.ErrorCodeValidationFailed,
			fmt.Sprintf("unsupported field(s): %s", strings.Join(unsupported, ", ")))
	}

	sub, err := s.subs.GetByID(ctx, nil, appID, id)
	if err != nil {
		return nil, err
	}

	var newPrice *int64
	if v, ok := fields["plan_id"]; ok {
		str, ok := v.(string)
		if !ok || str == "" {
			return nil, domain.NewValidationError("plan_id", "plan_id must be a non-empty string")
		}
		sub.PlanID = str
	}
	if v, ok := fields["plan_name"]; ok {
		str, ok := v.(string)
		if !ok {
			return nil, domain.NewValidationError("plan_name", "plan_name must be a string")
		}
		sub.PlanName = str
	}
	if v, ok := fields["price_cents"]; ok {
		cents, err := toCents(v)
		if err != nil {
			return nil, err
		}
		sub.PriceCents = cents
		newPrice = &cents
	}
	if v, ok := fields["metadata"]; ok {
		meta, err := toMetadata(v)
		if err != nil {
			return nil, err
		}
		sub.Metadata = meta
	}

	if err := s.subs.Update(ctx, nil, sub); err != nil {
		return nil, err
	}

	if sub.PSPSubscriptionID != "" && (newPrice != nil || fields["metadata"] != nil) {
		if _, err := s.gateway.UpdateSubscription(ctx, appID, sub.PSPSubscriptionID, newPrice, sub.Metadata); err != nil {
			s.logger.Warn("PSP subscription sync failed",
				zap.String("app_id", appID),
				zap.String("subscription_id", sub.ID),
				zap.Error(err),
			)
		}
	}
	return sub, nil
}

func toCents(v interface{}) (int64, error) {
	switch n := v.(type) {
	case float64:
		if n != float64(int64(n)) || n <= 0 {
			return 0, domain.ErrValidationAmountInvalid
		}
		return int64(n), nil
	case int64:
		if n <= 0 {
			return 0, domain.ErrValidationAmountInvalid
		}
		return n, nil
	case int:
		if n <= 0 {
			return 0, domain.ErrValidationAmountInvalid
		}
		return int64(n), nil
	default:
		return 0, domain.ErrValidationAmountInvalid
	}
}

func toMetadata(v interface{}) (map[string]string, error) {
	switch m := v.(type) {
	case map[string]string:
		return m, nil
	case map[string]interface{}:
		out := make(map[string]string, len(m))
		for k, val := range m {
			str, ok := val.(string)
			if !ok {
				return nil, domain.NewValidationError("metadata", "metadata values must be strings")
			}
			out[k] = str
		}
		return out, nil
	default:
		return nil, domain.NewValidationError("metadata", "metadata must be an object of strings")
	}
}

// ChangeCycleParams describes a billing cycle swap
type ChangeCycleParams struct {
	CustomerID         string
	FromSubscriptionID string
	NewPlanID          string
	NewPlanName        string
	PriceCents         int64
	IntervalUnit       string
	IntervalCount      int
	Metadata           map[string]string
}

// ChangeCycle swaps billing cycles as create-new + cancel-old, because
// the processor does not permit interval mutation. Both PSP steps are
// fail-fast; if the cancel of the old subscription fails the whole
// operation aborts with nothing persisted locally. The local swap of the
// two rows is a single transaction.
func (s *Service) ChangeCycle(ctx context.Context, appID string, params ChangeCycleParams) (*models.Subscription, error) {
	if err := validateChangeCycle(params); err != nil {
		return nil, err
	}

	cust, err := s.customers.GetByID(ctx, nil, appID, params.CustomerID)
	if err != nil {
		return nil, err
	}
	oldSub, err := s.subs.GetByID(ctx, nil, appID, params.FromSubscriptionID)
	if err != nil {
		return nil, err
	}
	if oldSub.CustomerID != cust.ID {
		return nil, domain.ErrSubscriptionNotFound
	}
	if oldSub.Terminated() {
		return nil, domain.NewDomainError(domain.ErrorCodePrecondition, "subscription is already terminated")
	}

	token := oldSub.PaymentMethodToken
	if token == "" {
		token = cust.DefaultPaymentMethodToken
	}
	if token == "" {
		return nil, domain.NewDomainError(domain.ErrorCodePrecondition, "customer has no default payment method")
	}

	intervalCount := params.IntervalCount
	if intervalCount <= 0 {
		intervalCount = 1
	}

	pspSub, err := s.gateway.CreateSubscription(ctx, appID, &ports.PSPSubscriptionRequest{
		CustomerID:         cust.PSPCustomerID,
		PriceCents:         params.PriceCents,
		Currency:           "usd",
		IntervalUnit:       params.IntervalUnit,
		IntervalCount:      intervalCount,
		PaymentMethodToken: token,
		Metadata:           params.Metadata,
	})
	if err != nil {
		return nil, err
	}

	if oldSub.PSPSubscriptionID != "" {
		if _, err := s.gateway.CancelSubscription(ctx, appID, oldSub.PSPSubscriptionID, false); err != nil {
			// Abort before any local write. The just-created PSP
			// subscription is orphaned on the processor side; reconciliation
			// handles it.
			s.logger.Error("cycle swap aborted: PSP cancel of old subscription failed",
				zap.String("app_id", appID),
				zap.String("old_subscription_id", oldSub.ID),
				zap.String("orphaned_psp_subscription_id", pspSub.ID),
				zap.Error(err),
			)
			return nil, err
		}
	}

	now := s.now().UTC()
	newSub := &models.Subscription{
		ID:                 uuid.New().String(),
		AppID:              appID,
		CustomerID:         cust.ID,
		PSPSubscriptionID:  pspSub.ID,
		PlanID:             params.NewPlanID,
		PlanName:           params.NewPlanName,
		PriceCents:         params.PriceCents,
		Status:             models.SubStatusActive,
		IntervalUnit:       models.IntervalUnit(params.IntervalUnit),
		IntervalCount:      intervalCount,
		CurrentPeriodStart: pspSub.CurrentPeriodStart,
		CurrentPeriodEnd:   pspSub.CurrentPeriodEnd,
		PaymentMethodToken: token,
		PaymentMethodType:  oldSub.PaymentMethodType,
		Metadata:           params.Metadata,
	}

	err = s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		oldSub.Status = models.SubStatusCanceled
		oldSub.CanceledAt = &now
		oldSub.EndedAt = &now
		if err := s.subs.Update(ctx, tx, oldSub); err != nil {
			return err
		}
		return s.subs.Create(ctx, tx, newSub)
	})
	if err != nil {
		return nil, err
	}
	return newSub, nil
}

func validateChangeCycle(params ChangeCycleParams) error {
	e := domain.NewDomainError(domain.ErrorCodeValidationFailed, "validation failed")
	if params.CustomerID == "" {
		e.WithFieldError("customer_id", "customer_id is required")
	}
	if params.FromSubscriptionID == "" {
		e.WithFieldError("from_subscription_id", "from_subscription_id is required")
	}
	if params.NewPlanID == "" {
		e.WithFieldError("new_plan_id", "new_plan_id is required")
	}
	if params.PriceCents <= 0 {
		e.WithFieldError("price_cents", "price_cents must be a positive integer")
	}
	if !models.ValidIntervalUnit(params.IntervalUnit) {
		e.WithFieldError("interval_unit", "interval_unit must be one of day, week, month, year")
	}
	if len(e.FieldErrors) > 0 {
		return e
	}
	return nil
}

// CalculateProration is the pure preview: no rows are written
func (s *Service) CalculateProration(ctx context.Context, appID, subscriptionID string, newPriceCents int64, changeDate time.Time) (*billing.ProrationResult, error) {
	sub, err := s.subs.GetByID(ctx, nil, appID, subscriptionID)
	if err != nil {
		return nil, err
	}
	return billing.Prorate(billing.ProrationParams{
		PeriodStart:   sub.CurrentPeriodStart,
		PeriodEnd:     sub.CurrentPeriodEnd,
		ChangeDate:    changeDate,
		OldPriceCents: sub.PriceCents,
		NewPriceCents: newPriceCents,
	})
}

// ApplyProration changes the subscription price mid-period, recording the
// proration event. The price update and the audit row commit together.
// Money movement for the net amount rides on the next invoice; the PSP's
// own proration settings govern immediate adjustments.
func (s *Service) ApplyProration(ctx context.Context, appID, subscriptionID string, newPriceCents int64, changeDate time.Time) (*billing.ProrationResult, error) {
	if newPriceCents <= 0 {
		return nil, domain.ErrValidationAmountInvalid
	}
	sub, err := s.subs.GetByID(ctx, nil, appID, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.Terminated() {
		return nil, domain.NewDomainError(domain.ErrorCodePrecondition, "subscription is already terminated")
	}

	result, err := billing.Prorate(billing.ProrationParams{
		PeriodStart:   sub.CurrentPeriodStart,
		PeriodEnd:     sub.CurrentPeriodEnd,
		ChangeDate:    changeDate,
		OldPriceCents: sub.PriceCents,
		NewPriceCents: newPriceCents,
	})
	if err != nil {
		return nil, err
	}

	err = s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		sub.PriceCents = newPriceCents
		if err := s.subs.Update(ctx, tx, sub); err != nil {
			return err
		}
		return s.audit.RecordProrationEvent(ctx, tx, appID, sub.ID, string(result.Kind), result.NetCents, prorationDetail(result))
	})
	if err != nil {
		return nil, err
	}

	if sub.PSPSubscriptionID != "" {
		if _, err := s.gateway.UpdateSubscription(ctx, appID, sub.PSPSubscriptionID, &newPriceCents, nil); err != nil {
			s.logger.Warn("PSP price sync failed after proration",
				zap.String("app_id", appID),
				zap.String("subscription_id", sub.ID),
				zap.Error(err),
			)
		}
	}
	return result, nil
}

// CancellationRefundPreview computes the credit for the unused remainder
// of the current period as of the cancel date, recording a proration
// event. The caller issues the actual refund through the refunds endpoint
// against the settled charge of their choice.
func (s *Service) CancellationRefundPreview(ctx context.Context, appID, subscriptionID string, cancelDate time.Time) (*billing.ProrationResult, error) {
	sub, err := s.subs.GetByID(ctx, nil, appID, subscriptionID)
	if err != nil {
		return nil, err
	}

	result, err := billing.Prorate(billing.ProrationParams{
		PeriodStart:   sub.CurrentPeriodStart,
		PeriodEnd:     sub.CurrentPeriodEnd,
		ChangeDate:    cancelDate,
		OldPriceCents: sub.PriceCents,
		NewPriceCents: 0,
	})
	if err != nil {
		return nil, err
	}

	if err := s.audit.RecordProrationEvent(ctx, nil, appID, sub.ID, string(result.Kind), result.NetCents, prorationDetail(result)); err != nil {
		return nil, err
	}
	return result, nil
}

func prorationDetail(r *billing.ProrationResult) map[string]interface{} {
	return map[string]interface{}{
		"days_total":     r.DaysTotal,
		"days_remaining": r.DaysRemaining,
		"factor":         r.Factor.String(),
		"credit_cents":   r.CreditCents,
		"charge_cents":   r.ChargeCents,
		"net_cents":      r.NetCents,
	}
}
