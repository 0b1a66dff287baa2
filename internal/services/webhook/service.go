package webhook

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kevin07696/billing-service/internal/domain"
	"github.com/kevin07696/billing-service/internal/domain/models"
	"github.com/kevin07696/billing-service/internal/domain/ports"
	"go.uber.org/zap"
)

// DelinquencyMarker transitions a customer to delinquent. Satisfied by the
// customer service.
type DelinquencyMarker interface {
	MarkDelinquent(ctx context.Context, tx ports.DBTX, cust *models.Customer) error
}

// IngestResult is the acknowledgment returned to the PSP
type IngestResult struct {
	Received  bool `json:"received"`
	Duplicate bool `json:"duplicate,omitempty"`
}

// Service runs the webhook pipeline: envelope-first insert, signature
// verification, dispatch by event type, status commit. The envelope's
// unique event_id constraint is what makes dispatch at-most-once; every
// handler is an idempotent upsert on top of that.
type Service struct {
	db          ports.DBPort
	envelopes   ports.WebhookRepository
	verifier    ports.WebhookVerifier
	customers   ports.CustomerRepository
	delinquency DelinquencyMarker
	subs        ports.SubscriptionRepository
	charges     ports.ChargeRepository
	refunds     ports.RefundRepository
	disputes    ports.DisputeRepository
	methods     ports.PaymentMethodRepository
	logger      *zap.Logger
	now         func() time.Time
}

// NewService creates a webhook service
func NewService(
	db ports.DBPort,
	envelopes ports.WebhookRepository,
	verifier ports.WebhookVerifier,
	customers ports.CustomerRepository,
	delinquency DelinquencyMarker,
	subs ports.SubscriptionRepository,
	charges ports.ChargeRepository,
	refunds ports.RefundRepository,
	disputes ports.DisputeRepository,
	methods ports.PaymentMethodRepository,
	logger *zap.Logger,
) *Service {
	return &Service{
		db:          db,
		envelopes:   envelopes,
		verifier:    verifier,
		customers:   customers,
		delinquency: delinquency,
		subs:        subs,
		charges:     charges,
		refunds:     refunds,
		disputes:    disputes,
		methods:     methods,
		logger:      logger,
		now:         time.Now,
	}
}

// WithClock overrides the time source, for tests
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Ingest processes one webhook delivery over the raw request bytes. The
// envelope insert happens before signature verification so that a forged
// replay of an already-recorded event id cannot trigger reprocessing.
func (s *Service) Ingest(ctx context.Context, appID string, rawBody []byte, signatureHeader string) (*IngestResult, error) {
	var event models.WebhookEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		return nil, domain.NewValidationError("body", "webhook payload is not valid JSON")
	}
	if event.ID == "" || event.Type == "" {
		return nil, domain.NewValidationError("body", "webhook payload is missing id or type")
	}

	envelope := &models.WebhookEnvelope{
		ID:        uuid.New().String(),
		AppID:     appID,
		EventID:   event.ID,
		EventType: event.Type,
		Status:    models.WebhookStatusReceived,
	}
	duplicate, err := s.envelopes.InsertEnvelope(ctx, nil, envelope)
	if err != nil {
		return nil, err
	}
	if duplicate {
		return &IngestResult{Received: true, Duplicate: true}, nil
	}

	if err := s.verifier.VerifySignature(appID, rawBody, signatureHeader, s.now()); err != nil {
		if updateErr := s.envelopes.UpdateStatus(ctx, nil, appID, event.ID, models.WebhookStatusFailed, "invalid signature"); updateErr != nil {
			s.logger.Error("failed to mark envelope after signature rejection",
				zap.String("app_id", appID),
				zap.String("event_id", event.ID),
				zap.Error(updateErr),
			)
		}
		return nil, err
	}

	if err := s.envelopes.UpdateStatus(ctx, nil, appID, event.ID, models.WebhookStatusProcessing, ""); err != nil {
		return nil, err
	}

	if err := s.dispatch(ctx, appID, &event); err != nil {
		if updateErr := s.envelopes.UpdateStatus(ctx, nil, appID, event.ID, models.WebhookStatusFailed, err.Error()); updateErr != nil {
			s.logger.Error("failed to mark envelope after dispatch failure",
				zap.String("app_id", appID),
				zap.String("event_id", event.ID),
				zap.Error(updateErr),
			)
		}
		return nil, err
	}

	if err := s.envelopes.UpdateStatus(ctx, nil, appID, event.ID, models.WebhookStatusProcessed, ""); err != nil {
		return nil, err
	}
	return &IngestResult{Received: true}, nil
}

// Replay reprocesses a failed envelope from its raw event bytes. Operator
// tooling only; the signature is not re-verified since the event was
// already authenticated (or explicitly trusted) at ingest time.
func (s *Service) Replay(ctx context.Context, appID, eventID string, rawBody []byte) error {
	var event models.WebhookEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		return domain.NewValidationError("body", "webhook payload is not valid JSON")
	}
	if event.ID != eventID {
		return domain.NewValidationError("event_id", "raw event does not match the envelope")
	}

	if err := s.envelopes.ResetForReplay(ctx, nil, appID, eventID); err != nil {
		return err
	}
	if err := s.envelopes.UpdateStatus(ctx, nil, appID, eventID, models.WebhookStatusProcessing, ""); err != nil {
		return err
	}
	if err := s.dispatch(ctx, appID, &event); err != nil {
		if updateErr := s.envelopes.UpdateStatus(ctx, nil, appID, eventID, models.WebhookStatusFailed, err.Error()); updateErr != nil {
			s.logger.Error("failed to mark envelope after replay failure",
				zap.String("app_id", appID),
				zap.String("event_id", eventID),
				zap.Error(updateErr),
			)
		}
		return err
	}
	return s.envelopes.UpdateStatus(ctx, nil, appID, eventID, models.WebhookStatusProcessed, "")
}

// dispatch routes the event to its handler by type prefix. Unknown types
// are acknowledged without mutation so new PSP event types never wedge
// the pipeline.
func (s *Service) dispatch(ctx context.Context, appID string, event *models.WebhookEvent) error {
	switch {
	case strings.HasPrefix(event.Type, "subscription."):
		return s.handleSubscription(ctx, appID, event)
	case strings.HasPrefix(event.Type, "payment_intent."), strings.HasPrefix(event.Type, "charge."):
		return s.handleCharge(ctx, appID, event)
	case strings.HasPrefix(event.Type, "refund."):
		return s.handleRefund(ctx, appID, event)
	case strings.HasPrefix(event.Type, "dispute."):
		return s.handleDispute(ctx, appID, event)
	case strings.HasPrefix(event.Type, "payment_method."):
		return s.handlePaymentMethod(ctx, appID, event)
	case strings.HasPrefix(event.Type, "customer."):
		return s.handleCustomer(ctx, appID, event)
	default:
		s.logger.Info("unhandled webhook event type",
			zap.String("app_id", appID),
			zap.String("event_id", event.ID),
			zap.String("event_type", event.Type),
		)
		return nil
	}
}

type subscriptionObject struct {
	ID                 string     `json:"id"`
	Status             string     `json:"status"`
	CurrentPeriodStart *time.Time `json:"current_period_start"`
	CurrentPeriodEnd   *time.Time `json:"current_period_end"`
	CancelAtPeriodEnd  bool       `json:"cancel_at_period_end"`
	CanceledAt         *time.Time `json:"canceled_at"`
}

func (s *Service) handleSubscription(ctx context.Context, appID string, event *models.WebhookEvent) error {
	var obj subscriptionObject
	if err := json.Unmarshal(event.Data.Object, &obj); err != nil {
		return domain.WrapError(domain.ErrorCodeValidationFailed, "malformed subscription object", err)
	}
	if obj.ID == "" {
		s.skip(appID, event, "subscription object has no id")
		return nil
	}

	sub, err := s.subs.GetByPSPID(ctx, nil, appID, obj.ID)
	if err != nil {
		if domain.IsNotFoundError(err) {
			s.skip(appID, event, "no local subscription for PSP id")
			return nil
		}
		return err
	}

	if obj.Status != "" {
		sub.Status = models.SubscriptionStatus(obj.Status)
	}
	if obj.CurrentPeriodStart != nil {
		sub.CurrentPeriodStart = *obj.CurrentPeriodStart
	}
	if obj.CurrentPeriodEnd != nil {
		sub.CurrentPeriodEnd = *obj.CurrentPeriodEnd
	}
	sub.CancelAtPeriodEnd = obj.CancelAtPeriodEnd
	if sub.Status == models.SubStatusCanceled {
		now := s.now().UTC()
		if obj.CanceledAt != nil {
			sub.CanceledAt = obj.CanceledAt
		} else if sub.CanceledAt == nil {
			sub.CanceledAt = &now
		}
		if sub.EndedAt == nil {
			sub.EndedAt = &now
		}
	}
	return s.subs.Update(ctx, nil, sub)
}

type chargeObject struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	LastPaymentError *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

func (s *Service) handleCharge(ctx context.Context, appID string, event *models.WebhookEvent) error {
	var obj chargeObject
	if err := json.Unmarshal(event.Data.Object, &obj); err != nil {
		return domain.WrapError(domain.ErrorCodeValidationFailed, "malformed charge object", err)
	}
	if obj.ID == "" {
		s.skip(appID, event, "charge object has no id")
		return nil
	}

	ch, err := s.charges.GetByPSPChargeID(ctx, nil, appID, obj.ID)
	if err != nil {
		if domain.IsNotFoundError(err) {
			s.skip(appID, event, "no local charge for PSP id")
			return nil
		}
		return err
	}

	failed := false
	switch obj.Status {
	case "succeeded":
		ch.Status = models.ChargeStatusSucceeded
		ch.FailureCode = ""
		ch.FailureMessage = ""
	case "canceled", "failed", "requires_payment_method":
		ch.Status = models.ChargeStatusFailed
		failed = true
		if obj.LastPaymentError != nil {
			ch.FailureCode = obj.LastPaymentError.Code
			ch.FailureMessage = obj.LastPaymentError.Message
		}
	case "processing", "pending":
		ch.Status = models.ChargeStatusPending
	}

	if !failed {
		return s.charges.Update(ctx, nil, ch)
	}

	// A failed recurring charge marks the customer delinquent in the same
	// transaction as the charge outcome.
	return s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := s.charges.Update(ctx, tx, ch); err != nil {
			return err
		}
		cust, err := s.customers.GetByID(ctx, tx, appID, ch.CustomerID)
		if err != nil {
			return err
		}
		return s.delinquency.MarkDelinquent(ctx, tx, cust)
	})
}

type refundObject struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	FailureReason string `json:"failure_reason"`
}

func (s *Service) handleRefund(ctx context.Context, appID string, event *models.WebhookEvent) error {
	var obj refundObject
	if err := json.Unmarshal(event.Data.Object, &obj); err != nil {
		return domain.WrapError(domain.ErrorCodeValidationFailed, "malformed refund object", err)
	}
	if obj.ID == "" {
		s.skip(appID, event, "refund object has no id")
		return nil
	}

	rf, err := s.refunds.GetByPSPRefundID(ctx, nil, appID, obj.ID)
	if err != nil {
		if domain.IsNotFoundError(err) {
			s.skip(appID, event, "no local refund for PSP id")
			return nil
		}
		return err
	}

	switch obj.Status {
	case "succeeded":
		rf.Status = models.RefundStatusSucceeded
	case "failed", "canceled":
		rf.Status = models.RefundStatusFailed
		rf.FailureCode = obj.Status
		rf.FailureMessage = obj.FailureReason
	case "pending", "processing":
		rf.Status = models.RefundStatusPending
	}
	return s.refunds.Update(ctx, nil, rf)
}

type disputeObject struct {
	ID              string     `json:"id"`
	PaymentIntentID string     `json:"payment_intent_id"`
	Status          string     `json:"status"`
	AmountCents     int64      `json:"amount"`
	Currency        string     `json:"currency"`
	Reason          string     `json:"reason"`
	EvidenceDueBy   *time.Time `json:"evidence_due_by"`
}

func (s *Service) handleDispute(ctx context.Context, appID string, event *models.WebhookEvent) error {
	var obj disputeObject
	if err := json.Unmarshal(event.Data.Object, &obj); err != nil {
		return domain.WrapError(domain.ErrorCodeValidationFailed, "malformed dispute object", err)
	}
	if obj.ID == "" {
		s.skip(appID, event, "dispute object has no id")
		return nil
	}

	dispute := &models.Dispute{
		ID:            uuid.New().String(),
		AppID:         appID,
		PSPDisputeID:  obj.ID,
		Status:        obj.Status,
		AmountCents:   obj.AmountCents,
		Currency:      obj.Currency,
		Reason:        obj.Reason,
		EvidenceDueBy: obj.EvidenceDueBy,
	}

	var cust *models.Customer
	if obj.PaymentIntentID != "" {
		ch, err := s.charges.GetByPSPChargeID(ctx, nil, appID, obj.PaymentIntentID)
		if err == nil {
			dispute.ChargeID = ch.ID
			dispute.CustomerID = ch.CustomerID
			if c, err := s.customers.GetByID(ctx, nil, appID, ch.CustomerID); err == nil {
				cust = c
			}
		} else if !domain.IsNotFoundError(err) {
			return err
		}
	}

	return s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := s.disputes.Upsert(ctx, tx, dispute); err != nil {
			return err
		}
		if cust != nil {
			return s.delinquency.MarkDelinquent(ctx, tx, cust)
		}
		return nil
	})
}

type paymentMethodObject struct {
	ID         string `json:"id"`
	CustomerID string `json:"customer_id"`
	Type       string `json:"type"`
	Card       *struct {
		Brand    string `json:"brand"`
		Last4    string `json:"last4"`
		ExpMonth int    `json:"exp_month"`
		ExpYear  int    `json:"exp_year"`
	} `json:"card"`
}

func (s *Service) handlePaymentMethod(ctx context.Context, appID string, event *models.WebhookEvent) error {
	var obj paymentMethodObject
	if err := json.Unmarshal(event.Data.Object, &obj); err != nil {
		return domain.WrapError(domain.ErrorCodeValidationFailed, "malformed payment method object", err)
	}
	if obj.ID == "" {
		s.skip(appID, event, "payment method object has no id")
		return nil
	}

	if strings.HasSuffix(event.Type, ".detached") {
		if err := s.methods.SoftDelete(ctx, nil, appID, obj.ID); err != nil {
			if domain.IsNotFoundError(err) {
				s.skip(appID, event, "no local payment method for PSP id")
				return nil
			}
			return err
		}
		return nil
	}

	method, err := s.methods.GetByPSPID(ctx, nil, appID, obj.ID)
	if err != nil {
		if domain.IsNotFoundError(err) {
			s.skip(appID, event, "no local payment method for PSP id")
			return nil
		}
		return err
	}

	if obj.Type != "" {
		method.Type = models.PaymentMethodType(obj.Type)
	}
	if obj.Card != nil {
		method.Brand = obj.Card.Brand
		method.Last4 = obj.Card.Last4
		method.ExpMonth = obj.Card.ExpMonth
		method.ExpYear = obj.Card.ExpYear
	}
	return s.methods.Upsert(ctx, nil, method)
}

type customerObject struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

func (s *Service) handleCustomer(ctx context.Context, appID string, event *models.WebhookEvent) error {
	var obj customerObject
	if err := json.Unmarshal(event.Data.Object, &obj); err != nil {
		return domain.WrapError(domain.ErrorCodeValidationFailed, "malformed customer object", err)
	}
	if obj.ID == "" {
		s.skip(appID, event, "customer object has no id")
		return nil
	}

	cust, err := s.customers.GetByPSPCustomerID(ctx, nil, appID, obj.ID)
	if err != nil {
		if domain.IsNotFoundError(err) {
			s.skip(appID, event, "no local customer for PSP id")
			return nil
		}
		return err
	}

	if obj.Email != "" {
		cust.Email = obj.Email
	}
	if obj.Name != "" {
		cust.Name = obj.Name
	}
	return s.customers.Update(ctx, nil, cust)
}

func (s *Service) skip(appID string, event *models.WebhookEvent, reason string) {
	s.logger.Warn("webhook event skipped",
		zap.String("app_id", appID),
		zap.String("event_id", event.ID),
		zap.String("event_type", event.Type),
		zap.String("reason", reason),
	)
}
