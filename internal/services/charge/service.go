package charge

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/kevin07696/billing-service/internal/domain"
	"github.com/kevin07696/billing-service/internal/domain/models"
	"github.com/kevin07696/billing-service/internal/domain/ports"
	"go.uber.org/zap"
)

// Service creates one-time charges with domain idempotency. The pending
// row commits before the PSP is called, so a crash mid-flight leaves a
// detectable pending row rather than a silent loss.
type Service struct {
	customers ports.CustomerRepository
	charges   ports.ChargeRepository
	gateway   ports.PaymentGateway
	logger    *zap.Logger
}

// NewService creates a charge service
func NewService(customers ports.CustomerRepository, charges ports.ChargeRepository, gateway ports.PaymentGateway, logger *zap.Logger) *Service {
	return &Service{
		customers: customers,
		charges:   charges,
		gateway:   gateway,
		logger:    logger,
	}
}

// CreateParams are the caller-supplied fields for a one-time charge
type CreateParams struct {
	ExternalCustomerID string
	CustomerID         string
	AmountCents        int64
	Currency           string
	Reason             string
	ReferenceID        string
	Note               string
	Metadata           map[string]string
}

// CreateOneTime charges the customer's default payment method once.
// ReferenceID is the domain-idempotency key: a prior charge with the same
// (app_id, reference_id) is returned as-is with no PSP call, including
// when a concurrent request wins the insert race.
func (s *Service) CreateOneTime(ctx context.Context, appID string, params CreateParams) (*models.Charge, bool, error) {
	if params.AmountCents <= 0 {
		return nil, false, domain.ErrValidationAmountInvalid
	}
	if params.ReferenceID == "" {
		return nil, false, domain.NewValidationError("reference_id", "reference_id is required")
	}

	existing, err := s.charges.GetByReferenceID(ctx, nil, appID, params.ReferenceID)
	if err == nil {
		return existing, true, nil
	}
	if !domain.IsNotFoundError(err) {
		return nil, false, err
	}

	cust, err := s.resolveCustomer(ctx, appID, params)
	if err != nil {
		return nil, false, err
	}
	if cust.DefaultPaymentMethodToken == "" {
		return nil, false, domain.NewDomainError(domain.ErrorCodePrecondition, "customer has no default payment method")
	}

	currency := params.Currency
	if currency == "" {
		currency = "usd"
	}

	ch := &models.Charge{
		ID:          uuid.New().String(),
		AppID:       appID,
		CustomerID:  cust.ID,
		Status:      models.ChargeStatusPending,
		AmountCents: params.AmountCents,
		Currency:    currency,
		Reason:      params.Reason,
		ReferenceID: params.ReferenceID,
		Note:        params.Note,
		Metadata:    params.Metadata,
	}

	if err := s.charges.Create(ctx, nil, ch); err != nil {
		if domain.IsConflictError(err) {
			// A concurrent request with the same reference_id won; its row
			// is the charge.
			winner, readErr := s.charges.GetByReferenceID(ctx, nil, appID, params.ReferenceID)
			if readErr != nil {
				return nil, false, readErr
			}
			return winner, true, nil
		}
		return nil, false, err
	}

	return s.settle(ctx, appID, cust, ch)
}

// settle calls the PSP for a committed pending charge and persists the
// outcome. Failed charges keep their row for audit.
func (s *Service) settle(ctx context.Context, appID string, cust *models.Customer, ch *models.Charge) (*models.Charge, bool, error) {
	pspCharge, err := s.gateway.CreateCharge(ctx, appID, &ports.PSPChargeRequest{
		CustomerID:         cust.PSPCustomerID,
		AmountCents:        ch.AmountCents,
		Currency:           ch.Currency,
		PaymentMethodToken: cust.DefaultPaymentMethodToken,
		Description:        ch.Reason,
		Metadata:           ch.Metadata,
	})
	if err != nil {
		ch.Status = models.ChargeStatusFailed
		var derr *domain.DomainError
		if errors.As(err, &derr) {
			ch.FailureCode = derr.ProcessorCode
			ch.FailureMessage = derr.ProcessorMessage
		}
		if updateErr := s.charges.Update(ctx, nil, ch); updateErr != nil {
			s.logger.Error("failed to persist charge failure",
				zap.String("app_id", appID),
				zap.String("charge_id", ch.ID),
				zap.Error(updateErr),
			)
		}
		return nil, false, err
	}

	ch.PSPChargeID = pspCharge.ID
	ch.Status = models.ChargeStatusSucceeded
	if pspCharge.Status == "pending" || pspCharge.Status == "processing" {
		ch.Status = models.ChargeStatusPending
	}
	if err := s.charges.Update(ctx, nil, ch); err != nil {
		return nil, false, err
	}
	return ch, false, nil
}

// GetByID retrieves a charge scoped by app
func (s *Service) GetByID(ctx context.Context, appID, id string) (*models.Charge, error) {
	return s.charges.GetByID(ctx, nil, appID, id)
}

// ListByCustomer lists the customer's charges, newest first
func (s *Service) ListByCustomer(ctx context.Context, appID, customerID string) ([]*models.Charge, error) {
	if _, err := s.customers.GetByID(ctx, nil, appID, customerID); err != nil {
		return nil, err
	}
	return s.charges.ListByCustomer(ctx, nil, appID, customerID)
}

func (s *Service) resolveCustomer(ctx context.Context, appID string, params CreateParams) (*models.Customer, error) {
	if params.CustomerID != "" {
		return s.customers.GetByID(ctx, nil, appID, params.CustomerID)
	}
	if params.ExternalCustomerID != "" {
		return s.customers.GetByExternalID(ctx, nil, appID, params.ExternalCustomerID)
	}
	return nil, domain.NewValidationError("customer_id", "customer_id or external_customer_id is required")
}
