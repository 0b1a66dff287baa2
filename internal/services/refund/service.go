package refund

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/kevin07696/billing-service/internal/domain"
	"github.com/kevin07696/billing-service/internal/domain/models"
	"github.com/kevin07696/billing-service/internal/domain/ports"
	"go.uber.org/zap"
)

// Service creates refunds with the same local-first, domain-idempotent
// shape as one-time charges.
type Service struct {
	charges ports.ChargeRepository
	refunds ports.RefundRepository
	gateway ports.PaymentGateway
	logger  *zap.Logger
}

// NewService creates a refund service
func NewService(charges ports.ChargeRepository, refunds ports.RefundRepository, gateway ports.PaymentGateway, logger *zap.Logger) *Service {
	return &Service{
		charges: charges,
		refunds: refunds,
		gateway: gateway,
		logger:  logger,
	}
}

// CreateParams are the caller-supplied fields for a refund
type CreateParams struct {
	ChargeID    string
	AmountCents int64
	Reason      string
	ReferenceID string
	Metadata    map[string]string
}

// Create refunds a settled charge. The charge must belong to the same
// app (cross-tenant lookups read as not-found) and must carry a PSP
// charge id. ReferenceID gives at-most-once semantics exactly as for
// charges.
func (s *Service) Create(ctx context.Context, appID string, params CreateParams) (*models.Refund, bool, error) {
	if params.AmountCents <= 0 {
		return nil, false, domain.ErrValidationAmountInvalid
	}
	if params.ReferenceID == "" {
		return nil, false, domain.NewValidationError("reference_id", "reference_id is required")
	}
	if params.ChargeID == "" {
		return nil, false, domain.NewValidationError("charge_id", "charge_id is required")
	}

	existing, err := s.refunds.GetByReferenceID(ctx, nil, appID, params.ReferenceID)
	if err == nil {
		return existing, true, nil
	}
	if !domain.IsNotFoundError(err) {
		return nil, false, err
	}

	ch, err := s.charges.GetByID(ctx, nil, appID, params.ChargeID)
	if err != nil {
		return nil, false, err
	}
	if ch.PSPChargeID == "" {
		return nil, false, domain.NewDomainError(domain.ErrorCodePrecondition, "charge was never settled by the processor")
	}
	if params.AmountCents > ch.AmountCents {
		return nil, false, domain.NewValidationError("amount_cents", "refund exceeds charge amount")
	}

	rf := &models.Refund{
		ID:          uuid.New().String(),
		AppID:       appID,
		CustomerID:  ch.CustomerID,
		ChargeID:    ch.ID,
		Status:      models.RefundStatusPending,
		AmountCents: params.AmountCents,
		Currency:    ch.Currency,
		Reason:      params.Reason,
		ReferenceID: params.ReferenceID,
		Metadata:    params.Metadata,
	}

	if err := s.refunds.Create(ctx, nil, rf); err != nil {
		if domain.IsConflictError(err) {
			winner, readErr := s.refunds.GetByReferenceID(ctx, nil, appID, params.ReferenceID)
			if readErr != nil {
				return nil, false, readErr
			}
			return winner, true, nil
		}
		return nil, false, err
	}

	pspRefund, err := s.gateway.CreateRefund(ctx, appID, ch.PSPChargeID, params.AmountCents, params.Reason)
	if err != nil {
		rf.Status = models.RefundStatusFailed
		var derr *domain.DomainError
		if errors.As(err, &derr) {
			rf.FailureCode = derr.ProcessorCode
			rf.FailureMessage = derr.ProcessorMessage
		}
		if updateErr := s.refunds.Update(ctx, nil, rf); updateErr != nil {
			s.logger.Error("failed to persist refund failure",
				zap.String("app_id", appID),
				zap.String("refund_id", rf.ID),
				zap.Error(updateErr),
			)
		}
		return nil, false, err
	}

	rf.PSPRefundID = pspRefund.ID
	rf.Status = models.RefundStatusSucceeded
	if pspRefund.Status == "pending" || pspRefund.Status == "processing" {
		rf.Status = models.RefundStatusPending
	}
	if err := s.refunds.Update(ctx, nil, rf); err != nil {
		return nil, false, err
	}
	return rf, false, nil
}

// GetByID retrieves a refund scoped by app
func (s *Service) GetByID(ctx context.Context, appID, id string) (*models.Refund, error) {
	return s.refunds.GetByID(ctx, nil, appID, id)
}
