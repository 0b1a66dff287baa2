package paymentmethod

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kevin07696/billing-service/internal/domain"
	"github.com/kevin07696/billing-service/internal/domain/models"
	"github.com/kevin07696/billing-service/internal/domain/ports"
	"go.uber.org/zap"
)

// Service manages tokenized payment methods. Only masked instrument data
// ever reaches this layer; the token is the sole handle on the instrument.
type Service struct {
	db        ports.DBPort
	customers ports.CustomerRepository
	methods   ports.PaymentMethodRepository
	gateway   ports.PaymentGateway
	logger    *zap.Logger
}

// NewService creates a payment method service
func NewService(db ports.DBPort, customers ports.CustomerRepository, methods ports.PaymentMethodRepository, gateway ports.PaymentGateway, logger *zap.Logger) *Service {
	return &Service{
		db:        db,
		customers: customers,
		methods:   methods,
		gateway:   gateway,
		logger:    logger,
	}
}

// Add attaches an already-tokenized method to a customer. The PSP attach
// is fail-fast; the masked-detail fetch afterwards is best-effort since
// the PSP retains authoritative instrument data. Re-adding a previously
// deleted token revives the existing row.
func (s *Service) Add(ctx context.Context, appID, customerID, token string, setDefault bool) (*models.PaymentMethod, error) {
	if token == "" {
		return nil, domain.NewValidationError("payment_method_token", "payment method token is required")
	}

	cust, err := s.customers.GetByID(ctx, nil, appID, customerID)
	if err != nil {
		return nil, err
	}
	if cust.PSPCustomerID == "" {
		return nil, domain.NewDomainError(domain.ErrorCodePrecondition, "customer has no processor account")
	}

	if err := s.gateway.AttachPaymentMethod(ctx, appID, cust.PSPCustomerID, token); err != nil {
		return nil, err
	}

	method := &models.PaymentMethod{
		ID:                 uuid.New().String(),
		AppID:              appID,
		CustomerID:         cust.ID,
		PSPPaymentMethodID: token,
		Type:               models.PaymentMethodTypeCard,
		IsDefault:          setDefault,
	}

	if detail, err := s.gateway.GetPaymentMethod(ctx, appID, token); err == nil {
		method.Type = models.PaymentMethodType(detail.Type)
		method.Brand = detail.Brand
		method.Last4 = detail.Last4
		method.ExpMonth = detail.ExpMonth
		method.ExpYear = detail.ExpYear
		method.BankName = detail.BankName
		method.BankLast4 = detail.BankLast4
	} else {
		s.logger.Warn("could not fetch masked payment method detail",
			zap.String("app_id", appID),
			zap.String("customer_id", cust.ID),
			zap.Error(err),
		)
	}

	// An existing row for this token may carry a prior id; rely on the
	// upsert to revive it and re-read for the authoritative state.
	if err := s.methods.Upsert(ctx, nil, method); err != nil {
		return nil, err
	}
	stored, err := s.methods.GetByPSPID(ctx, nil, appID, token)
	if err != nil {
		return nil, err
	}

	if setDefault {
		if err := s.setDefaultTx(ctx, appID, cust.ID, token, string(stored.Type)); err != nil {
			return nil, err
		}
		stored.IsDefault = true
	}
	return stored, nil
}

// List returns the customer's non-deleted methods, default first
func (s *Service) List(ctx context.Context, appID, customerID string) ([]*models.PaymentMethod, error) {
	if _, err := s.customers.GetByID(ctx, nil, appID, customerID); err != nil {
		return nil, err
	}
	return s.methods.ListByCustomer(ctx, nil, appID, customerID)
}

// Delete soft-deletes a method. The PSP detach is best-effort; local
// truth prevails. If the method was the customer's default, the
// denormalized fast path is cleared in the same transaction.
func (s *Service) Delete(ctx context.Context, appID, customerID, token string) error {
	cust, err := s.customers.GetByID(ctx, nil, appID, customerID)
	if err != nil {
		return err
	}
	method, err := s.methods.GetByPSPID(ctx, nil, appID, token)
	if err != nil {
		return err
	}
	if method.CustomerID != cust.ID || method.Deleted() {
		return domain.ErrPaymentMethodNotFound
	}

	err = s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := s.methods.SoftDelete(ctx, tx, appID, token); err != nil {
			return err
		}
		if cust.DefaultPaymentMethodToken == token {
			return s.customers.SetDefaultPaymentMethod(ctx, tx, appID, cust.ID, "", "")
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := s.gateway.DetachPaymentMethod(ctx, appID, token); err != nil {
		s.logger.Warn("PSP detach failed after local delete",
			zap.String("app_id", appID),
			zap.String("customer_id", cust.ID),
			zap.String("psp_payment_method_id", token),
			zap.Error(err),
		)
	}
	return nil
}

// SetDefault marks an existing attached method as the customer's default
func (s *Service) SetDefault(ctx context.Context, appID, customerID, token string) (*models.PaymentMethod, error) {
	cust, err := s.customers.GetByID(ctx, nil, appID, customerID)
	if err != nil {
		return nil, err
	}
	method, err := s.methods.GetByPSPID(ctx, nil, appID, token)
	if err != nil {
		return nil, err
	}
	if method.CustomerID != cust.ID || method.Deleted() {
		return nil, domain.ErrPaymentMethodNotFound
	}

	if err := s.setDefaultTx(ctx, appID, cust.ID, token, string(method.Type)); err != nil {
		return nil, err
	}
	method.IsDefault = true
	return method, nil
}

func (s *Service) setDefaultTx(ctx context.Context, appID, customerID, token, pmType string) error {
	return s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := s.methods.ClearDefaults(ctx, tx, appID, customerID); err != nil {
			return err
		}
		if err := s.methods.SetDefault(ctx, tx, appID, token); err != nil {
			return err
		}
		return s.customers.SetDefaultPaymentMethod(ctx, tx, appID, customerID, token, pmType)
	})
}
