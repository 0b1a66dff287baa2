package customer

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kevin07696/billing-service/internal/domain"
	"github.com/kevin07696/billing-service/internal/domain/models"
	"github.com/kevin07696/billing-service/internal/domain/ports"
	"go.uber.org/zap"
)

// Service owns customer lifecycle and the default-payment-method fast path
type Service struct {
	db        ports.DBPort
	customers ports.CustomerRepository
	methods   ports.PaymentMethodRepository
	gateway   ports.PaymentGateway
	logger    *zap.Logger
}

// NewService creates a customer service
func NewService(db ports.DBPort, customers ports.CustomerRepository, methods ports.PaymentMethodRepository, gateway ports.PaymentGateway, logger *zap.Logger) *Service {
	return &Service{
		db:        db,
		customers: customers,
		methods:   methods,
		gateway:   gateway,
		logger:    logger,
	}
}

// CreateParams are the caller-supplied fields for customer creation
type CreateParams struct {
	ExternalCustomerID string
	Email              string
	Name               string
	Metadata           map[string]string
}

// Create upserts a customer by external id. An existing customer with the
// same (app_id, external_customer_id) is returned unchanged. The PSP
// customer is created local-first: the local row commits even if the PSP
// create fails, and the psp_customer_id backfills later.
func (s *Service) Create(ctx context.Context, appID string, params CreateParams) (*models.Customer, error) {
	if params.Email == "" {
		return nil, domain.NewValidationError("email", "email is required")
	}

	if params.ExternalCustomerID != "" {
		existing, err := s.customers.GetByExternalID(ctx, nil, appID, params.ExternalCustomerID)
		if err == nil {
			return existing, nil
		}
		if !domain.IsNotFoundError(err) {
			return nil, err
		}
	}

	cust := &models.Customer{
		ID:                 uuid.New().String(),
		AppID:              appID,
		ExternalCustomerID: params.ExternalCustomerID,
		Email:              strings.TrimSpace(params.Email),
		Name:               strings.TrimSpace(params.Name),
		Status:             models.CustomerStatusActive,
		Metadata:           params.Metadata,
	}

	pspCustomer, err := s.gateway.CreateCustomer(ctx, appID, cust.Email, cust.Name, params.Metadata)
	if err == nil {
		cust.PSPCustomerID = pspCustomer.ID
	} else {
		s.logger.Warn("PSP customer create failed, proceeding local-first",
			zap.String("app_id", appID),
			zap.String("external_customer_id", params.ExternalCustomerID),
			zap.Error(err),
		)
	}

	if err := s.customers.Create(ctx, nil, cust); err != nil {
		if domain.IsConflictError(err) && params.ExternalCustomerID != "" {
			// Lost the upsert race; the winner's row is the customer.
			return s.customers.GetByExternalID(ctx, nil, appID, params.ExternalCustomerID)
		}
		return nil, err
	}
	return cust, nil
}

// GetByID retrieves a customer scoped by app
func (s *Service) GetByID(ctx context.Context, appID, id string) (*models.Customer, error) {
	return s.customers.GetByID(ctx, nil, appID, id)
}

// GetByExternalID retrieves a customer by the caller's external id
func (s *Service) GetByExternalID(ctx context.Context, appID, externalID string) (*models.Customer, error) {
	return s.customers.GetByExternalID(ctx, nil, appID, externalID)
}

// UpdateParams are the mutable customer fields. Nil pointers leave the
// field unchanged.
type UpdateParams struct {
	Email    *string
	Name     *string
	Metadata map[string]string
}

// Update modifies customer contact fields. The PSP-side sync is
// best-effort: email divergence carries reconciliation risk, so failures
// are logged at warn with a divergence flag rather than failing the call.
func (s *Service) Update(ctx context.Context, appID, id string, params UpdateParams) (*models.Customer, error) {
	cust, err := s.customers.GetByID(ctx, nil, appID, id)
	if err != nil {
		return nil, err
	}

	emailChanged := false
	if params.Email != nil && *params.Email != cust.Email {
		cust.Email = strings.TrimSpace(*params.Email)
		emailChanged = true
	}
	if params.Name != nil {
		cust.Name = strings.TrimSpace(*params.Name)
	}
	if params.Metadata != nil {
		cust.Metadata = params.Metadata
	}

	if err := s.customers.Update(ctx, nil, cust); err != nil {
		return nil, err
	}

	if cust.PSPCustomerID != "" {
		if _, err := s.gateway.UpdateCustomer(ctx, appID, cust.PSPCustomerID, cust.Email, cust.Name, cust.Metadata); err != nil {
			risk := "low"
			if emailChanged {
				risk = "high"
			}
			s.logger.Warn("PSP customer sync failed",
				zap.String("app_id", appID),
				zap.String("customer_id", cust.ID),
				zap.String("psp_customer_id", cust.PSPCustomerID),
				zap.String("divergence_risk", risk),
				zap.Error(err),
			)
		}
	}
	return cust, nil
}

// SetDefaultPaymentMethod flips the default to the given method. Clearing
// old defaults, setting the new flag, and updating the customer's
// denormalized fast path all commit in one transaction.
func (s *Service) SetDefaultPaymentMethod(ctx context.Context, appID, customerID, pspPaymentMethodID string) (*models.Customer, error) {
	cust, err := s.customers.GetByID(ctx, nil, appID, customerID)
	if err != nil {
		return nil, err
	}

	method, err := s.methods.GetByPSPID(ctx, nil, appID, pspPaymentMethodID)
	if err != nil {
		return nil, err
	}
	if method.CustomerID != cust.ID {
		return nil, domain.ErrPaymentMethodNotFound
	}
	if method.Deleted() {
		return nil, domain.ErrPaymentMethodNotFound
	}

	err = s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := s.methods.ClearDefaults(ctx, tx, appID, cust.ID); err != nil {
			return err
		}
		if err := s.methods.SetDefault(ctx, tx, appID, pspPaymentMethodID); err != nil {
			return err
		}
		return s.customers.SetDefaultPaymentMethod(ctx, tx, appID, cust.ID, method.PSPPaymentMethodID, string(method.Type))
	})
	if err != nil {
		return nil, err
	}

	cust.DefaultPaymentMethodToken = method.PSPPaymentMethodID
	cust.DefaultPaymentMethodType = string(method.Type)
	return cust, nil
}

// MarkDelinquent transitions a customer to delinquent with a timestamp.
// Used by webhook dispatch on charge failures and disputes.
func (s *Service) MarkDelinquent(ctx context.Context, tx ports.DBTX, cust *models.Customer) error {
	if cust.Status == models.CustomerStatusDelinquent {
		return nil
	}
	now := time.Now().UTC()
	cust.Status = models.CustomerStatusDelinquent
	cust.DelinquentSince = &now
	return s.customers.Update(ctx, tx, cust)
}
