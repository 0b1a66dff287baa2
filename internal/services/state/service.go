package state

import (
	"context"
	"time"

	"github.com/kevin07696/billing-service/internal/domain/models"
	"github.com/kevin07696/billing-service/internal/domain/ports"
	"go.uber.org/zap"
)

// Access classifies what the customer should currently get
type Access string

const (
	AccessFull   Access = "full"
	AccessLocked Access = "locked"
)

// CustomerSummary is the customer slice of the snapshot
type CustomerSummary struct {
	ID                 string     `json:"id"`
	ExternalCustomerID string     `json:"external_customer_id,omitempty"`
	Email              string     `json:"email"`
	Name               string     `json:"name,omitempty"`
	Status             string     `json:"status"`
	DelinquentSince    *time.Time `json:"delinquent_since,omitempty"`
}

// SubscriptionSummary is the subscription slice of the snapshot
type SubscriptionSummary struct {
	ID                 string    `json:"id"`
	PlanID             string    `json:"plan_id"`
	PlanName           string    `json:"plan_name,omitempty"`
	Status             string    `json:"status"`
	PriceCents         int64     `json:"price_cents"`
	IntervalUnit       string    `json:"interval_unit"`
	IntervalCount      int       `json:"interval_count"`
	CancelAtPeriodEnd  bool      `json:"cancel_at_period_end"`
	CurrentPeriodStart time.Time `json:"current_period_start"`
	CurrentPeriodEnd   time.Time `json:"current_period_end"`
}

// PaymentSummary carries only masked instrument data
type PaymentSummary struct {
	Token     string `json:"token"`
	Type      string `json:"type"`
	Brand     string `json:"brand,omitempty"`
	Last4     string `json:"last4,omitempty"`
	ExpMonth  int    `json:"exp_month,omitempty"`
	ExpYear   int    `json:"exp_year,omitempty"`
	BankName  string `json:"bank_name,omitempty"`
	BankLast4 string `json:"bank_last4,omitempty"`
}

// Snapshot is the composed billing state for one customer
type Snapshot struct {
	Customer     *CustomerSummary     `json:"customer"`
	Subscription *SubscriptionSummary `json:"subscription,omitempty"`
	Payment      *PaymentSummary      `json:"payment,omitempty"`
	Access       Access               `json:"access"`
	Entitlements []string             `json:"entitlements"`
}

// Entitlements maps app id -> plan id -> feature list. Loaded from the
// environment at process start and immutable until restart.
type Entitlements map[string]map[string][]string

// Service composes the read-only state snapshot
type Service struct {
	customers    ports.CustomerRepository
	subs         ports.SubscriptionRepository
	methods      ports.PaymentMethodRepository
	entitlements Entitlements
	logger       *zap.Logger
}

// NewService creates a state service
func NewService(customers ports.CustomerRepository, subs ports.SubscriptionRepository, methods ports.PaymentMethodRepository, entitlements Entitlements, logger *zap.Logger) *Service {
	return &Service{
		customers:    customers,
		subs:         subs,
		methods:      methods,
		entitlements: entitlements,
		logger:       logger,
	}
}

// Snapshot composes {customer, subscription, payment, access, entitlements}
// for the caller's external customer id. Access is locked when the customer
// is delinquent or when every subscription has left good standing; a
// customer with no subscriptions at all keeps full access.
func (s *Service) Snapshot(ctx context.Context, appID, externalCustomerID string) (*Snapshot, error) {
	cust, err := s.customers.GetByExternalID(ctx, nil, appID, externalCustomerID)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Customer: &CustomerSummary{
			ID:                 cust.ID,
			ExternalCustomerID: cust.ExternalCustomerID,
			Email:              cust.Email,
			Name:               cust.Name,
			Status:             string(cust.Status),
			DelinquentSince:    cust.DelinquentSince,
		},
		Access:       AccessFull,
		Entitlements: []string{},
	}

	subs, err := s.subs.ListByCustomer(ctx, nil, appID, cust.ID)
	if err != nil {
		return nil, err
	}
	current := pickCurrent(subs)
	if current != nil {
		snap.Subscription = &SubscriptionSummary{
			ID:                 current.ID,
			PlanID:             current.PlanID,
			PlanName:           current.PlanName,
			Status:             string(current.Status),
			PriceCents:         current.PriceCents,
			IntervalUnit:       string(current.IntervalUnit),
			IntervalCount:      current.IntervalCount,
			CancelAtPeriodEnd:  current.CancelAtPeriodEnd,
			CurrentPeriodStart: current.CurrentPeriodStart,
			CurrentPeriodEnd:   current.CurrentPeriodEnd,
		}
	}

	if cust.Status == models.CustomerStatusDelinquent {
		snap.Access = AccessLocked
	} else if len(subs) > 0 && (current == nil || !inGoodStanding(current)) {
		snap.Access = AccessLocked
	}

	if snap.Access == AccessFull && current != nil {
		if plans, ok := s.entitlements[appID]; ok {
			if features, ok := plans[current.PlanID]; ok {
				snap.Entitlements = features
			}
		}
	}

	if cust.DefaultPaymentMethodToken != "" {
		method, err := s.methods.GetByPSPID(ctx, nil, appID, cust.DefaultPaymentMethodToken)
		if err == nil && !method.Deleted() {
			snap.Payment = &PaymentSummary{
				Token:     method.PSPPaymentMethodID,
				Type:      string(method.Type),
				Brand:     method.Brand,
				Last4:     method.Last4,
				ExpMonth:  method.ExpMonth,
				ExpYear:   method.ExpYear,
				BankName:  method.BankName,
				BankLast4: method.BankLast4,
			}
		} else if err != nil {
			s.logger.Warn("default payment method lookup failed for snapshot",
				zap.String("app_id", appID),
				zap.String("customer_id", cust.ID),
				zap.Error(err),
			)
		}
	}

	return snap, nil
}

// pickCurrent prefers the newest subscription in good standing, falling back
// to the newest overall. ListByCustomer returns newest first.
func pickCurrent(subs []*models.Subscription) *models.Subscription {
	for _, sub := range subs {
		if inGoodStanding(sub) {
			return sub
		}
	}
	if len(subs) > 0 {
		return subs[0]
	}
	return nil
}

func inGoodStanding(sub *models.Subscription) bool {
	return sub.Status == models.SubStatusActive || sub.Status == models.SubStatusTrialing
}
