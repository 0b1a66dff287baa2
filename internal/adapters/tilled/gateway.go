package tilled

import (
	"context"
	"time"

	"github.com/kevin07696/billing-service/internal/domain"
	"github.com/kevin07696/billing-service/internal/domain/ports"
)

// Gateway implements ports.PaymentGateway against the PSP's REST API
type Gateway struct {
	client *Client
}

// NewGateway creates a payment gateway backed by the given client
func NewGateway(client *Client) *Gateway {
	return &Gateway{client: client}
}

type customerPayload struct {
	Email    string            `json:"email,omitempty"`
	Name     string            `json:"name,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type customerResponse struct {
	ID       string            `json:"id"`
	Email    string            `json:"email"`
	Name     string            `json:"name"`
	Metadata map[string]string `json:"metadata"`
}

// CreateCustomer implements PaymentGateway.CreateCustomer
func (g *Gateway) CreateCustomer(ctx context.Context, appID string, email, name string, metadata map[string]string) (*ports.PSPCustomer, error) {
	var resp customerResponse
	err := g.client.makeRequest(ctx, appID, "POST", "/v1/customers", customerPayload{
		Email:    email,
		Name:     name,
		Metadata: metadata,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &ports.PSPCustomer{ID: resp.ID, Email: resp.Email, Name: resp.Name, Metadata: resp.Metadata}, nil
}

// UpdateCustomer implements PaymentGateway.UpdateCustomer
func (g *Gateway) UpdateCustomer(ctx context.Context, appID, pspCustomerID string, email, name string, metadata map[string]string) (*ports.PSPCustomer, error) {
	var resp customerResponse
	err := g.client.makeRequest(ctx, appID, "PATCH", "/v1/customers/"+escape(pspCustomerID), customerPayload{
		Email:    email,
		Name:     name,
		Metadata: metadata,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &ports.PSPCustomer{ID: resp.ID, Email: resp.Email, Name: resp.Name, Metadata: resp.Metadata}, nil
}

type paymentMethodResponse struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Card *struct {
		Brand    string `json:"brand"`
		Last4    string `json:"last4"`
		ExpMonth int    `json:"exp_month"`
		ExpYear  int    `json:"exp_year"`
	} `json:"card"`
	ACHDebit *struct {
		BankName string `json:"bank_name"`
		Last2    string `json:"last2"`
		Last4    string `json:"last4"`
	} `json:"ach_debit"`
}

func (r *paymentMethodResponse) toPort() *ports.PSPPaymentMethod {
	pm := &ports.PSPPaymentMethod{ID: r.ID, Type: r.Type}
	if r.Card != nil {
		pm.Brand = r.Card.Brand
		pm.Last4 = r.Card.Last4
		pm.ExpMonth = r.Card.ExpMonth
		pm.ExpYear = r.Card.ExpYear
	}
	if r.ACHDebit != nil {
		pm.BankName = r.ACHDebit.BankName
		pm.BankLast4 = r.ACHDebit.Last4
	}
	return pm
}

// AttachPaymentMethod implements PaymentGateway.AttachPaymentMethod
func (g *Gateway) AttachPaymentMethod(ctx context.Context, appID, pspCustomerID, token string) error {
	return g.client.makeRequest(ctx, appID, "PUT", "/v1/payment-methods/"+escape(token)+"/attach",
		map[string]string{"customer_id": pspCustomerID}, nil)
}

// GetPaymentMethod implements PaymentGateway.GetPaymentMethod
func (g *Gateway) GetPaymentMethod(ctx context.Context, appID, token string) (*ports.PSPPaymentMethod, error) {
	var resp paymentMethodResponse
	if err := g.client.makeRequest(ctx, appID, "GET", "/v1/payment-methods/"+escape(token), nil, &resp); err != nil {
		return nil, err
	}
	return resp.toPort(), nil
}

// DetachPaymentMethod implements PaymentGateway.DetachPaymentMethod
func (g *Gateway) DetachPaymentMethod(ctx context.Context, appID, token string) error {
	return g.client.makeRequest(ctx, appID, "PUT", "/v1/payment-methods/"+escape(token)+"/detach", nil, nil)
}

type subscriptionPayload struct {
	CustomerID         string            `json:"customer_id,omitempty"`
	PriceCents         int64             `json:"price,omitempty"`
	Currency           string            `json:"currency,omitempty"`
	IntervalUnit       string            `json:"interval_unit,omitempty"`
	IntervalCount      int               `json:"interval_count,omitempty"`
	PaymentMethodID    string            `json:"payment_method_id,omitempty"`
	BillingCycleAnchor string            `json:"billing_cycle_anchor,omitempty"`
	CancelAtPeriodEnd  *bool             `json:"cancel_at_period_end,omitempty"`
	Metadata           map[string]string `json:"metadata,omitempty"`
}

type subscriptionResponse struct {
	ID                 string    `json:"id"`
	Status             string    `json:"status"`
	CurrentPeriodStart time.Time `json:"current_period_start"`
	CurrentPeriodEnd   time.Time `json:"current_period_end"`
	CancelAtPeriodEnd  bool      `json:"cancel_at_period_end"`
}

func (r *subscriptionResponse) toPort() *ports.PSPSubscription {
	return &ports.PSPSubscription{
		ID:                 r.ID,
		Status:             r.Status,
		CurrentPeriodStart: r.CurrentPeriodStart,
		CurrentPeriodEnd:   r.CurrentPeriodEnd,
		CancelAtPeriodEnd:  r.CancelAtPeriodEnd,
	}
}

// CreateSubscription implements PaymentGateway.CreateSubscription
func (g *Gateway) CreateSubscription(ctx context.Context, appID string, req *ports.PSPSubscriptionRequest) (*ports.PSPSubscription, error) {
	payload := subscriptionPayload{
		CustomerID:      req.CustomerID,
		PriceCents:      req.PriceCents,
		Currency:        req.Currency,
		IntervalUnit:    req.IntervalUnit,
		IntervalCount:   req.IntervalCount,
		PaymentMethodID: req.PaymentMethodToken,
		Metadata:        req.Metadata,
	}
	if req.BillingCycleAnchor != nil {
		payload.BillingCycleAnchor = req.BillingCycleAnchor.UTC().Format(time.RFC3339)
	}
	var resp subscriptionResponse
	if err := g.client.makeRequest(ctx, appID, "POST", "/v1/subscriptions", payload, &resp); err != nil {
		return nil, err
	}
	return resp.toPort(), nil
}

// UpdateSubscription implements PaymentGateway.UpdateSubscription
func (g *Gateway) UpdateSubscription(ctx context.Context, appID, pspSubscriptionID string, priceCents *int64, metadata map[string]string) (*ports.PSPSubscription, error) {
	payload := map[string]interface{}{}
	if priceCents != nil {
		payload["price"] = *priceCents
	}
	if metadata != nil {
		payload["metadata"] = metadata
	}
	var resp subscriptionResponse
	err := g.client.makeRequest(ctx, appID, "PATCH", "/v1/subscriptions/"+escape(pspSubscriptionID), payload, &resp)
	if err != nil {
		return nil, err
	}
	return resp.toPort(), nil
}

// CancelSubscription implements PaymentGateway.CancelSubscription
func (g *Gateway) CancelSubscription(ctx context.Context, appID, pspSubscriptionID string, atPeriodEnd bool) (*ports.PSPSubscription, error) {
	var resp subscriptionResponse
	var err error
	if atPeriodEnd {
		t := true
		err = g.client.makeRequest(ctx, appID, "PATCH", "/v1/subscriptions/"+escape(pspSubscriptionID),
			subscriptionPayload{CancelAtPeriodEnd: &t}, &resp)
	} else {
		err = g.client.makeRequest(ctx, appID, "DELETE", "/v1/subscriptions/"+escape(pspSubscriptionID), nil, &resp)
	}
	if err != nil {
		return nil, err
	}
	return resp.toPort(), nil
}

type chargePayload struct {
	CustomerID      string            `json:"customer_id,omitempty"`
	Amount          int64             `json:"amount"`
	Currency        string            `json:"currency"`
	PaymentMethodID string            `json:"payment_method_id"`
	Description     string            `json:"description,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

type chargeResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// CreateCharge implements PaymentGateway.CreateCharge
func (g *Gateway) CreateCharge(ctx context.Context, appID string, req *ports.PSPChargeRequest) (*ports.PSPCharge, error) {
	var resp chargeResponse
	err := g.client.makeRequest(ctx, appID, "POST", "/v1/payment-intents", chargePayload{
		CustomerID:      req.CustomerID,
		Amount:          req.AmountCents,
		Currency:        req.Currency,
		PaymentMethodID: req.PaymentMethodToken,
		Description:     req.Description,
		Metadata:        req.Metadata,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &ports.PSPCharge{ID: resp.ID, Status: resp.Status}, nil
}

type refundPayload struct {
	PaymentIntentID string `json:"payment_intent_id"`
	Amount          int64  `json:"amount"`
	Reason          string `json:"reason,omitempty"`
}

type refundResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// CreateRefund implements PaymentGateway.CreateRefund
func (g *Gateway) CreateRefund(ctx context.Context, appID, pspChargeID string, amountCents int64, reason string) (*ports.PSPRefund, error) {
	if pspChargeID == "" {
		return nil, domain.NewValidationError("psp_charge_id", "PSP charge id is required")
	}
	var resp refundResponse
	err := g.client.makeRequest(ctx, appID, "POST", "/v1/refunds", refundPayload{
		PaymentIntentID: pspChargeID,
		Amount:          amountCents,
		Reason:          reason,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &ports.PSPRefund{ID: resp.ID, Status: resp.Status}, nil
}
