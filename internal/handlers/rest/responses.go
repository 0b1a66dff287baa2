package rest

import (
	"time"

	"github.com/kevin07696/billing-service/internal/domain/models"
)

// customerResponse is the wire shape of a customer. PSP internals and the
// raw default token type stay server-side except for the masked fast path.
type customerResponse struct {
	ID                        string            `json:"id"`
	ExternalCustomerID        string            `json:"external_customer_id,omitempty"`
	Email                     string            `json:"email"`
	Name                      string            `json:"name,omitempty"`
	Status                    string            `json:"status"`
	DefaultPaymentMethodToken string            `json:"default_payment_method_token,omitempty"`
	DefaultPaymentMethodType  string            `json:"default_payment_method_type,omitempty"`
	DelinquentSince           *time.Time        `json:"delinquent_since,omitempty"`
	Metadata                  map[string]string `json:"metadata,omitempty"`
	CreatedAt                 time.Time         `json:"created_at"`
	UpdatedAt                 time.Time         `json:"updated_at"`
}

func toCustomerResponse(c *models.Customer) *customerResponse {
	return &customerResponse{
		ID:                        c.ID,
		ExternalCustomerID:        c.ExternalCustomerID,
		Email:                     c.Email,
		Name:                      c.Name,
		Status:                    string(c.Status),
		DefaultPaymentMethodToken: c.DefaultPaymentMethodToken,
		DefaultPaymentMethodType:  c.DefaultPaymentMethodType,
		DelinquentSince:           c.DelinquentSince,
		Metadata:                  c.Metadata,
		CreatedAt:                 c.CreatedAt,
		UpdatedAt:                 c.UpdatedAt,
	}
}

type paymentMethodResponse struct {
	ID        string `json:"id"`
	Token     string `json:"token"`
	Type      string `json:"type"`
	Brand     string `json:"brand,omitempty"`
	Last4     string `json:"last4,omitempty"`
	ExpMonth  int    `json:"exp_month,omitempty"`
	ExpYear   int    `json:"exp_year,omitempty"`
	BankName  string `json:"bank_name,omitempty"`
	BankLast4 string `json:"bank_last4,omitempty"`
	IsDefault bool   `json:"is_default"`
}

func toPaymentMethodResponse(pm *models.PaymentMethod) *paymentMethodResponse {
	return &paymentMethodResponse{
		ID:        pm.ID,
		Token:     pm.PSPPaymentMethodID,
		Type:      string(pm.Type),
		Brand:     pm.Brand,
		Last4:     pm.Last4,
		ExpMonth:  pm.ExpMonth,
		ExpYear:   pm.ExpYear,
		BankName:  pm.BankName,
		BankLast4: pm.BankLast4,
		IsDefault: pm.IsDefault,
	}
}

func toPaymentMethodResponses(methods []*models.PaymentMethod) []*paymentMethodResponse {
	out := make([]*paymentMethodResponse, 0, len(methods))
	for _, pm := range methods {
		out = append(out, toPaymentMethodResponse(pm))
	}
	return out
}

type subscriptionResponse struct {
	ID                 string            `json:"id"`
	CustomerID         string            `json:"customer_id"`
	PlanID             string            `json:"plan_id"`
	PlanName           string            `json:"plan_name,omitempty"`
	PriceCents         int64             `json:"price_cents"`
	Status             string            `json:"status"`
	IntervalUnit       string            `json:"interval_unit"`
	IntervalCount      int               `json:"interval_count"`
	CurrentPeriodStart time.Time         `json:"current_period_start"`
	CurrentPeriodEnd   time.Time         `json:"current_period_end"`
	CancelAtPeriodEnd  bool              `json:"cancel_at_period_end"`
	CanceledAt         *time.Time        `json:"canceled_at,omitempty"`
	EndedAt            *time.Time        `json:"ended_at,omitempty"`
	Metadata           map[string]string `json:"metadata,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

func toSubscriptionResponse(sub *models.Subscription) *subscriptionResponse {
	return &subscriptionResponse{
		ID:                 sub.ID,
		CustomerID:         sub.CustomerID,
		PlanID:             sub.PlanID,
		PlanName:           sub.PlanName,
		PriceCents:         sub.PriceCents,
		Status:             string(sub.Status),
		IntervalUnit:       string(sub.IntervalUnit),
		IntervalCount:      sub.IntervalCount,
		CurrentPeriodStart: sub.CurrentPeriodStart,
		CurrentPeriodEnd:   sub.CurrentPeriodEnd,
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
		CanceledAt:         sub.CanceledAt,
		EndedAt:            sub.EndedAt,
		Metadata:           sub.Metadata,
		CreatedAt:          sub.CreatedAt,
		UpdatedAt:          sub.UpdatedAt,
	}
}

func toSubscriptionResponses(subs []*models.Subscription) []*subscriptionResponse {
	out := make([]*subscriptionResponse, 0, len(subs))
	for _, sub := range subs {
		out = append(out, toSubscriptionResponse(sub))
	}
	return out
}

type chargeResponse struct {
	ID             string            `json:"id"`
	CustomerID     string            `json:"customer_id"`
	Status         string            `json:"status"`
	AmountCents    int64             `json:"amount_cents"`
	Currency       string            `json:"currency"`
	Reason         string            `json:"reason,omitempty"`
	ReferenceID    string            `json:"reference_id,omitempty"`
	Note           string            `json:"note,omitempty"`
	FailureCode    string            `json:"failure_code,omitempty"`
	FailureMessage string            `json:"failure_message,omitempty"`
	Replayed       bool              `json:"replayed,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

func toChargeResponse(ch *models.Charge, replayed bool) *chargeResponse {
	return &chargeResponse{
		ID:             ch.ID,
		CustomerID:     ch.CustomerID,
		Status:         string(ch.Status),
		AmountCents:    ch.AmountCents,
		Currency:       ch.Currency,
		Reason:         ch.Reason,
		ReferenceID:    ch.ReferenceID,
		Note:           ch.Note,
		FailureCode:    ch.FailureCode,
		FailureMessage: ch.FailureMessage,
		Replayed:       replayed,
		Metadata:       ch.Metadata,
		CreatedAt:      ch.CreatedAt,
	}
}

func toChargeResponses(charges []*models.Charge) []*chargeResponse {
	out := make([]*chargeResponse, 0, len(charges))
	for _, ch := range charges {
		out = append(out, toChargeResponse(ch, false))
	}
	return out
}

type refundResponse struct {
	ID             string            `json:"id"`
	CustomerID     string            `json:"customer_id"`
	ChargeID       string            `json:"charge_id"`
	Status         string            `json:"status"`
	AmountCents    int64             `json:"amount_cents"`
	Currency       string            `json:"currency"`
	Reason         string            `json:"reason,omitempty"`
	ReferenceID    string            `json:"reference_id,omitempty"`
	FailureCode    string            `json:"failure_code,omitempty"`
	FailureMessage string            `json:"failure_message,omitempty"`
	Replayed       bool              `json:"replayed,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

func toRefundResponse(rf *models.Refund, replayed bool) *refundResponse {
	return &refundResponse{
		ID:             rf.ID,
		CustomerID:     rf.CustomerID,
		ChargeID:       rf.ChargeID,
		Status:         string(rf.Status),
		AmountCents:    rf.AmountCents,
		Currency:       rf.Currency,
		Reason:         rf.Reason,
		ReferenceID:    rf.ReferenceID,
		FailureCode:    rf.FailureCode,
		FailureMessage: rf.FailureMessage,
		Replayed:       replayed,
		Metadata:       rf.Metadata,
		CreatedAt:      rf.CreatedAt,
	}
}
