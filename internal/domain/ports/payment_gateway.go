package ports

import (
	"context"
	"time"
)

// PSPCustomer is the processor's view of a customer
type PSPCustomer struct {
	ID       string
	Email    string
	Name     string
	Metadata map[string]string
}

// PSPPaymentMethod carries only masked instrument data from the processor
type PSPPaymentMethod struct {
	ID        string
	Type      string
	Brand     string
	Last4     string
	ExpMonth  int
	ExpYear   int
	BankName  string
	BankLast4 string
}

// PSPSubscriptionRequest creates a processor-side subscription
type PSPSubscriptionRequest struct {
	CustomerID         string // PSP customer id
	PriceCents         int64
	Currency           string
	IntervalUnit       string
	IntervalCount      int
	PaymentMethodToken string
	BillingCycleAnchor *time.Time
	Metadata           map[string]string
}

// PSPSubscription is the processor's view of a subscription
type PSPSubscription struct {
	ID                 string
	Status             string
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	CancelAtPeriodEnd  bool
}

// PSPChargeRequest creates a processor-side charge
type PSPChargeRequest struct {
	CustomerID         string // PSP customer id
	AmountCents        int64
	Currency           string
	PaymentMethodToken string
	Description        string
	Metadata           map[string]string
}

// PSPCharge is the processor's view of a charge
type PSPCharge struct {
	ID     string
	Status string
}

// PSPRefund is the processor's view of a refund
type PSPRefund struct {
	ID     string
	Status string
}

// PaymentGateway is the PSP adapter contract. Implementations never leak raw
// SDK or HTTP errors; failures come back as domain payment-processor errors
// carrying the PSP's code and message. Every call honors the context deadline.
type PaymentGateway interface {
	CreateCustomer(ctx context.Context, appID string, email, name string, metadata map[string]string) (*PSPCustomer, error)
	UpdateCustomer(ctx context.Context, appID, pspCustomerID string, email, name string, metadata map[string]string) (*PSPCustomer, error)

	AttachPaymentMethod(ctx context.Context, appID, pspCustomerID, token string) error
	GetPaymentMethod(ctx context.Context, appID, token string) (*PSPPaymentMethod, error)
	DetachPaymentMethod(ctx context.Context, appID, token string) error

	CreateSubscription(ctx context.Context, appID string, req *PSPSubscriptionRequest) (*PSPSubscription, error)
	UpdateSubscription(ctx context.Context, appID, pspSubscriptionID string, priceCents *int64, metadata map[string]string) (*PSPSubscription, error)
	CancelSubscription(ctx context.Context, appID, pspSubscriptionID string, atPeriodEnd bool) (*PSPSubscription, error)

	CreateCharge(ctx context.Context, appID string, req *PSPChargeRequest) (*PSPCharge, error)
	CreateRefund(ctx context.Context, appID, pspChargeID string, amountCents int64, reason string) (*PSPRefund, error)
}

// WebhookVerifier verifies PSP webhook signatures over raw request bytes
type WebhookVerifier interface {
	// VerifySignature checks the signature header (t=<ts>,v1=<hex>) against
	// HMAC-SHA256(secret, ts || "." || payload). The timestamp tolerance is
	// enforced before any HMAC computation; comparison is constant-time.
	VerifySignature(appID string, payload []byte, header string, now time.Time) error
}
