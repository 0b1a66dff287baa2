package models

import "time"

// SubscriptionStatus represents the lifecycle state of a subscription
type SubscriptionStatus string

const (
	SubStatusIncomplete        SubscriptionStatus = "incomplete"
	SubStatusIncompleteExpired SubscriptionStatus = "incomplete_expired"
	SubStatusTrialing          SubscriptionStatus = "trialing"
	SubStatusActive            SubscriptionStatus = "active"
	SubStatusPastDue           SubscriptionStatus = "past_due"
	SubStatusCanceled          SubscriptionStatus = "canceled"
	SubStatusUnpaid            SubscriptionStatus = "unpaid"
	SubStatusPaused            SubscriptionStatus = "paused"
)

// IntervalUnit represents the billing interval unit
type IntervalUnit string

const (
	IntervalDay   IntervalUnit = "day"
	IntervalWeek  IntervalUnit = "week"
	IntervalMonth IntervalUnit = "month"
	IntervalYear  IntervalUnit = "year"
)

// ValidIntervalUnit reports whether s is a supported billing interval unit
func ValidIntervalUnit(s string) bool {
	switch IntervalUnit(s) {
	case IntervalDay, IntervalWeek, IntervalMonth, IntervalYear:
		return true
	}
	return false
}

// Subscription represents a recurring billing subscription.
// The subscription exclusively owns its period markers.
type Subscription struct {
	ID                 string
	AppID              string
	CustomerID         string
	PSPSubscriptionID  string
	PlanID             string
	PlanName           string
	PriceCents         int64
	Status             SubscriptionStatus
	IntervalUnit       IntervalUnit
	IntervalCount      int
	BillingCycleAnchor *time.Time
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	CancelAtPeriodEnd  bool
	CancelAt           *time.Time
	CanceledAt         *time.Time
	EndedAt            *time.Time
	PaymentMethodToken string
	PaymentMethodType  string
	Metadata           map[string]string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Terminated reports whether the subscription has fully ended
func (s *Subscription) Terminated() bool {
	return s.Status == SubStatusCanceled || s.Status == SubStatusIncompleteExpired
}
