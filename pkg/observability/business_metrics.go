package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Charge metrics
	chargesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_charges_total",
		Help: "Total one-time charge attempts",
	}, []string{
		"app_id",
		"status",   // succeeded, failed, pending
		"psp_code", // processor decline code, empty on success
	})

	chargeAmountCents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_charge_amount_cents_total",
		Help: "Total charged amount in cents (for revenue tracking)",
	}, []string{
		"app_id",
		"status",
		"currency",
	})

	// PSP call metrics
	pspCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "billing_psp_call_duration_seconds",
		Help: "Duration of outbound PSP API calls",
		// Buckets: 100ms to 30s (typical processor latencies)
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{
		"app_id",
		"operation", // create_charge, create_subscription, ...
		"status",    // ok, error
	})

	pspInflight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "billing_psp_inflight_requests",
		Help: "Outbound PSP requests currently in flight",
	}, []string{
		"app_id",
	})

	// Webhook pipeline metrics
	webhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_webhook_events_total",
		Help: "Total webhook events ingested",
	}, []string{
		"app_id",
		"event_type",
		"status", // processed, failed, duplicate, rejected
	})

	webhookProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "billing_webhook_processing_duration_seconds",
		Help:    "Time to dispatch one webhook event",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
	}, []string{
		"app_id",
		"event_type",
	})

	// Subscription metrics
	subscriptionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_subscriptions_total",
		Help: "Total subscription lifecycle operations",
	}, []string{
		"app_id",
		"operation", // create, cancel, change_cycle
		"status",    // ok, error
	})

	// Dispute metrics
	disputesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_disputes_total",
		Help: "Total disputes received via webhook",
	}, []string{
		"app_id",
		"status", // needs_response, won, lost, ...
	})

	// Idempotency replay metrics
	idempotencyReplaysTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_idempotency_replays_total",
		Help: "Requests served from the idempotency replay cache",
	}, []string{
		"app_id",
	})
)

// RecordCharge records a one-time charge outcome
func RecordCharge(appID, status, pspCode, currency string, amountCents int64) {
	chargesTotal.WithLabelValues(appID, status, pspCode).Inc()
	chargeAmountCents.WithLabelValues(appID, status, currency).Add(float64(amountCents))
}

// RecordPSPCall records one outbound processor call
func RecordPSPCall(appID, operation, status string, duration float64) {
	pspCallDuration.WithLabelValues(appID, operation, status).Observe(duration)
}

// PSPInflightAdd tracks the outbound concurrency gauge
func PSPInflightAdd(appID string, delta float64) {
	pspInflight.WithLabelValues(appID).Add(delta)
}

// RecordWebhookEvent records one ingested webhook event
func RecordWebhookEvent(appID, eventType, status string, duration float64) {
	webhookEventsTotal.WithLabelValues(appID, eventType, status).Inc()
	if duration > 0 {
		webhookProcessingDuration.WithLabelValues(appID, eventType).Observe(duration)
	}
}

// RecordSubscriptionOp records a subscription lifecycle operation
func RecordSubscriptionOp(appID, operation, status string) {
	subscriptionsTotal.WithLabelValues(appID, operation, status).Inc()
}

// RecordDispute records a dispute received via webhook
func RecordDispute(appID, status string) {
	disputesTotal.WithLabelValues(appID, status).Inc()
}

// RecordIdempotencyReplay records a response served from the replay cache
func RecordIdempotencyReplay(appID string) {
	idempotencyReplaysTotal.WithLabelValues(appID).Inc()
}
