package models

import (
	"encoding/json"
	"time"
)

// WebhookStatus represents the processing state of a webhook envelope
type WebhookStatus string

const (
	WebhookStatusReceived   WebhookStatus = "received"
	WebhookStatusProcessing WebhookStatus = "processing"
	WebhookStatusProcessed  WebhookStatus = "processed"
	WebhookStatusFailed     WebhookStatus = "failed"
)

// WebhookEnvelope records a webhook delivery before any processing happens.
// EventID is globally unique; the unique constraint provides at-most-once
// dispatch even across handler failures.
type WebhookEnvelope struct {
	ID          string
	AppID       string
	EventID     string
	EventType   string
	Status      WebhookStatus
	Attempts    int
	Error       string
	ReceivedAt  time.Time
	ProcessedAt *time.Time
}

// WebhookEvent is the decoded PSP event payload
type WebhookEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}
