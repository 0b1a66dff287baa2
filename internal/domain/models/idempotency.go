package models

import "time"

// IdempotencyRecord is the persisted request-level replay cache entry,
// unique per (app_id, key). RequestHash is SHA-256 over
// method || path || canonical-json(body).
type IdempotencyRecord struct {
	AppID        string
	Key          string
	RequestHash  string
	StatusCode   int
	ResponseBody []byte
	ExpiresAt    time.Time
	CreatedAt    time.Time
}
