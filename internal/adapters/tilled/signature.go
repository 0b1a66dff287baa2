package tilled

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/kevin07696/billing-service/internal/domain"
	"github.com/kevin07696/billing-service/internal/domain/ports"
)

// DefaultTimestampTolerance bounds webhook replay windows
const DefaultTimestampTolerance = 5 * time.Minute

// Verifier implements ports.WebhookVerifier for the PSP's signature
// scheme: header "t=<unix>,v1=<hex>" where the hex digest is
// HMAC-SHA256(webhook_secret, "<unix>.<raw body>").
type Verifier struct {
	credentials ports.CredentialSource
	tolerance   time.Duration
}

// NewVerifier creates a webhook signature verifier. Zero tolerance means
// the 5 minute default.
func NewVerifier(credentials ports.CredentialSource, tolerance time.Duration) *Verifier {
	if tolerance <= 0 {
		tolerance = DefaultTimestampTolerance
	}
	return &Verifier{credentials: credentials, tolerance: tolerance}
}

// VerifySignature checks the signature header against the raw payload.
// The timestamp window is checked before any HMAC work so stale
// deliveries are rejected cheaply, and digest comparison is
// constant-time.
func (v *Verifier) VerifySignature(appID string, payload []byte, header string, now time.Time) error {
	ts, sig, err := parseSignatureHeader(header)
	if err != nil {
		return err
	}

	eventTime := time.Unix(ts, 0)
	age := now.Sub(eventTime)
	if age > v.tolerance || age < -v.tolerance {
		return domain.NewDomainError(domain.ErrorCodeStaleTimestamp, "webhook timestamp outside tolerance").
			WithDetail("timestamp", ts)
	}

	creds, err := v.credentials.Credentials(context.Background(), appID)
	if err != nil {
		return err
	}
	if creds.WebhookSecret == "" {
		return domain.NewDomainError(domain.ErrorCodeMissingCredential, "no webhook secret configured for app")
	}

	mac := hmac.New(sha256.New, []byte(creds.WebhookSecret))
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := mac.Sum(nil)

	provided, err := hex.DecodeString(sig)
	if err != nil || len(provided) != len(expected) {
		return domain.ErrInvalidSignature
	}
	if !hmac.Equal(provided, expected) {
		return domain.ErrInvalidSignature
	}
	return nil
}

// parseSignatureHeader splits "t=<unix>,v1=<hex>". Unknown elements are
// ignored; the first v1 element wins.
func parseSignatureHeader(header string) (int64, string, error) {
	var (
		tsRaw string
		sig   string
	)
	for _, part := range strings.Split(header, ",") {
		k, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			tsRaw = val
		case "v1":
			if sig == "" {
				sig = val
			}
		}
	}
	if tsRaw == "" || sig == "" {
		return 0, "", domain.ErrInvalidSignature
	}
	ts, err := strconv.ParseInt(tsRaw, 10, 64)
	if err != nil {
		return 0, "", domain.ErrInvalidSignature
	}
	return ts, sig, nil
}
