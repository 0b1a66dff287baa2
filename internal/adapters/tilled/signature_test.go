package tilled

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/kevin07696/billing-service/internal/domain"
	"github.com/kevin07696/billing-service/internal/domain/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticCredentials struct {
	secret string
}

func (s *staticCredentials) Credentials(_ context.Context, appID string) (*ports.AppCredentials, error) {
	return &ports.AppCredentials{
		SecretKey:     "sk_test",
		AccountID:     "acct_" + appID,
		WebhookSecret: s.secret,
	}, nil
}

func (s *staticCredentials) Apps() []string { return []string{"app1"} }

func signPayload(secret string, ts time.Time, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts.Unix())
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func TestVerifySignature_Valid(t *testing.T) {
	v := NewVerifier(&staticCredentials{secret: "whsec_abc"}, 5*time.Minute)
	now := time.Now()
	payload := []byte(`{"id":"evt_1","type":"charge.succeeded"}`)

	header := signPayload("whsec_abc", now, payload)
	require.NoError(t, v.VerifySignature("app1", payload, header, now))
}

func TestVerifySignature_WrongSecret(t *testing.T) {
	v := NewVerifier(&staticCredentials{secret: "whsec_abc"}, 5*time.Minute)
	now := time.Now()
	payload := []byte(`{"id":"evt_1"}`)

	header := signPayload("whsec_other", now, payload)
	err := v.VerifySignature("app1", payload, header, now)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeInvalidSignature))
}

func TestVerifySignature_TamperedPayload(t *testing.T) {
	v := NewVerifier(&staticCredentials{secret: "whsec_abc"}, 5*time.Minute)
	now := time.Now()

	header := signPayload("whsec_abc", now, []byte(`{"amount":100}`))
	err := v.VerifySignature("app1", []byte(`{"amount":10000}`), header, now)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeInvalidSignature))
}

func TestVerifySignature_StaleTimestamp(t *testing.T) {
	v := NewVerifier(&staticCredentials{secret: "whsec_abc"}, 5*time.Minute)
	now := time.Now()
	payload := []byte(`{}`)

	// Even a correctly signed payload is rejected outside the window.
	header := signPayload("whsec_abc", now.Add(-6*time.Minute), payload)
	err := v.VerifySignature("app1", payload, header, now)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeStaleTimestamp))
}

func TestVerifySignature_FutureTimestamp(t *testing.T) {
	v := NewVerifier(&staticCredentials{secret: "whsec_abc"}, 5*time.Minute)
	now := time.Now()
	payload := []byte(`{}`)

	header := signPayload("whsec_abc", now.Add(10*time.Minute), payload)
	err := v.VerifySignature("app1", payload, header, now)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeStaleTimestamp))
}

func TestVerifySignature_MalformedHeader(t *testing.T) {
	v := NewVerifier(&staticCredentials{secret: "whsec_abc"}, 5*time.Minute)
	now := time.Now()

	cases := []string{
		"",
		"t=123",
		"v1=deadbeef",
		"t=notanumber,v1=deadbeef",
		"garbage",
	}
	for _, header := range cases {
		err := v.VerifySignature("app1", []byte(`{}`), header, now)
		assert.Error(t, err, "header %q", header)
	}
}

func TestVerifySignature_ShortDigestRejected(t *testing.T) {
	v := NewVerifier(&staticCredentials{secret: "whsec_abc"}, 5*time.Minute)
	now := time.Now()

	header := fmt.Sprintf("t=%d,v1=deadbeef", now.Unix())
	err := v.VerifySignature("app1", []byte(`{}`), header, now)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeInvalidSignature))
}

func TestVerifySignature_NoSecretConfigured(t *testing.T) {
	v := NewVerifier(&staticCredentials{secret: ""}, 5*time.Minute)
	now := time.Now()
	payload := []byte(`{}`)

	header := signPayload("whsec_abc", now, payload)
	err := v.VerifySignature("app1", payload, header, now)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeMissingCredential))
}
