package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/kevin07696/billing-service/internal/domain"
	"github.com/kevin07696/billing-service/internal/domain/ports"
)

// SecretCredentialSource resolves per-app PSP credentials from a secret
// backend (AWS Secrets Manager or Vault). Each app's credential set is a
// JSON document at "billing-service/apps/{app_id}/psp":
//
//	{"secret_key": "...", "account_id": "...", "webhook_secret": "..."}
//
// The set of known apps is fixed at startup; rotation of the secret
// values themselves needs no restart because the backend caches with a
// TTL.
type SecretCredentialSource struct {
	manager ports.SecretManager
	apps    []string
}

// NewSecretCredentialSource creates a credential source over a secret
// backend for the given app ids.
func NewSecretCredentialSource(manager ports.SecretManager, apps []string) *SecretCredentialSource {
	sorted := append([]string(nil), apps...)
	sort.Strings(sorted)
	return &SecretCredentialSource{manager: manager, apps: sorted}
}

type credentialDocument struct {
	SecretKey     string `json:"secret_key"`
	AccountID     string `json:"account_id"`
	WebhookSecret string `json:"webhook_secret"`
}

// Credentials implements ports.CredentialSource.Credentials
func (s *SecretCredentialSource) Credentials(ctx context.Context, appID string) (*ports.AppCredentials, error) {
	path := fmt.Sprintf("billing-service/apps/%s/psp", appID)
	secret, err := s.manager.GetSecret(ctx, path)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeMissingCredential, "could not resolve PSP credentials", err).
			WithDetail("app_id", appID)
	}

	var doc credentialDocument
	if err := json.Unmarshal([]byte(secret.Value), &doc); err != nil {
		return nil, domain.WrapError(domain.ErrorCodeMissingCredential, "malformed PSP credential document", err).
			WithDetail("app_id", appID)
	}
	if doc.SecretKey == "" {
		return nil, domain.NewDomainError(domain.ErrorCodeMissingCredential, "PSP credential document missing secret_key").
			WithDetail("app_id", appID)
	}

	return &ports.AppCredentials{
		SecretKey:     doc.SecretKey,
		AccountID:     doc.AccountID,
		WebhookSecret: doc.WebhookSecret,
	}, nil
}

// Apps implements ports.CredentialSource.Apps
func (s *SecretCredentialSource) Apps() []string {
	return append([]string(nil), s.apps...)
}
