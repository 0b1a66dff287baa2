package secrets

import (
	"context"
	"os"
	"sort"
	"strings"

	"github.com/kevin07696/billing-service/internal/domain"
	"github.com/kevin07696/billing-service/internal/domain/ports"
)

const (
	envSecretKeyPrefix     = "PSP_SECRET_KEY_"
	envAccountIDPrefix     = "PSP_ACCOUNT_ID_"
	envWebhookSecretPrefix = "PSP_WEBHOOK_SECRET_"
)

// EnvCredentialSource resolves per-app PSP credentials from environment
// variables of the form PSP_SECRET_KEY_<APP>, PSP_ACCOUNT_ID_<APP> and
// PSP_WEBHOOK_SECRET_<APP>, where <APP> is the app id uppercased with
// dashes mapped to underscores. Intended for development and small
// deployments; production uses the AWS or Vault source.
type EnvCredentialSource struct{}

// NewEnvCredentialSource creates an environment-backed credential source
func NewEnvCredentialSource() *EnvCredentialSource {
	return &EnvCredentialSource{}
}

func envSuffix(appID string) string {
	return strings.ToUpper(strings.ReplaceAll(appID, "-", "_"))
}

// Credentials implements ports.CredentialSource.Credentials
func (s *EnvCredentialSource) Credentials(_ context.Context, appID string) (*ports.AppCredentials, error) {
	suffix := envSuffix(appID)
	secretKey := os.Getenv(envSecretKeyPrefix + suffix)
	if secretKey == "" {
		return nil, domain.NewDomainError(domain.ErrorCodeMissingCredential, "no PSP credentials for app").
			WithDetail("app_id", appID)
	}
	return &ports.AppCredentials{
		SecretKey:     secretKey,
		AccountID:     os.Getenv(envAccountIDPrefix + suffix),
		WebhookSecret: os.Getenv(envWebhookSecretPrefix + suffix),
	}, nil
}

// Apps implements ports.CredentialSource.Apps by scanning the environment
// for secret-key variables. App ids come back lowercased with underscores
// mapped to dashes, sorted for stable readiness output.
func (s *EnvCredentialSource) Apps() []string {
	var apps []string
	for _, kv := range os.Environ() {
		name, _, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, envSecretKeyPrefix) {
			continue
		}
		suffix := strings.TrimPrefix(name, envSecretKeyPrefix)
		if suffix == "" {
			continue
		}
		apps = append(apps, strings.ToLower(strings.ReplaceAll(suffix, "_", "-")))
	}
	sort.Strings(apps)
	return apps
}
