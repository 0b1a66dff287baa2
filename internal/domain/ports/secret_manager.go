package ports

import "context"

// Secret represents a retrieved secret with metadata
type Secret struct {
	Value    string
	Version  string
	Metadata map[string]string
}

// SecretManager retrieves per-app PSP credentials from a secret backend.
// Path format depends on implementation:
//   - env:   "PSP_SECRET_KEY_<APP>" style variables
//   - AWS:   "billing-service/apps/{app_id}/psp"
//   - Vault: "secret/data/billing-service/apps/{app_id}"
//
// Implementations are responsible for authenticating with the backend and
// caching values with a TTL.
type SecretManager interface {
	GetSecret(ctx context.Context, path string) (*Secret, error)
}

// AppCredentials bundles the per-app PSP credential set
type AppCredentials struct {
	SecretKey     string
	AccountID     string
	WebhookSecret string
}

// CredentialSource resolves the full credential set for a tenant app
type CredentialSource interface {
	Credentials(ctx context.Context, appID string) (*AppCredentials, error)

	// Apps lists the app ids with credentials present, used by the
	// readiness probe.
	Apps() []string
}
