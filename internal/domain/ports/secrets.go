package ports

import "context"

// SecretStore resolves named secrets (database credentials, the cron
// shared secret, gateway API keys) from a secret manager.
type SecretStore interface {
	// GetSecret returns the current value of the named secret
	GetSecret(ctx context.Context, name string) (string, error)
}
