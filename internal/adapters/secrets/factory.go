package secrets

import (
	"context"
	"fmt"
	"strings"

	"github.com/kevin07696/voucher-ledger/internal/domain/ports"
)

// Provider names a secret backend
type Provider string

const (
	ProviderNone  Provider = ""
	ProviderLocal Provider = "local"
	ProviderAWS   Provider = "aws"
	ProviderVault Provider = "vault"
)

// Config selects and configures a secret backend
type Config struct {
	Provider  Provider
	LocalPath string
	AWS       *AWSSecretsManagerConfig
	Vault     *VaultConfig
}

// New builds the configured store. ProviderNone returns nil.
func New(ctx context.Context, cfg Config, logger ports.Logger) (ports.SecretStore, error) {
	switch Provider(strings.ToLower(string(cfg.Provider))) {
	case ProviderNone:
		return nil, nil
	case ProviderLocal:
		return NewLocalSecretStore(cfg.LocalPath, logger), nil
	case ProviderAWS:
		if cfg.AWS == nil {
			return nil, fmt.Errorf("aws secrets provider requires configuration")
		}
		return NewAWSSecretsManager(ctx, cfg.AWS, logger)
	case ProviderVault:
		if cfg.Vault == nil {
			return nil, fmt.Errorf("vault secrets provider requires configuration")
		}
		return NewVaultStore(ctx, cfg.Vault, logger)
	default:
		return nil, fmt.Errorf("unknown secrets provider %q", cfg.Provider)
	}
}

// Resolve returns the named secret from store when name is set, otherwise
// the fallback. It lets configuration carry either a value or a reference.
func Resolve(ctx context.Context, store ports.SecretStore, name, fallback string) (string, error) {
	if name == "" || store == nil {
		return fallback, nil
	}
	value, err := store.GetSecret(ctx, name)
	if err != nil {
		return "", err
	}
	return value, nil
}
