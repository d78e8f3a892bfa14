package secrets

import (
	"context"
	"fmt"
	"time"

	vault "github.com/hashicorp/vault/api"
	"github.com/kevin07696/voucher-ledger/internal/domain/ports"
)

// VaultConfig contains configuration for HashiCorp Vault adapter
type VaultConfig struct {
	// Vault server address (e.g., "https://vault.example.com:8200")
	Address string

	// Authentication method: "token" or "approle"
	AuthMethod string

	Token string

	// AppRole credentials
	RoleID   string
	SecretID string

	// Vault namespace (Vault Enterprise)
	Namespace string

	// KV secrets engine mount path (default: "secret")
	MountPath string

	// KV version: "v1" or "v2" (default: "v2")
	KVVersion string

	CacheTTL      time.Duration
	EnableCache   bool
	TLSSkipVerify bool
}

// DefaultVaultConfig returns default configuration for Vault adapter
func DefaultVaultConfig(address string) *VaultConfig {
	return &VaultConfig{
		Address:     address,
		AuthMethod:  "token",
		MountPath:   "secret",
		KVVersion:   "v2",
		CacheTTL:    5 * time.Minute,
		EnableCache: true,
	}
}

// vaultStore implements ports.SecretStore for a Vault KV engine
type vaultStore struct {
	client *vault.Client
	config *VaultConfig
	logger ports.Logger
	cache  *secretCache
}

// NewVaultStore creates a new Vault-backed secret store
func NewVaultStore(ctx context.Context, cfg *VaultConfig, logger ports.Logger) (ports.SecretStore, error) {
	vaultConfig := vault.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSSkipVerify {
		if err := vaultConfig.ConfigureTLS(&vault.TLSConfig{Insecure: true}); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}

	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}

	if err := authenticateVault(ctx, client, cfg); err != nil {
		return nil, fmt.Errorf("failed to authenticate with Vault: %w", err)
	}

	logger.Info("Vault secret store initialized",
		ports.String("address", cfg.Address),
		ports.String("auth_method", cfg.AuthMethod),
		ports.String("mount_path", cfg.MountPath),
	)

	return &vaultStore{
		client: client,
		config: cfg,
		logger: logger,
		cache:  newSecretCache(cfg.EnableCache, cfg.CacheTTL),
	}, nil
}

func authenticateVault(ctx context.Context, client *vault.Client, cfg *VaultConfig) error {
	switch cfg.AuthMethod {
	case "token":
		if cfg.Token == "" {
			return fmt.Errorf("token is required for token auth")
		}
		client.SetToken(cfg.Token)
		return nil

	case "approle":
		if cfg.RoleID == "" || cfg.SecretID == "" {
			return fmt.Errorf("role_id and secret_id are required for AppRole auth")
		}
		resp, err := client.Logical().WriteWithContext(ctx, "auth/approle/login", map[string]interface{}{
			"role_id":   cfg.RoleID,
			"secret_id": cfg.SecretID,
		})
		if err != nil {
			return fmt.Errorf("AppRole login failed: %w", err)
		}
		if resp == nil || resp.Auth == nil {
			return fmt.Errorf("AppRole login returned no auth info")
		}
		client.SetToken(resp.Auth.ClientToken)
		return nil

	default:
		return fmt.Errorf("unsupported auth method: %s", cfg.AuthMethod)
	}
}

// kvPath builds the logical path for a secret name
func kvPath(mount, version, name string) string {
	if version == "v1" {
		return fmt.Sprintf("%s/%s", mount, name)
	}
	return fmt.Sprintf("%s/data/%s", mount, name)
}

// extractValue reads the "value" key of a KV payload, falling back to the
// first string field
func extractValue(data map[string]interface{}, version string) (string, error) {
	if version != "v1" {
		inner, ok := data["data"].(map[string]interface{})
		if !ok {
			return "", fmt.Errorf("invalid secret format from Vault")
		}
		data = inner
	}
	if v, ok := data["value"].(string); ok {
		return v, nil
	}
	for _, v := range data {
		if s, ok := v.(string); ok {
			return s, nil
		}
	}
	return "", fmt.Errorf("secret has no string value")
}

// GetSecret retrieves a secret by name, e.g. "voucher-ledger/cron"
func (a *vaultStore) GetSecret(ctx context.Context, name string) (string, error) {
	if cached, ok := a.cache.get(name); ok {
		return cached, nil
	}

	startTime := time.Now()
	secret, err := a.client.Logical().ReadWithContext(ctx, kvPath(a.config.MountPath, a.config.KVVersion, name))
	if err != nil {
		a.logger.Error("Failed to retrieve secret from Vault",
			ports.String("name", name),
			ports.Err(err),
		)
		return "", fmt.Errorf("failed to read secret from Vault: %w", err)
	}
	if secret == nil {
		return "", fmt.Errorf("secret not found: %s", name)
	}

	value, err := extractValue(secret.Data, a.config.KVVersion)
	if err != nil {
		return "", fmt.Errorf("secret %s: %w", name, err)
	}

	a.logger.Debug("Secret retrieved from Vault",
		ports.String("name", name),
		ports.Duration("elapsed", time.Since(startTime)),
	)

	a.cache.set(name, value)
	return value, nil
}
