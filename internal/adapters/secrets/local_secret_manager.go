package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kevin07696/voucher-ledger/internal/domain/ports"
)

// localSecretStore implements ports.SecretStore using local files.
// WARNING: This is for development only. Use AWS Secrets Manager or Vault in production.
type localSecretStore struct {
	basePath string
	logger   ports.Logger
}

// NewLocalSecretStore creates a filesystem-backed secret store rooted at basePath
func NewLocalSecretStore(basePath string, logger ports.Logger) ports.SecretStore {
	return &localSecretStore{basePath: basePath, logger: logger}
}

// GetSecret reads basePath/name. Files may hold plain text or {"value": "..."}.
func (m *localSecretStore) GetSecret(ctx context.Context, name string) (string, error) {
	filePath := filepath.Join(m.basePath, filepath.Clean("/"+name))

	data, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("secret not found: %s", name)
		}
		return "", fmt.Errorf("failed to read secret: %w", err)
	}

	m.logger.Debug("Read secret from filesystem", ports.String("name", name))

	var secretData struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(data, &secretData); err == nil && secretData.Value != "" {
		return secretData.Value, nil
	}

	return strings.TrimSpace(string(data)), nil
}
