package secrets

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/kevin07696/voucher-ledger/internal/domain/ports"
)

// AWSSecretsManagerConfig contains configuration for AWS Secrets Manager adapter
type AWSSecretsManagerConfig struct {
	// AWS Region (e.g., "us-east-1")
	Region string

	// Optional: AWS profile name (for local development)
	Profile string

	// Optional: Custom endpoint (for LocalStack testing)
	Endpoint string

	CacheTTL    time.Duration
	EnableCache bool
}

// DefaultAWSSecretsManagerConfig returns default configuration
func DefaultAWSSecretsManagerConfig(region string) *AWSSecretsManagerConfig {
	return &AWSSecretsManagerConfig{
		Region:      region,
		CacheTTL:    5 * time.Minute,
		EnableCache: true,
	}
}

type secretValueGetter interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// awsSecretsManager implements ports.SecretStore for AWS Secrets Manager
type awsSecretsManager struct {
	client secretValueGetter
	logger ports.Logger
	cache  *secretCache
}

// NewAWSSecretsManager creates a new AWS Secrets Manager store
func NewAWSSecretsManager(ctx context.Context, cfg *AWSSecretsManagerConfig, logger ports.Logger) (ports.SecretStore, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.Profile != "" {
		// Use specific profile (local development)
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var clientOptions []func(*secretsmanager.Options)
	if cfg.Endpoint != "" {
		clientOptions = append(clientOptions, func(o *secretsmanager.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	logger.Info("AWS Secrets Manager initialized",
		ports.String("region", cfg.Region),
		ports.Bool("cache_enabled", cfg.EnableCache),
	)

	return newAWSSecretsManager(secretsmanager.NewFromConfig(awsConfig, clientOptions...), cfg, logger), nil
}

func newAWSSecretsManager(client secretValueGetter, cfg *AWSSecretsManagerConfig, logger ports.Logger) *awsSecretsManager {
	return &awsSecretsManager{
		client: client,
		logger: logger,
		cache:  newSecretCache(cfg.EnableCache, cfg.CacheTTL),
	}
}

// GetSecret retrieves a secret by name or ARN
func (a *awsSecretsManager) GetSecret(ctx context.Context, name string) (string, error) {
	if cached, ok := a.cache.get(name); ok {
		return cached, nil
	}

	startTime := time.Now()
	result, err := a.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		a.logger.Error("Failed to retrieve secret",
			ports.String("name", name),
			ports.Err(err),
		)
		return "", fmt.Errorf("failed to get secret %s: %w", name, err)
	}

	a.logger.Debug("Secret retrieved",
		ports.String("name", name),
		ports.String("version", aws.ToString(result.VersionId)),
		ports.Duration("elapsed", time.Since(startTime)),
	)

	value := aws.ToString(result.SecretString)
	a.cache.set(name, value)
	return value, nil
}
