package config

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kevin07696/voucher-ledger/internal/domain/ports"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Storage drivers
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// Config holds all application configuration
type Config struct {
	Environment string           `yaml:"environment"`
	Server      ServerConfig     `yaml:"server"`
	Storage     string           `yaml:"storage"`
	Database    DatabaseConfig   `yaml:"database"`
	Redis       RedisConfig      `yaml:"redis"`
	Kafka       KafkaConfig      `yaml:"kafka"`
	Gateway     GatewayConfig    `yaml:"gateway"`
	Secrets     SecretsConfig    `yaml:"secrets"`
	Jobs        JobsConfig       `yaml:"jobs"`
	Redemption  RedemptionConfig `yaml:"redemption"`
	Cron        CronConfig       `yaml:"cron"`
	Logger      LoggerConfig     `yaml:"logger"`
}

// ServerConfig holds listener ports
type ServerConfig struct {
	GRPCPort    int `yaml:"grpc_port"`
	HTTPPort    int `yaml:"http_port"`
	MetricsPort int `yaml:"metrics_port"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host           string `yaml:"host"`
	User           string `yaml:"user"`
	Password       string `yaml:"password"`
	PasswordSecret string `yaml:"password_secret"` // secret name; overrides Password when set
	Name           string `yaml:"name"`
	SSLMode        string `yaml:"ssl_mode"`
	Port           int    `yaml:"port"`
	MaxConns       int32  `yaml:"max_conns"`
	MinConns       int32  `yaml:"min_conns"`

	// LockTimeout bounds row-lock waits; zero waits indefinitely
	LockTimeout         time.Duration `yaml:"lock_timeout"`
	PoolMonitorInterval time.Duration `yaml:"pool_monitor_interval"`
}

// RedisConfig enables the shared read cache when Addr is set
type RedisConfig struct {
	Addr           string `yaml:"addr"`
	Password       string `yaml:"password"`
	PasswordSecret string `yaml:"password_secret"`
	KeyPrefix      string `yaml:"key_prefix"`
	DB             int    `yaml:"db"`
	PoolSize       int    `yaml:"pool_size"`
}

// KafkaConfig enables event publication to Kafka when Brokers is non-empty
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// GatewayConfig holds the payment gateway status API used for reconciliation
type GatewayConfig struct {
	BaseURL      string        `yaml:"base_url"`
	APIKey       string        `yaml:"api_key"`
	APIKeySecret string        `yaml:"api_key_secret"`
	Timeout      time.Duration `yaml:"timeout"`
}

// SecretsConfig selects the secret backend: "", local, aws or vault
type SecretsConfig struct {
	Provider   string        `yaml:"provider"`
	LocalPath  string        `yaml:"local_path"`
	AWSRegion  string        `yaml:"aws_region"`
	VaultAddr  string        `yaml:"vault_addr"`
	VaultToken string        `yaml:"vault_token"`
	VaultMount string        `yaml:"vault_mount"`
	CacheTTL   time.Duration `yaml:"cache_ttl"`
}

// JobsConfig drives the in-process scheduler
type JobsConfig struct {
	Enabled              bool          `yaml:"enabled"`
	ExpireInterval       time.Duration `yaml:"expire_interval"`
	ReconcileInterval    time.Duration `yaml:"reconcile_interval"`
	ReconcileAfter       time.Duration `yaml:"reconcile_after"` // PENDING age before a gateway re-query
	ResumeInterval       time.Duration `yaml:"resume_interval"`
	ResumeAfter          time.Duration `yaml:"resume_after"` // saga age before forward recovery
	OutboxInterval       time.Duration `yaml:"outbox_interval"`
	OutboxBatch          int           `yaml:"outbox_batch"`
	SettlementInterval   time.Duration `yaml:"settlement_interval"`
	SettlementCadence    time.Duration `yaml:"settlement_cadence"`
	SettlementMaxWorkers int           `yaml:"settlement_max_workers"`
}

// RedemptionConfig tunes voucher redemption
type RedemptionConfig struct {
	FeeRate       string `yaml:"fee_rate"` // decimal share kept as merchant fee, e.g. "0.025"
	ScreeningRule string `yaml:"screening_rule"`
}

// CronConfig protects the HTTP job triggers
type CronConfig struct {
	Secret     string  `yaml:"secret"`
	SecretName string  `yaml:"secret_name"`
	RatePerSec float64 `yaml:"rate_per_sec"`
	RateBurst  int     `yaml:"rate_burst"`
}

// LoggerConfig holds logging configuration
type LoggerConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// Default returns a configuration that runs entirely in memory
func Default() *Config {
	return &Config{
		Environment: "development",
		Storage:     StorageMemory,
		Server: ServerConfig{
			GRPCPort:    50051,
			HTTPPort:    8081,
			MetricsPort: 9090,
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			Name:     "voucher_ledger",
			SSLMode:  "disable",
			MaxConns: 25,
			MinConns: 5,

			LockTimeout:         3 * time.Second,
			PoolMonitorInterval: time.Minute,
		},
		Redis: RedisConfig{KeyPrefix: "vl:", PoolSize: 10},
		Kafka: KafkaConfig{Topic: "voucher-ledger.events"},
		Gateway: GatewayConfig{
			Timeout: 5 * time.Second,
		},
		Secrets: SecretsConfig{
			VaultMount: "secret",
			CacheTTL:   5 * time.Minute,
		},
		Jobs: JobsConfig{
			Enabled:              true,
			ExpireInterval:       time.Minute,
			ReconcileInterval:    5 * time.Minute,
			ReconcileAfter:       15 * time.Minute,
			ResumeInterval:       time.Minute,
			ResumeAfter:          time.Minute,
			OutboxInterval:       2 * time.Second,
			OutboxBatch:          100,
			SettlementInterval:   time.Hour,
			SettlementCadence:    24 * time.Hour,
			SettlementMaxWorkers: 8,
		},
		Redemption: RedemptionConfig{FeeRate: "0"},
		Cron: CronConfig{
			RatePerSec: 10,
			RateBurst:  20,
		},
		Logger: LoggerConfig{Level: "info"},
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// CONFIG_FILE when set, then environment variables.
func Load() (*Config, error) {
	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides settings from environment variables
func (c *Config) ApplyEnv() error {
	var errs []string
	setString(&c.Environment, "ENVIRONMENT")
	setString(&c.Storage, "STORAGE")
	setInt(&c.Server.GRPCPort, "GRPC_PORT", &errs)
	setInt(&c.Server.HTTPPort, "HTTP_PORT", &errs)
	setInt(&c.Server.MetricsPort, "METRICS_PORT", &errs)

	setString(&c.Database.Host, "DB_HOST")
	setInt(&c.Database.Port, "DB_PORT", &errs)
	setString(&c.Database.User, "DB_USER")
	setString(&c.Database.Password, "DB_PASSWORD")
	setString(&c.Database.PasswordSecret, "DB_PASSWORD_SECRET")
	setString(&c.Database.Name, "DB_NAME")
	setString(&c.Database.SSLMode, "DB_SSL_MODE")
	setDuration(&c.Database.LockTimeout, "DB_LOCK_TIMEOUT", &errs)
	setDuration(&c.Database.PoolMonitorInterval, "DB_POOL_MONITOR_INTERVAL", &errs)

	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Redis.Password, "REDIS_PASSWORD")
	setString(&c.Redis.PasswordSecret, "REDIS_PASSWORD_SECRET")
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	setString(&c.Kafka.Topic, "KAFKA_TOPIC")

	setString(&c.Gateway.BaseURL, "GATEWAY_BASE_URL")
	setString(&c.Gateway.APIKey, "GATEWAY_API_KEY")
	setString(&c.Gateway.APIKeySecret, "GATEWAY_API_KEY_SECRET")
	setDuration(&c.Gateway.Timeout, "GATEWAY_TIMEOUT", &errs)

	setString(&c.Secrets.Provider, "SECRETS_PROVIDER")
	setString(&c.Secrets.LocalPath, "SECRETS_LOCAL_PATH")
	setString(&c.Secrets.AWSRegion, "AWS_REGION")
	setString(&c.Secrets.VaultAddr, "VAULT_ADDR")
	setString(&c.Secrets.VaultToken, "VAULT_TOKEN")

	setBool(&c.Jobs.Enabled, "JOBS_ENABLED", &errs)
	setDuration(&c.Jobs.SettlementCadence, "SETTLEMENT_CADENCE", &errs)
	setString(&c.Redemption.FeeRate, "REDEMPTION_FEE_RATE")
	setString(&c.Redemption.ScreeningRule, "REDEMPTION_SCREENING_RULE")

	setString(&c.Cron.Secret, "CRON_SECRET")
	setString(&c.Cron.SecretName, "CRON_SECRET_NAME")
	setString(&c.Logger.Level, "LOG_LEVEL")

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Validate checks the settings that cannot be defaulted
func (c *Config) Validate() error {
	switch c.Storage {
	case StorageMemory:
	case StoragePostgres:
		if c.Database.Password == "" && c.Database.PasswordSecret == "" {
			return fmt.Errorf("DB_PASSWORD or DB_PASSWORD_SECRET is required for postgres storage")
		}
	default:
		return fmt.Errorf("unknown storage %q, want %s or %s", c.Storage, StorageMemory, StoragePostgres)
	}

	if _, err := c.FeeRate(); err != nil {
		return err
	}
	if c.Jobs.SettlementCadence <= 0 {
		return fmt.Errorf("settlement cadence must be positive")
	}
	if c.Environment == "production" && c.Cron.Secret == "" && c.Cron.SecretName == "" {
		return fmt.Errorf("CRON_SECRET or CRON_SECRET_NAME is required in production")
	}
	return nil
}

// FeeRate parses the redemption fee rate, which must lie in [0, 1)
func (c *Config) FeeRate() (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(strings.TrimSpace(c.Redemption.FeeRate))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid redemption fee rate %q: %w", c.Redemption.FeeRate, err)
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return decimal.Zero, fmt.Errorf("redemption fee rate %s must be in [0, 1)", rate)
	}
	return rate, nil
}

// ResolveSecrets replaces values whose *_secret reference is set with the
// secret from store. A nil store leaves the plain values untouched.
func (c *Config) ResolveSecrets(ctx context.Context, store ports.SecretStore) error {
	if store == nil {
		return nil
	}
	refs := []struct {
		name   string
		target *string
	}{
		{c.Database.PasswordSecret, &c.Database.Password},
		{c.Redis.PasswordSecret, &c.Redis.Password},
		{c.Gateway.APIKeySecret, &c.Gateway.APIKey},
		{c.Cron.SecretName, &c.Cron.Secret},
	}
	for _, ref := range refs {
		if ref.name == "" {
			continue
		}
		value, err := store.GetSecret(ctx, ref.name)
		if err != nil {
			return fmt.Errorf("resolve secret %s: %w", ref.name, err)
		}
		*ref.target = value
	}
	return nil
}

// ConnectionString returns the PostgreSQL URL
func (c *DatabaseConfig) ConnectionString() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Name,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}

// Helper functions

func setString(dst *string, key string) {
	if value := os.Getenv(key); value != "" {
		*dst = value
	}
}

func setInt(dst *int, key string, errs *[]string) {
	value := os.Getenv(key)
	if value == "" {
		return
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: %v", key, err))
		return
	}
	*dst = n
}

func setBool(dst *bool, key string, errs *[]string) {
	value := os.Getenv(key)
	if value == "" {
		return
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: %v", key, err))
		return
	}
	*dst = b
}

func setDuration(dst *time.Duration, key string, errs *[]string) {
	value := os.Getenv(key)
	if value == "" {
		return
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: %v", key, err))
		return
	}
	*dst = d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
