package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/kevin07696/voucher-ledger/internal/adapters/database"
	"github.com/kevin07696/voucher-ledger/internal/adapters/gateway"
	"github.com/kevin07696/voucher-ledger/internal/adapters/kafka"
	"github.com/kevin07696/voucher-ledger/internal/adapters/memory"
	"github.com/kevin07696/voucher-ledger/internal/adapters/postgres"
	"github.com/kevin07696/voucher-ledger/internal/adapters/redis"
	"github.com/kevin07696/voucher-ledger/internal/adapters/secrets"
	"github.com/kevin07696/voucher-ledger/internal/config"
	"github.com/kevin07696/voucher-ledger/internal/domain/ports"
	cronHandler "github.com/kevin07696/voucher-ledger/internal/handlers/cron"
	"github.com/kevin07696/voucher-ledger/internal/scheduler"
	"github.com/kevin07696/voucher-ledger/internal/services/events"
	"github.com/kevin07696/voucher-ledger/internal/services/fraud"
	ledgerService "github.com/kevin07696/voucher-ledger/internal/services/ledger"
	settlementService "github.com/kevin07696/voucher-ledger/internal/services/settlement"
	transactionService "github.com/kevin07696/voucher-ledger/internal/services/transaction"
	voucherService "github.com/kevin07696/voucher-ledger/internal/services/voucher"
	pkghttp "github.com/kevin07696/voucher-ledger/pkg/http"
	"github.com/kevin07696/voucher-ledger/pkg/logging"
	"github.com/kevin07696/voucher-ledger/pkg/middleware"
	"github.com/kevin07696/voucher-ledger/pkg/observability"
	"github.com/kevin07696/voucher-ledger/pkg/resilience"
	"github.com/kevin07696/voucher-ledger/pkg/shutdown"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "voucher-ledger: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	zapLogger, err := logging.New(cfg.Environment, cfg.Logger.Level)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = zapLogger.Sync() }()
	logger := logging.NewZapLogger(zapLogger)

	logger.Info("Starting voucher ledger service",
		ports.String("environment", cfg.Environment),
		ports.String("storage", cfg.Storage),
	)

	ctx := context.Background()
	manager := shutdown.NewManager(logger, shutdownTimeout)

	secretStore, err := initSecrets(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if err := cfg.ResolveSecrets(ctx, secretStore); err != nil {
		return fmt.Errorf("resolve secrets: %w", err)
	}

	timeouts := resilience.DefaultTimeoutConfig()
	healthChecker := observability.NewHealthChecker(nil)

	repos, err := initStorage(ctx, cfg, zapLogger, healthChecker, manager)
	if err != nil {
		return err
	}

	cache, err := initCache(ctx, cfg, logger, healthChecker, manager)
	if err != nil {
		return err
	}

	var publisher ports.EventPublisher = memory.NewPublisher()
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaPublisher := kafka.NewPublisher(kafka.Config{Topic: cfg.Kafka.Topic, Brokers: cfg.Kafka.Brokers}, logger)
		manager.RegisterCloser("kafka", kafkaPublisher)
		publisher = kafkaPublisher
		logger.Info("Publishing events to Kafka", ports.String("topic", cfg.Kafka.Topic))
	}

	feeRate, err := cfg.FeeRate()
	if err != nil {
		return err
	}
	screener, err := fraud.NewCELScreener(cfg.Redemption.ScreeningRule, logger)
	if err != nil {
		return fmt.Errorf("compile screening rule: %w", err)
	}

	notifier := events.NewNotifier(repos.outbox)
	relay := events.NewRelay(repos.db, repos.outbox, publisher, timeouts, logger)

	ledger := ledgerService.NewService(repos.db, repos.accounts, repos.entries, logger,
		ledgerService.WithCache(cache),
	)
	transactions := transactionService.NewService(repos.db, repos.transactions, initGateway(cfg, logger), notifier, timeouts, logger)
	settlements := settlementService.NewService(repos.db, repos.settlements, repos.transactions, notifier, timeouts, logger,
		settlementService.WithConcurrency(cfg.Jobs.SettlementMaxWorkers),
	)
	vouchers := voucherService.NewService(repos.db, repos.templates, repos.vouchers, repos.redemptions,
		ledger, transactions, notifier, timeouts, logger,
		voucherService.WithCache(cache),
		voucherService.WithScreener(screener),
		voucherService.WithFeeRate(feeRate),
	)

	tasks := scheduler.Tasks{
		Vouchers:     vouchers,
		Transactions: transactions,
		Settlements:  settlements,
		Outbox:       relay,
		Config:       cfg.Jobs,
	}
	jobs := scheduler.New(tasks.Jobs(), timeouts, logger)

	// Metrics and health
	metricsServer := observability.StartMetricsServer(strconv.Itoa(cfg.Server.MetricsPort), healthChecker, logger)
	manager.Register("metrics-server", func(ctx context.Context) error {
		return observability.ShutdownMetricsServer(ctx, metricsServer)
	})

	// Cron HTTP endpoints
	rateLimiter := middleware.NewRateLimiter(cfg.Cron.RatePerSec, cfg.Cron.RateBurst, logger)
	manager.RegisterNoErr("rate-limiter", rateLimiter.Shutdown)

	inflight := shutdown.NewInFlightTracker("cron", logger)
	httpMux := http.NewServeMux()
	routes := cronHandler.NewHandler(jobs, settlements, cfg.Jobs.SettlementCadence, rateLimiter, inflight, logger, cfg.Cron.Secret).Register(httpMux)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           observability.HTTPMiddleware(routes, middleware.Timeout(timeouts, httpMux)),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		logger.Info("HTTP server listening", ports.Int("port", cfg.Server.HTTPPort))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", ports.Err(err))
		}
	}()
	manager.Register("cron-inflight", inflight.Shutdown)
	manager.Register("http-server", httpServer.Shutdown)

	// gRPC health and reflection
	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			observability.UnaryServerInterceptor(),
			middleware.LoggingInterceptor(logger),
			middleware.RecoveryInterceptor(logger),
			middleware.TimeoutInterceptor(timeouts),
		),
	)
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}
	go func() {
		logger.Info("gRPC server listening", ports.Int("port", cfg.Server.GRPCPort))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC server failed", ports.Err(err))
		}
	}()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	manager.Register("grpc-server", func(ctx context.Context) error {
		healthServer.Shutdown()
		stopped := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
			return nil
		case <-ctx.Done():
			grpcServer.Stop()
			return ctx.Err()
		}
	})

	// Background jobs stop first so nothing writes after the servers drain
	if cfg.Jobs.Enabled {
		jobs.Start()
		manager.Register("scheduler", jobs.Shutdown)
	}

	manager.WaitForShutdown(ctx)
	return nil
}

// repositories groups the storage backend behind the domain ports
type repositories struct {
	db           ports.TransactionManager
	templates    ports.TemplateRepository
	vouchers     ports.VoucherRepository
	redemptions  ports.RedemptionRepository
	accounts     ports.AccountRepository
	entries      ports.LedgerEntryRepository
	transactions ports.TransactionRepository
	settlements  ports.SettlementRepository
	outbox       ports.OutboxRepository
}

func initStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger, healthChecker *observability.HealthChecker, manager *shutdown.Manager) (*repositories, error) {
	if cfg.Storage == config.StorageMemory {
		logger.Warn("Using in-memory storage; data is lost on restart")
		store := memory.NewStore()
		return &repositories{
			db:           store,
			templates:    memory.NewTemplateRepository(store),
			vouchers:     memory.NewVoucherRepository(store),
			redemptions:  memory.NewRedemptionRepository(store),
			accounts:     memory.NewAccountRepository(store),
			entries:      memory.NewLedgerEntryRepository(store),
			transactions: memory.NewTransactionRepository(store),
			settlements:  memory.NewSettlementRepository(store),
			outbox:       memory.NewOutboxRepository(store),
		}, nil
	}

	dbCfg := database.DefaultPostgreSQLConfig(cfg.Database.ConnectionString())
	if cfg.Database.MaxConns > 0 {
		dbCfg.MaxConns = cfg.Database.MaxConns
	}
	if cfg.Database.MinConns > 0 {
		dbCfg.MinConns = cfg.Database.MinConns
	}
	dbCfg.LockTimeout = cfg.Database.LockTimeout
	adapter, err := database.NewPostgreSQLAdapter(ctx, dbCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	monitorCtx, stopMonitor := context.WithCancel(ctx)
	if cfg.Database.PoolMonitorInterval > 0 {
		adapter.StartPoolMonitoring(monitorCtx, cfg.Database.PoolMonitorInterval)
	}

	manager.RegisterNoErr("database", adapter.Close)
	manager.RegisterNoErr("pool-monitor", stopMonitor)
	healthChecker.AddCheck("database", adapter.HealthCheck)

	db := adapter.Executor()
	return &repositories{
		db:           db,
		templates:    postgres.NewTemplateRepository(db),
		vouchers:     postgres.NewVoucherRepository(db),
		redemptions:  postgres.NewRedemptionRepository(db),
		accounts:     postgres.NewAccountRepository(db),
		entries:      postgres.NewLedgerEntryRepository(db),
		transactions: postgres.NewTransactionRepository(db),
		settlements:  postgres.NewSettlementRepository(db),
		outbox:       postgres.NewOutboxRepository(db),
	}, nil
}

func initCache(ctx context.Context, cfg *config.Config, logger ports.Logger, healthChecker *observability.HealthChecker, manager *shutdown.Manager) (ports.Cache, error) {
	if cfg.Redis.Addr == "" {
		return memory.NewCache(10_000), nil
	}
	cache, err := redis.NewCache(ctx, redis.Config{
		Addr:      cfg.Redis.Addr,
		Password:  cfg.Redis.Password,
		KeyPrefix: cfg.Redis.KeyPrefix,
		DB:        cfg.Redis.DB,
		PoolSize:  cfg.Redis.PoolSize,
	})
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	manager.RegisterCloser("redis", cache)
	healthChecker.AddCheck("redis", cache.Ping)
	logger.Info("Using Redis read cache", ports.String("addr", cfg.Redis.Addr))
	return cache, nil
}

func initSecrets(ctx context.Context, cfg *config.Config, logger ports.Logger) (ports.SecretStore, error) {
	sc := secrets.Config{
		Provider:  secrets.Provider(cfg.Secrets.Provider),
		LocalPath: cfg.Secrets.LocalPath,
	}
	switch sc.Provider {
	case secrets.ProviderAWS:
		sc.AWS = secrets.DefaultAWSSecretsManagerConfig(cfg.Secrets.AWSRegion)
		if cfg.Secrets.CacheTTL > 0 {
			sc.AWS.CacheTTL = cfg.Secrets.CacheTTL
		}
	case secrets.ProviderVault:
		sc.Vault = secrets.DefaultVaultConfig(cfg.Secrets.VaultAddr)
		sc.Vault.Token = cfg.Secrets.VaultToken
		if cfg.Secrets.VaultMount != "" {
			sc.Vault.MountPath = cfg.Secrets.VaultMount
		}
		if cfg.Secrets.CacheTTL > 0 {
			sc.Vault.CacheTTL = cfg.Secrets.CacheTTL
		}
	}

	store, err := secrets.New(ctx, sc, logger)
	if err != nil {
		return nil, fmt.Errorf("init secret store: %w", err)
	}
	return store, nil
}

// initGateway returns nil when no gateway is configured; reconciliation then
// fails stale transactions closed
func initGateway(cfg *config.Config, logger ports.Logger) ports.GatewayStatusChecker {
	if cfg.Gateway.BaseURL == "" {
		logger.Warn("No payment gateway configured; stale transactions will be failed closed")
		return nil
	}
	gwCfg := gateway.DefaultStatusClientConfig(cfg.Gateway.BaseURL)
	gwCfg.APIKey = cfg.Gateway.APIKey
	if cfg.Gateway.Timeout > 0 {
		gwCfg.Timeout = cfg.Gateway.Timeout
	}
	httpClient := pkghttp.NewHTTPClient(pkghttp.GatewayClientConfig(), gwCfg.Timeout)
	return gateway.NewStatusClient(gwCfg, httpClient, logger)
}
