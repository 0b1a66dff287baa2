package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kevin07696/billing-service/internal/adapters/postgres"
	"github.com/kevin07696/billing-service/internal/adapters/secrets"
	"github.com/kevin07696/billing-service/internal/adapters/tilled"
	"github.com/kevin07696/billing-service/internal/config"
	"github.com/kevin07696/billing-service/internal/domain/ports"
	"github.com/kevin07696/billing-service/internal/handlers/rest"
	"github.com/kevin07696/billing-service/internal/middleware"
	chargeService "github.com/kevin07696/billing-service/internal/services/charge"
	customerService "github.com/kevin07696/billing-service/internal/services/customer"
	idempotencyService "github.com/kevin07696/billing-service/internal/services/idempotency"
	invoiceService "github.com/kevin07696/billing-service/internal/services/invoice"
	paymentmethodService "github.com/kevin07696/billing-service/internal/services/paymentmethod"
	refundService "github.com/kevin07696/billing-service/internal/services/refund"
	stateService "github.com/kevin07696/billing-service/internal/services/state"
	subscriptionService "github.com/kevin07696/billing-service/internal/services/subscription"
	webhookService "github.com/kevin07696/billing-service/internal/services/webhook"
	"github.com/kevin07696/billing-service/pkg/observability"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)
	defer logger.Sync()

	logger.Info("Starting billing service",
		zap.String("version", "0.1.0"),
		zap.Bool("psp_sandbox", cfg.PSP.Sandbox),
	)

	dbPool, err := initDatabase(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbPool.Close()

	logger.Info("Database connection established")

	credentials, err := initCredentialSource(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize credential source", zap.Error(err))
	}
	logger.Info("Credential source ready",
		zap.String("backend", cfg.Secrets.Backend),
		zap.Int("apps", len(credentials.Apps())),
	)

	router, rateLimiter, healthChecker := initDependencies(dbPool, cfg, credentials, logger)
	defer rateLimiter.Shutdown()

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", zap.Int("port", cfg.Server.Port))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to serve HTTP", zap.Error(err))
		}
	}()

	metricsServer := observability.StartMetricsServer(fmt.Sprintf("%d", cfg.Server.MetricsPort), healthChecker)
	logger.Info("Metrics server listening", zap.Int("port", cfg.Server.MetricsPort))

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down servers...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}
	if err := observability.ShutdownMetricsServer(metricsServer); err != nil {
		logger.Error("Metrics server shutdown error", zap.Error(err))
	}

	logger.Info("Servers stopped")
}

// initLogger initializes the logger
func initLogger(cfg *config.Config) *zap.Logger {
	level := zapcore.InfoLevel
	if parsed, err := zapcore.ParseLevel(cfg.Logger.Level); err == nil {
		level = parsed
	}

	if cfg.Logger.Production {
		zapCfg := zap.NewProductionConfig()
		zapCfg.Level = zap.NewAtomicLevelAt(level)
		logger, _ := zapCfg.Build()
		return logger
	}

	zapCfg := zap.NewDevelopmentConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	logger, _ := zapCfg.Build()
	return logger
}

// initDatabase initializes the PostgreSQL connection pool
func initDatabase(cfg *config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}

	poolConfig.MaxConns = cfg.Database.MaxConns
	poolConfig.MinConns = cfg.Database.MinConns

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// initCredentialSource selects the per-app PSP credential backend
func initCredentialSource(ctx context.Context, cfg *config.Config, logger *zap.Logger) (ports.CredentialSource, error) {
	switch cfg.Secrets.Backend {
	case "aws":
		awsCfg := secrets.DefaultAWSSecretsManagerConfig(cfg.Secrets.AWS.Region)
		awsCfg.Profile = cfg.Secrets.AWS.Profile
		awsCfg.Endpoint = cfg.Secrets.AWS.Endpoint
		manager, err := secrets.NewAWSSecretsManager(ctx, awsCfg, logger)
		if err != nil {
			return nil, err
		}
		return secrets.NewSecretCredentialSource(manager, cfg.Secrets.Apps), nil
	case "vault":
		vaultCfg := secrets.DefaultVaultConfig(cfg.Secrets.Vault.Address)
		vaultCfg.Token = cfg.Secrets.Vault.Token
		vaultCfg.RoleID = cfg.Secrets.Vault.RoleID
		vaultCfg.SecretID = cfg.Secrets.Vault.SecretID
		vaultCfg.MountPath = cfg.Secrets.Vault.MountPath
		vaultCfg.KVVersion = fmt.Sprintf("v%d", cfg.Secrets.Vault.KVVersion)
		if vaultCfg.Token == "" && vaultCfg.RoleID != "" {
			vaultCfg.AuthMethod = "approle"
		}
		manager, err := secrets.NewVaultSecretManager(vaultCfg, logger)
		if err != nil {
			return nil, err
		}
		return secrets.NewSecretCredentialSource(manager, cfg.Secrets.Apps), nil
	default:
		return secrets.NewEnvCredentialSource(), nil
	}
}

// initDependencies wires all repositories, services, and handlers
func initDependencies(dbPool *pgxpool.Pool, cfg *config.Config, credentials ports.CredentialSource, logger *zap.Logger) (http.Handler, *middleware.RateLimiter, *observability.HealthChecker) {
	db := postgres.NewDBExecutor(dbPool)

	customerRepo := postgres.NewCustomerRepository(db)
	paymentMethodRepo := postgres.NewPaymentMethodRepository(db)
	subscriptionRepo := postgres.NewSubscriptionRepository(db)
	chargeRepo := postgres.NewChargeRepository(db)
	refundRepo := postgres.NewRefundRepository(db)
	disputeRepo := postgres.NewDisputeRepository(db)
	webhookRepo := postgres.NewWebhookRepository(db)
	idempotencyRepo := postgres.NewIdempotencyRepository(db)
	couponRepo := postgres.NewCouponRepository(db)
	taxRateRepo := postgres.NewTaxRateRepository(db)
	auditRepo := postgres.NewAuditRepository(db)

	baseURL := tilled.DefaultBaseURL
	if cfg.PSP.Sandbox {
		baseURL = tilled.SandboxBaseURL
	}
	httpClient := &http.Client{Timeout: time.Duration(cfg.PSP.TimeoutSec) * time.Second}
	pspClient := tilled.NewClient(baseURL, httpClient, credentials, logger, cfg.PSP.MaxInflight)
	gateway := tilled.NewGateway(pspClient)
	verifier := tilled.NewVerifier(credentials, cfg.Webhook.TimestampTolerance)

	customerSvc := customerService.NewService(db, customerRepo, paymentMethodRepo, gateway, logger)
	paymentMethodSvc := paymentmethodService.NewService(db, customerRepo, paymentMethodRepo, gateway, logger)
	subscriptionSvc := subscriptionService.NewService(db, customerRepo, subscriptionRepo, auditRepo, gateway, logger)
	chargeSvc := chargeService.NewService(customerRepo, chargeRepo, gateway, logger)
	refundSvc := refundService.NewService(chargeRepo, refundRepo, gateway, logger)
	invoiceSvc := invoiceService.NewService(db, customerRepo, couponRepo, taxRateRepo, auditRepo, logger)
	stateSvc := stateService.NewService(customerRepo, subscriptionRepo, paymentMethodRepo, cfg.Entitlements, logger)
	idempotencySvc := idempotencyService.NewService(idempotencyRepo, logger, cfg.Idempotency.TTL)
	webhookSvc := webhookService.NewService(
		db,
		webhookRepo,
		verifier,
		customerRepo,
		customerSvc,
		subscriptionRepo,
		chargeRepo,
		refundRepo,
		disputeRepo,
		paymentMethodRepo,
		logger,
	)

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	errorMapper := middleware.NewErrorMapper(cfg.Logger.Production, logger)
	healthChecker := observability.NewHealthChecker(dbPool, credentials)

	router := rest.NewRouter(rest.RouterConfig{
		Customers:      rest.NewCustomerHandler(customerSvc),
		PaymentMethods: rest.NewPaymentMethodHandler(paymentMethodSvc),
		Subscriptions:  rest.NewSubscriptionHandler(subscriptionSvc),
		Charges:        rest.NewChargeHandler(chargeSvc, refundSvc),
		Invoices:       rest.NewInvoiceHandler(invoiceSvc),
		Webhooks:       rest.NewWebhookHandler(webhookSvc),
		State:          rest.NewStateHandler(stateSvc),
		Health:         healthChecker,
		Idempotency:    idempotencySvc,
		RateLimiter:    rateLimiter,
		ErrorMapper:    errorMapper,
		Logger:         logger,
	})

	return router, rateLimiter, healthChecker
}
