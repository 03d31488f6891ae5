package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"merchant-wallet-ledger/config"
	httpHandler "merchant-wallet-ledger/internal/adapter/http/handler"
	"merchant-wallet-ledger/internal/adapter/metrics"
	"merchant-wallet-ledger/internal/adapter/provider"
	pgStorage "merchant-wallet-ledger/internal/adapter/storage/postgres"
	"merchant-wallet-ledger/internal/adapter/storage/postgres/migrations"
	redisStorage "merchant-wallet-ledger/internal/adapter/storage/redis"
	"merchant-wallet-ledger/internal/core/ports"
	"merchant-wallet-ledger/internal/service"
	"merchant-wallet-ledger/internal/worker"
	"merchant-wallet-ledger/pkg/clock"
	"merchant-wallet-ledger/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Load configuration
	cfg, err := config.Load(os.Getenv("MWL_CONFIG_FILE"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Str("provider_mode", cfg.Provider.Mode).
		Msg("Starting Merchant Wallet Ledger")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize PostgreSQL pool
	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	if err := pgStorage.ApplyMigrations(ctx, pool, migrations.FS); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply migrations")
	}

	// Initialize Redis client
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.New(reg)
	slowPaths := metrics.NewSlowPathBuffer(cfg.Metrics.SlowPathCapacity)

	// Initialize repositories
	transactor := pgStorage.NewTransactor(pool)
	storeRepo := pgStorage.NewStoreRepo(pool)
	userRepo := pgStorage.NewUserRepo(pool)
	walletRepo := pgStorage.NewWalletRepo(pool)
	ledgerRepo := pgStorage.NewLedgerRepo(pool)
	orderRepo := pgStorage.NewOrderRepo(pool)
	paymentRepo := pgStorage.NewPaymentTransactionRepo(pool)
	eventRepo := pgStorage.NewWebhookEventRepo(pool)
	withdrawalRepo := pgStorage.NewWithdrawalRepo(pool)
	lockRepo := pgStorage.NewLockRepo(pool)
	kycRepo := pgStorage.NewKYCRepo(pool)
	beneficiaryRepo := pgStorage.NewBeneficiaryRepo(pool)
	exportRepo := pgStorage.NewExportRepo(pool)
	incidentRepo := pgStorage.NewIncidentRepo(pool)
	monitoringRepo := pgStorage.NewMonitoringRepo(pool)
	auditRepo := pgStorage.NewAuditRepo(pool)

	// Initialize Redis stores
	processedCache := redisStorage.NewProcessedEventCache(rdb)
	deliveryQueue := redisStorage.NewDeliveryQueue(rdb, cfg.Delivery.DedupeTTL)
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)

	// Initialize core services
	clk := clock.Real{}
	encSvc, err := service.NewAESEncryptionService(cfg.AES.Key)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize encryption service")
	}
	sigSvc := service.NewHMACSignatureService()
	hashSvc := service.NewArgon2HashService()
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
	notifier := service.NewNotifier(cfg.Notification, &http.Client{Timeout: cfg.Notification.Timeout}, log)
	payouts := provider.New(cfg.Provider, log)

	// Initialize business services
	auditSvc := service.NewAuditService(auditRepo, clk, log)
	lockSvc := service.NewLockService(lockRepo, auditSvc, recorder, clk, cfg.Lock.Timeout, log)
	pinSvc := service.NewPINService(walletRepo, hashSvc, service.PINPolicy{
		MaxAttempts: cfg.Withdrawal.MaxPINAttempts,
		Lockout:     cfg.Withdrawal.PINLockout,
	}, clk, log)
	authSvc := service.NewAuthService(transactor, storeRepo, userRepo, hashSvc, tokenSvc, auditSvc, clk, log)
	walletSvc := service.NewWalletService(walletRepo, ledgerRepo)
	kycSvc := service.NewKYCService(transactor, kycRepo, walletRepo, encSvc, auditSvc, clk, log)
	beneficiarySvc := service.NewBeneficiaryService(beneficiaryRepo, encSvc, clk)

	withdrawalSvc := service.NewWithdrawalService(service.WithdrawalDeps{
		TxManager:     transactor,
		Withdrawals:   withdrawalRepo,
		Wallets:       walletRepo,
		Ledger:        ledgerRepo,
		Beneficiaries: beneficiaryRepo,
		Stores:        storeRepo,
		PIN:           pinSvc,
		Encryption:    encSvc,
		Provider:      payouts,
		Notifier:      notifier,
		RateLimiter:   rateLimitStore,
		Locks:         lockSvc,
		Audit:         auditSvc,
		Metrics:       recorder,
		Clock:         clk,
	}, service.WithdrawalConfig{
		OTPTTL:         cfg.Withdrawal.OTPTTL,
		OTPMaxAttempts: cfg.Withdrawal.OTPMaxAttempts,
	}, log)

	webhookSvc := service.NewWebhookService(service.WebhookDeps{
		TxManager:   transactor,
		Events:      eventRepo,
		Orders:      orderRepo,
		Payments:    paymentRepo,
		Wallets:     walletRepo,
		Ledger:      ledgerRepo,
		Withdrawals: withdrawalSvc,
		Cache:       processedCache,
		Delivery:    deliveryQueue,
		Metrics:     recorder,
		Clock:       clk,
	}, service.WebhookConfig{
		MaxAttempts:  cfg.Jobs.WebhookMaxAttempts,
		ProcessedTTL: cfg.Delivery.DedupeTTL,
	}, log)

	reconSvc := service.NewReconciliationService(walletRepo, ledgerRepo, incidentRepo, notifier, recorder, clk, cfg.Notification.OpsRecipient, log)
	monitoringSvc := service.NewMonitoringService(monitoringRepo, reconSvc, slowPaths, notifier, auditSvc, recorder, clk,
		service.MonitoringConfig{OpsRecipient: cfg.Notification.OpsRecipient}, log)
	exportSvc := service.NewExportService(exportRepo, ledgerRepo, storeRepo, lockSvc, auditSvc, clk, log)

	// Initialize health checkers
	pgHealth := pgStorage.NewHealthCheck(pool)
	redisHealth := redisStorage.NewHealthCheck(rdb)

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		AuthSvc:        authSvc,
		WalletSvc:      walletSvc,
		PINSvc:         pinSvc,
		WithdrawalSvc:  withdrawalSvc,
		KYCSvc:         kycSvc,
		BeneficiarySvc: beneficiarySvc,
		WebhookSvc:     webhookSvc,
		LockSvc:        lockSvc,
		ReconSvc:       reconSvc,
		MonitoringSvc:  monitoringSvc,
		ExportSvc:      exportSvc,
		TokenSvc:       tokenSvc,
		SigSvc:         sigSvc,
		WebhookSecret:  cfg.Provider.WebhookSecret,
		RateLimiter:    rateLimitStore,
		AuditSvc:       auditSvc,
		SlowPaths:      slowPaths,
		Metrics:        recorder,
		SlowThreshold:  cfg.Metrics.SlowPathThreshold,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		HealthCheckers: []ports.HealthChecker{pgHealth, redisHealth},
		Clock:          clk,
		Logger:         log,
	})

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if cfg.Jobs.Enabled {
		scheduler := worker.NewScheduler(cfg.Jobs.RunTimeout, recorder, log)
		for _, job := range []worker.Job{
			worker.ReconciliationJob(reconSvc, cfg.Jobs.ReconciliationInterval),
			worker.StuckDetectionJob(monitoringSvc, cfg.Jobs.StuckDetectionInterval),
			worker.LockSweepJob(lockSvc, cfg.Jobs.LockSweepInterval, log),
			worker.WebhookRetryJob(webhookSvc, cfg.Jobs.WebhookRetryInterval, log),
		} {
			if err := scheduler.Register(job); err != nil {
				log.Fatal().Err(err).Msg("Failed to register background job")
			}
		}
		g.Go(func() error { return scheduler.Start(gctx) })
	} else {
		log.Warn().Msg("background jobs disabled")
	}

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server exited with error")
		return
	}
	log.Info().Msg("Server exited")
}
