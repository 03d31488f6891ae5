package handler

import (
	"net/http"
	"time"

	"merchant-wallet-ledger/internal/adapter/http/middleware"
	"merchant-wallet-ledger/internal/core/domain"
	"merchant-wallet-ledger/internal/core/ports"
	"merchant-wallet-ledger/pkg/clock"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	AuthSvc        ports.AuthService
	WalletSvc      ports.WalletService
	PINSvc         ports.PINService
	WithdrawalSvc  ports.WithdrawalService
	KYCSvc         ports.KYCService
	BeneficiarySvc ports.BeneficiaryService
	WebhookSvc     ports.WebhookService
	LockSvc        ports.LockService
	ReconSvc       ports.ReconciliationService
	MonitoringSvc  ports.MonitoringService
	ExportSvc      ports.ExportService
	TokenSvc       ports.TokenService
	SigSvc         ports.SignatureService
	WebhookSecret  string
	RateLimiter    ports.RateLimiter      // nil = rate limiting disabled
	AuditSvc       ports.AuditService     // nil = HTTP audit trail disabled
	SlowPaths      ports.SlowPathRecorder // nil = slow paths not recorded
	Metrics        ports.MetricsRecorder
	SlowThreshold  time.Duration
	MetricsHandler http.Handler // served at /metrics when set
	HealthCheckers []ports.HealthChecker
	Clock          clock.Clock
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}

	// Global middleware
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.SlowPath(deps.SlowPaths, deps.Metrics, deps.SlowThreshold))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	r.GET("/health", HealthCheck(deps.HealthCheckers...))
	if deps.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(deps.MetricsHandler))
	}

	rules := middleware.DefaultRateLimitRules()
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimiter == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimiter, group, rule, deps.Logger)
	}

	v1 := r.Group("/api/v1")

	// --- Public routes ---
	authHandler := NewAuthHandler(deps.AuthSvc)
	auth := v1.Group("/auth")
	{
		auth.POST("/register", rl("auth_register"), authHandler.Register)
		auth.POST("/login", rl("auth_login"), authHandler.Login)
	}

	// --- Provider webhooks (signature-authenticated) ---
	webhookHandler := NewWebhookHandler(deps.WebhookSvc)
	v1.POST("/webhooks/:provider",
		rl("webhooks"),
		middleware.ProviderSignature(deps.WebhookSecret, deps.SigSvc, deps.Logger),
		webhookHandler.Receive,
	)

	// --- Merchant routes (JWT with store) ---
	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)
	merchant := v1.Group("", jwtAuth, middleware.RequireStore())

	walletHandler := NewWalletHandler(deps.WalletSvc, deps.PINSvc, deps.Clock)
	wallet := merchant.Group("/wallet")
	{
		wallet.GET("", rl("wallet"), walletHandler.GetWallet)
		wallet.GET("/ledger", rl("wallet"), walletHandler.ListLedger)
		wallet.POST("/pin", rl("wallet_pin"), walletHandler.SetPIN)
		wallet.PUT("/pin", rl("wallet_pin"), walletHandler.ChangePIN)
	}

	withdrawalHandler := NewWithdrawalHandler(deps.WithdrawalSvc)
	withdrawals := merchant.Group("/withdrawals", rl("withdrawals"))
	{
		withdrawals.POST("", withdrawalHandler.Initiate)
		withdrawals.GET("", withdrawalHandler.List)
		withdrawals.GET("/:id", withdrawalHandler.Get)
		withdrawals.POST("/:id/confirm", withdrawalHandler.Confirm)
		withdrawals.POST("/:id/cancel", withdrawalHandler.Cancel)
	}

	kycHandler := NewKYCHandler(deps.KYCSvc)
	kyc := merchant.Group("/kyc", rl("kyc"))
	{
		kyc.POST("", kycHandler.Submit)
		kyc.GET("", kycHandler.GetLatest)
	}

	beneficiaryHandler := NewBeneficiaryHandler(deps.BeneficiarySvc)
	beneficiaries := merchant.Group("/beneficiaries", rl("beneficiaries"))
	{
		beneficiaries.POST("", beneficiaryHandler.Add)
		beneficiaries.GET("", beneficiaryHandler.List)
		beneficiaries.DELETE("/:id", beneficiaryHandler.Deactivate)
	}

	// --- Operator routes (JWT with ops role) ---
	opsChain := []gin.HandlerFunc{jwtAuth, middleware.RequireRole(domain.RoleOps), rl("ops")}
	if deps.AuditSvc != nil {
		opsChain = append(opsChain, middleware.AuditLog(deps.AuditSvc))
	}
	ops := v1.Group("/ops", opsChain...)

	opsHandler := NewOpsHandler(deps.LockSvc, deps.WithdrawalSvc, deps.ReconSvc, deps.MonitoringSvc)
	{
		ops.POST("/locks/:kind/:id", opsHandler.AcquireLock)
		ops.DELETE("/locks/:kind/:id", opsHandler.ReleaseLock)
		ops.POST("/withdrawals/:id/resolve", opsHandler.ResolveWithdrawal)
		ops.POST("/reconciliation/run", opsHandler.RunReconciliation)
		ops.GET("/reconciliation/incidents", opsHandler.ListIncidents)
		ops.GET("/stuck-ops", opsHandler.StuckOps)
		ops.POST("/stuck-ops/log", opsHandler.LogStuckOps)
		ops.GET("/metrics", opsHandler.Metrics)
		ops.GET("/metrics/slow-paths", opsHandler.SlowPaths)
	}

	opsKYC := ops.Group("/kyc")
	{
		opsKYC.GET("/pending", kycHandler.ListPending)
		opsKYC.POST("/:id/review", kycHandler.Review)
	}

	exportHandler := NewExportHandler(deps.ExportSvc)
	exports := ops.Group("/exports")
	{
		exports.POST("", exportHandler.Create)
		exports.GET("/:id", exportHandler.Get)
		exports.GET("/:id/download", exportHandler.Download)
		exports.POST("/:id/regenerate", exportHandler.Regenerate)
		exports.POST("/:id/expire", exportHandler.Expire)
	}

	return r
}
