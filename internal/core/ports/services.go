package ports

import (
	"context"
	"time"

	"merchant-wallet-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// --- Infrastructure Ports ---

// EncryptionService protects identifiers at rest (AES-256-GCM) and derives
// deterministic fingerprints for duplicate detection.
type EncryptionService interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
	Fingerprint(plaintext string) string
}

// SignatureService handles HMAC-SHA512 signing and verification of provider payloads.
type SignatureService interface {
	Sign(secret string, payload []byte) string
	Verify(secret string, payload []byte, signature string) bool
}

// HashService handles password and PIN hashing (Argon2id).
type HashService interface {
	Hash(secret string) (string, error)
	Verify(secret string, hash string) (bool, error)
}

// TokenService handles JWT token operations.
type TokenService interface {
	Generate(user *domain.User) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	UserID  uuid.UUID
	StoreID *uuid.UUID
	Role    domain.Role
}

// ProcessedEventCache is the Redis fast path in front of the webhook guard.
type ProcessedEventCache interface {
	IsProcessed(ctx context.Context, provider, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, provider, eventID string, ttl time.Duration) error
}

// DeliveryScheduler enqueues post-settlement delivery jobs.
type DeliveryScheduler interface {
	// Enqueue returns true when the job was newly scheduled, false when the
	// order was already scheduled.
	Enqueue(ctx context.Context, orderID uuid.UUID) (bool, error)
}

// RateLimitResult holds the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	ResetAt   int64 // Unix timestamp
}

// RateLimiter is a fixed-window counter.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (*RateLimitResult, error)
}

// TransferStatus is the payout provider's verdict on a transfer request.
type TransferStatus string

const (
	TransferStatusSuccess TransferStatus = "SUCCESS"
	TransferStatusPending TransferStatus = "PENDING"
)

// TransferRequest is the outbound payout instruction.
type TransferRequest struct {
	Reference     string
	AmountKobo    int64
	Currency      string
	BankCode      string
	AccountNumber string
	AccountName   string
	Reason        string
}

// TransferResult is an accepted transfer.
type TransferResult struct {
	ProviderReference string
	Status            TransferStatus
}

// PayoutProvider sends money to a bank account. Any error means the transfer was not accepted.
type PayoutProvider interface {
	Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error)
	Name() string
}

// Notification is a message for the external notification channel.
type Notification struct {
	Channel   string         `json:"channel"`
	Recipient string         `json:"recipient"`
	Template  string         `json:"template"`
	Data      map[string]any `json:"data"`
	StoreID   string         `json:"storeId"`
}

// Notification templates.
const (
	TemplateWithdrawalOTP   = "withdrawal_otp"
	TemplateStuckOperations = "ops_stuck_operations"
	TemplateLedgerDrift     = "ops_ledger_drift"
)

// Notifier dispatches notifications fire-and-forget. Failures are only logged.
type Notifier interface {
	Dispatch(ctx context.Context, n Notification)
}

// --- Service Ports (Business Logic) ---

// WebhookOutcome says what the guard did with a delivery.
type WebhookOutcome string

const (
	WebhookOutcomeProcessed  WebhookOutcome = "processed"
	WebhookOutcomeDuplicate  WebhookOutcome = "duplicate"
	WebhookOutcomeInProgress WebhookOutcome = "in_progress"
	WebhookOutcomeIgnored    WebhookOutcome = "ignored"
)

// WebhookResult is returned to the provider-facing handler.
type WebhookResult struct {
	Outcome WebhookOutcome `json:"outcome"`
	EventID string         `json:"event_id"`
}

// WebhookService runs the idempotency guard and settlement for provider events.
type WebhookService interface {
	// HandleEvent processes a signature-verified raw body.
	HandleEvent(ctx context.Context, provider string, rawBody []byte) (*WebhookResult, error)
	// RetryFailed reprocesses due FAILED and stale RECEIVED events. Returns the count retried.
	RetryFailed(ctx context.Context) (int, error)
}

// ApplyTransferRequest resolves an in-flight payout.
type ApplyTransferRequest struct {
	ReferenceCode     string
	Succeeded         bool
	ProviderReference string
	Reason            string
}

// WithdrawalSettler settles PROCESSING withdrawals inside a caller-owned transaction.
type WithdrawalSettler interface {
	ApplyTransferOutcome(ctx context.Context, tx pgx.Tx, req ApplyTransferRequest) error
}

// PINService is the PIN half of the security gate.
type PINService interface {
	SetPIN(ctx context.Context, storeID uuid.UUID, pin string) error
	ChangePIN(ctx context.Context, storeID uuid.UUID, currentPIN, newPIN string) error
	// Verify enforces the lockout policy before comparing.
	Verify(ctx context.Context, storeID uuid.UUID, pin string) error
}

// InitiateWithdrawalRequest holds validated input for withdrawal initiation.
type InitiateWithdrawalRequest struct {
	StoreID       uuid.UUID
	PIN           string
	BankAccountID uuid.UUID
	AmountKobo    int64
}

// ResolveWithdrawalRequest is an operator decision on a stuck payout.
type ResolveWithdrawalRequest struct {
	WithdrawalID      uuid.UUID
	Actor             string
	Succeeded         bool
	ProviderReference string
	Reason            string
}

// WithdrawalService orchestrates the withdrawal state machine.
type WithdrawalService interface {
	WithdrawalSettler
	Initiate(ctx context.Context, req InitiateWithdrawalRequest) (*domain.Withdrawal, error)
	Confirm(ctx context.Context, storeID, withdrawalID uuid.UUID, otpCode string) (*domain.Withdrawal, error)
	Cancel(ctx context.Context, storeID, withdrawalID uuid.UUID) (*domain.Withdrawal, error)
	Get(ctx context.Context, storeID, withdrawalID uuid.UUID) (*domain.Withdrawal, error)
	List(ctx context.Context, storeID uuid.UUID, page, pageSize int) ([]domain.Withdrawal, int64, error)
	Resolve(ctx context.Context, req ResolveWithdrawalRequest) (*domain.Withdrawal, error)
}

// LockService is the operation lock manager.
type LockService interface {
	Acquire(ctx context.Context, kind domain.LockKind, id uuid.UUID, actor string) (*domain.LockHolder, error)
	Release(ctx context.Context, kind domain.LockKind, id uuid.UUID, actor string) error
	// Require fails unless actor holds a live lock on the resource.
	Require(ctx context.Context, kind domain.LockKind, id uuid.UUID, actor string) error
	// Sweep clears stale locks on every lockable table.
	Sweep(ctx context.Context) (int64, error)
}

// ReconciliationService compares wallets against the ledger.
type ReconciliationService interface {
	Run(ctx context.Context) (*domain.ReconciliationResult, error)
	Latest() *domain.ReconciliationResult
	ListIncidents(ctx context.Context, runID *uuid.UUID) ([]domain.ReconciliationIncident, error)
}

// SlowPath is one request that exceeded the slow threshold.
type SlowPath struct {
	Method     string        `json:"method"`
	Path       string        `json:"path"`
	Status     int           `json:"status"`
	Duration   time.Duration `json:"duration_ns"`
	ObservedAt time.Time     `json:"observed_at"`
}

// SlowPathRecorder receives slow requests from the HTTP layer.
type SlowPathRecorder interface {
	Record(p SlowPath)
	Snapshot() []SlowPath
}

// MetricsRecorder exports operational counters and gauges. Implementations
// must tolerate being called from any goroutine.
type MetricsRecorder interface {
	ObserveWebhook(outcome WebhookOutcome, err error)
	ObserveLockAcquire(kind domain.LockKind, result string)
	ObserveLocksSwept(kind domain.LockKind, n int64)
	ObserveWithdrawal(status domain.WithdrawalStatus)
	ObserveReconciliation(res *domain.ReconciliationResult, err error)
	ObserveStuckFindings(f *domain.StuckFindings)
	ObserveTimeToPaid(seconds *float64)
	ObserveJobRun(job string, d time.Duration, err error)
	ObserveRequest(method, route string, status int, d time.Duration)
}

// OpsMetrics is the read model behind the ops metrics API.
type OpsMetrics struct {
	ByStatus                map[domain.WithdrawalStatus]int64 `json:"by_status"`
	Findings                *domain.StuckFindings             `json:"findings"`
	AverageTimeToPaidSecond *float64                          `json:"average_time_to_paid_seconds"`
	Reconciliation          *domain.ReconciliationResult      `json:"reconciliation,omitempty"`
}

// MonitoringService is the stuck-operation detector and ops metrics reader.
type MonitoringService interface {
	Detect(ctx context.Context) (*domain.StuckFindings, error)
	// DetectAndAlert is the scheduled variant: it logs, exports gauges and notifies ops.
	DetectAndAlert(ctx context.Context) (*domain.StuckFindings, error)
	Metrics(ctx context.Context) (*OpsMetrics, error)
	// LogStuckOps appends one audit entry per finding. Returns the count.
	LogStuckOps(ctx context.Context, actor string) (int, error)
	SlowPaths() []SlowPath
}

// SubmitKYCRequest holds validated KYC input.
type SubmitKYCRequest struct {
	StoreID  uuid.UUID
	IDType   domain.IDType
	IDNumber string
	FullName string
	Actor    string
}

// ReviewKYCRequest holds an operator KYC decision.
type ReviewKYCRequest struct {
	RecordID uuid.UUID
	Decision domain.KYCDecision
	Reason   string
	Actor    string
}

// KYCService handles identity submissions and review.
type KYCService interface {
	Submit(ctx context.Context, req SubmitKYCRequest) (*domain.KycRecord, error)
	GetLatest(ctx context.Context, storeID uuid.UUID) (*domain.KycRecord, error)
	ListPending(ctx context.Context) ([]domain.KycRecord, error)
	Review(ctx context.Context, req ReviewKYCRequest) (*domain.KycRecord, error)
}

// AddBeneficiaryRequest holds validated beneficiary input.
type AddBeneficiaryRequest struct {
	StoreID       uuid.UUID
	BankCode      string
	AccountNumber string
	AccountName   string
}

// BeneficiaryService manages payout destinations.
type BeneficiaryService interface {
	Add(ctx context.Context, req AddBeneficiaryRequest) (*domain.BankBeneficiary, error)
	List(ctx context.Context, storeID uuid.UUID) ([]domain.BankBeneficiary, error)
	Deactivate(ctx context.Context, storeID, id uuid.UUID) error
}

// ExportService builds ledger CSV exports. Mutations of an existing job need the soft lock.
type ExportService interface {
	Create(ctx context.Context, storeID uuid.UUID, actor string) (*domain.ExportJob, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.ExportJob, error)
	Download(ctx context.Context, id uuid.UUID) (*domain.ExportJob, error)
	Regenerate(ctx context.Context, id uuid.UUID, actor string) (*domain.ExportJob, error)
	Expire(ctx context.Context, id uuid.UUID, actor string) (*domain.ExportJob, error)
}

// WalletService exposes balances and ledger history.
type WalletService interface {
	GetWallet(ctx context.Context, storeID uuid.UUID) (*domain.Wallet, error)
	ListLedger(ctx context.Context, storeID uuid.UUID, page, pageSize int) ([]domain.LedgerEntry, int64, error)
}

// AuditService records audit entries asynchronously.
type AuditService interface {
	Log(ctx context.Context, entry *domain.AuditEntry)
}

// RegisterRequest holds input for store registration.
type RegisterRequest struct {
	Username   string
	Password   string
	StoreName  string
	OwnerEmail string
	OwnerPhone string
}

// RegisterResponse holds the registration result.
type RegisterResponse struct {
	StoreID uuid.UUID
	UserID  uuid.UUID
}

// AuthService defines authentication business logic.
type AuthService interface {
	Register(ctx context.Context, req RegisterRequest) (*RegisterResponse, error)
	Login(ctx context.Context, username, password string) (string, time.Time, error) // token, expiry, error
}
