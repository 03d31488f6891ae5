package ports

import (
	"context"
	"time"

	"merchant-wallet-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// StoreRepository defines persistence operations for merchant stores.
type StoreRepository interface {
	Create(ctx context.Context, tx pgx.Tx, store *domain.Store) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Store, error)
}

// UserRepository defines persistence operations for login accounts.
type UserRepository interface {
	Create(ctx context.Context, tx pgx.Tx, user *domain.User) error
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
}

// PINFailure is the counter state after a failed PIN attempt.
type PINFailure struct {
	Attempts    int
	Locked      bool
	LockedUntil *time.Time
}

// WalletRepository defines persistence operations for wallets.
// Methods accepting pgx.Tx are used inside transaction blocks for pessimistic locking.
type WalletRepository interface {
	// GetOrCreate returns the store's wallet, creating an empty one on first read.
	GetOrCreate(ctx context.Context, storeID uuid.UUID) (*domain.Wallet, error)
	GetByStoreID(ctx context.Context, storeID uuid.UUID) (*domain.Wallet, error)
	// LockOrCreate creates the wallet if missing and returns it locked FOR UPDATE.
	LockOrCreate(ctx context.Context, tx pgx.Tx, storeID uuid.UUID) (*domain.Wallet, error)
	GetByStoreIDForUpdate(ctx context.Context, tx pgx.Tx, storeID uuid.UUID) (*domain.Wallet, error)
	Credit(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, amountKobo int64) error
	// Debit returns false when the balance does not cover amountKobo.
	Debit(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, amountKobo int64) (bool, error)
	SetPIN(ctx context.Context, storeID uuid.UUID, pinHash string) error
	RecordPINFailure(ctx context.Context, storeID uuid.UUID, maxAttempts int, lockUntil time.Time) (*PINFailure, error)
	ResetPINAttempts(ctx context.Context, storeID uuid.UUID) error
	UpdateKYCStatus(ctx context.Context, tx pgx.Tx, storeID uuid.UUID, status domain.KYCStatus) error
	ListStoreIDs(ctx context.Context) ([]uuid.UUID, error)
}

// LedgerRepository defines append-only ledger persistence.
type LedgerRepository interface {
	Create(ctx context.Context, tx pgx.Tx, entry *domain.LedgerEntry) error
	ListByStore(ctx context.Context, storeID uuid.UUID, page, pageSize int) ([]domain.LedgerEntry, int64, error)
	ListAllByStore(ctx context.Context, storeID uuid.UUID) ([]domain.LedgerEntry, error)
	// WalletSum is the signed sum of the store's WALLET and payouts entries, in major units.
	WalletSum(ctx context.Context, storeID uuid.UUID) (decimal.Decimal, error)
}

// OrderRepository covers the order columns settlement writes.
type OrderRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Order, error)
	MarkPaid(ctx context.Context, tx pgx.Tx, id uuid.UUID, paidAt time.Time) error
	MarkDeliveryScheduled(ctx context.Context, id uuid.UUID, at time.Time) error
}

// PaymentTransactionRepository persists provider-confirmed payments.
type PaymentTransactionRepository interface {
	// Create returns false when the provider reference was already recorded.
	Create(ctx context.Context, tx pgx.Tx, ptx *domain.PaymentTransaction) (bool, error)
	GetByReference(ctx context.Context, provider, reference string) (*domain.PaymentTransaction, error)
}

// WebhookEventRepository persists the webhook idempotency guard.
type WebhookEventRepository interface {
	// Claim inserts the event in RECEIVED. Returns false if (provider, provider_event_id) exists.
	Claim(ctx context.Context, evt *domain.PaymentWebhookEvent) (bool, error)
	GetByProviderEventID(ctx context.Context, provider, providerEventID string) (*domain.PaymentWebhookEvent, error)
	// Reclaim moves a FAILED or stale RECEIVED row back to RECEIVED if it still
	// has the observed status and updated_at.
	Reclaim(ctx context.Context, id uuid.UUID, status domain.WebhookEventStatus, observedUpdatedAt, now time.Time) (bool, error)
	MarkProcessed(ctx context.Context, tx pgx.Tx, id uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, lastError string, nextRetryAt *time.Time, at time.Time) error
	// ClaimRetryable reserves due FAILED rows and stale RECEIVED rows using SKIP LOCKED.
	ClaimRetryable(ctx context.Context, now, staleBefore time.Time, maxAttempts, limit int) ([]domain.PaymentWebhookEvent, error)
}

// WithdrawalRepository defines withdrawal persistence. A nil tx runs on the pool.
type WithdrawalRepository interface {
	Create(ctx context.Context, w *domain.Withdrawal) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Withdrawal, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Withdrawal, error)
	GetByReferenceForUpdate(ctx context.Context, tx pgx.Tx, referenceCode string) (*domain.Withdrawal, error)
	ListByStore(ctx context.Context, storeID uuid.UUID, page, pageSize int) ([]domain.Withdrawal, int64, error)
	// ReservedKobo sums in-flight PROCESSING withdrawals for the store.
	ReservedKobo(ctx context.Context, tx pgx.Tx, storeID uuid.UUID) (int64, error)
	// MarkProcessing consumes the OTP and moves PENDING_OTP -> PROCESSING.
	MarkProcessing(ctx context.Context, tx pgx.Tx, id uuid.UUID, at time.Time) (bool, error)
	SetProviderReference(ctx context.Context, id uuid.UUID, providerRef string, at time.Time) error
	MarkSucceeded(ctx context.Context, tx pgx.Tx, id uuid.UUID, providerRef string, at time.Time) (bool, error)
	MarkFailed(ctx context.Context, tx pgx.Tx, id uuid.UUID, from domain.WithdrawalStatus, reason string, at time.Time) (bool, error)
}

// LockRepository implements the soft-lock compare-and-swap on resource rows.
type LockRepository interface {
	// TryAcquire returns true when exactly one row was updated.
	TryAcquire(ctx context.Context, kind domain.LockKind, id uuid.UUID, actor string, now, staleBefore time.Time) (bool, error)
	// GetHolder returns nil when the resource row does not exist.
	GetHolder(ctx context.Context, kind domain.LockKind, id uuid.UUID) (*domain.LockHolder, error)
	Release(ctx context.Context, kind domain.LockKind, id uuid.UUID, actor string) (bool, error)
	SweepStale(ctx context.Context, kind domain.LockKind, staleBefore time.Time) (int64, error)
}

// KYCRepository persists identity submissions.
type KYCRepository interface {
	Create(ctx context.Context, tx pgx.Tx, rec *domain.KycRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.KycRecord, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.KycRecord, error)
	GetLatestByStore(ctx context.Context, storeID uuid.UUID) (*domain.KycRecord, error)
	ListPending(ctx context.Context, limit int) ([]domain.KycRecord, error)
	UpdateReview(ctx context.Context, tx pgx.Tx, rec *domain.KycRecord) error
}

// BeneficiaryRepository persists payout destinations.
type BeneficiaryRepository interface {
	Create(ctx context.Context, b *domain.BankBeneficiary) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.BankBeneficiary, error)
	FindActiveByHash(ctx context.Context, storeID uuid.UUID, bankCode, accountHash string) (*domain.BankBeneficiary, error)
	ListByStore(ctx context.Context, storeID uuid.UUID) ([]domain.BankBeneficiary, error)
	Deactivate(ctx context.Context, id, storeID uuid.UUID) (bool, error)
}

// ExportRepository persists ledger export jobs.
type ExportRepository interface {
	Create(ctx context.Context, job *domain.ExportJob) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.ExportJob, error)
	SaveContent(ctx context.Context, job *domain.ExportJob) error
	MarkExpired(ctx context.Context, id uuid.UUID, at time.Time) error
}

// IncidentRepository persists reconciliation incidents. Rows are never updated.
type IncidentRepository interface {
	Create(ctx context.Context, inc *domain.ReconciliationIncident) error
	ListByRun(ctx context.Context, runID uuid.UUID) ([]domain.ReconciliationIncident, error)
	LatestRunID(ctx context.Context) (*uuid.UUID, error)
}

// MonitoringRepository serves the read-only stuck-operation queries.
// List queries return at most limit rows: the most recent ones, oldest first.
type MonitoringRepository interface {
	StuckWithdrawals(ctx context.Context, updatedBefore time.Time, limit int) ([]domain.Withdrawal, error)
	AgingWithdrawals(ctx context.Context, createdBefore time.Time, limit int) ([]domain.Withdrawal, error)
	StuckExports(ctx context.Context, now time.Time, limit int) ([]domain.ExportJob, error)
	// AverageTimeToPaid returns seconds, or nil when no withdrawal qualifies.
	AverageTimeToPaid(ctx context.Context, since time.Time, limit int) (*float64, error)
	CountWithdrawalsByStatus(ctx context.Context) (map[domain.WithdrawalStatus]int64, error)
}

// AuditRepository persists audit entries.
type AuditRepository interface {
	Create(ctx context.Context, entry *domain.AuditEntry) error
}
