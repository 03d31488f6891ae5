package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"merchant-wallet-ledger/internal/core/domain"
	"merchant-wallet-ledger/internal/core/ports"
	"merchant-wallet-ledger/pkg/apperror"
	"merchant-wallet-ledger/pkg/clock"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

const referenceAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// WithdrawalConfig holds the OTP policy.
type WithdrawalConfig struct {
	OTPTTL         time.Duration
	OTPMaxAttempts int64
}

// WithdrawalDeps groups the collaborators of the withdrawal service.
type WithdrawalDeps struct {
	TxManager     ports.DBTransactor
	Withdrawals   ports.WithdrawalRepository
	Wallets       ports.WalletRepository
	Ledger        ports.LedgerRepository
	Beneficiaries ports.BeneficiaryRepository
	Stores        ports.StoreRepository
	PIN           ports.PINService
	Encryption    ports.EncryptionService
	Provider      ports.PayoutProvider
	Notifier      ports.Notifier
	RateLimiter   ports.RateLimiter
	Locks         ports.LockService
	Audit         ports.AuditService
	Metrics       ports.MetricsRecorder
	Clock         clock.Clock
}

// WithdrawalServiceImpl implements ports.WithdrawalService.
type WithdrawalServiceImpl struct {
	deps    WithdrawalDeps
	metrics ports.MetricsRecorder
	cfg     WithdrawalConfig
	log     zerolog.Logger
}

// NewWithdrawalService creates a new WithdrawalServiceImpl.
func NewWithdrawalService(deps WithdrawalDeps, cfg WithdrawalConfig, log zerolog.Logger) *WithdrawalServiceImpl {
	if cfg.OTPTTL <= 0 {
		cfg.OTPTTL = 10 * time.Minute
	}
	if cfg.OTPMaxAttempts <= 0 {
		cfg.OTPMaxAttempts = 5
	}
	return &WithdrawalServiceImpl{deps: deps, metrics: metricsOrNop(deps.Metrics), cfg: cfg, log: log}
}

// Initiate validates the request, passes the PIN gate, checks funds net of
// in-flight payouts and creates a PENDING_OTP withdrawal. A rejected
// request leaves no row behind.
func (s *WithdrawalServiceImpl) Initiate(ctx context.Context, req ports.InitiateWithdrawalRequest) (*domain.Withdrawal, error) {
	if req.AmountKobo <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}

	bene, err := s.deps.Beneficiaries.GetByID(ctx, req.BankAccountID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get beneficiary: %w", err))
	}
	if bene == nil || !bene.OwnedBy(req.StoreID) {
		return nil, apperror.ErrNotFound("Bank account")
	}
	if !bene.IsActive {
		return nil, apperror.ErrInvalidState("Bank account", "inactive")
	}

	if err := s.deps.PIN.Verify(ctx, req.StoreID, req.PIN); err != nil {
		return nil, err
	}

	wallet, err := s.deps.Wallets.GetOrCreate(ctx, req.StoreID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	reserved, err := s.deps.Withdrawals.ReservedKobo(ctx, nil, req.StoreID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("sum reserved: %w", err))
	}
	if req.AmountKobo > wallet.AvailableKobo-reserved {
		return nil, apperror.ErrInsufficientFunds()
	}

	otp, err := generateOTP()
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("generate otp: %w", err))
	}
	now := s.deps.Clock.Now()
	reference, err := generateWithdrawalReference(now)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("generate reference: %w", err))
	}
	otpHash := hashOTP(otp)
	expiresAt := now.Add(s.cfg.OTPTTL)

	w := &domain.Withdrawal{
		ID:            uuid.New(),
		StoreID:       req.StoreID,
		BankAccountID: bene.ID,
		AmountKobo:    req.AmountKobo,
		Status:        domain.WithdrawalStatusPendingOTP,
		OTPHash:       &otpHash,
		OTPExpiresAt:  &expiresAt,
		ReferenceCode: reference,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.deps.Withdrawals.Create(ctx, w); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create withdrawal: %w", err))
	}

	s.metrics.ObserveWithdrawal(w.Status)
	s.log.Info().
		Str("store_id", req.StoreID.String()).
		Str("withdrawal_id", w.ID.String()).
		Str("reference", reference).
		Int64("amount_kobo", req.AmountKobo).
		Msg("withdrawal initiated")

	s.sendOTP(ctx, w, otp)
	return w, nil
}

// sendOTP is best effort: the withdrawal exists whether or not the
// notification goes out.
func (s *WithdrawalServiceImpl) sendOTP(ctx context.Context, w *domain.Withdrawal, otp string) {
	if s.deps.Notifier == nil {
		return
	}
	recipient := ""
	if s.deps.Stores != nil {
		store, err := s.deps.Stores.GetByID(ctx, w.StoreID)
		if err != nil {
			s.log.Warn().Err(err).Str("store_id", w.StoreID.String()).Msg("otp recipient lookup failed")
		} else if store != nil {
			recipient = store.OwnerEmail
		}
	}
	s.deps.Notifier.Dispatch(ctx, ports.Notification{
		Recipient: recipient,
		Template:  ports.TemplateWithdrawalOTP,
		StoreID:   w.StoreID.String(),
		Data: map[string]any{
			"otp":         otp,
			"reference":   w.ReferenceCode,
			"amount_kobo": w.AmountKobo,
			"expires_at":  w.OTPExpiresAt.Format(time.RFC3339),
		},
	})
}

// Confirm checks the KYC gate and the OTP, claims the withdrawal and calls the
// payout provider outside any transaction.
func (s *WithdrawalServiceImpl) Confirm(ctx context.Context, storeID, withdrawalID uuid.UUID, otpCode string) (*domain.Withdrawal, error) {
	w, err := s.ownedWithdrawal(ctx, storeID, withdrawalID)
	if err != nil {
		return nil, err
	}
	if w.Status != domain.WithdrawalStatusPendingOTP || w.OTPConsumed() {
		return nil, apperror.ErrInvalidState("Withdrawal", string(w.Status))
	}

	// KYC is gated before the OTP is looked at, so an unverified store gets
	// KYC_REQUIRED whatever code it sends. The OTP stays valid for a retry
	// once KYC clears.
	wallet, err := s.deps.Wallets.GetByStoreID(ctx, storeID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil || !wallet.CanWithdraw() {
		return nil, apperror.ErrKYCRequired()
	}

	if err := s.limitOTPAttempts(ctx, withdrawalID); err != nil {
		return nil, err
	}

	now := s.deps.Clock.Now()
	if w.OTPExpired(now) {
		return nil, apperror.ErrOTPExpired()
	}
	if subtle.ConstantTimeCompare([]byte(hashOTP(otpCode)), []byte(*w.OTPHash)) != 1 {
		return nil, apperror.ErrInvalidOTP()
	}

	transfer, err := s.transferRequest(ctx, w, wallet.Currency)
	if err != nil {
		return nil, err
	}

	if err := s.claim(ctx, w); err != nil {
		return nil, err
	}
	s.metrics.ObserveWithdrawal(domain.WithdrawalStatusProcessing)

	// The provider may accept the transfer even if the caller goes away, so
	// the rest of the flow must not be cut short by the request context.
	ctx = context.WithoutCancel(ctx)

	result, err := s.deps.Provider.Transfer(ctx, *transfer)
	if err != nil {
		return nil, s.failAfterProvider(ctx, w, err)
	}

	log := s.log.With().Str("withdrawal_id", w.ID.String()).Str("provider_reference", result.ProviderReference).Logger()

	switch result.Status {
	case ports.TransferStatusSuccess:
		if err := s.settleInTx(ctx, w.ID, result.ProviderReference); err != nil {
			// Money left the provider; keep the reference so an operator can resolve.
			if refErr := s.deps.Withdrawals.SetProviderReference(ctx, w.ID, result.ProviderReference, s.deps.Clock.Now()); refErr != nil {
				log.Error().Err(refErr).Msg("failed to record provider reference")
			}
			log.Error().Err(err).Msg("withdrawal settlement failed after provider success")
			return nil, err
		}
		log.Info().Msg("withdrawal paid")
	default:
		if err := s.deps.Withdrawals.SetProviderReference(ctx, w.ID, result.ProviderReference, s.deps.Clock.Now()); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("record provider reference: %w", err))
		}
		log.Info().Msg("withdrawal awaiting provider confirmation")
	}

	return s.reload(ctx, w.ID)
}

func (s *WithdrawalServiceImpl) limitOTPAttempts(ctx context.Context, withdrawalID uuid.UUID) error {
	if s.deps.RateLimiter == nil {
		return nil
	}
	res, err := s.deps.RateLimiter.Allow(ctx, "otp:"+withdrawalID.String(), s.cfg.OTPMaxAttempts, s.cfg.OTPTTL)
	if err != nil {
		s.log.Warn().Err(err).Str("withdrawal_id", withdrawalID.String()).Msg("otp rate limiter unavailable")
		return nil
	}
	if !res.Allowed {
		return apperror.ErrOTPAttemptsExceeded()
	}
	return nil
}

// transferRequest resolves the payout destination before anything is claimed.
func (s *WithdrawalServiceImpl) transferRequest(ctx context.Context, w *domain.Withdrawal, currency string) (*ports.TransferRequest, error) {
	bene, err := s.deps.Beneficiaries.GetByID(ctx, w.BankAccountID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get beneficiary: %w", err))
	}
	if bene == nil || !bene.OwnedBy(w.StoreID) {
		return nil, apperror.ErrNotFound("Bank account")
	}
	if !bene.IsActive {
		return nil, apperror.ErrInvalidState("Bank account", "inactive")
	}
	account, err := s.deps.Encryption.Decrypt(bene.AccountNumberEncrypted)
	if err != nil {
		return nil, apperror.ErrEncryptionFailure(err)
	}
	if currency == "" {
		currency = defaultCurrency
	}
	return &ports.TransferRequest{
		Reference:     w.ReferenceCode,
		AmountKobo:    w.AmountKobo,
		Currency:      currency,
		BankCode:      bene.BankCode,
		AccountNumber: account,
		AccountName:   bene.AccountName,
		Reason:        "Wallet withdrawal " + w.ReferenceCode,
	}, nil
}

// claim locks wallet then withdrawal, re-checks funds and moves the
// withdrawal to PROCESSING, consuming the OTP.
func (s *WithdrawalServiceImpl) claim(ctx context.Context, w *domain.Withdrawal) error {
	dbTx, err := s.deps.TxManager.Begin(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	wallet, err := s.deps.Wallets.GetByStoreIDForUpdate(ctx, dbTx, w.StoreID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
	}
	if wallet == nil {
		return apperror.ErrNotFound("Wallet")
	}
	locked, err := s.deps.Withdrawals.GetByIDForUpdate(ctx, dbTx, w.ID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("lock withdrawal: %w", err))
	}
	if locked == nil {
		return apperror.ErrNotFound("Withdrawal")
	}
	if locked.Status != domain.WithdrawalStatusPendingOTP {
		return apperror.ErrInvalidState("Withdrawal", string(locked.Status))
	}

	reserved, err := s.deps.Withdrawals.ReservedKobo(ctx, dbTx, w.StoreID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("sum reserved: %w", err))
	}
	if w.AmountKobo > wallet.AvailableKobo-reserved {
		return apperror.ErrInsufficientFunds()
	}

	ok, err := s.deps.Withdrawals.MarkProcessing(ctx, dbTx, w.ID, s.deps.Clock.Now())
	if err != nil {
		return apperror.InternalError(fmt.Errorf("mark processing: %w", err))
	}
	if !ok {
		return apperror.ErrInvalidState("Withdrawal", string(locked.Status))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return apperror.InternalError(fmt.Errorf("commit claim: %w", err))
	}
	return nil
}

func (s *WithdrawalServiceImpl) failAfterProvider(ctx context.Context, w *domain.Withdrawal, cause error) error {
	reason := "provider rejected transfer: " + cause.Error()
	ok, err := s.deps.Withdrawals.MarkFailed(ctx, nil, w.ID, domain.WithdrawalStatusProcessing, reason, s.deps.Clock.Now())
	if err != nil {
		s.log.Error().Err(err).Str("withdrawal_id", w.ID.String()).Msg("failed to mark withdrawal failed")
	} else if ok {
		s.metrics.ObserveWithdrawal(domain.WithdrawalStatusFailed)
	}
	s.log.Warn().Err(cause).Str("withdrawal_id", w.ID.String()).Msg("payout provider rejected transfer")
	return apperror.ErrExternalProvider(cause)
}

func (s *WithdrawalServiceImpl) settleInTx(ctx context.Context, id uuid.UUID, providerRef string) error {
	dbTx, err := s.deps.TxManager.Begin(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	w, err := s.deps.Withdrawals.GetByIDForUpdate(ctx, dbTx, id)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("lock withdrawal: %w", err))
	}
	if w == nil {
		return apperror.ErrNotFound("Withdrawal")
	}
	if err := s.markPaid(ctx, dbTx, w, providerRef); err != nil {
		return err
	}
	if err := dbTx.Commit(ctx); err != nil {
		return apperror.InternalError(fmt.Errorf("commit settlement: %w", err))
	}
	s.metrics.ObserveWithdrawal(domain.WithdrawalStatusSuccess)
	return nil
}

// markPaid moves PROCESSING to SUCCESS, debits the wallet with the guarded
// update and appends the DEBIT/payouts entry.
func (s *WithdrawalServiceImpl) markPaid(ctx context.Context, tx pgx.Tx, w *domain.Withdrawal, providerRef string) error {
	wallet, err := s.deps.Wallets.GetByStoreIDForUpdate(ctx, tx, w.StoreID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
	}
	if wallet == nil {
		return apperror.ErrNotFound("Wallet")
	}

	now := s.deps.Clock.Now()
	ok, err := s.deps.Withdrawals.MarkSucceeded(ctx, tx, w.ID, providerRef, now)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("mark succeeded: %w", err))
	}
	if !ok {
		return apperror.ErrInvalidState("Withdrawal", string(w.Status))
	}

	debited, err := s.deps.Wallets.Debit(ctx, tx, wallet.ID, w.AmountKobo)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("debit wallet: %w", err))
	}
	if !debited {
		return apperror.ErrInsufficientFunds()
	}

	entry := &domain.LedgerEntry{
		ID:            uuid.New(),
		StoreID:       w.StoreID,
		ReferenceType: domain.ReferenceWithdrawal,
		ReferenceID:   w.ID.String(),
		Direction:     domain.DirectionDebit,
		Account:       domain.LedgerAccountPayouts,
		AmountKobo:    w.AmountKobo,
		Currency:      wallet.Currency,
		Description:   "Withdrawal " + w.ReferenceCode,
		CreatedAt:     now,
	}
	if entry.Currency == "" {
		entry.Currency = defaultCurrency
	}
	if err := s.deps.Ledger.Create(ctx, tx, entry); err != nil {
		return apperror.InternalError(fmt.Errorf("append ledger entry: %w", err))
	}
	return nil
}

// applyOutcome resolves a locked PROCESSING withdrawal inside tx.
func (s *WithdrawalServiceImpl) applyOutcome(ctx context.Context, tx pgx.Tx, w *domain.Withdrawal, succeeded bool, providerRef, reason string) error {
	if succeeded {
		return s.markPaid(ctx, tx, w, providerRef)
	}
	if reason == "" {
		reason = "transfer failed"
	}
	ok, err := s.deps.Withdrawals.MarkFailed(ctx, tx, w.ID, domain.WithdrawalStatusProcessing, reason, s.deps.Clock.Now())
	if err != nil {
		return apperror.InternalError(fmt.Errorf("mark failed: %w", err))
	}
	if !ok {
		return apperror.ErrInvalidState("Withdrawal", string(w.Status))
	}
	return nil
}

// ApplyTransferOutcome settles a PROCESSING withdrawal from a provider
// event, inside the webhook's transaction. Events for unknown or already
// resolved withdrawals are acknowledged without change.
func (s *WithdrawalServiceImpl) ApplyTransferOutcome(ctx context.Context, tx pgx.Tx, req ports.ApplyTransferRequest) error {
	w, err := s.deps.Withdrawals.GetByReferenceForUpdate(ctx, tx, req.ReferenceCode)
	if err != nil {
		return fmt.Errorf("lock withdrawal by reference: %w", err)
	}
	log := s.log.With().Str("reference", req.ReferenceCode).Bool("succeeded", req.Succeeded).Logger()
	if w == nil {
		log.Warn().Msg("transfer event for unknown withdrawal")
		return nil
	}
	if w.Status != domain.WithdrawalStatusProcessing {
		log.Warn().Str("status", string(w.Status)).Msg("transfer event for withdrawal not in flight")
		return nil
	}

	if err := s.applyOutcome(ctx, tx, w, req.Succeeded, req.ProviderReference, req.Reason); err != nil {
		return err
	}
	if req.Succeeded {
		s.metrics.ObserveWithdrawal(domain.WithdrawalStatusSuccess)
	} else {
		s.metrics.ObserveWithdrawal(domain.WithdrawalStatusFailed)
	}
	log.Info().Str("withdrawal_id", w.ID.String()).Msg("transfer outcome applied")
	return nil
}

// Cancel abandons a withdrawal that has not been confirmed.
func (s *WithdrawalServiceImpl) Cancel(ctx context.Context, storeID, withdrawalID uuid.UUID) (*domain.Withdrawal, error) {
	w, err := s.ownedWithdrawal(ctx, storeID, withdrawalID)
	if err != nil {
		return nil, err
	}
	if w.Status != domain.WithdrawalStatusPendingOTP {
		return nil, apperror.ErrInvalidState("Withdrawal", string(w.Status))
	}

	ok, err := s.deps.Withdrawals.MarkFailed(ctx, nil, w.ID, domain.WithdrawalStatusPendingOTP, "cancelled by merchant", s.deps.Clock.Now())
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("cancel withdrawal: %w", err))
	}
	if !ok {
		return nil, apperror.ErrInvalidState("Withdrawal", "no longer pending")
	}
	s.metrics.ObserveWithdrawal(domain.WithdrawalStatusFailed)
	return s.reload(ctx, w.ID)
}

func (s *WithdrawalServiceImpl) Get(ctx context.Context, storeID, withdrawalID uuid.UUID) (*domain.Withdrawal, error) {
	return s.ownedWithdrawal(ctx, storeID, withdrawalID)
}

func (s *WithdrawalServiceImpl) List(ctx context.Context, storeID uuid.UUID, page, pageSize int) ([]domain.Withdrawal, int64, error) {
	page, pageSize = normalizePage(page, pageSize)
	items, total, err := s.deps.Withdrawals.ListByStore(ctx, storeID, page, pageSize)
	if err != nil {
		return nil, 0, apperror.InternalError(fmt.Errorf("list withdrawals: %w", err))
	}
	return items, total, nil
}

// Resolve is the operator decision on a stuck PROCESSING withdrawal. The
// operator must hold the soft lock.
func (s *WithdrawalServiceImpl) Resolve(ctx context.Context, req ports.ResolveWithdrawalRequest) (*domain.Withdrawal, error) {
	if err := s.deps.Locks.Require(ctx, domain.LockKindWithdrawal, req.WithdrawalID, req.Actor); err != nil {
		return nil, err
	}

	dbTx, err := s.deps.TxManager.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	before, err := s.deps.Withdrawals.GetByIDForUpdate(ctx, dbTx, req.WithdrawalID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock withdrawal: %w", err))
	}
	if before == nil {
		return nil, apperror.ErrNotFound("Withdrawal")
	}
	if before.Status != domain.WithdrawalStatusProcessing {
		return nil, apperror.ErrInvalidState("Withdrawal", string(before.Status))
	}

	reason := req.Reason
	if !req.Succeeded && reason == "" {
		reason = "resolved as failed by " + req.Actor
	}
	if err := s.applyOutcome(ctx, dbTx, before, req.Succeeded, req.ProviderReference, reason); err != nil {
		return nil, err
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit resolution: %w", err))
	}

	after, err := s.reload(ctx, req.WithdrawalID)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveWithdrawal(after.Status)
	s.deps.Audit.Log(ctx, &domain.AuditEntry{
		Actor:    req.Actor,
		Action:   domain.AuditActionWithdrawResolved,
		Entity:   string(domain.LockKindWithdrawal),
		EntityID: req.WithdrawalID.String(),
		Before:   domain.Snapshot(before),
		After:    domain.Snapshot(after),
	})
	return after, nil
}

func (s *WithdrawalServiceImpl) ownedWithdrawal(ctx context.Context, storeID, id uuid.UUID) (*domain.Withdrawal, error) {
	w, err := s.deps.Withdrawals.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get withdrawal: %w", err))
	}
	if w == nil || w.StoreID != storeID {
		return nil, apperror.ErrNotFound("Withdrawal")
	}
	return w, nil
}

func (s *WithdrawalServiceImpl) reload(ctx context.Context, id uuid.UUID) (*domain.Withdrawal, error) {
	w, err := s.deps.Withdrawals.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("reload withdrawal: %w", err))
	}
	if w == nil {
		return nil, apperror.ErrNotFound("Withdrawal")
	}
	return w, nil
}

// generateOTP returns six uniformly random digits.
func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func hashOTP(otp string) string {
	sum := sha256.Sum256([]byte(otp))
	return hex.EncodeToString(sum[:])
}

// generateWithdrawalReference returns WD-YYYYMMDD-XXXXXX.
func generateWithdrawalReference(now time.Time) (string, error) {
	suffix := make([]byte, 6)
	alphabet := big.NewInt(int64(len(referenceAlphabet)))
	for i := range suffix {
		n, err := rand.Int(rand.Reader, alphabet)
		if err != nil {
			return "", err
		}
		suffix[i] = referenceAlphabet[n.Int64()]
	}
	return "WD-" + now.UTC().Format("20060102") + "-" + string(suffix), nil
}
