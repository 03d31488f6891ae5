package service

import (
	"context"
	"fmt"
	"strings"

	"merchant-wallet-ledger/internal/core/domain"
	"merchant-wallet-ledger/internal/core/ports"
	"merchant-wallet-ledger/pkg/apperror"
	"merchant-wallet-ledger/pkg/clock"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const kycPendingLimit = 100

// KYCServiceImpl handles identity submission and operator review. The
// record and the wallet's kyc_status always change in one transaction.
type KYCServiceImpl struct {
	txManager ports.DBTransactor
	kycRepo   ports.KYCRepository
	wallets   ports.WalletRepository
	encSvc    ports.EncryptionService
	audit     ports.AuditService
	clk       clock.Clock
	log       zerolog.Logger
}

// NewKYCService creates a new KYCServiceImpl.
func NewKYCService(
	txManager ports.DBTransactor,
	kycRepo ports.KYCRepository,
	wallets ports.WalletRepository,
	encSvc ports.EncryptionService,
	audit ports.AuditService,
	clk clock.Clock,
	log zerolog.Logger,
) *KYCServiceImpl {
	return &KYCServiceImpl{
		txManager: txManager,
		kycRepo:   kycRepo,
		wallets:   wallets,
		encSvc:    encSvc,
		audit:     audit,
		clk:       clk,
		log:       log,
	}
}

func (s *KYCServiceImpl) Submit(ctx context.Context, req ports.SubmitKYCRequest) (*domain.KycRecord, error) {
	if req.IDType != domain.IDTypeBVN && req.IDType != domain.IDTypeNIN {
		return nil, apperror.Validation("idType must be BVN or NIN")
	}
	if !isDigits(req.IDNumber, 11) {
		return nil, apperror.Validation("idNumber must be 11 digits")
	}
	fullName := strings.TrimSpace(req.FullName)
	if fullName == "" {
		return nil, apperror.Validation("fullName is required")
	}

	encrypted, err := s.encSvc.Encrypt(req.IDNumber)
	if err != nil {
		return nil, apperror.ErrEncryptionFailure(err)
	}

	dbTx, err := s.txManager.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	wallet, err := s.wallets.LockOrCreate(ctx, dbTx, req.StoreID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
	}
	if !domain.CanSubmitKYC(wallet.KYCStatus) {
		return nil, apperror.ErrInvalidState("KYC", string(wallet.KYCStatus))
	}

	rec := &domain.KycRecord{
		ID:                uuid.New(),
		StoreID:           req.StoreID,
		IDType:            req.IDType,
		IDNumberEncrypted: encrypted,
		IDNumberMasked:    domain.MaskIdentifier(req.IDNumber),
		FullName:          fullName,
		Status:            domain.KYCStatusPending,
		SubmittedAt:       s.clk.Now(),
	}
	if err := s.kycRepo.Create(ctx, dbTx, rec); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create kyc record: %w", err))
	}
	if err := s.wallets.UpdateKYCStatus(ctx, dbTx, req.StoreID, domain.KYCStatusPending); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update wallet kyc status: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit kyc submission: %w", err))
	}

	s.audit.Log(ctx, &domain.AuditEntry{
		Actor:    req.Actor,
		Action:   domain.AuditActionKYCSubmitted,
		Entity:   "kyc_record",
		EntityID: rec.ID.String(),
		Before:   domain.Snapshot(map[string]domain.KYCStatus{"kyc_status": wallet.KYCStatus}),
		After:    domain.Snapshot(rec),
	})
	s.log.Info().Str("store_id", req.StoreID.String()).Str("kyc_id", rec.ID.String()).Msg("kyc submitted")
	return rec, nil
}

func (s *KYCServiceImpl) GetLatest(ctx context.Context, storeID uuid.UUID) (*domain.KycRecord, error) {
	rec, err := s.kycRepo.GetLatestByStore(ctx, storeID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get kyc record: %w", err))
	}
	if rec == nil {
		return nil, apperror.ErrNotFound("KYC record")
	}
	return rec, nil
}

func (s *KYCServiceImpl) ListPending(ctx context.Context) ([]domain.KycRecord, error) {
	recs, err := s.kycRepo.ListPending(ctx, kycPendingLimit)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list pending kyc: %w", err))
	}
	return recs, nil
}

// Review moves a PENDING record to VERIFIED or REJECTED and mirrors the
// result onto the wallet.
func (s *KYCServiceImpl) Review(ctx context.Context, req ports.ReviewKYCRequest) (*domain.KycRecord, error) {
	var (
		status domain.KYCStatus
		action domain.AuditAction
	)
	switch req.Decision {
	case domain.KYCDecisionApprove:
		status, action = domain.KYCStatusVerified, domain.AuditActionKYCApproved
	case domain.KYCDecisionReject:
		if strings.TrimSpace(req.Reason) == "" {
			return nil, apperror.Validation("reason is required when rejecting")
		}
		status, action = domain.KYCStatusRejected, domain.AuditActionKYCRejected
	default:
		return nil, apperror.Validation("decision must be APPROVE or REJECT")
	}

	dbTx, err := s.txManager.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	rec, err := s.kycRepo.GetByIDForUpdate(ctx, dbTx, req.RecordID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock kyc record: %w", err))
	}
	if rec == nil {
		return nil, apperror.ErrNotFound("KYC record")
	}
	if rec.Status != domain.KYCStatusPending {
		return nil, apperror.ErrInvalidState("KYC record", string(rec.Status))
	}
	before := *rec

	now := s.clk.Now()
	rec.Status = status
	rec.ReviewedBy = &req.Actor
	rec.ReviewedAt = &now
	if status == domain.KYCStatusRejected {
		reason := strings.TrimSpace(req.Reason)
		rec.RejectionReason = &reason
	}

	if err := s.kycRepo.UpdateReview(ctx, dbTx, rec); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update kyc record: %w", err))
	}
	if err := s.wallets.UpdateKYCStatus(ctx, dbTx, rec.StoreID, status); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update wallet kyc status: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit kyc review: %w", err))
	}

	s.audit.Log(ctx, &domain.AuditEntry{
		Actor:    req.Actor,
		Action:   action,
		Entity:   "kyc_record",
		EntityID: rec.ID.String(),
		Before:   domain.Snapshot(before),
		After:    domain.Snapshot(rec),
	})
	return rec, nil
}

// isDigits reports whether v is exactly n ASCII digits.
func isDigits(v string, n int) bool {
	if len(v) != n {
		return false
	}
	for i := 0; i < len(v); i++ {
		if v[i] < '0' || v[i] > '9' {
			return false
		}
	}
	return true
}
