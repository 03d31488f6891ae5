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
)

// beneficiaryService implements ports.BeneficiaryService.
type beneficiaryService struct {
	repo   ports.BeneficiaryRepository
	encSvc ports.EncryptionService
	clk    clock.Clock
}

// NewBeneficiaryService creates a new beneficiary service.
func NewBeneficiaryService(repo ports.BeneficiaryRepository, encSvc ports.EncryptionService, clk clock.Clock) ports.BeneficiaryService {
	return &beneficiaryService{repo: repo, encSvc: encSvc, clk: clk}
}

// Add registers a NUBAN account. The plaintext number is only kept
// encrypted; duplicates are found through its keyed fingerprint.
func (s *beneficiaryService) Add(ctx context.Context, req ports.AddBeneficiaryRequest) (*domain.BankBeneficiary, error) {
	bankCode := strings.TrimSpace(req.BankCode)
	if bankCode == "" {
		return nil, apperror.Validation("bankCode is required")
	}
	if !isDigits(req.AccountNumber, 10) {
		return nil, apperror.Validation("accountNumber must be a 10-digit NUBAN")
	}
	accountName := strings.TrimSpace(req.AccountName)
	if accountName == "" {
		return nil, apperror.Validation("accountName is required")
	}

	hash := s.encSvc.Fingerprint(req.AccountNumber)
	existing, err := s.repo.FindActiveByHash(ctx, req.StoreID, bankCode, hash)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("find beneficiary: %w", err))
	}
	if existing != nil {
		return nil, apperror.ErrDuplicate("Bank account")
	}

	encrypted, err := s.encSvc.Encrypt(req.AccountNumber)
	if err != nil {
		return nil, apperror.ErrEncryptionFailure(err)
	}

	b := &domain.BankBeneficiary{
		ID:                     uuid.New(),
		StoreID:                req.StoreID,
		BankCode:               bankCode,
		AccountNumberEncrypted: encrypted,
		AccountNumberMasked:    domain.MaskIdentifier(req.AccountNumber),
		AccountNumberHash:      hash,
		AccountName:            accountName,
		IsActive:               true,
		CreatedAt:              s.clk.Now(),
	}
	if err := s.repo.Create(ctx, b); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create beneficiary: %w", err))
	}
	return b, nil
}

func (s *beneficiaryService) List(ctx context.Context, storeID uuid.UUID) ([]domain.BankBeneficiary, error) {
	items, err := s.repo.ListByStore(ctx, storeID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list beneficiaries: %w", err))
	}
	return items, nil
}

func (s *beneficiaryService) Deactivate(ctx context.Context, storeID, id uuid.UUID) error {
	ok, err := s.repo.Deactivate(ctx, id, storeID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("deactivate beneficiary: %w", err))
	}
	if !ok {
		return apperror.ErrNotFound("Bank account")
	}
	return nil
}
