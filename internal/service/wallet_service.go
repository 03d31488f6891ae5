package service

import (
	"context"
	"fmt"

	"merchant-wallet-ledger/internal/core/domain"
	"merchant-wallet-ledger/internal/core/ports"
	"merchant-wallet-ledger/pkg/apperror"

	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// walletService implements ports.WalletService.
type walletService struct {
	walletRepo ports.WalletRepository
	ledgerRepo ports.LedgerRepository
}

// NewWalletService creates the read side of the wallet.
func NewWalletService(walletRepo ports.WalletRepository, ledgerRepo ports.LedgerRepository) ports.WalletService {
	return &walletService{walletRepo: walletRepo, ledgerRepo: ledgerRepo}
}

// GetWallet returns the store's wallet, creating an empty one on first access.
func (s *walletService) GetWallet(ctx context.Context, storeID uuid.UUID) (*domain.Wallet, error) {
	wallet, err := s.walletRepo.GetOrCreate(ctx, storeID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	return wallet, nil
}

// ListLedger returns a page of the store's ledger, newest first.
func (s *walletService) ListLedger(ctx context.Context, storeID uuid.UUID, page, pageSize int) ([]domain.LedgerEntry, int64, error) {
	page, pageSize = normalizePage(page, pageSize)
	entries, total, err := s.ledgerRepo.ListByStore(ctx, storeID, page, pageSize)
	if err != nil {
		return nil, 0, apperror.InternalError(fmt.Errorf("list ledger: %w", err))
	}
	return entries, total, nil
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}
