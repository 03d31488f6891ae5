package service

import (
	"context"
	"fmt"
	"time"

	"merchant-wallet-ledger/internal/core/ports"
	"merchant-wallet-ledger/pkg/apperror"
	"merchant-wallet-ledger/pkg/clock"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// PINPolicy is the lockout configuration.
type PINPolicy struct {
	MaxAttempts int
	Lockout     time.Duration
}

// PINServiceImpl implements ports.PINService.
type PINServiceImpl struct {
	walletRepo ports.WalletRepository
	hashSvc    ports.HashService
	policy     PINPolicy
	clock      clock.Clock
	log        zerolog.Logger
}

// NewPINService creates a new PINServiceImpl.
func NewPINService(walletRepo ports.WalletRepository, hashSvc ports.HashService, policy PINPolicy, clk clock.Clock, log zerolog.Logger) *PINServiceImpl {
	return &PINServiceImpl{walletRepo: walletRepo, hashSvc: hashSvc, policy: policy, clock: clk, log: log}
}

// SetPIN stores the first PIN for a wallet, creating the wallet if needed.
func (s *PINServiceImpl) SetPIN(ctx context.Context, storeID uuid.UUID, pin string) error {
	if !validPIN(pin) {
		return apperror.Validation("PIN must be 4 or 6 digits")
	}

	wallet, err := s.walletRepo.GetOrCreate(ctx, storeID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet.PINSet {
		return apperror.ErrPINAlreadySet()
	}

	return s.store(ctx, storeID, pin)
}

// ChangePIN replaces the PIN. The current PIN goes through the same gate
// as a withdrawal, so guessing it counts toward the lockout.
func (s *PINServiceImpl) ChangePIN(ctx context.Context, storeID uuid.UUID, currentPIN, newPIN string) error {
	if !validPIN(newPIN) {
		return apperror.Validation("PIN must be 4 or 6 digits")
	}
	if err := s.Verify(ctx, storeID, currentPIN); err != nil {
		return err
	}
	return s.store(ctx, storeID, newPIN)
}

// Verify checks a PIN against the wallet. A live lock refuses every
// attempt, correct or not.
func (s *PINServiceImpl) Verify(ctx context.Context, storeID uuid.UUID, pin string) error {
	wallet, err := s.walletRepo.GetByStoreID(ctx, storeID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil || !wallet.PINSet || wallet.PINHash == nil {
		return apperror.ErrPINNotSet()
	}

	now := s.clock.Now()
	if wallet.PINLockActive(now) {
		return apperror.ErrPINLocked(*wallet.LockedUntil)
	}
	if wallet.PINLockExpired(now) {
		if err := s.walletRepo.ResetPINAttempts(ctx, storeID); err != nil {
			return apperror.InternalError(fmt.Errorf("reset expired pin lock: %w", err))
		}
		wallet.FailedPINAttempts = 0
	}

	ok, err := s.hashSvc.Verify(pin, *wallet.PINHash)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("verify pin: %w", err))
	}

	if !ok {
		failure, err := s.walletRepo.RecordPINFailure(ctx, storeID, s.policy.MaxAttempts, now.Add(s.policy.Lockout))
		if err != nil {
			return apperror.InternalError(fmt.Errorf("record pin failure: %w", err))
		}
		if failure.Locked && failure.LockedUntil != nil {
			s.log.Warn().Str("store_id", storeID.String()).Int("attempts", failure.Attempts).Msg("wallet pin locked")
			return apperror.ErrPINLocked(*failure.LockedUntil)
		}
		return apperror.ErrInvalidPIN(max(s.policy.MaxAttempts-failure.Attempts, 0))
	}

	if wallet.FailedPINAttempts > 0 {
		if err := s.walletRepo.ResetPINAttempts(ctx, storeID); err != nil {
			return apperror.InternalError(fmt.Errorf("reset pin attempts: %w", err))
		}
	}
	return nil
}

func (s *PINServiceImpl) store(ctx context.Context, storeID uuid.UUID, pin string) error {
	hash, err := s.hashSvc.Hash(pin)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("hash pin: %w", err))
	}
	if err := s.walletRepo.SetPIN(ctx, storeID, hash); err != nil {
		return apperror.InternalError(fmt.Errorf("save pin: %w", err))
	}
	s.log.Info().Str("store_id", storeID.String()).Msg("wallet pin updated")
	return nil
}

func validPIN(pin string) bool {
	return isDigits(pin, 4) || isDigits(pin, 6)
}
