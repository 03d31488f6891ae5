package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"merchant-wallet-ledger/internal/core/domain"
	"merchant-wallet-ledger/internal/core/ports"
	"merchant-wallet-ledger/pkg/money"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const walletColumns = `id, store_id, currency, available_kobo, pending_kobo, kyc_status, pin_hash, pin_set,
		failed_pin_attempts, is_locked, locked_until, created_at, updated_at`

const ensureWalletQuery = `INSERT INTO wallets (id, store_id, currency, kyc_status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (store_id) DO NOTHING`

// WalletRepo implements ports.WalletRepository.
type WalletRepo struct {
	pool Pool
}

// NewWalletRepo creates a new WalletRepo.
func NewWalletRepo(pool Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

func scanWallet(row pgx.Row) (*domain.Wallet, error) {
	w := &domain.Wallet{}
	err := row.Scan(
		&w.ID, &w.StoreID, &w.Currency, &w.AvailableKobo, &w.PendingKobo, &w.KYCStatus,
		&w.PINHash, &w.PINSet, &w.FailedPINAttempts, &w.IsLocked, &w.LockedUntil,
		&w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return w, nil
}

// GetOrCreate returns the store's wallet, inserting an empty one on first read.
func (r *WalletRepo) GetOrCreate(ctx context.Context, storeID uuid.UUID) (*domain.Wallet, error) {
	if _, err := r.pool.Exec(ctx, ensureWalletQuery, uuid.New(), storeID, money.Currency, domain.KYCStatusNotStarted); err != nil {
		return nil, fmt.Errorf("ensure wallet: %w", err)
	}
	w, err := r.GetByStoreID(ctx, storeID)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, fmt.Errorf("wallet missing after ensure: %s", storeID)
	}
	return w, nil
}

// GetByStoreID fetches a wallet by store (non-locking read).
func (r *WalletRepo) GetByStoreID(ctx context.Context, storeID uuid.UUID) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE store_id = $1`

	w, err := scanWallet(r.pool.QueryRow(ctx, query, storeID))
	if err != nil {
		return nil, fmt.Errorf("get wallet by store: %w", err)
	}
	return w, nil
}

// LockOrCreate creates the wallet if missing and returns it locked.
// This MUST be called within a transaction.
func (r *WalletRepo) LockOrCreate(ctx context.Context, tx pgx.Tx, storeID uuid.UUID) (*domain.Wallet, error) {
	if _, err := tx.Exec(ctx, ensureWalletQuery, uuid.New(), storeID, money.Currency, domain.KYCStatusNotStarted); err != nil {
		return nil, fmt.Errorf("ensure wallet: %w", err)
	}
	w, err := r.GetByStoreIDForUpdate(ctx, tx, storeID)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, fmt.Errorf("wallet missing after ensure: %s", storeID)
	}
	return w, nil
}

// GetByStoreIDForUpdate fetches a wallet with pessimistic locking.
// This MUST be called within a transaction.
func (r *WalletRepo) GetByStoreIDForUpdate(ctx context.Context, tx pgx.Tx, storeID uuid.UUID) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE store_id = $1 FOR UPDATE`

	w, err := scanWallet(tx.QueryRow(ctx, query, storeID))
	if err != nil {
		return nil, fmt.Errorf("get wallet for update: %w", err)
	}
	return w, nil
}

// Credit adds amountKobo to the available balance.
func (r *WalletRepo) Credit(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, amountKobo int64) error {
	query := `UPDATE wallets SET available_kobo = available_kobo + $1, updated_at = NOW() WHERE id = $2`

	tag, err := tx.Exec(ctx, query, amountKobo, walletID)
	if err != nil {
		return fmt.Errorf("credit wallet: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("wallet not found: %s", walletID)
	}
	return nil
}

// Debit subtracts amountKobo only when the balance covers it.
func (r *WalletRepo) Debit(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, amountKobo int64) (bool, error) {
	query := `UPDATE wallets SET available_kobo = available_kobo - $1, updated_at = NOW()
		WHERE id = $2 AND available_kobo >= $1`

	tag, err := tx.Exec(ctx, query, amountKobo, walletID)
	if err != nil {
		return false, fmt.Errorf("debit wallet: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// SetPIN stores a new PIN hash and clears the failure counters.
func (r *WalletRepo) SetPIN(ctx context.Context, storeID uuid.UUID, pinHash string) error {
	query := `UPDATE wallets SET pin_hash = $1, pin_set = TRUE, failed_pin_attempts = 0,
		is_locked = FALSE, locked_until = NULL, updated_at = NOW()
		WHERE store_id = $2`

	tag, err := r.pool.Exec(ctx, query, pinHash, storeID)
	if err != nil {
		return fmt.Errorf("set wallet pin: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("wallet not found for store: %s", storeID)
	}
	return nil
}

// RecordPINFailure increments the failure counter in one statement and locks
// the wallet when it reaches maxAttempts.
func (r *WalletRepo) RecordPINFailure(ctx context.Context, storeID uuid.UUID, maxAttempts int, lockUntil time.Time) (*ports.PINFailure, error) {
	query := `UPDATE wallets SET
			failed_pin_attempts = failed_pin_attempts + 1,
			is_locked = (failed_pin_attempts + 1 >= $1::int),
			locked_until = CASE WHEN failed_pin_attempts + 1 >= $1::int THEN $2::timestamptz ELSE NULL END,
			updated_at = NOW()
		WHERE store_id = $3
		RETURNING failed_pin_attempts, is_locked, locked_until`

	f := &ports.PINFailure{}
	err := r.pool.QueryRow(ctx, query, maxAttempts, lockUntil, storeID).Scan(&f.Attempts, &f.Locked, &f.LockedUntil)
	if err != nil {
		return nil, fmt.Errorf("record pin failure: %w", err)
	}
	return f, nil
}

// ResetPINAttempts clears the counter and any lock.
func (r *WalletRepo) ResetPINAttempts(ctx context.Context, storeID uuid.UUID) error {
	query := `UPDATE wallets SET failed_pin_attempts = 0, is_locked = FALSE, locked_until = NULL, updated_at = NOW()
		WHERE store_id = $1`

	if _, err := r.pool.Exec(ctx, query, storeID); err != nil {
		return fmt.Errorf("reset pin attempts: %w", err)
	}
	return nil
}

// UpdateKYCStatus mirrors the KYC record status onto the wallet.
func (r *WalletRepo) UpdateKYCStatus(ctx context.Context, tx pgx.Tx, storeID uuid.UUID, status domain.KYCStatus) error {
	query := `UPDATE wallets SET kyc_status = $1, updated_at = NOW() WHERE store_id = $2`

	tag, err := tx.Exec(ctx, query, status, storeID)
	if err != nil {
		return fmt.Errorf("update wallet kyc status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("wallet not found for store: %s", storeID)
	}
	return nil
}

// ListStoreIDs returns every store that has a wallet.
func (r *WalletRepo) ListStoreIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT store_id FROM wallets ORDER BY store_id`)
	if err != nil {
		return nil, fmt.Errorf("list wallet stores: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan wallet store: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wallet stores: %w", err)
	}
	return ids, nil
}
