package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"merchant-wallet-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const withdrawalColumns = `id, store_id, bank_account_id, amount_kobo, status, otp_hash, otp_expires_at,
		reference_code, provider_reference, failure_reason, locked_at, locked_by, created_at, updated_at`

// WithdrawalRepo implements ports.WithdrawalRepository.
type WithdrawalRepo struct {
	pool Pool
}

// NewWithdrawalRepo creates a new WithdrawalRepo.
func NewWithdrawalRepo(pool Pool) *WithdrawalRepo {
	return &WithdrawalRepo{pool: pool}
}

func scanWithdrawal(row pgx.Row) (*domain.Withdrawal, error) {
	w := &domain.Withdrawal{}
	err := row.Scan(
		&w.ID, &w.StoreID, &w.BankAccountID, &w.AmountKobo, &w.Status, &w.OTPHash, &w.OTPExpiresAt,
		&w.ReferenceCode, &w.ProviderReference, &w.FailureReason, &w.LockedAt, &w.LockedBy,
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

func collectWithdrawals(rows pgx.Rows) ([]domain.Withdrawal, error) {
	defer rows.Close()

	var out []domain.Withdrawal
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan withdrawal: %w", err)
		}
		out = append(out, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate withdrawals: %w", err)
	}
	return out, nil
}

// Create inserts a withdrawal in PENDING_OTP.
func (r *WithdrawalRepo) Create(ctx context.Context, w *domain.Withdrawal) error {
	query := `INSERT INTO withdrawals (id, store_id, bank_account_id, amount_kobo, status, otp_hash, otp_expires_at,
		reference_code, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.pool.Exec(ctx, query,
		w.ID, w.StoreID, w.BankAccountID, w.AmountKobo, w.Status, w.OTPHash, w.OTPExpiresAt,
		w.ReferenceCode, w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert withdrawal: %w", err)
	}
	return nil
}

// GetByID fetches a withdrawal without locking.
func (r *WithdrawalRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Withdrawal, error) {
	w, err := scanWithdrawal(r.pool.QueryRow(ctx, `SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("get withdrawal by id: %w", err)
	}
	return w, nil
}

// GetByIDForUpdate fetches a withdrawal with pessimistic locking.
// This MUST be called within a transaction.
func (r *WithdrawalRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Withdrawal, error) {
	w, err := scanWithdrawal(tx.QueryRow(ctx, `SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, fmt.Errorf("get withdrawal for update: %w", err)
	}
	return w, nil
}

// GetByReferenceForUpdate locks a withdrawal by its reference code.
func (r *WithdrawalRepo) GetByReferenceForUpdate(ctx context.Context, tx pgx.Tx, referenceCode string) (*domain.Withdrawal, error) {
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawals WHERE reference_code = $1 FOR UPDATE`
	w, err := scanWithdrawal(tx.QueryRow(ctx, query, referenceCode))
	if err != nil {
		return nil, fmt.Errorf("get withdrawal by reference: %w", err)
	}
	return w, nil
}

// ListByStore returns a page of the store's withdrawals, newest first.
func (r *WithdrawalRepo) ListByStore(ctx context.Context, storeID uuid.UUID, page, pageSize int) ([]domain.Withdrawal, int64, error) {
	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM withdrawals WHERE store_id = $1`, storeID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count withdrawals: %w", err)
	}

	query := `SELECT ` + withdrawalColumns + ` FROM withdrawals WHERE store_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, query, storeID, pageSize, offset(page, pageSize))
	if err != nil {
		return nil, 0, fmt.Errorf("list withdrawals: %w", err)
	}
	out, err := collectWithdrawals(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// ReservedKobo sums PROCESSING withdrawals, the funds already promised to the provider.
func (r *WithdrawalRepo) ReservedKobo(ctx context.Context, tx pgx.Tx, storeID uuid.UUID) (int64, error) {
	query := `SELECT COALESCE(SUM(amount_kobo), 0)::bigint FROM withdrawals WHERE store_id = $1 AND status = $2`

	var reserved int64
	if err := on(r.pool, tx).QueryRow(ctx, query, storeID, domain.WithdrawalStatusProcessing).Scan(&reserved); err != nil {
		return 0, fmt.Errorf("sum reserved withdrawals: %w", err)
	}
	return reserved, nil
}

// MarkProcessing consumes the OTP and moves PENDING_OTP to PROCESSING.
func (r *WithdrawalRepo) MarkProcessing(ctx context.Context, tx pgx.Tx, id uuid.UUID, at time.Time) (bool, error) {
	query := `UPDATE withdrawals SET status = $1, otp_hash = NULL, updated_at = $2
		WHERE id = $3 AND status = $4`

	tag, err := on(r.pool, tx).Exec(ctx, query, domain.WithdrawalStatusProcessing, at, id, domain.WithdrawalStatusPendingOTP)
	if err != nil {
		return false, fmt.Errorf("mark withdrawal processing: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// SetProviderReference records the provider's id for an in-flight transfer.
func (r *WithdrawalRepo) SetProviderReference(ctx context.Context, id uuid.UUID, providerRef string, at time.Time) error {
	query := `UPDATE withdrawals SET provider_reference = $1, updated_at = $2 WHERE id = $3`

	if _, err := r.pool.Exec(ctx, query, providerRef, at, id); err != nil {
		return fmt.Errorf("set withdrawal provider reference: %w", err)
	}
	return nil
}

// MarkSucceeded moves PROCESSING to SUCCESS. False means the row was not PROCESSING.
func (r *WithdrawalRepo) MarkSucceeded(ctx context.Context, tx pgx.Tx, id uuid.UUID, providerRef string, at time.Time) (bool, error) {
	query := `UPDATE withdrawals SET status = $1, provider_reference = COALESCE(NULLIF($2, ''), provider_reference),
		updated_at = $3
		WHERE id = $4 AND status = $5`

	tag, err := on(r.pool, tx).Exec(ctx, query, domain.WithdrawalStatusSuccess, providerRef, at, id, domain.WithdrawalStatusProcessing)
	if err != nil {
		return false, fmt.Errorf("mark withdrawal succeeded: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkFailed moves the withdrawal from the given status to FAILED.
func (r *WithdrawalRepo) MarkFailed(ctx context.Context, tx pgx.Tx, id uuid.UUID, from domain.WithdrawalStatus, reason string, at time.Time) (bool, error) {
	query := `UPDATE withdrawals SET status = $1, failure_reason = $2, otp_hash = NULL, updated_at = $3
		WHERE id = $4 AND status = $5`

	tag, err := on(r.pool, tx).Exec(ctx, query, domain.WithdrawalStatusFailed, reason, at, id, from)
	if err != nil {
		return false, fmt.Errorf("mark withdrawal failed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
