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

// lockTables maps lock kinds to the tables carrying locked_at/locked_by.
// Table names are never taken from input.
var lockTables = map[domain.LockKind]string{
	domain.LockKindWithdrawal: "withdrawals",
	domain.LockKindExportJob:  "export_jobs",
}

// LockRepo implements ports.LockRepository as conditional updates on the resource row.
type LockRepo struct {
	pool Pool
}

// NewLockRepo creates a new LockRepo.
func NewLockRepo(pool Pool) *LockRepo {
	return &LockRepo{pool: pool}
}

func lockTable(kind domain.LockKind) (string, error) {
	table, ok := lockTables[kind]
	if !ok {
		return "", fmt.Errorf("unknown lock kind %q", kind)
	}
	return table, nil
}

// TryAcquire succeeds when the lock is free, stale, or already owned by actor.
// The affected-row count is the only success signal.
func (r *LockRepo) TryAcquire(ctx context.Context, kind domain.LockKind, id uuid.UUID, actor string, now, staleBefore time.Time) (bool, error) {
	table, err := lockTable(kind)
	if err != nil {
		return false, err
	}
	query := `UPDATE ` + table + ` SET locked_at = $1, locked_by = $2
		WHERE id = $3 AND (locked_at IS NULL OR locked_at < $4 OR locked_by = $2)`

	tag, err := r.pool.Exec(ctx, query, now, actor, id, staleBefore)
	if err != nil {
		return false, fmt.Errorf("acquire %s lock: %w", kind, err)
	}
	return tag.RowsAffected() == 1, nil
}

// GetHolder reads the lock columns. Returns nil when the row does not exist.
func (r *LockRepo) GetHolder(ctx context.Context, kind domain.LockKind, id uuid.UUID) (*domain.LockHolder, error) {
	table, err := lockTable(kind)
	if err != nil {
		return nil, err
	}

	h := &domain.LockHolder{Kind: kind, ID: id}
	err = r.pool.QueryRow(ctx, `SELECT locked_at, locked_by FROM `+table+` WHERE id = $1`, id).Scan(&h.LockedAt, &h.LockedBy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get %s lock holder: %w", kind, err)
	}
	return h, nil
}

// Release clears the lock only while actor still owns it.
func (r *LockRepo) Release(ctx context.Context, kind domain.LockKind, id uuid.UUID, actor string) (bool, error) {
	table, err := lockTable(kind)
	if err != nil {
		return false, err
	}
	query := `UPDATE ` + table + ` SET locked_at = NULL, locked_by = NULL WHERE id = $1 AND locked_by = $2`

	tag, err := r.pool.Exec(ctx, query, id, actor)
	if err != nil {
		return false, fmt.Errorf("release %s lock: %w", kind, err)
	}
	return tag.RowsAffected() == 1, nil
}

// SweepStale clears every lock older than staleBefore regardless of owner.
func (r *LockRepo) SweepStale(ctx context.Context, kind domain.LockKind, staleBefore time.Time) (int64, error) {
	table, err := lockTable(kind)
	if err != nil {
		return 0, err
	}
	query := `UPDATE ` + table + ` SET locked_at = NULL, locked_by = NULL
		WHERE locked_at IS NOT NULL AND locked_at < $1`

	tag, err := r.pool.Exec(ctx, query, staleBefore)
	if err != nil {
		return 0, fmt.Errorf("sweep %s locks: %w", kind, err)
	}
	return tag.RowsAffected(), nil
}
