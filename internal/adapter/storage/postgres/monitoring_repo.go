package postgres

import (
	"context"
	"fmt"
	"time"

	"merchant-wallet-ledger/internal/core/domain"
)

// MonitoringRepo implements ports.MonitoringRepository. Every query is read-only.
type MonitoringRepo struct {
	pool Pool
}

// NewMonitoringRepo creates a new MonitoringRepo.
func NewMonitoringRepo(pool Pool) *MonitoringRepo {
	return &MonitoringRepo{pool: pool}
}

// StuckWithdrawals lists PROCESSING withdrawals not updated since updatedBefore.
func (r *MonitoringRepo) StuckWithdrawals(ctx context.Context, updatedBefore time.Time, limit int) ([]domain.Withdrawal, error) {
	query := `SELECT ` + withdrawalColumns + ` FROM (
			SELECT ` + withdrawalColumns + ` FROM withdrawals
			WHERE status = $1 AND updated_at < $2
			ORDER BY updated_at DESC LIMIT $3
		) recent ORDER BY updated_at ASC`

	rows, err := r.pool.Query(ctx, query, domain.WithdrawalStatusProcessing, updatedBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("query stuck withdrawals: %w", err)
	}
	return collectWithdrawals(rows)
}

// AgingWithdrawals lists PENDING_OTP withdrawals created before createdBefore.
func (r *MonitoringRepo) AgingWithdrawals(ctx context.Context, createdBefore time.Time, limit int) ([]domain.Withdrawal, error) {
	query := `SELECT ` + withdrawalColumns + ` FROM (
			SELECT ` + withdrawalColumns + ` FROM withdrawals
			WHERE status = $1 AND created_at < $2
			ORDER BY created_at DESC LIMIT $3
		) recent ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, domain.WithdrawalStatusPendingOTP, createdBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("query aging withdrawals: %w", err)
	}
	return collectWithdrawals(rows)
}

// StuckExports lists READY exports whose expiry already passed. Content is not loaded.
func (r *MonitoringRepo) StuckExports(ctx context.Context, now time.Time, limit int) ([]domain.ExportJob, error) {
	cols := `id, store_id, requested_by, status, row_count, NULL::bytea AS content, expires_at, locked_at, locked_by,
		created_at, updated_at`
	query := `SELECT * FROM (
			SELECT ` + cols + ` FROM export_jobs
			WHERE status = $1 AND expires_at < $2
			ORDER BY expires_at DESC LIMIT $3
		) recent ORDER BY expires_at ASC`

	rows, err := r.pool.Query(ctx, query, domain.ExportJobStatusReady, now, limit)
	if err != nil {
		return nil, fmt.Errorf("query stuck exports: %w", err)
	}
	defer rows.Close()

	var out []domain.ExportJob
	for rows.Next() {
		e, err := scanExport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stuck export: %w", err)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stuck exports: %w", err)
	}
	return out, nil
}

// AverageTimeToPaid is the mean seconds from creation to SUCCESS over the
// latest limit withdrawals settled since since.
func (r *MonitoringRepo) AverageTimeToPaid(ctx context.Context, since time.Time, limit int) (*float64, error) {
	query := `SELECT AVG(EXTRACT(EPOCH FROM (updated_at - created_at)))::float8 FROM (
			SELECT created_at, updated_at FROM withdrawals
			WHERE status = $1 AND updated_at >= $2
			ORDER BY updated_at DESC LIMIT $3
		) recent`

	var avg *float64
	if err := r.pool.QueryRow(ctx, query, domain.WithdrawalStatusSuccess, since, limit).Scan(&avg); err != nil {
		return nil, fmt.Errorf("average time to paid: %w", err)
	}
	return avg, nil
}

// CountWithdrawalsByStatus groups every withdrawal by status.
func (r *MonitoringRepo) CountWithdrawalsByStatus(ctx context.Context) (map[domain.WithdrawalStatus]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM withdrawals GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count withdrawals by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.WithdrawalStatus]int64)
	for rows.Next() {
		var status domain.WithdrawalStatus
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan withdrawal count: %w", err)
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate withdrawal counts: %w", err)
	}
	return counts, nil
}
