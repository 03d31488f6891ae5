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

const exportColumns = `id, store_id, requested_by, status, row_count, content, expires_at, locked_at, locked_by,
		created_at, updated_at`

// ExportRepo implements ports.ExportRepository.
type ExportRepo struct {
	pool Pool
}

// NewExportRepo creates a new ExportRepo.
func NewExportRepo(pool Pool) *ExportRepo {
	return &ExportRepo{pool: pool}
}

func scanExport(row pgx.Row) (*domain.ExportJob, error) {
	e := &domain.ExportJob{}
	err := row.Scan(
		&e.ID, &e.StoreID, &e.RequestedBy, &e.Status, &e.RowCount, &e.Content, &e.ExpiresAt,
		&e.LockedAt, &e.LockedBy, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return e, nil
}

// Create inserts an export job.
func (r *ExportRepo) Create(ctx context.Context, e *domain.ExportJob) error {
	query := `INSERT INTO export_jobs (id, store_id, requested_by, status, row_count, content, expires_at,
		created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.pool.Exec(ctx, query,
		e.ID, e.StoreID, e.RequestedBy, e.Status, e.RowCount, e.Content, e.ExpiresAt, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert export job: %w", err)
	}
	return nil
}

// GetByID fetches an export job including its content.
func (r *ExportRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.ExportJob, error) {
	e, err := scanExport(r.pool.QueryRow(ctx, `SELECT `+exportColumns+` FROM export_jobs WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("get export job: %w", err)
	}
	return e, nil
}

// SaveContent stores regenerated content and status.
func (r *ExportRepo) SaveContent(ctx context.Context, e *domain.ExportJob) error {
	query := `UPDATE export_jobs SET status = $1, row_count = $2, content = $3, expires_at = $4, updated_at = $5
		WHERE id = $6`

	tag, err := r.pool.Exec(ctx, query, e.Status, e.RowCount, e.Content, e.ExpiresAt, e.UpdatedAt, e.ID)
	if err != nil {
		return fmt.Errorf("save export content: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("export job not found: %s", e.ID)
	}
	return nil
}

// MarkExpired expires the job and drops its content.
func (r *ExportRepo) MarkExpired(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE export_jobs SET status = $1, content = NULL, updated_at = $2 WHERE id = $3`

	tag, err := r.pool.Exec(ctx, query, domain.ExportJobStatusExpired, at, id)
	if err != nil {
		return fmt.Errorf("expire export job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("export job not found: %s", id)
	}
	return nil
}
