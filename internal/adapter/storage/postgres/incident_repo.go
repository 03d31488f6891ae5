package postgres

import (
	"context"
	"errors"
	"fmt"

	"merchant-wallet-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// IncidentRepo implements ports.IncidentRepository. Rows are insert-only.
type IncidentRepo struct {
	pool Pool
}

// NewIncidentRepo creates a new IncidentRepo.
func NewIncidentRepo(pool Pool) *IncidentRepo {
	return &IncidentRepo{pool: pool}
}

// Create records a reconciliation mismatch.
func (r *IncidentRepo) Create(ctx context.Context, i *domain.ReconciliationIncident) error {
	query := `INSERT INTO reconciliation_incidents (id, run_id, store_id, wallet_kobo, ledger_kobo, delta_kobo, note, detected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.pool.Exec(ctx, query,
		i.ID, i.RunID, i.StoreID, i.WalletKobo, i.LedgerKobo, i.DeltaKobo, i.Note, i.DetectedAt,
	)
	if err != nil {
		return fmt.Errorf("insert reconciliation incident: %w", err)
	}
	return nil
}

// ListByRun returns the incidents of one run.
func (r *IncidentRepo) ListByRun(ctx context.Context, runID uuid.UUID) ([]domain.ReconciliationIncident, error) {
	query := `SELECT id, run_id, store_id, wallet_kobo, ledger_kobo, delta_kobo, note, detected_at
		FROM reconciliation_incidents WHERE run_id = $1 ORDER BY store_id`

	rows, err := r.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("list reconciliation incidents: %w", err)
	}
	defer rows.Close()

	var out []domain.ReconciliationIncident
	for rows.Next() {
		var i domain.ReconciliationIncident
		if err := rows.Scan(&i.ID, &i.RunID, &i.StoreID, &i.WalletKobo, &i.LedgerKobo, &i.DeltaKobo, &i.Note, &i.DetectedAt); err != nil {
			return nil, fmt.Errorf("scan reconciliation incident: %w", err)
		}
		out = append(out, i)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reconciliation incidents: %w", err)
	}
	return out, nil
}

// LatestRunID returns the run id of the most recent incident, nil when none.
func (r *IncidentRepo) LatestRunID(ctx context.Context) (*uuid.UUID, error) {
	var id uuid.UUID
	err := r.pool.QueryRow(ctx, `SELECT run_id FROM reconciliation_incidents ORDER BY detected_at DESC LIMIT 1`).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get latest reconciliation run: %w", err)
	}
	return &id, nil
}
