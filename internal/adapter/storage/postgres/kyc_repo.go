package postgres

import (
	"context"
	"errors"
	"fmt"

	"merchant-wallet-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const kycColumns = `id, store_id, id_type, id_number_enc, id_number_masked, full_name, status, reviewed_by,
		rejection_reason, submitted_at, reviewed_at`

// KYCRepo implements ports.KYCRepository.
type KYCRepo struct {
	pool Pool
}

// NewKYCRepo creates a new KYCRepo.
func NewKYCRepo(pool Pool) *KYCRepo {
	return &KYCRepo{pool: pool}
}

func scanKYC(row pgx.Row) (*domain.KycRecord, error) {
	k := &domain.KycRecord{}
	err := row.Scan(
		&k.ID, &k.StoreID, &k.IDType, &k.IDNumberEncrypted, &k.IDNumberMasked, &k.FullName, &k.Status,
		&k.ReviewedBy, &k.RejectionReason, &k.SubmittedAt, &k.ReviewedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return k, nil
}

// Create inserts a submission within the transaction that updates the wallet.
func (r *KYCRepo) Create(ctx context.Context, tx pgx.Tx, k *domain.KycRecord) error {
	query := `INSERT INTO kyc_records (id, store_id, id_type, id_number_enc, id_number_masked, full_name, status, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := tx.Exec(ctx, query,
		k.ID, k.StoreID, k.IDType, k.IDNumberEncrypted, k.IDNumberMasked, k.FullName, k.Status, k.SubmittedAt,
	)
	if err != nil {
		return fmt.Errorf("insert kyc record: %w", err)
	}
	return nil
}

// GetByID fetches a submission.
func (r *KYCRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.KycRecord, error) {
	k, err := scanKYC(r.pool.QueryRow(ctx, `SELECT `+kycColumns+` FROM kyc_records WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("get kyc record: %w", err)
	}
	return k, nil
}

// GetByIDForUpdate locks a submission for review.
func (r *KYCRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.KycRecord, error) {
	k, err := scanKYC(tx.QueryRow(ctx, `SELECT `+kycColumns+` FROM kyc_records WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, fmt.Errorf("get kyc record for update: %w", err)
	}
	return k, nil
}

// GetLatestByStore returns the most recent submission of a store.
func (r *KYCRepo) GetLatestByStore(ctx context.Context, storeID uuid.UUID) (*domain.KycRecord, error) {
	query := `SELECT ` + kycColumns + ` FROM kyc_records WHERE store_id = $1 ORDER BY submitted_at DESC LIMIT 1`
	k, err := scanKYC(r.pool.QueryRow(ctx, query, storeID))
	if err != nil {
		return nil, fmt.Errorf("get latest kyc record: %w", err)
	}
	return k, nil
}

// ListPending returns submissions awaiting review, oldest first.
func (r *KYCRepo) ListPending(ctx context.Context, limit int) ([]domain.KycRecord, error) {
	query := `SELECT ` + kycColumns + ` FROM kyc_records WHERE status = $1 ORDER BY submitted_at ASC LIMIT $2`
	rows, err := r.pool.Query(ctx, query, domain.KYCStatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending kyc: %w", err)
	}
	defer rows.Close()

	var out []domain.KycRecord
	for rows.Next() {
		k, err := scanKYC(rows)
		if err != nil {
			return nil, fmt.Errorf("scan kyc record: %w", err)
		}
		out = append(out, *k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate kyc records: %w", err)
	}
	return out, nil
}

// UpdateReview stores an operator decision.
func (r *KYCRepo) UpdateReview(ctx context.Context, tx pgx.Tx, k *domain.KycRecord) error {
	query := `UPDATE kyc_records SET status = $1, reviewed_by = $2, rejection_reason = $3, reviewed_at = $4
		WHERE id = $5`

	tag, err := tx.Exec(ctx, query, k.Status, k.ReviewedBy, k.RejectionReason, k.ReviewedAt, k.ID)
	if err != nil {
		return fmt.Errorf("update kyc review: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("kyc record not found: %s", k.ID)
	}
	return nil
}
