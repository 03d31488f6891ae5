package postgres

import (
	"context"
	"errors"
	"fmt"

	"merchant-wallet-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const beneficiaryColumns = `id, store_id, bank_code, account_number_enc, account_number_masked, account_number_hash,
		account_name, is_active, created_at`

// BeneficiaryRepo implements ports.BeneficiaryRepository.
type BeneficiaryRepo struct {
	pool Pool
}

// NewBeneficiaryRepo creates a new BeneficiaryRepo.
func NewBeneficiaryRepo(pool Pool) *BeneficiaryRepo {
	return &BeneficiaryRepo{pool: pool}
}

func scanBeneficiary(row pgx.Row) (*domain.BankBeneficiary, error) {
	b := &domain.BankBeneficiary{}
	err := row.Scan(
		&b.ID, &b.StoreID, &b.BankCode, &b.AccountNumberEncrypted, &b.AccountNumberMasked,
		&b.AccountNumberHash, &b.AccountName, &b.IsActive, &b.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return b, nil
}

// Create inserts a beneficiary.
func (r *BeneficiaryRepo) Create(ctx context.Context, b *domain.BankBeneficiary) error {
	query := `INSERT INTO bank_beneficiaries (id, store_id, bank_code, account_number_enc, account_number_masked,
		account_number_hash, account_name, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.pool.Exec(ctx, query,
		b.ID, b.StoreID, b.BankCode, b.AccountNumberEncrypted, b.AccountNumberMasked,
		b.AccountNumberHash, b.AccountName, b.IsActive, b.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert beneficiary: %w", err)
	}
	return nil
}

// GetByID fetches a beneficiary.
func (r *BeneficiaryRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.BankBeneficiary, error) {
	b, err := scanBeneficiary(r.pool.QueryRow(ctx, `SELECT `+beneficiaryColumns+` FROM bank_beneficiaries WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("get beneficiary: %w", err)
	}
	return b, nil
}

// FindActiveByHash looks up an active duplicate of the same account.
func (r *BeneficiaryRepo) FindActiveByHash(ctx context.Context, storeID uuid.UUID, bankCode, accountHash string) (*domain.BankBeneficiary, error) {
	query := `SELECT ` + beneficiaryColumns + ` FROM bank_beneficiaries
		WHERE store_id = $1 AND bank_code = $2 AND account_number_hash = $3 AND is_active`
	b, err := scanBeneficiary(r.pool.QueryRow(ctx, query, storeID, bankCode, accountHash))
	if err != nil {
		return nil, fmt.Errorf("find beneficiary by hash: %w", err)
	}
	return b, nil
}

// ListByStore returns the store's active beneficiaries.
func (r *BeneficiaryRepo) ListByStore(ctx context.Context, storeID uuid.UUID) ([]domain.BankBeneficiary, error) {
	query := `SELECT ` + beneficiaryColumns + ` FROM bank_beneficiaries
		WHERE store_id = $1 AND is_active ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query, storeID)
	if err != nil {
		return nil, fmt.Errorf("list beneficiaries: %w", err)
	}
	defer rows.Close()

	var out []domain.BankBeneficiary
	for rows.Next() {
		b, err := scanBeneficiary(rows)
		if err != nil {
			return nil, fmt.Errorf("scan beneficiary: %w", err)
		}
		out = append(out, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate beneficiaries: %w", err)
	}
	return out, nil
}

// Deactivate soft-deletes a beneficiary owned by storeID.
func (r *BeneficiaryRepo) Deactivate(ctx context.Context, id, storeID uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE bank_beneficiaries SET is_active = FALSE WHERE id = $1 AND store_id = $2 AND is_active`,
		id, storeID,
	)
	if err != nil {
		return false, fmt.Errorf("deactivate beneficiary: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
