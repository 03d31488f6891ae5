package postgres

import (
	"context"
	"fmt"

	"merchant-wallet-ledger/internal/core/domain"
	"merchant-wallet-ledger/pkg/money"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const ledgerColumns = `id, store_id, reference_type, reference_id, direction, account, amount::text, currency,
		description, created_at`

// LedgerRepo implements ports.LedgerRepository. Amounts are kobo in Go and
// NUMERIC major units in the table; conversion happens only here.
type LedgerRepo struct {
	pool Pool
}

// NewLedgerRepo creates a new LedgerRepo.
func NewLedgerRepo(pool Pool) *LedgerRepo {
	return &LedgerRepo{pool: pool}
}

// Create appends an entry within the transaction that mutates the wallet.
func (r *LedgerRepo) Create(ctx context.Context, tx pgx.Tx, e *domain.LedgerEntry) error {
	query := `INSERT INTO ledger_entries (id, store_id, reference_type, reference_id, direction, account, amount,
		currency, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8, $9, $10)`

	_, err := tx.Exec(ctx, query,
		e.ID, e.StoreID, e.ReferenceType, e.ReferenceID, e.Direction, e.Account,
		money.FromKobo(e.AmountKobo).StringFixed(2), e.Currency, e.Description, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

// ListByStore returns a page of the store's entries, newest first.
func (r *LedgerRepo) ListByStore(ctx context.Context, storeID uuid.UUID, page, pageSize int) ([]domain.LedgerEntry, int64, error) {
	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM ledger_entries WHERE store_id = $1`, storeID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count ledger entries: %w", err)
	}

	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries WHERE store_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, query, storeID, pageSize, offset(page, pageSize))
	if err != nil {
		return nil, 0, fmt.Errorf("list ledger entries: %w", err)
	}
	entries, err := collectLedger(rows)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// ListAllByStore returns every entry of the store, oldest first.
func (r *LedgerRepo) ListAllByStore(ctx context.Context, storeID uuid.UUID) ([]domain.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries WHERE store_id = $1 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, storeID)
	if err != nil {
		return nil, fmt.Errorf("list all ledger entries: %w", err)
	}
	return collectLedger(rows)
}

// WalletSum returns the signed sum of the entries that move the wallet
// balance in major units. Payout debits are included on purpose: a paid
// withdrawal is recorded only as DEBIT on the payouts account, so a
// WALLET-only sum would report every payout as drift.
func (r *LedgerRepo) WalletSum(ctx context.Context, storeID uuid.UUID) (decimal.Decimal, error) {
	query := `SELECT COALESCE(SUM(CASE WHEN direction = 'CREDIT' THEN amount ELSE -amount END), 0)::text
		FROM ledger_entries WHERE store_id = $1 AND account IN ($2, $3)`

	var raw string
	if err := r.pool.QueryRow(ctx, query, storeID, domain.LedgerAccountWallet, domain.LedgerAccountPayouts).Scan(&raw); err != nil {
		return decimal.Zero, fmt.Errorf("sum wallet ledger: %w", err)
	}
	sum, err := money.ParseMajor(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse wallet ledger sum %q: %w", raw, err)
	}
	return sum, nil
}

func collectLedger(rows pgx.Rows) ([]domain.LedgerEntry, error) {
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		var amount string
		if err := rows.Scan(
			&e.ID, &e.StoreID, &e.ReferenceType, &e.ReferenceID, &e.Direction, &e.Account,
			&amount, &e.Currency, &e.Description, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		major, err := money.ParseMajor(amount)
		if err != nil {
			return nil, fmt.Errorf("parse ledger amount %q: %w", amount, err)
		}
		if e.AmountKobo, err = money.ToKobo(major); err != nil {
			return nil, fmt.Errorf("ledger entry %s: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger entries: %w", err)
	}
	return entries, nil
}
