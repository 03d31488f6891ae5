package postgres

import (
	"context"
	"errors"
	"fmt"

	"merchant-wallet-ledger/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// PaymentTransactionRepo implements ports.PaymentTransactionRepository.
type PaymentTransactionRepo struct {
	pool Pool
}

// NewPaymentTransactionRepo creates a new PaymentTransactionRepo.
func NewPaymentTransactionRepo(pool Pool) *PaymentTransactionRepo {
	return &PaymentTransactionRepo{pool: pool}
}

// Create inserts the payment within the settlement transaction. It returns
// false when the provider reference is already recorded.
func (r *PaymentTransactionRepo) Create(ctx context.Context, tx pgx.Tx, p *domain.PaymentTransaction) (bool, error) {
	query := `INSERT INTO payment_transactions (id, store_id, order_id, provider, provider_reference,
		amount_kobo, fees_kobo, net_kobo, currency, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (provider, provider_reference) DO NOTHING`

	tag, err := tx.Exec(ctx, query,
		p.ID, p.StoreID, p.OrderID, p.Provider, p.ProviderReference,
		p.AmountKobo, p.FeesKobo, p.NetKobo, p.Currency, p.Status, p.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert payment transaction: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// GetByReference fetches a payment by provider reference.
func (r *PaymentTransactionRepo) GetByReference(ctx context.Context, provider, reference string) (*domain.PaymentTransaction, error) {
	query := `SELECT id, store_id, order_id, provider, provider_reference, amount_kobo, fees_kobo, net_kobo,
		currency, status, created_at
		FROM payment_transactions WHERE provider = $1 AND provider_reference = $2`

	p := &domain.PaymentTransaction{}
	err := r.pool.QueryRow(ctx, query, provider, reference).Scan(
		&p.ID, &p.StoreID, &p.OrderID, &p.Provider, &p.ProviderReference,
		&p.AmountKobo, &p.FeesKobo, &p.NetKobo, &p.Currency, &p.Status, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get payment transaction: %w", err)
	}
	return p, nil
}
