package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Transactor hands out the transactions that settlement, withdrawal
// claims and KYC review run their row locks in.
type Transactor struct {
	pool Pool
}

func NewTransactor(pool Pool) *Transactor {
	return &Transactor{pool: pool}
}

// Begin starts a transaction on the pool. Callers defer Rollback and Commit
// once their last guarded write has succeeded.
func (t *Transactor) Begin(ctx context.Context) (pgx.Tx, error) {
	tx, err := t.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning ledger transaction: %w", err)
	}
	return tx, nil
}
