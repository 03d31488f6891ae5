package postgres

import (
	"context"
	"errors"
	"fmt"

	"merchant-wallet-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// StoreRepo implements ports.StoreRepository.
type StoreRepo struct {
	pool Pool
}

// NewStoreRepo creates a new StoreRepo.
func NewStoreRepo(pool Pool) *StoreRepo {
	return &StoreRepo{pool: pool}
}

// Create inserts a new store within a database transaction.
func (r *StoreRepo) Create(ctx context.Context, tx pgx.Tx, s *domain.Store) error {
	query := `INSERT INTO stores (id, name, owner_email, owner_phone, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := tx.Exec(ctx, query,
		s.ID, s.Name, s.OwnerEmail, s.OwnerPhone, s.Status, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert store: %w", err)
	}
	return nil
}

// GetByID fetches a store by its UUID.
func (r *StoreRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Store, error) {
	query := `SELECT id, name, owner_email, owner_phone, status, created_at, updated_at
		FROM stores WHERE id = $1`

	s := &domain.Store{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&s.ID, &s.Name, &s.OwnerEmail, &s.OwnerPhone, &s.Status, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get store by id: %w", err)
	}
	return s, nil
}

// UserRepo implements ports.UserRepository over the accounts table.
type UserRepo struct {
	pool Pool
}

// NewUserRepo creates a new UserRepo.
func NewUserRepo(pool Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

// Create inserts a login account within a database transaction.
func (r *UserRepo) Create(ctx context.Context, tx pgx.Tx, u *domain.User) error {
	query := `INSERT INTO accounts (id, store_id, username, password_hash, role, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := tx.Exec(ctx, query, u.ID, u.StoreID, u.Username, u.PasswordHash, u.Role, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// GetByUsername fetches an account by username (for login).
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	query := `SELECT id, store_id, username, password_hash, role, created_at
		FROM accounts WHERE username = $1`

	u := &domain.User{}
	err := r.pool.QueryRow(ctx, query, username).Scan(
		&u.ID, &u.StoreID, &u.Username, &u.PasswordHash, &u.Role, &u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get account by username: %w", err)
	}
	return u, nil
}
