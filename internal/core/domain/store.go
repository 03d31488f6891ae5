package domain

import (
	"time"

	"github.com/google/uuid"
)

// StoreStatus represents the state of a merchant store.
type StoreStatus string

const (
	StoreStatusActive    StoreStatus = "ACTIVE"
	StoreStatusSuspended StoreStatus = "SUSPENDED"
)

// Store is a merchant storefront. Each store owns exactly one wallet.
type Store struct {
	ID         uuid.UUID   `json:"id"`
	Name       string      `json:"name"`
	OwnerEmail string      `json:"owner_email"`
	OwnerPhone string      `json:"owner_phone,omitempty"`
	Status     StoreStatus `json:"status"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// IsActive returns true if the store may transact.
func (s *Store) IsActive() bool {
	return s.Status == StoreStatusActive
}

// Role distinguishes merchant owners from platform operators.
type Role string

const (
	RoleMerchant Role = "merchant"
	RoleOps      Role = "ops"
)

// User is a login identity. Merchant users belong to a store; ops users do not.
type User struct {
	ID           uuid.UUID  `json:"id"`
	StoreID      *uuid.UUID `json:"store_id,omitempty"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"` // Never expose
	Role         Role       `json:"role"`
	CreatedAt    time.Time  `json:"created_at"`
}
