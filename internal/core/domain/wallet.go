package domain

import (
	"time"

	"github.com/google/uuid"
)

// KYCStatus is the identity-verification state mirrored on the wallet.
type KYCStatus string

const (
	KYCStatusNotStarted KYCStatus = "NOT_STARTED"
	KYCStatusPending    KYCStatus = "PENDING"
	KYCStatusVerified   KYCStatus = "VERIFIED"
	KYCStatusRejected   KYCStatus = "REJECTED"
)

// Wallet holds a store's balances in kobo plus its PIN lockout state.
// Balance columns change only inside a transaction that also appends a LedgerEntry.
type Wallet struct {
	ID                uuid.UUID  `json:"id"`
	StoreID           uuid.UUID  `json:"store_id"`
	Currency          string     `json:"currency"`
	AvailableKobo     int64      `json:"available_kobo"`
	PendingKobo       int64      `json:"pending_kobo"`
	KYCStatus         KYCStatus  `json:"kyc_status"`
	PINHash           *string    `json:"-"`
	PINSet            bool       `json:"pin_set"`
	FailedPINAttempts int        `json:"-"`
	IsLocked          bool       `json:"is_locked"`
	LockedUntil       *time.Time `json:"locked_until,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// PINLockActive reports whether PIN-gated operations are currently refused.
func (w *Wallet) PINLockActive(now time.Time) bool {
	return w.IsLocked && w.LockedUntil != nil && now.Before(*w.LockedUntil)
}

// PINLockExpired reports a lock whose window has passed but is not yet cleared.
func (w *Wallet) PINLockExpired(now time.Time) bool {
	return w.IsLocked && (w.LockedUntil == nil || !now.Before(*w.LockedUntil))
}

// CanWithdraw reports whether the KYC gate is open.
func (w *Wallet) CanWithdraw() bool {
	return w.KYCStatus == KYCStatusVerified
}
