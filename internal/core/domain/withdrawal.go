package domain

import (
	"time"

	"github.com/google/uuid"
)

// WithdrawalStatus is a state of the payout state machine.
type WithdrawalStatus string

const (
	WithdrawalStatusPendingOTP WithdrawalStatus = "PENDING_OTP"
	WithdrawalStatusProcessing WithdrawalStatus = "PROCESSING"
	WithdrawalStatusSuccess    WithdrawalStatus = "SUCCESS"
	WithdrawalStatusFailed     WithdrawalStatus = "FAILED"
)

var withdrawalTransitions = map[WithdrawalStatus][]WithdrawalStatus{
	WithdrawalStatusPendingOTP: {WithdrawalStatusProcessing, WithdrawalStatusFailed},
	WithdrawalStatusProcessing: {WithdrawalStatusSuccess, WithdrawalStatusFailed},
}

// CanTransition reports whether from -> to is a legal move.
func (s WithdrawalStatus) CanTransition(to WithdrawalStatus) bool {
	for _, next := range withdrawalTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal returns true for SUCCESS and FAILED.
func (s WithdrawalStatus) IsTerminal() bool {
	return s == WithdrawalStatusSuccess || s == WithdrawalStatusFailed
}

// Withdrawal moves money from a wallet to a bank beneficiary. LockedAt and
// LockedBy hold the operator soft lock.
type Withdrawal struct {
	ID                uuid.UUID        `json:"id"`
	StoreID           uuid.UUID        `json:"store_id"`
	BankAccountID     uuid.UUID        `json:"bank_account_id"`
	AmountKobo        int64            `json:"amount_kobo"`
	Status            WithdrawalStatus `json:"status"`
	OTPHash           *string          `json:"-"`
	OTPExpiresAt      *time.Time       `json:"otp_expires_at,omitempty"`
	ReferenceCode     string           `json:"reference_code"`
	ProviderReference *string          `json:"provider_reference,omitempty"`
	FailureReason     *string          `json:"failure_reason,omitempty"`
	LockedAt          *time.Time       `json:"locked_at,omitempty"`
	LockedBy          *string          `json:"locked_by,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// OTPExpired reports whether the OTP window has closed at now.
// A missing expiry counts as expired.
func (w *Withdrawal) OTPExpired(now time.Time) bool {
	return w.OTPExpiresAt == nil || !now.Before(*w.OTPExpiresAt)
}

// OTPConsumed reports whether the OTP was already used by a successful confirm.
func (w *Withdrawal) OTPConsumed() bool {
	return w.OTPHash == nil
}
