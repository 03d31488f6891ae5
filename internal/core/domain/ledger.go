package domain

import (
	"time"

	"github.com/google/uuid"
)

// Direction is the sign of a ledger movement.
type Direction string

const (
	DirectionCredit Direction = "CREDIT"
	DirectionDebit  Direction = "DEBIT"
)

// LedgerAccount names the account a ledger entry moves money against.
type LedgerAccount string

const (
	LedgerAccountWallet  LedgerAccount = "WALLET"
	LedgerAccountPayouts LedgerAccount = "payouts"
)

// Ledger reference types.
const (
	ReferencePaymentTransaction = "payment_transaction"
	ReferenceWithdrawal         = "withdrawal"
)

// LedgerEntry is an immutable record of one money movement. Amounts travel as
// kobo; the store persists them as major units.
type LedgerEntry struct {
	ID            uuid.UUID     `json:"id"`
	StoreID       uuid.UUID     `json:"store_id"`
	ReferenceType string        `json:"reference_type"`
	ReferenceID   string        `json:"reference_id"`
	Direction     Direction     `json:"direction"`
	Account       LedgerAccount `json:"account"`
	AmountKobo    int64         `json:"amount_kobo"`
	Currency      string        `json:"currency"`
	Description   string        `json:"description"`
	CreatedAt     time.Time     `json:"created_at"`
}

// SignedKobo returns the amount with a negative sign for debits.
func (e *LedgerEntry) SignedKobo() int64 {
	if e.Direction == DirectionDebit {
		return -e.AmountKobo
	}
	return e.AmountKobo
}
