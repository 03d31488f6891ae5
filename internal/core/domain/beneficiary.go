package domain

import (
	"time"

	"github.com/google/uuid"
)

// BankBeneficiary is a merchant-registered payout destination.
type BankBeneficiary struct {
	ID                     uuid.UUID `json:"id"`
	StoreID                uuid.UUID `json:"store_id"`
	BankCode               string    `json:"bank_code"`
	AccountNumberEncrypted string    `json:"-"`
	AccountNumberMasked    string    `json:"account_number_masked"`
	AccountNumberHash      string    `json:"-"` // lookup key for duplicates
	AccountName            string    `json:"account_name"`
	IsActive               bool      `json:"is_active"`
	CreatedAt              time.Time `json:"created_at"`
}

// OwnedBy reports whether the beneficiary belongs to storeID.
func (b *BankBeneficiary) OwnedBy(storeID uuid.UUID) bool {
	return b.StoreID == storeID
}
