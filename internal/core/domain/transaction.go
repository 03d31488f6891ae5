package domain

import (
	"time"

	"github.com/google/uuid"
)

// TransactionStatus represents the lifecycle state of a payment transaction.
type TransactionStatus string

const (
	TransactionStatusPending TransactionStatus = "PENDING"
	TransactionStatusSuccess TransactionStatus = "SUCCESS"
	TransactionStatusFailed  TransactionStatus = "FAILED"
)

// PaymentTransaction records a customer payment confirmed by the provider.
type PaymentTransaction struct {
	ID                uuid.UUID         `json:"id"`
	StoreID           uuid.UUID         `json:"store_id"`
	OrderID           uuid.UUID         `json:"order_id"`
	Provider          string            `json:"provider"`
	ProviderReference string            `json:"provider_reference"`
	AmountKobo        int64             `json:"amount_kobo"`
	FeesKobo          int64             `json:"fees_kobo"`
	NetKobo           int64             `json:"net_kobo"`
	Currency          string            `json:"currency"`
	Status            TransactionStatus `json:"status"`
	CreatedAt         time.Time         `json:"created_at"`
}
