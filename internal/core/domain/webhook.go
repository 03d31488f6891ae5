package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// WebhookEventStatus is the claim-check state of an inbound provider event.
type WebhookEventStatus string

const (
	WebhookEventReceived  WebhookEventStatus = "RECEIVED"
	WebhookEventProcessed WebhookEventStatus = "PROCESSED"
	WebhookEventFailed    WebhookEventStatus = "FAILED"
)

// Provider event types handled by the settlement engine.
const (
	EventChargeSuccess    = "charge.success"
	EventTransferSuccess  = "transfer.success"
	EventTransferFailed   = "transfer.failed"
	EventTransferReversed = "transfer.reversed"

	PurchaseTypeStorefrontOrder = "storefront_order"
)

// PaymentWebhookEvent is the durable idempotency guard row, unique on
// (Provider, ProviderEventID).
type PaymentWebhookEvent struct {
	ID              uuid.UUID          `json:"id"`
	Provider        string             `json:"provider"`
	ProviderEventID string             `json:"provider_event_id"`
	EventType       string             `json:"event_type"`
	Payload         []byte             `json:"-"`
	Status          WebhookEventStatus `json:"status"`
	Attempts        int                `json:"attempts"`
	LastError       *string            `json:"last_error,omitempty"`
	NextRetryAt     *time.Time         `json:"next_retry_at,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
	ProcessedAt     *time.Time         `json:"processed_at,omitempty"`
}

// IsProcessed returns true once the paired settlement committed.
func (e *PaymentWebhookEvent) IsProcessed() bool {
	return e.Status == WebhookEventProcessed
}

// Reclaimable reports whether a redelivery may take over processing:
// failed rows, or received rows whose processor went quiet for longer than staleAfter.
func (e *PaymentWebhookEvent) Reclaimable(now time.Time, staleAfter time.Duration) bool {
	switch e.Status {
	case WebhookEventFailed:
		return true
	case WebhookEventReceived:
		return now.Sub(e.UpdatedAt) > staleAfter
	}
	return false
}

// FlexibleID accepts both JSON numbers and strings; providers send either.
type FlexibleID string

func (f *FlexibleID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = FlexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexibleID(n.String())
	return nil
}

// ProviderEvent is the inbound webhook body.
type ProviderEvent struct {
	Event    string                `json:"event"`
	Data     ProviderEventData     `json:"data"`
	Metadata ProviderEventMetadata `json:"metadata"`
}

// ProviderEventData carries the money fields. Amounts are kobo.
type ProviderEventData struct {
	ID        FlexibleID `json:"id"`
	Reference string     `json:"reference"`
	Amount    int64      `json:"amount"`
	Fees      int64      `json:"fees"`
	Currency  string     `json:"currency"`
	Status    string     `json:"status,omitempty"`
	Reason    string     `json:"reason,omitempty"`
}

// ProviderEventMetadata is echoed back from the checkout initialisation.
type ProviderEventMetadata struct {
	StoreID string `json:"storeId"`
	Type    string `json:"type"`
	OrderID string `json:"orderId"`
}

// EventID derives the provider-unique event identifier used by the guard.
func (e *ProviderEvent) EventID() string {
	id := strings.TrimSpace(string(e.Data.ID))
	if id == "" {
		id = e.Data.Reference
	}
	return e.Event + ":" + id
}

// IsStorefrontCharge reports whether the event settles a storefront order.
func (e *ProviderEvent) IsStorefrontCharge() bool {
	return e.Event == EventChargeSuccess && e.Metadata.Type == PurchaseTypeStorefrontOrder
}

// IsTransferOutcome reports whether the event resolves a payout.
func (e *ProviderEvent) IsTransferOutcome() bool {
	switch e.Event {
	case EventTransferSuccess, EventTransferFailed, EventTransferReversed:
		return true
	}
	return false
}

// NetKobo is the amount credited to the merchant.
func (d ProviderEventData) NetKobo() int64 {
	return d.Amount - d.Fees
}
