package domain

import (
	"time"

	"github.com/google/uuid"
)

// OrderStatus is the payment state of a storefront order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusPaid      OrderStatus = "PAID"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// Order is the slice of a storefront order the settlement engine touches.
type Order struct {
	ID        uuid.UUID   `json:"id"`
	StoreID   uuid.UUID   `json:"store_id"`
	TotalKobo int64       `json:"total_kobo"`
	Status    OrderStatus `json:"status"`
	PaidAt    *time.Time  `json:"paid_at,omitempty"`
	// DeliveryScheduledAt is set once the delivery job was queued for the order.
	DeliveryScheduledAt *time.Time `json:"delivery_scheduled_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// IsPaid returns true once settlement committed.
func (o *Order) IsPaid() bool {
	return o.Status == OrderStatusPaid
}

// DeliveryScheduled reports whether delivery was queued for the order.
func (o *Order) DeliveryScheduled() bool {
	return o.DeliveryScheduledAt != nil
}
