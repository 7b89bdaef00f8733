package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/anishmaharjan/kinmel-backend/pkg/enums"
)

// OrderPlacedEvent signals a committed checkout with its per-seller split.
type OrderPlacedEvent struct {
	OrderID    uuid.UUID   `json:"order_id"`
	BuyerID    uuid.UUID   `json:"buyer_id"`
	SellerIDs  []uuid.UUID `json:"seller_ids"`
	TotalPrice string      `json:"total_price"`
	PlacedAt   time.Time   `json:"placed_at"`
}

// OrderExpiredEvent signals an unpaid order that was cancelled by the
// maintenance worker, with its stock already returned.
type OrderExpiredEvent struct {
	OrderID   uuid.UUID `json:"order_id"`
	BuyerID   uuid.UUID `json:"buyer_id"`
	ExpiredAt time.Time `json:"expired_at"`
}

// PaymentReconciledEvent is emitted whenever a payment row changes status.
type PaymentReconciledEvent struct {
	PaymentID       uuid.UUID           `json:"payment_id"`
	OrderID         uuid.UUID           `json:"order_id"`
	TransactionUUID string              `json:"transaction_uuid"`
	Status          enums.PaymentStatus `json:"status"`
	RefID           string              `json:"ref_id,omitempty"`
	Source          string              `json:"source"`
}

// FulfillmentUpdatedEvent surfaces a seller shipment moving through its lifecycle.
type FulfillmentUpdatedEvent struct {
	FulfillmentID uuid.UUID               `json:"fulfillment_id"`
	OrderID       uuid.UUID               `json:"order_id"`
	SellerID      uuid.UUID               `json:"seller_id"`
	Status        enums.FulfillmentStatus `json:"status"`
	UpdatedAt     time.Time               `json:"updated_at"`
}
