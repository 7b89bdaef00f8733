package models

import (
	"time"

	"github.com/anishmaharjan/kinmel-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderFulfillment is the unit of seller-facing work: one row per
// (order, seller). Each lifecycle timestamp is set on the first transition
// into that state and never overwritten. The fulfillment's items are a derived
// view (order items sharing order_id and seller_id), not an association.
type OrderFulfillment struct {
	ID             uuid.UUID               `gorm:"column:id;type:uuid;default:(gen_random_uuid());primaryKey"`
	OrderID        uuid.UUID               `gorm:"column:order_id;type:uuid;not null;uniqueIndex:ux_order_fulfillments_order_seller"`
	SellerID       uuid.UUID               `gorm:"column:seller_id;type:uuid;not null;uniqueIndex:ux_order_fulfillments_order_seller;index"`
	Status         enums.FulfillmentStatus `gorm:"column:status;not null;default:'pending';index"`
	SellerSubtotal decimal.Decimal         `gorm:"column:seller_subtotal;type:decimal(12,2);not null"`
	AcceptedAt     *time.Time              `gorm:"column:accepted_at"`
	PackedAt       *time.Time              `gorm:"column:packed_at"`
	ShippedAt      *time.Time              `gorm:"column:shipped_at"`
	DeliveredAt    *time.Time              `gorm:"column:delivered_at"`
	CreatedAt      time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}
