package models

import (
	"time"

	"github.com/anishmaharjan/kinmel-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order is the immutable result of a checkout. TotalPrice is the grand total
// (items subtotal plus the flat delivery charge). The address snapshot, items
// and per-seller fulfillments are owned by the order and cascade with it.
type Order struct {
	ID              uuid.UUID          `gorm:"column:id;type:uuid;default:(gen_random_uuid());primaryKey"`
	BuyerID         uuid.UUID          `gorm:"column:buyer_id;type:uuid;not null;index"`
	Status          enums.OrderStatus  `gorm:"column:status;not null;default:'placed';index"`
	TotalPrice      decimal.Decimal    `gorm:"column:total_price;type:decimal(12,2);not null"`
	PlacedAt        time.Time          `gorm:"column:placed_at;not null"`
	ShippingAddress *OrderAddress      `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Items           []OrderItem        `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Fulfillments    []OrderFulfillment `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
