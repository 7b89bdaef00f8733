package models

import (
	"time"

	"github.com/anishmaharjan/kinmel-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderItem is one line of an order. UnitPrice and LineTotal are captured at
// order time and immune to later catalog price changes. Status mirrors the
// parent fulfillment unless explicitly overridden.
type OrderItem struct {
	ID        uuid.UUID             `gorm:"column:id;type:uuid;default:(gen_random_uuid());primaryKey"`
	OrderID   uuid.UUID             `gorm:"column:order_id;type:uuid;not null;uniqueIndex:ux_order_items_order_variant;index:ix_order_items_order_seller"`
	SellerID  uuid.UUID             `gorm:"column:seller_id;type:uuid;not null;index:ix_order_items_order_seller"`
	ProductID uuid.UUID             `gorm:"column:product_id;type:uuid;not null"`
	VariantID uuid.UUID             `gorm:"column:variant_id;type:uuid;not null;uniqueIndex:ux_order_items_order_variant"`
	Quantity  int                   `gorm:"column:quantity;not null;check:quantity > 0"`
	UnitPrice decimal.Decimal       `gorm:"column:unit_price;type:decimal(12,2);not null"`
	LineTotal decimal.Decimal       `gorm:"column:line_total;type:decimal(12,2);not null"`
	Status    enums.OrderItemStatus `gorm:"column:status;not null;default:'pending';index"`
	CreatedAt time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}
