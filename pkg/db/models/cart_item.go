package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CartItem is one (cart, variant) line. Adding the same variant again merges
// into the existing row instead of duplicating it. UnitPrice is the display
// price captured at add time; checkout snapshots the variant's current price,
// not this one.
type CartItem struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;default:(gen_random_uuid());primaryKey"`
	CartID    uuid.UUID       `gorm:"column:cart_id;type:uuid;not null;uniqueIndex:ux_cart_items_cart_variant"`
	VariantID uuid.UUID       `gorm:"column:variant_id;type:uuid;not null;uniqueIndex:ux_cart_items_cart_variant"`
	Variant   *ProductVariant `gorm:"foreignKey:VariantID"`
	Quantity  int             `gorm:"column:quantity;not null;check:quantity > 0"`
	UnitPrice decimal.Decimal `gorm:"column:unit_price;type:decimal(12,2);not null"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
