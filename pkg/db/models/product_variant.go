package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductVariant is a purchasable SKU (specific color/size) carrying its own
// price and stock counter. StockQuantity is only mutated through the stock
// ledger's conditional decrement or seller restock.
type ProductVariant struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;default:(gen_random_uuid());primaryKey"`
	ProductID     uuid.UUID       `gorm:"column:product_id;type:uuid;not null;index"`
	Product       *Product        `gorm:"foreignKey:ProductID"`
	Color         *string         `gorm:"column:color"`
	Size          *string         `gorm:"column:size"`
	Price         decimal.Decimal `gorm:"column:price;type:decimal(12,2);not null"`
	StockQuantity int             `gorm:"column:stock_quantity;not null;default:0;check:stock_quantity >= 0"`
	IsActive      bool            `gorm:"column:is_active;not null;default:true"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
