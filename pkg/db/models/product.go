package models

import (
	"time"

	"github.com/google/uuid"
)

// Product is the catalog parent of purchasable variants. Catalog CRUD lives
// upstream; checkout only needs the seller attribution and active flag.
type Product struct {
	ID          uuid.UUID        `gorm:"column:id;type:uuid;default:(gen_random_uuid());primaryKey"`
	SellerID    uuid.UUID        `gorm:"column:seller_id;type:uuid;not null;index"`
	Name        string           `gorm:"column:name;not null"`
	Description *string          `gorm:"column:description"`
	IsActive    bool             `gorm:"column:is_active;not null;default:true"`
	Variants    []ProductVariant `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
