package models

import (
	"time"

	"github.com/anishmaharjan/kinmel-backend/pkg/enums"
	"github.com/google/uuid"
)

// Cart is a buyer's mutable pre-checkout collection. A buyer has at most one
// active cart at a time; checkout flips it to checked_out exactly once and a
// fresh cart is created lazily on the next cart access.
type Cart struct {
	ID        uuid.UUID        `gorm:"column:id;type:uuid;default:(gen_random_uuid());primaryKey"`
	BuyerID   uuid.UUID        `gorm:"column:buyer_id;type:uuid;not null;index"`
	Status    enums.CartStatus `gorm:"column:status;not null;default:'active';index"`
	Items     []CartItem       `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
