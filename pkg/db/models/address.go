package models

import (
	"time"

	"github.com/google/uuid"
)

// Address is a buyer's saved shipping address. Orders never reference this row
// after placement; they carry their own snapshot (OrderAddress).
type Address struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;default:(gen_random_uuid());primaryKey"`
	BuyerID       uuid.UUID `gorm:"column:buyer_id;type:uuid;not null;index"`
	RecipientName string    `gorm:"column:recipient_name;not null"`
	Phone         string    `gorm:"column:phone;not null"`
	Line1         string    `gorm:"column:line1;not null"`
	Line2         *string   `gorm:"column:line2"`
	City          string    `gorm:"column:city;not null"`
	District      string    `gorm:"column:district;not null"`
	PostalCode    *string   `gorm:"column:postal_code"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
