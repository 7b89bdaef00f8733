package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderAddress is the point-in-time copy of the buyer's chosen address made at
// order placement. It is never re-read from the live address table, so later
// edits or deletes cannot affect an order in flight.
type OrderAddress struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;default:(gen_random_uuid());primaryKey"`
	OrderID       uuid.UUID `gorm:"column:order_id;type:uuid;not null;uniqueIndex"`
	RecipientName string    `gorm:"column:recipient_name;not null"`
	Phone         string    `gorm:"column:phone;not null"`
	Line1         string    `gorm:"column:line1;not null"`
	Line2         *string   `gorm:"column:line2"`
	City          string    `gorm:"column:city;not null"`
	District      string    `gorm:"column:district;not null"`
	PostalCode    *string   `gorm:"column:postal_code"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
}
