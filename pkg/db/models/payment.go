package models

import (
	"time"

	"github.com/anishmaharjan/kinmel-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Payment is one reconciliation attempt against the external gateway. At most
// one open (pending/ambiguous) row exists per (order, provider); retried
// initiations reuse the latest open row rather than creating duplicates.
// TransactionUUID is the opaque identifier the gateway echoes back.
type Payment struct {
	ID              uuid.UUID             `gorm:"column:id;type:uuid;default:(gen_random_uuid());primaryKey"`
	OrderID         uuid.UUID             `gorm:"column:order_id;type:uuid;not null;index:ix_payments_order_provider"`
	Provider        enums.PaymentProvider `gorm:"column:provider;not null;index:ix_payments_order_provider"`
	Status          enums.PaymentStatus   `gorm:"column:status;not null;default:'pending';index"`
	Amount          decimal.Decimal       `gorm:"column:amount;type:decimal(12,2);not null"`
	TransactionUUID string                `gorm:"column:transaction_uuid;not null;uniqueIndex"`
	RefID           *string               `gorm:"column:ref_id"`
	InitiatedAt     *time.Time            `gorm:"column:initiated_at"`
	VerifiedAt      *time.Time            `gorm:"column:verified_at"`
	CreatedAt       time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}
