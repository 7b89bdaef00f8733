package models

import "gorm.io/gorm"

// AutoMigrate creates every table this module owns. Production schemas are
// managed by goose migrations; this exists for in-memory test databases.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Address{},
		&Product{},
		&ProductVariant{},
		&Cart{},
		&CartItem{},
		&Order{},
		&OrderAddress{},
		&OrderItem{},
		&OrderFulfillment{},
		&Payment{},
		&OutboxEvent{},
	)
}
