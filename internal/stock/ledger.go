package stock

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/anishmaharjan/kinmel-backend/pkg/db/models"
	pkgerrors "github.com/anishmaharjan/kinmel-backend/pkg/errors"
)

// Ledger owns the variant stock counter. Every mutation happens inside the
// caller's transaction so checkout either commits all decrements or none.
type Ledger interface {
	LockVariants(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) (map[uuid.UUID]models.ProductVariant, error)
	Decrement(ctx context.Context, tx *gorm.DB, variantID uuid.UUID, qty int) error
	Restock(ctx context.Context, tx *gorm.DB, variantID uuid.UUID, qty int) error
}

type ledger struct{}

// NewLedger returns the database-backed stock ledger.
func NewLedger() Ledger {
	return ledger{}
}

// LockVariants takes exclusive row locks on the requested variants in
// ascending id order. Every concurrent checkout locks in the same order, so
// transactions sharing variants queue instead of deadlocking.
func (ledger) LockVariants(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) (map[uuid.UUID]models.ProductVariant, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required for variant locks")
	}
	if len(ids) == 0 {
		return map[uuid.UUID]models.ProductVariant{}, nil
	}

	ordered := make([]uuid.UUID, len(ids))
	copy(ordered, ids)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].String() < ordered[j].String()
	})

	query := tx.WithContext(ctx).
		Where("id IN ?", ordered).
		Order("id ASC")
	// sqlite has no row locks; the conditional decrement still guards there
	if tx.Dialector.Name() != "sqlite" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var variants []models.ProductVariant
	if err := query.Find(&variants).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "locking variants")
	}

	byID := make(map[uuid.UUID]models.ProductVariant, len(variants))
	for _, variant := range variants {
		byID[variant.ID] = variant
	}
	return byID, nil
}

// CheckAvailable validates one locked variant against the requested quantity.
func CheckAvailable(variant models.ProductVariant, qty int) error {
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "quantity must be positive").
			WithDetails(map[string]any{"variant_id": variant.ID, "quantity": qty})
	}
	if !variant.IsActive {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "variant is not active").
			WithDetails(map[string]any{"variant_id": variant.ID})
	}
	if variant.StockQuantity < qty {
		return pkgerrors.New(pkgerrors.CodeInsufficientStock, "requested quantity exceeds stock").
			WithDetails(map[string]any{
				"variant_id": variant.ID,
				"requested":  qty,
				"available":  variant.StockQuantity,
			})
	}
	return nil
}

// Decrement subtracts qty from the variant's stock only while enough remains.
// An affected-row count other than one means the guard lost a race and the
// whole checkout must roll back.
func (ledger) Decrement(ctx context.Context, tx *gorm.DB, variantID uuid.UUID, qty int) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transaction required for stock decrement")
	}
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "quantity must be positive")
	}

	res := tx.WithContext(ctx).Exec(`
		UPDATE product_variants
		SET stock_quantity = stock_quantity - ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND stock_quantity >= ?
	`, qty, variantID, qty)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "decrement stock")
	}
	if res.RowsAffected != 1 {
		return pkgerrors.New(pkgerrors.CodeInsufficientStock, "stock changed while placing order").
			WithDetails(map[string]any{"variant_id": variantID, "requested": qty})
	}
	return nil
}

// Restock returns qty units to the variant when an unpaid order is expired.
// A missing variant is not an error; the row may have been removed since the
// order was placed.
func (ledger) Restock(ctx context.Context, tx *gorm.DB, variantID uuid.UUID, qty int) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transaction required for restock")
	}
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "quantity must be positive")
	}

	res := tx.WithContext(ctx).Exec(`
		UPDATE product_variants
		SET stock_quantity = stock_quantity + ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, qty, variantID)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "restock variant")
	}
	return nil
}
