package stock

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/anishmaharjan/kinmel-backend/pkg/db/models"
	pkgerrors "github.com/anishmaharjan/kinmel-backend/pkg/errors"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:stock_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedVariant(t *testing.T, db *gorm.DB, stock int, active bool) models.ProductVariant {
	t.Helper()
	product := models.Product{
		ID:       uuid.New(),
		SellerID: uuid.New(),
		Name:     "tea set",
		IsActive: true,
	}
	if err := db.Create(&product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	variant := models.ProductVariant{
		ID:            uuid.New(),
		ProductID:     product.ID,
		Price:         decimal.RequireFromString("10.00"),
		StockQuantity: stock,
		IsActive:      active,
	}
	if err := db.Create(&variant).Error; err != nil {
		t.Fatalf("seed variant: %v", err)
	}
	return variant
}

func TestLockVariantsReturnsRequested(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	first := seedVariant(t, db, 5, true)
	second := seedVariant(t, db, 2, true)

	err := db.Transaction(func(tx *gorm.DB) error {
		locked, err := NewLedger().LockVariants(ctx, tx, []uuid.UUID{second.ID, first.ID})
		if err != nil {
			return err
		}
		if len(locked) != 2 {
			t.Fatalf("expected 2 locked variants, got %d", len(locked))
		}
		if locked[first.ID].StockQuantity != 5 {
			t.Fatalf("unexpected stock for first variant: %d", locked[first.ID].StockQuantity)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("lock transaction: %v", err)
	}
}

func TestLockVariantsMissingIDsAreAbsent(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	variant := seedVariant(t, db, 1, true)
	ghost := uuid.New()

	err := db.Transaction(func(tx *gorm.DB) error {
		locked, err := NewLedger().LockVariants(context.Background(), tx, []uuid.UUID{variant.ID, ghost})
		if err != nil {
			return err
		}
		if len(locked) != 1 {
			t.Fatalf("expected 1 locked variant, got %d", len(locked))
		}
		if _, ok := locked[ghost]; ok {
			t.Fatal("ghost variant should not be present")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("lock transaction: %v", err)
	}
}

func TestCheckAvailable(t *testing.T) {
	t.Parallel()

	active := models.ProductVariant{ID: uuid.New(), StockQuantity: 5, IsActive: true}

	if err := CheckAvailable(active, 5); err != nil {
		t.Fatalf("exact stock should pass: %v", err)
	}

	err := CheckAvailable(active, 6)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeInsufficientStock {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	err = CheckAvailable(active, 0)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict for zero quantity, got %v", err)
	}

	inactive := models.ProductVariant{ID: uuid.New(), StockQuantity: 5, IsActive: false}
	err = CheckAvailable(inactive, 1)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("inactive variant must be rejected regardless of stock, got %v", err)
	}
}

func TestDecrement(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	variant := seedVariant(t, db, 5, true)
	ledger := NewLedger()

	err := db.Transaction(func(tx *gorm.DB) error {
		return ledger.Decrement(ctx, tx, variant.ID, 3)
	})
	if err != nil {
		t.Fatalf("decrement failed: %v", err)
	}

	var reloaded models.ProductVariant
	if err := db.First(&reloaded, "id = ?", variant.ID).Error; err != nil {
		t.Fatalf("reload variant: %v", err)
	}
	if reloaded.StockQuantity != 2 {
		t.Fatalf("stock = %d, want 2", reloaded.StockQuantity)
	}
}

func TestDecrementGuardsAgainstOversell(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	variant := seedVariant(t, db, 1, true)
	ledger := NewLedger()

	err := db.Transaction(func(tx *gorm.DB) error {
		return ledger.Decrement(ctx, tx, variant.ID, 2)
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeInsufficientStock {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	var reloaded models.ProductVariant
	if err := db.First(&reloaded, "id = ?", variant.ID).Error; err != nil {
		t.Fatalf("reload variant: %v", err)
	}
	if reloaded.StockQuantity != 1 {
		t.Fatalf("stock must be unchanged, got %d", reloaded.StockQuantity)
	}
}
