package checkout

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/anishmaharjan/kinmel-backend/internal/address"
	"github.com/anishmaharjan/kinmel-backend/internal/cart"
	"github.com/anishmaharjan/kinmel-backend/internal/orders"
	"github.com/anishmaharjan/kinmel-backend/internal/stock"
	"github.com/anishmaharjan/kinmel-backend/pkg/db/models"
	"github.com/anishmaharjan/kinmel-backend/pkg/enums"
	pkgerrors "github.com/anishmaharjan/kinmel-backend/pkg/errors"
	"github.com/anishmaharjan/kinmel-backend/pkg/outbox"
	"github.com/anishmaharjan/kinmel-backend/pkg/types"
)

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:checkout_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

type fixture struct {
	svc   Service
	db    *gorm.DB
	buyer uuid.UUID
	addr  models.Address
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)
	outboxSvc := outbox.NewService(outbox.NewRepository(db), nil)
	svc, err := NewService(
		address.NewRepository(db),
		cart.NewRepository(db),
		orders.NewRepository(db),
		stock.NewLedger(),
		gormTxRunner{db: db},
		outboxSvc,
		"100.00",
		nil,
		nil,
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	buyer := uuid.New()
	addr := models.Address{
		ID:            uuid.New(),
		BuyerID:       buyer,
		RecipientName: "Hari Thapa",
		Phone:         "9841000000",
		Line1:         "Patan Dhoka",
		City:          "Lalitpur",
		District:      "Lalitpur",
	}
	if err := db.Create(&addr).Error; err != nil {
		t.Fatalf("seed address: %v", err)
	}
	return &fixture{svc: svc, db: db, buyer: buyer, addr: addr}
}

func (f *fixture) seedVariant(t *testing.T, seller uuid.UUID, price string, stockQty int) models.ProductVariant {
	t.Helper()
	product := models.Product{
		ID:       uuid.New(),
		SellerID: seller,
		Name:     "pashmina shawl",
		IsActive: true,
	}
	if err := f.db.Create(&product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	variant := models.ProductVariant{
		ID:            uuid.New(),
		ProductID:     product.ID,
		Price:         decimal.RequireFromString(price),
		StockQuantity: stockQty,
		IsActive:      true,
	}
	if err := f.db.Create(&variant).Error; err != nil {
		t.Fatalf("seed variant: %v", err)
	}
	return variant
}

func (f *fixture) seedCart(t *testing.T, lines map[uuid.UUID]int) models.Cart {
	t.Helper()
	activeCart := models.Cart{ID: uuid.New(), BuyerID: f.buyer, Status: enums.CartStatusActive}
	if err := f.db.Create(&activeCart).Error; err != nil {
		t.Fatalf("seed cart: %v", err)
	}
	for variantID, qty := range lines {
		var variant models.ProductVariant
		if err := f.db.First(&variant, "id = ?", variantID).Error; err != nil {
			t.Fatalf("load variant: %v", err)
		}
		item := models.CartItem{
			ID:        uuid.New(),
			CartID:    activeCart.ID,
			VariantID: variantID,
			Quantity:  qty,
			UnitPrice: variant.Price,
		}
		if err := f.db.Create(&item).Error; err != nil {
			t.Fatalf("seed cart item: %v", err)
		}
	}
	return activeCart
}

func (f *fixture) variantStock(t *testing.T, variantID uuid.UUID) int {
	t.Helper()
	var variant models.ProductVariant
	if err := f.db.First(&variant, "id = ?", variantID).Error; err != nil {
		t.Fatalf("load variant: %v", err)
	}
	return variant.StockQuantity
}

func TestPlaceOrderMultiSeller(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	sellerOne := uuid.New()
	sellerTwo := uuid.New()
	variantV := f.seedVariant(t, sellerOne, "10.00", 5)
	variantW := f.seedVariant(t, sellerTwo, "20.00", 2)
	f.seedCart(t, map[uuid.UUID]int{variantV.ID: 3, variantW.ID: 2})

	result, err := f.svc.PlaceOrder(ctx, PlaceOrderInput{BuyerID: f.buyer, AddressID: f.addr.ID})
	if err != nil {
		t.Fatalf("place order: %v", err)
	}

	if got := types.MoneyString(result.ItemsSubtotal); got != "70.00" {
		t.Fatalf("items subtotal = %s, want 70.00", got)
	}
	if got := types.MoneyString(result.Order.TotalPrice); got != "170.00" {
		t.Fatalf("grand total = %s, want 170.00", got)
	}
	if result.SellerCount != 2 {
		t.Fatalf("seller count = %d, want 2", result.SellerCount)
	}
	if result.Order.Status != enums.OrderStatusPlaced {
		t.Fatalf("order status = %s, want placed", result.Order.Status)
	}

	var fulfillments []models.OrderFulfillment
	if err := f.db.Where("order_id = ?", result.Order.ID).Order("seller_subtotal ASC").Find(&fulfillments).Error; err != nil {
		t.Fatalf("load fulfillments: %v", err)
	}
	if len(fulfillments) != 2 {
		t.Fatalf("expected 2 fulfillments, got %d", len(fulfillments))
	}
	if got := types.MoneyString(fulfillments[0].SellerSubtotal); got != "30.00" {
		t.Fatalf("first subtotal = %s, want 30.00", got)
	}
	if got := types.MoneyString(fulfillments[1].SellerSubtotal); got != "40.00" {
		t.Fatalf("second subtotal = %s, want 40.00", got)
	}
	for _, fulfillment := range fulfillments {
		if fulfillment.Status != enums.FulfillmentStatusPending {
			t.Fatalf("fulfillment status = %s, want pending", fulfillment.Status)
		}
	}

	if got := f.variantStock(t, variantV.ID); got != 2 {
		t.Fatalf("variant V stock = %d, want 2", got)
	}
	if got := f.variantStock(t, variantW.ID); got != 0 {
		t.Fatalf("variant W stock = %d, want 0", got)
	}

	// Address snapshot copied field for field.
	var snapshot models.OrderAddress
	if err := f.db.First(&snapshot, "order_id = ?", result.Order.ID).Error; err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	if snapshot.RecipientName != f.addr.RecipientName || snapshot.City != f.addr.City {
		t.Fatalf("snapshot mismatch: %+v", snapshot)
	}

	// Cart is closed and emptied.
	var closedCart models.Cart
	if err := f.db.First(&closedCart, "buyer_id = ?", f.buyer).Error; err != nil {
		t.Fatalf("load cart: %v", err)
	}
	if closedCart.Status != enums.CartStatusCheckedOut {
		t.Fatalf("cart status = %s, want checked_out", closedCart.Status)
	}
	var itemCount int64
	f.db.Model(&models.CartItem{}).Where("cart_id = ?", closedCart.ID).Count(&itemCount)
	if itemCount != 0 {
		t.Fatalf("cart items remaining: %d", itemCount)
	}

	// One outbox row for the placed order.
	var eventCount int64
	f.db.Model(&models.OutboxEvent{}).
		Where("aggregate_id = ? AND event_type = ?", result.Order.ID, enums.EventOrderPlaced).
		Count(&eventCount)
	if eventCount != 1 {
		t.Fatalf("outbox events = %d, want 1", eventCount)
	}
}

func TestPlaceOrderTotalsAreConsistent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	variantA := f.seedVariant(t, uuid.New(), "33.33", 10)
	variantB := f.seedVariant(t, uuid.New(), "0.99", 10)
	f.seedCart(t, map[uuid.UUID]int{variantA.ID: 3, variantB.ID: 7})

	result, err := f.svc.PlaceOrder(ctx, PlaceOrderInput{BuyerID: f.buyer, AddressID: f.addr.ID})
	if err != nil {
		t.Fatalf("place order: %v", err)
	}

	var items []models.OrderItem
	if err := f.db.Where("order_id = ?", result.Order.ID).Find(&items).Error; err != nil {
		t.Fatalf("load items: %v", err)
	}
	itemSum := decimal.Zero
	for _, item := range items {
		itemSum = itemSum.Add(item.LineTotal)
	}

	var fulfillments []models.OrderFulfillment
	if err := f.db.Where("order_id = ?", result.Order.ID).Find(&fulfillments).Error; err != nil {
		t.Fatalf("load fulfillments: %v", err)
	}
	fulfillmentSum := decimal.Zero
	for _, fulfillment := range fulfillments {
		fulfillmentSum = fulfillmentSum.Add(fulfillment.SellerSubtotal)
	}

	if !fulfillmentSum.Equal(itemSum) {
		t.Fatalf("fulfillment subtotals %s != item totals %s", fulfillmentSum, itemSum)
	}
	want := types.Round2(itemSum.Add(decimal.RequireFromString("100.00")))
	if !result.Order.TotalPrice.Equal(want) {
		t.Fatalf("total price %s != %s", result.Order.TotalPrice, want)
	}
}

func TestPlaceOrderEmptyCart(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.svc.PlaceOrder(context.Background(), PlaceOrderInput{BuyerID: f.buyer, AddressID: f.addr.ID})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict for empty cart, got %v", err)
	}
}

func TestPlaceOrderForeignAddress(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	variant := f.seedVariant(t, uuid.New(), "10.00", 5)
	f.seedCart(t, map[uuid.UUID]int{variant.ID: 1})

	_, err := f.svc.PlaceOrder(context.Background(), PlaceOrderInput{BuyerID: f.buyer, AddressID: uuid.New()})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found for foreign address, got %v", err)
	}
}

func TestPlaceOrderInsufficientStockRollsBackEverything(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	okVariant := f.seedVariant(t, uuid.New(), "10.00", 5)
	scarce := f.seedVariant(t, uuid.New(), "20.00", 1)
	seeded := f.seedCart(t, map[uuid.UUID]int{okVariant.ID: 2, scarce.ID: 2})

	_, err := f.svc.PlaceOrder(ctx, PlaceOrderInput{BuyerID: f.buyer, AddressID: f.addr.ID})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeInsufficientStock {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	// No partial order persists and no stock changed.
	var orderCount, itemCount, fulfillmentCount, eventCount int64
	f.db.Model(&models.Order{}).Count(&orderCount)
	f.db.Model(&models.OrderItem{}).Count(&itemCount)
	f.db.Model(&models.OrderFulfillment{}).Count(&fulfillmentCount)
	f.db.Model(&models.OutboxEvent{}).Count(&eventCount)
	if orderCount != 0 || itemCount != 0 || fulfillmentCount != 0 || eventCount != 0 {
		t.Fatalf("partial writes survived: orders=%d items=%d fulfillments=%d events=%d",
			orderCount, itemCount, fulfillmentCount, eventCount)
	}
	if got := f.variantStock(t, okVariant.ID); got != 5 {
		t.Fatalf("stock of ok variant changed: %d", got)
	}
	if got := f.variantStock(t, scarce.ID); got != 1 {
		t.Fatalf("stock of scarce variant changed: %d", got)
	}

	// Cart stays active with its items intact.
	var activeCart models.Cart
	if err := f.db.First(&activeCart, "id = ?", seeded.ID).Error; err != nil {
		t.Fatalf("load cart: %v", err)
	}
	if activeCart.Status != enums.CartStatusActive {
		t.Fatalf("cart status = %s, want active", activeCart.Status)
	}
	var cartItems int64
	f.db.Model(&models.CartItem{}).Where("cart_id = ?", seeded.ID).Count(&cartItems)
	if cartItems != 2 {
		t.Fatalf("cart items = %d, want 2", cartItems)
	}
}

func TestPlaceOrderInactiveVariant(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	variant := f.seedVariant(t, uuid.New(), "10.00", 5)
	f.seedCart(t, map[uuid.UUID]int{variant.ID: 1})
	if err := f.db.Model(&models.ProductVariant{}).Where("id = ?", variant.ID).Update("is_active", false).Error; err != nil {
		t.Fatalf("deactivate variant: %v", err)
	}

	_, err := f.svc.PlaceOrder(context.Background(), PlaceOrderInput{BuyerID: f.buyer, AddressID: f.addr.ID})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("inactive variant must be rejected, got %v", err)
	}
	if got := f.variantStock(t, variant.ID); got != 5 {
		t.Fatalf("stock changed: %d", got)
	}
}

func TestBuyNow(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	variant := f.seedVariant(t, uuid.New(), "25.00", 4)

	// An unrelated active cart must not be touched.
	other := f.seedVariant(t, uuid.New(), "5.00", 9)
	seeded := f.seedCart(t, map[uuid.UUID]int{other.ID: 1})

	result, err := f.svc.BuyNow(ctx, BuyNowInput{
		BuyerID:   f.buyer,
		AddressID: f.addr.ID,
		VariantID: variant.ID,
		Quantity:  2,
	})
	if err != nil {
		t.Fatalf("buy now: %v", err)
	}
	if got := types.MoneyString(result.ItemsSubtotal); got != "50.00" {
		t.Fatalf("items subtotal = %s, want 50.00", got)
	}
	if got := types.MoneyString(result.Order.TotalPrice); got != "150.00" {
		t.Fatalf("grand total = %s, want 150.00", got)
	}
	if result.SellerCount != 1 {
		t.Fatalf("seller count = %d, want 1", result.SellerCount)
	}
	if got := f.variantStock(t, variant.ID); got != 2 {
		t.Fatalf("stock = %d, want 2", got)
	}

	var untouched models.Cart
	if err := f.db.First(&untouched, "id = ?", seeded.ID).Error; err != nil {
		t.Fatalf("load cart: %v", err)
	}
	if untouched.Status != enums.CartStatusActive {
		t.Fatalf("buy now must not close the cart, status = %s", untouched.Status)
	}
	var cartItems int64
	f.db.Model(&models.CartItem{}).Where("cart_id = ?", seeded.ID).Count(&cartItems)
	if cartItems != 1 {
		t.Fatalf("buy now must not clear cart items, got %d", cartItems)
	}
}

func TestBuyNowInsufficientStock(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	variant := f.seedVariant(t, uuid.New(), "25.00", 1)

	_, err := f.svc.BuyNow(context.Background(), BuyNowInput{
		BuyerID:   f.buyer,
		AddressID: f.addr.ID,
		VariantID: variant.ID,
		Quantity:  2,
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeInsufficientStock {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	var orderCount int64
	f.db.Model(&models.Order{}).Count(&orderCount)
	if orderCount != 0 {
		t.Fatalf("orders created: %d", orderCount)
	}
	if got := f.variantStock(t, variant.ID); got != 1 {
		t.Fatalf("stock changed: %d", got)
	}
}

func TestBuyNowRejectsNonPositiveQuantity(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	variant := f.seedVariant(t, uuid.New(), "25.00", 5)

	for _, qty := range []int{0, -1} {
		_, err := f.svc.BuyNow(context.Background(), BuyNowInput{
			BuyerID:   f.buyer,
			AddressID: f.addr.ID,
			VariantID: variant.ID,
			Quantity:  qty,
		})
		if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
			t.Fatalf("quantity %d must be rejected, got %v", qty, err)
		}
	}
}

func TestBuyNowUnknownVariant(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.svc.BuyNow(context.Background(), BuyNowInput{
		BuyerID:   f.buyer,
		AddressID: f.addr.ID,
		VariantID: uuid.New(),
		Quantity:  1,
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPriceSnapshotUsesCurrentCatalogPrice(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	variant := f.seedVariant(t, uuid.New(), "10.00", 5)
	f.seedCart(t, map[uuid.UUID]int{variant.ID: 1})

	// Catalog price rises after the item went into the cart.
	if err := f.db.Model(&models.ProductVariant{}).
		Where("id = ?", variant.ID).
		Update("price", decimal.RequireFromString("15.00")).Error; err != nil {
		t.Fatalf("reprice: %v", err)
	}

	result, err := f.svc.PlaceOrder(ctx, PlaceOrderInput{BuyerID: f.buyer, AddressID: f.addr.ID})
	if err != nil {
		t.Fatalf("place order: %v", err)
	}

	var item models.OrderItem
	if err := f.db.First(&item, "order_id = ?", result.Order.ID).Error; err != nil {
		t.Fatalf("load item: %v", err)
	}
	if got := types.MoneyString(item.UnitPrice); got != "15.00" {
		t.Fatalf("unit price = %s, want the current catalog price 15.00", got)
	}
	if got := types.MoneyString(item.LineTotal); got != "15.00" {
		t.Fatalf("line total = %s, want 15.00", got)
	}
}
