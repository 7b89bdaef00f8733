package fulfillment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/anishmaharjan/kinmel-backend/internal/orders"
	"github.com/anishmaharjan/kinmel-backend/pkg/db/models"
	"github.com/anishmaharjan/kinmel-backend/pkg/enums"
	pkgerrors "github.com/anishmaharjan/kinmel-backend/pkg/errors"
	"github.com/anishmaharjan/kinmel-backend/pkg/outbox"
	"github.com/anishmaharjan/kinmel-backend/pkg/pagination"
)

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:fulfillment_" + uuid.NewString() + "?mode=memory&cache=shared"
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
	svc         Service
	db          *gorm.DB
	seller      uuid.UUID
	order       models.Order
	fulfillment models.OrderFulfillment
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)
	svc, err := NewService(
		orders.NewRepository(db),
		gormTxRunner{db: db},
		outbox.NewService(outbox.NewRepository(db), nil),
		nil,
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	seller := uuid.New()
	order := models.Order{
		ID:         uuid.New(),
		BuyerID:    uuid.New(),
		Status:     enums.OrderStatusPlaced,
		TotalPrice: decimal.RequireFromString("170.00"),
		PlacedAt:   time.Now().UTC(),
	}
	if err := db.Create(&order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	fulfillment := models.OrderFulfillment{
		ID:             uuid.New(),
		OrderID:        order.ID,
		SellerID:       seller,
		Status:         enums.FulfillmentStatusPending,
		SellerSubtotal: decimal.RequireFromString("30.00"),
	}
	if err := db.Create(&fulfillment).Error; err != nil {
		t.Fatalf("seed fulfillment: %v", err)
	}
	return &fixture{svc: svc, db: db, seller: seller, order: order, fulfillment: fulfillment}
}

func (f *fixture) seedItem(t *testing.T, sellerID uuid.UUID) models.OrderItem {
	t.Helper()
	item := models.OrderItem{
		ID:        uuid.New(),
		OrderID:   f.order.ID,
		VariantID: uuid.New(),
		SellerID:  sellerID,
		Quantity:  1,
		UnitPrice: decimal.RequireFromString("30.00"),
		LineTotal: decimal.RequireFromString("30.00"),
		Status:    enums.OrderItemStatusPending,
	}
	if err := f.db.Create(&item).Error; err != nil {
		t.Fatalf("seed item: %v", err)
	}
	return item
}

func (f *fixture) reload(t *testing.T) models.OrderFulfillment {
	t.Helper()
	var row models.OrderFulfillment
	if err := f.db.First(&row, "id = ?", f.fulfillment.ID).Error; err != nil {
		t.Fatalf("reload fulfillment: %v", err)
	}
	return row
}

func TestSetStatusHappyPathSyncsItems(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	mine := f.seedItem(t, f.seller)
	other := f.seedItem(t, uuid.New())

	updated, err := f.svc.SetStatus(ctx, SetStatusInput{
		SellerID:      f.seller,
		FulfillmentID: f.fulfillment.ID,
		Status:        "accepted",
		SyncItems:     true,
	})
	if err != nil {
		t.Fatalf("set status: %v", err)
	}
	if updated.Status != enums.FulfillmentStatusAccepted {
		t.Fatalf("status = %s, want accepted", updated.Status)
	}
	if updated.AcceptedAt == nil {
		t.Fatal("accepted_at not stamped")
	}

	row := f.reload(t)
	if row.Status != enums.FulfillmentStatusAccepted || row.AcceptedAt == nil {
		t.Fatalf("persisted row: status=%s accepted_at=%v", row.Status, row.AcceptedAt)
	}

	var myItem, otherItem models.OrderItem
	if err := f.db.First(&myItem, "id = ?", mine.ID).Error; err != nil {
		t.Fatalf("reload item: %v", err)
	}
	if myItem.Status != enums.OrderItemStatusAccepted {
		t.Fatalf("seller item status = %s, want accepted", myItem.Status)
	}
	if err := f.db.First(&otherItem, "id = ?", other.ID).Error; err != nil {
		t.Fatalf("reload other item: %v", err)
	}
	if otherItem.Status != enums.OrderItemStatusPending {
		t.Fatalf("other seller's item was touched: %s", otherItem.Status)
	}

	var eventCount int64
	f.db.Model(&models.OutboxEvent{}).
		Where("aggregate_id = ? AND event_type = ?", f.fulfillment.ID, enums.EventFulfillmentUpdated).
		Count(&eventCount)
	if eventCount != 1 {
		t.Fatalf("outbox events = %d, want 1", eventCount)
	}
}

func TestSetStatusWithoutSyncLeavesItems(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	item := f.seedItem(t, f.seller)

	_, err := f.svc.SetStatus(context.Background(), SetStatusInput{
		SellerID:      f.seller,
		FulfillmentID: f.fulfillment.ID,
		Status:        "packed",
		SyncItems:     false,
	})
	if err != nil {
		t.Fatalf("set status: %v", err)
	}

	var reloaded models.OrderItem
	if err := f.db.First(&reloaded, "id = ?", item.ID).Error; err != nil {
		t.Fatalf("reload item: %v", err)
	}
	if reloaded.Status != enums.OrderItemStatusPending {
		t.Fatalf("item status = %s, want pending", reloaded.Status)
	}
}

func TestSetStatusTimestampSetOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	input := SetStatusInput{
		SellerID:      f.seller,
		FulfillmentID: f.fulfillment.ID,
		Status:        "accepted",
		SyncItems:     true,
	}

	if _, err := f.svc.SetStatus(ctx, input); err != nil {
		t.Fatalf("first transition: %v", err)
	}
	first := f.reload(t)
	if first.AcceptedAt == nil {
		t.Fatal("accepted_at not stamped")
	}

	time.Sleep(5 * time.Millisecond)
	if _, err := f.svc.SetStatus(ctx, input); err != nil {
		t.Fatalf("second transition: %v", err)
	}
	second := f.reload(t)
	if !second.AcceptedAt.Equal(*first.AcceptedAt) {
		t.Fatalf("accepted_at moved: %v -> %v", first.AcceptedAt, second.AcceptedAt)
	}
}

func TestSetStatusInvalidToken(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.svc.SetStatus(context.Background(), SetStatusInput{
		SellerID:      f.seller,
		FulfillmentID: f.fulfillment.ID,
		Status:        "teleported",
		SyncItems:     true,
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSetStatusCrossSellerIsNotFound(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.svc.SetStatus(context.Background(), SetStatusInput{
		SellerID:      uuid.New(),
		FulfillmentID: f.fulfillment.ID,
		Status:        "accepted",
		SyncItems:     true,
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
	if row := f.reload(t); row.Status != enums.FulfillmentStatusPending {
		t.Fatalf("fulfillment mutated by foreign seller: %s", row.Status)
	}
}

func TestSetStatusTerminalIsFrozen(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	for _, status := range []string{"accepted", "packed", "shipped", "delivered"} {
		if _, err := f.svc.SetStatus(ctx, SetStatusInput{
			SellerID:      f.seller,
			FulfillmentID: f.fulfillment.ID,
			Status:        status,
			SyncItems:     true,
		}); err != nil {
			t.Fatalf("transition to %s: %v", status, err)
		}
	}

	_, err := f.svc.SetStatus(ctx, SetStatusInput{
		SellerID:      f.seller,
		FulfillmentID: f.fulfillment.ID,
		Status:        "cancelled",
		SyncItems:     true,
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("delivered fulfillment must be frozen, got %v", err)
	}
}

func TestSetStatusCancelFromNonTerminal(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	updated, err := f.svc.SetStatus(context.Background(), SetStatusInput{
		SellerID:      f.seller,
		FulfillmentID: f.fulfillment.ID,
		Status:        "CANCELLED",
		SyncItems:     true,
	})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if updated.Status != enums.FulfillmentStatusCancelled {
		t.Fatalf("status = %s, want cancelled", updated.Status)
	}
}

func TestGetForSellerScoping(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	item := f.seedItem(t, f.seller)
	f.seedItem(t, uuid.New())

	view, err := f.svc.GetForSeller(ctx, f.fulfillment.ID, f.seller)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(view.Items) != 1 || view.Items[0].ID != item.ID {
		t.Fatalf("derived items wrong: %+v", view.Items)
	}

	_, err = f.svc.GetForSeller(ctx, f.fulfillment.ID, uuid.New())
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("foreign seller must get not found, got %v", err)
	}
}

func TestListForSellerStatusFilter(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	shipped := models.OrderFulfillment{
		ID:             uuid.New(),
		OrderID:        uuid.New(),
		SellerID:       f.seller,
		Status:         enums.FulfillmentStatusShipped,
		SellerSubtotal: decimal.RequireFromString("12.00"),
	}
	if err := f.db.Create(&shipped).Error; err != nil {
		t.Fatalf("seed shipped: %v", err)
	}

	all, err := f.svc.ListForSeller(ctx, f.seller, pagination.Params{Limit: 10}, orders.FulfillmentFilters{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all.Fulfillments) != 2 {
		t.Fatalf("unfiltered count = %d, want 2", len(all.Fulfillments))
	}

	want := enums.FulfillmentStatusShipped
	filtered, err := f.svc.ListForSeller(ctx, f.seller, pagination.Params{Limit: 10}, orders.FulfillmentFilters{Status: &want})
	if err != nil {
		t.Fatalf("filtered list: %v", err)
	}
	if len(filtered.Fulfillments) != 1 || filtered.Fulfillments[0].ID != shipped.ID {
		t.Fatalf("filtered result wrong: %+v", filtered.Fulfillments)
	}
}
