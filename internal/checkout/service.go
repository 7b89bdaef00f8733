package checkout

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/anishmaharjan/kinmel-backend/internal/address"
	"github.com/anishmaharjan/kinmel-backend/internal/cart"
	"github.com/anishmaharjan/kinmel-backend/internal/orders"
	"github.com/anishmaharjan/kinmel-backend/internal/stock"
	"github.com/anishmaharjan/kinmel-backend/pkg/db/models"
	"github.com/anishmaharjan/kinmel-backend/pkg/enums"
	pkgerrors "github.com/anishmaharjan/kinmel-backend/pkg/errors"
	"github.com/anishmaharjan/kinmel-backend/pkg/logger"
	"github.com/anishmaharjan/kinmel-backend/pkg/metrics"
	"github.com/anishmaharjan/kinmel-backend/pkg/outbox"
	"github.com/anishmaharjan/kinmel-backend/pkg/outbox/payloads"
	"github.com/anishmaharjan/kinmel-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service converts a cart (or one buy-now line) into a placed order.
type Service interface {
	PlaceOrder(ctx context.Context, input PlaceOrderInput) (*Result, error)
	BuyNow(ctx context.Context, input BuyNowInput) (*Result, error)
}

// PlaceOrderInput identifies the buyer's cart checkout request.
type PlaceOrderInput struct {
	BuyerID   uuid.UUID
	AddressID uuid.UUID
}

// BuyNowInput is the single-line checkout bypassing the cart.
type BuyNowInput struct {
	BuyerID   uuid.UUID
	AddressID uuid.UUID
	VariantID uuid.UUID
	Quantity  int
}

// Result carries the placed order plus the response fields controllers
// return: the items subtotal (order.TotalPrice already includes delivery)
// and the number of sellers involved.
type Result struct {
	Order         *models.Order
	ItemsSubtotal decimal.Decimal
	SellerCount   int
}

// line is one resolved checkout line before persistence.
type line struct {
	VariantID uuid.UUID
	ProductID uuid.UUID
	SellerID  uuid.UUID
	Quantity  int
}

type service struct {
	addresses address.Repository
	carts     cart.Repository
	orders    orders.Repository
	ledger    stock.Ledger
	tx        txRunner
	outbox    outboxPublisher
	delivery  decimal.Decimal
	metrics   *metrics.CheckoutMetrics
	logg      *logger.Logger
}

// NewService builds the checkout engine with the required dependencies.
// deliveryCharge is the flat per-order fee in decimal string form.
func NewService(
	addresses address.Repository,
	carts cart.Repository,
	ordersRepo orders.Repository,
	ledger stock.Ledger,
	tx txRunner,
	outboxSvc outboxPublisher,
	deliveryCharge string,
	checkoutMetrics *metrics.CheckoutMetrics,
	logg *logger.Logger,
) (Service, error) {
	if addresses == nil {
		return nil, fmt.Errorf("address repository required")
	}
	if carts == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("stock ledger required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outboxSvc == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	delivery, err := decimal.NewFromString(deliveryCharge)
	if err != nil {
		return nil, fmt.Errorf("invalid delivery charge %q: %w", deliveryCharge, err)
	}
	if delivery.IsNegative() {
		return nil, fmt.Errorf("delivery charge must not be negative")
	}
	return &service{
		addresses: addresses,
		carts:     carts,
		orders:    ordersRepo,
		ledger:    ledger,
		tx:        tx,
		outbox:    outboxSvc,
		delivery:  delivery,
		metrics:   checkoutMetrics,
		logg:      logg,
	}, nil
}

// PlaceOrder converts the buyer's active cart into an order in one
// transaction: lock variants, validate stock, snapshot prices and address,
// decrement stock, clear the cart. Any failure rolls back every write.
func (s *service) PlaceOrder(ctx context.Context, input PlaceOrderInput) (*Result, error) {
	if input.BuyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "buyer identity missing")
	}
	if input.AddressID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "address id required")
	}

	started := time.Now()
	var result *Result
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		addr, err := s.addresses.WithTx(tx).FindOwned(ctx, input.AddressID, input.BuyerID)
		if err != nil {
			return err
		}

		cartRepo := s.carts.WithTx(tx)
		activeCart, err := cartRepo.FindActiveWithItems(ctx, input.BuyerID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}
		if activeCart == nil || len(activeCart.Items) == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "cart is empty")
		}

		lines, err := linesFromCart(activeCart)
		if err != nil {
			return err
		}

		result, err = s.placeLines(ctx, tx, input.BuyerID, addr, lines)
		if err != nil {
			return err
		}

		if err := cartRepo.DeleteItems(ctx, activeCart.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
		}
		if err := cartRepo.UpdateStatus(ctx, activeCart.ID, enums.CartStatusCheckedOut); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "close cart")
		}
		return nil
	})
	if err != nil {
		s.recordRejection("place_order", err)
		return nil, err
	}

	s.recordPlaced(ctx, "place_order", result, started)
	return result, nil
}

// BuyNow places an order for a single externally supplied (variant, quantity)
// pair. Cart state is never touched.
func (s *service) BuyNow(ctx context.Context, input BuyNowInput) (*Result, error) {
	if input.BuyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "buyer identity missing")
	}
	if input.AddressID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "address id required")
	}
	// rejected before any lock is taken
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "quantity must be positive")
	}

	started := time.Now()
	var result *Result
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		addr, err := s.addresses.WithTx(tx).FindOwned(ctx, input.AddressID, input.BuyerID)
		if err != nil {
			return err
		}

		variant, err := s.carts.WithTx(tx).FindVariant(ctx, input.VariantID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load variant")
		}
		if variant == nil || variant.Product == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "variant not found")
		}

		lines := []line{{
			VariantID: variant.ID,
			ProductID: variant.ProductID,
			SellerID:  variant.Product.SellerID,
			Quantity:  input.Quantity,
		}}

		result, err = s.placeLines(ctx, tx, input.BuyerID, addr, lines)
		return err
	})
	if err != nil {
		s.recordRejection("buy_now", err)
		return nil, err
	}

	s.recordPlaced(ctx, "buy_now", result, started)
	return result, nil
}

// linesFromCart aggregates requested quantity per distinct variant. The
// unique (cart_id, variant_id) constraint means a variant appears once, but
// aggregation guards anyway.
func linesFromCart(activeCart *models.Cart) ([]line, error) {
	byVariant := make(map[uuid.UUID]*line, len(activeCart.Items))
	ordered := make([]uuid.UUID, 0, len(activeCart.Items))
	for _, item := range activeCart.Items {
		if item.Variant == nil || item.Variant.Product == nil {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "variant not found").
				WithDetails(map[string]any{"variant_id": item.VariantID})
		}
		if existing, ok := byVariant[item.VariantID]; ok {
			existing.Quantity += item.Quantity
			continue
		}
		byVariant[item.VariantID] = &line{
			VariantID: item.VariantID,
			ProductID: item.Variant.ProductID,
			SellerID:  item.Variant.Product.SellerID,
			Quantity:  item.Quantity,
		}
		ordered = append(ordered, item.VariantID)
	}

	lines := make([]line, 0, len(ordered))
	for _, id := range ordered {
		lines = append(lines, *byVariant[id])
	}
	return lines, nil
}

// placeLines runs the shared core of both checkout paths inside the caller's
// transaction: lock, validate, snapshot, decrement.
func (s *service) placeLines(ctx context.Context, tx *gorm.DB, buyerID uuid.UUID, addr *models.Address, lines []line) (*Result, error) {
	variantIDs := make([]uuid.UUID, 0, len(lines))
	for _, ln := range lines {
		variantIDs = append(variantIDs, ln.VariantID)
	}

	locked, err := s.ledger.LockVariants(ctx, tx, variantIDs)
	if err != nil {
		return nil, err
	}

	itemsSubtotal := decimal.Zero
	sellerSubtotals := make(map[uuid.UUID]decimal.Decimal)
	orderItems := make([]models.OrderItem, 0, len(lines))
	for _, ln := range lines {
		variant, ok := locked[ln.VariantID]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "variant not found").
				WithDetails(map[string]any{"variant_id": ln.VariantID})
		}
		if err := stock.CheckAvailable(variant, ln.Quantity); err != nil {
			return nil, err
		}

		lineTotal := types.LineTotal(variant.Price, ln.Quantity)
		itemsSubtotal = itemsSubtotal.Add(lineTotal)
		sellerSubtotals[ln.SellerID] = sellerSubtotals[ln.SellerID].Add(lineTotal)

		orderItems = append(orderItems, models.OrderItem{
			SellerID:  ln.SellerID,
			ProductID: ln.ProductID,
			VariantID: ln.VariantID,
			Quantity:  ln.Quantity,
			UnitPrice: variant.Price,
			LineTotal: lineTotal,
			Status:    enums.OrderItemStatusPending,
		})
	}

	itemsSubtotal = types.Round2(itemsSubtotal)
	grandTotal := types.Round2(itemsSubtotal.Add(s.delivery))

	ordersRepo := s.orders.WithTx(tx)
	order, err := ordersRepo.CreateOrder(ctx, &models.Order{
		BuyerID:    buyerID,
		Status:     enums.OrderStatusPlaced,
		TotalPrice: grandTotal,
		PlacedAt:   time.Now().UTC(),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
	}

	if err := ordersRepo.CreateOrderAddress(ctx, &models.OrderAddress{
		OrderID:       order.ID,
		RecipientName: addr.RecipientName,
		Phone:         addr.Phone,
		Line1:         addr.Line1,
		Line2:         addr.Line2,
		City:          addr.City,
		District:      addr.District,
		PostalCode:    addr.PostalCode,
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "snapshot address")
	}

	for i := range orderItems {
		orderItems[i].OrderID = order.ID
	}
	if err := ordersRepo.CreateOrderItems(ctx, orderItems); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order items")
	}

	sellerIDs := make([]uuid.UUID, 0, len(sellerSubtotals))
	for sellerID := range sellerSubtotals {
		sellerIDs = append(sellerIDs, sellerID)
	}
	sort.Slice(sellerIDs, func(i, j int) bool {
		return sellerIDs[i].String() < sellerIDs[j].String()
	})

	fulfillments := make([]models.OrderFulfillment, 0, len(sellerIDs))
	for _, sellerID := range sellerIDs {
		fulfillments = append(fulfillments, models.OrderFulfillment{
			OrderID:        order.ID,
			SellerID:       sellerID,
			Status:         enums.FulfillmentStatusPending,
			SellerSubtotal: types.Round2(sellerSubtotals[sellerID]),
		})
	}
	if err := ordersRepo.CreateFulfillments(ctx, fulfillments); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create fulfillments")
	}

	// Final safety net after the row locks: each decrement must hit
	// exactly one row or the whole transaction aborts.
	for _, ln := range lines {
		if err := s.ledger.Decrement(ctx, tx, ln.VariantID, ln.Quantity); err != nil {
			return nil, err
		}
	}

	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderPlaced,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.ActorRef{UserID: buyerID, Role: string(enums.ActorRoleBuyer)},
		Data: payloads.OrderPlacedEvent{
			OrderID:    order.ID,
			BuyerID:    buyerID,
			SellerIDs:  sellerIDs,
			TotalPrice: types.MoneyString(grandTotal),
			PlacedAt:   order.PlacedAt,
		},
		Version: 1,
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order event")
	}

	return &Result{
		Order:         order,
		ItemsSubtotal: itemsSubtotal,
		SellerCount:   len(sellerIDs),
	}, nil
}

func (s *service) recordPlaced(ctx context.Context, mode string, result *Result, started time.Time) {
	s.metrics.IncPlaced(mode)
	s.metrics.ObserveDuration(mode, time.Since(started))
	if s.logg != nil && result != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"order_id":     result.Order.ID.String(),
			"seller_count": result.SellerCount,
			"total_price":  types.MoneyString(result.Order.TotalPrice),
			"mode":         mode,
		})
		s.logg.Info(logCtx, "order placed")
	}
}

func (s *service) recordRejection(mode string, err error) {
	reason := "error"
	if typed := pkgerrors.As(err); typed != nil {
		reason = string(typed.Code())
	}
	s.metrics.IncRejected(mode, reason)
}
