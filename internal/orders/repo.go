package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/anishmaharjan/kinmel-backend/pkg/db/models"
	"github.com/anishmaharjan/kinmel-backend/pkg/enums"
	"github.com/anishmaharjan/kinmel-backend/pkg/pagination"
	"github.com/anishmaharjan/kinmel-backend/pkg/types"
)

// Repository defines persistence operations for order tables.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error)
	CreateOrderAddress(ctx context.Context, addr *models.OrderAddress) error
	CreateOrderItems(ctx context.Context, items []models.OrderItem) error
	CreateFulfillments(ctx context.Context, fulfillments []models.OrderFulfillment) error
	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindOrderItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error)
	FindPlacedOrdersBefore(ctx context.Context, cutoff time.Time) ([]models.Order, error)
	CancelOpenFulfillments(ctx context.Context, orderID uuid.UUID) error
	CancelOpenItems(ctx context.Context, orderID uuid.UUID) error
	FindBuyerOrderDetail(ctx context.Context, orderID, buyerID uuid.UUID) (*OrderDetail, error)
	ListBuyerOrders(ctx context.Context, buyerID uuid.UUID, params pagination.Params) (*BuyerOrderList, error)
	FindFulfillmentForSeller(ctx context.Context, fulfillmentID, sellerID uuid.UUID) (*models.OrderFulfillment, error)
	FindFulfillmentItems(ctx context.Context, orderID, sellerID uuid.UUID) ([]models.OrderItem, error)
	ListSellerFulfillments(ctx context.Context, sellerID uuid.UUID, params pagination.Params, filters FulfillmentFilters) (*SellerFulfillmentList, error)
	UpdateFulfillment(ctx context.Context, fulfillmentID uuid.UUID, updates map[string]any) error
	UpdateSellerItemStatuses(ctx context.Context, orderID, sellerID uuid.UUID, status enums.OrderItemStatus) error
	UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error) {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		return nil, err
	}
	return order, nil
}

func (r *repository) CreateOrderAddress(ctx context.Context, addr *models.OrderAddress) error {
	if addr.ID == uuid.Nil {
		addr.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(addr).Error
}

func (r *repository) CreateOrderItems(ctx context.Context, items []models.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	for i := range items {
		if items[i].ID == uuid.Nil {
			items[i].ID = uuid.New()
		}
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *repository) CreateFulfillments(ctx context.Context, fulfillments []models.OrderFulfillment) error {
	if len(fulfillments) == 0 {
		return nil
	}
	for i := range fulfillments {
		if fulfillments[i].ID == uuid.Nil {
			fulfillments[i].ID = uuid.New()
		}
	}
	return r.db.WithContext(ctx).Create(&fulfillments).Error
}

func (r *repository) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindOrderItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// FindPlacedOrdersBefore returns orders still awaiting payment that were
// placed before the cutoff.
func (r *repository) FindPlacedOrdersBefore(ctx context.Context, cutoff time.Time) ([]models.Order, error) {
	var rows []models.Order
	err := r.db.WithContext(ctx).
		Where("status = ? AND placed_at < ?", enums.OrderStatusPlaced, cutoff).
		Order("placed_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// CancelOpenFulfillments cancels every fulfillment of the order that has not
// reached a terminal state.
func (r *repository) CancelOpenFulfillments(ctx context.Context, orderID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.OrderFulfillment{}).
		Where("order_id = ? AND status NOT IN ?", orderID, []enums.FulfillmentStatus{
			enums.FulfillmentStatusDelivered,
			enums.FulfillmentStatusCancelled,
		}).
		Update("status", enums.FulfillmentStatusCancelled).Error
}

// CancelOpenItems mirrors CancelOpenFulfillments on the order items.
func (r *repository) CancelOpenItems(ctx context.Context, orderID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.OrderItem{}).
		Where("order_id = ? AND status NOT IN ?", orderID, []enums.OrderItemStatus{
			enums.OrderItemStatusDelivered,
			enums.OrderItemStatusCancelled,
		}).
		Update("status", enums.OrderItemStatusCancelled).Error
}

func (r *repository) FindBuyerOrderDetail(ctx context.Context, orderID, buyerID uuid.UUID) (*OrderDetail, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("ShippingAddress").
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		Preload("Fulfillments", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		Where("id = ? AND buyer_id = ?", orderID, buyerID).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	detail := &OrderDetail{
		Order:        order,
		Address:      order.ShippingAddress,
		Items:        order.Items,
		Fulfillments: order.Fulfillments,
	}
	return detail, nil
}

func (r *repository) ListBuyerOrders(ctx context.Context, buyerID uuid.UUID, params pagination.Params) (*BuyerOrderList, error) {
	limit := pagination.LimitWithBuffer(params.Limit)
	normalized := pagination.NormalizeLimit(params.Limit)

	query := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Preload("Items").
		Where("buyer_id = ?", buyerID)

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	if cursor != nil {
		query = query.Where(
			"created_at < ? OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var rows []models.Order
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}

	list := &BuyerOrderList{}
	if len(rows) > normalized {
		next := rows[normalized]
		rows = rows[:normalized]
		list.NextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: next.CreatedAt, ID: next.ID})
	}

	list.Orders = make([]BuyerOrderSummary, 0, len(rows))
	for _, row := range rows {
		list.Orders = append(list.Orders, BuyerOrderSummary{
			OrderID:    row.ID,
			Status:     row.Status,
			TotalPrice: types.MoneyString(row.TotalPrice),
			ItemCount:  len(row.Items),
			PlacedAt:   row.PlacedAt,
		})
	}
	return list, nil
}

func (r *repository) FindFulfillmentForSeller(ctx context.Context, fulfillmentID, sellerID uuid.UUID) (*models.OrderFulfillment, error) {
	var fulfillment models.OrderFulfillment
	err := r.db.WithContext(ctx).
		Where("id = ? AND seller_id = ?", fulfillmentID, sellerID).
		First(&fulfillment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &fulfillment, nil
}

// FindFulfillmentItems resolves the derived item view: order items sharing
// the fulfillment's (order_id, seller_id).
func (r *repository) FindFulfillmentItems(ctx context.Context, orderID, sellerID uuid.UUID) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND seller_id = ?", orderID, sellerID).
		Order("created_at ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) ListSellerFulfillments(ctx context.Context, sellerID uuid.UUID, params pagination.Params, filters FulfillmentFilters) (*SellerFulfillmentList, error) {
	limit := pagination.LimitWithBuffer(params.Limit)
	normalized := pagination.NormalizeLimit(params.Limit)

	query := r.db.WithContext(ctx).
		Model(&models.OrderFulfillment{}).
		Where("seller_id = ?", sellerID)
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	if cursor != nil {
		query = query.Where(
			"created_at < ? OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var rows []models.OrderFulfillment
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}

	list := &SellerFulfillmentList{}
	if len(rows) > normalized {
		next := rows[normalized]
		rows = rows[:normalized]
		list.NextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: next.CreatedAt, ID: next.ID})
	}
	list.Fulfillments = rows
	return list, nil
}

func (r *repository) UpdateFulfillment(ctx context.Context, fulfillmentID uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.OrderFulfillment{}).
		Where("id = ?", fulfillmentID).
		Updates(updates).Error
}

func (r *repository) UpdateSellerItemStatuses(ctx context.Context, orderID, sellerID uuid.UUID, status enums.OrderItemStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.OrderItem{}).
		Where("order_id = ? AND seller_id = ?", orderID, sellerID).
		Update("status", status).Error
}

func (r *repository) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Update("status", status).Error
}
