package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/anishmaharjan/kinmel-backend/pkg/db/models"
	"github.com/anishmaharjan/kinmel-backend/pkg/enums"
)

// BuyerOrderSummary is one row in a buyer's order history.
type BuyerOrderSummary struct {
	OrderID    uuid.UUID         `json:"order_id"`
	Status     enums.OrderStatus `json:"status"`
	TotalPrice string            `json:"total_price"`
	ItemCount  int               `json:"item_count"`
	PlacedAt   time.Time         `json:"placed_at"`
}

// BuyerOrderList wraps the paginated orders plus the next page cursor.
type BuyerOrderList struct {
	Orders     []BuyerOrderSummary `json:"orders"`
	NextCursor string              `json:"next_cursor,omitempty"`
}

// OrderDetail is the full buyer-facing view of one order.
type OrderDetail struct {
	Order        models.Order              `json:"order"`
	Address      *models.OrderAddress      `json:"address,omitempty"`
	Items        []models.OrderItem        `json:"items"`
	Fulfillments []models.OrderFulfillment `json:"fulfillments"`
}

// SellerFulfillment pairs a fulfillment with its derived item view: the order
// items sharing its (order_id, seller_id). The items are read-only members,
// not an ownership edge.
type SellerFulfillment struct {
	Fulfillment models.OrderFulfillment `json:"fulfillment"`
	Items       []models.OrderItem      `json:"items"`
}

// SellerFulfillmentList wraps the paginated seller work queue.
type SellerFulfillmentList struct {
	Fulfillments []models.OrderFulfillment `json:"fulfillments"`
	NextCursor   string                    `json:"next_cursor,omitempty"`
}

// FulfillmentFilters narrows the seller work queue.
type FulfillmentFilters struct {
	Status *enums.FulfillmentStatus
}
