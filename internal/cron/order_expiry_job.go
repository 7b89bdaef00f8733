package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/anishmaharjan/kinmel-backend/internal/orders"
	"github.com/anishmaharjan/kinmel-backend/internal/stock"
	"github.com/anishmaharjan/kinmel-backend/pkg/db/models"
	"github.com/anishmaharjan/kinmel-backend/pkg/enums"
	"github.com/anishmaharjan/kinmel-backend/pkg/logger"
	"github.com/anishmaharjan/kinmel-backend/pkg/outbox"
	"github.com/anishmaharjan/kinmel-backend/pkg/outbox/payloads"
)

const defaultOrderExpiryDays = 7

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// OrderExpiryJobParams configure the stale order sweeper.
type OrderExpiryJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Orders     orders.Repository
	Ledger     stock.Ledger
	Outbox     outboxPublisher
	ExpiryDays int
}

// NewOrderExpiryJob builds the job that cancels orders whose payment never
// arrived and returns their stock to the catalog.
func NewOrderExpiryJob(params OrderExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("stock ledger required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	expiryDays := params.ExpiryDays
	if expiryDays <= 0 {
		expiryDays = defaultOrderExpiryDays
	}
	return &orderExpiryJob{
		logg:       params.Logger,
		db:         params.DB,
		orders:     params.Orders,
		ledger:     params.Ledger,
		outbox:     params.Outbox,
		expiryDays: expiryDays,
		now:        time.Now,
	}, nil
}

type orderExpiryJob struct {
	logg       *logger.Logger
	db         txRunner
	orders     orders.Repository
	ledger     stock.Ledger
	outbox     outboxPublisher
	expiryDays int
	now        func() time.Time
}

func (j *orderExpiryJob) Name() string { return "order-expiry" }

func (j *orderExpiryJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-time.Duration(j.expiryDays) * 24 * time.Hour)
	stale, err := j.orders.FindPlacedOrdersBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("query stale orders: %w", err)
	}

	expired := 0
	for _, order := range stale {
		done, err := j.expireOrder(ctx, order)
		if err != nil {
			return fmt.Errorf("expire order %s: %w", order.ID, err)
		}
		if done {
			expired++
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":      cutoff,
		"expiry_days": j.expiryDays,
		"candidates":  len(stale),
		"expired":     expired,
	})
	j.logg.Info(logCtx, "order expiry sweep complete")
	return nil
}

func (j *orderExpiryJob) expireOrder(ctx context.Context, order models.Order) (bool, error) {
	expired := false
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := j.orders.WithTx(tx)

		// Re-read under the transaction; a payment may have settled since the
		// candidate query ran.
		current, err := repo.FindOrder(ctx, order.ID)
		if err != nil {
			return err
		}
		if current == nil || current.Status != enums.OrderStatusPlaced {
			return nil
		}

		items, err := repo.FindOrderItems(ctx, order.ID)
		if err != nil {
			return err
		}
		for _, item := range items {
			// Delivered goods are with the buyer and cannot return to stock.
			if item.Status == enums.OrderItemStatusCancelled || item.Status == enums.OrderItemStatusDelivered {
				continue
			}
			if err := j.ledger.Restock(ctx, tx, item.VariantID, item.Quantity); err != nil {
				return err
			}
		}

		if err := repo.CancelOpenFulfillments(ctx, order.ID); err != nil {
			return err
		}
		if err := repo.CancelOpenItems(ctx, order.ID); err != nil {
			return err
		}
		if err := repo.UpdateOrderStatus(ctx, order.ID, enums.OrderStatusCancelled); err != nil {
			return err
		}

		now := j.now().UTC()
		event := outbox.DomainEvent{
			EventType:     enums.EventOrderExpired,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			OccurredAt:    now,
			Data: payloads.OrderExpiredEvent{
				OrderID:   order.ID,
				BuyerID:   order.BuyerID,
				ExpiredAt: now,
			},
		}
		if err := j.outbox.Emit(ctx, tx, event); err != nil {
			return err
		}
		expired = true
		return nil
	})
	return expired, err
}
