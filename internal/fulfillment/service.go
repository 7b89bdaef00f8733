package fulfillment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/anishmaharjan/kinmel-backend/internal/orders"
	"github.com/anishmaharjan/kinmel-backend/pkg/db/models"
	"github.com/anishmaharjan/kinmel-backend/pkg/enums"
	pkgerrors "github.com/anishmaharjan/kinmel-backend/pkg/errors"
	"github.com/anishmaharjan/kinmel-backend/pkg/logger"
	"github.com/anishmaharjan/kinmel-backend/pkg/outbox"
	"github.com/anishmaharjan/kinmel-backend/pkg/outbox/payloads"
	"github.com/anishmaharjan/kinmel-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service drives a seller's fulfillment through its lifecycle and exposes
// seller-scoped reads over fulfillments and their derived items.
type Service interface {
	SetStatus(ctx context.Context, input SetStatusInput) (*models.OrderFulfillment, error)
	GetForSeller(ctx context.Context, fulfillmentID, sellerID uuid.UUID) (*orders.SellerFulfillment, error)
	ListForSeller(ctx context.Context, sellerID uuid.UUID, params pagination.Params, filters orders.FulfillmentFilters) (*orders.SellerFulfillmentList, error)
}

// SetStatusInput is one seller-initiated transition. Status is the raw token
// from the request; SyncItems propagates it to the fulfillment's order items.
type SetStatusInput struct {
	SellerID      uuid.UUID
	FulfillmentID uuid.UUID
	Status        string
	SyncItems     bool
}

type service struct {
	orders orders.Repository
	tx     txRunner
	outbox outboxPublisher
	logg   *logger.Logger
}

func NewService(ordersRepo orders.Repository, tx txRunner, outboxSvc outboxPublisher, logg *logger.Logger) (Service, error) {
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outboxSvc == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{orders: ordersRepo, tx: tx, outbox: outboxSvc, logg: logg}, nil
}

// timestampColumn maps a status to the lifecycle column it stamps on first
// entry. Pending and cancelled carry no timestamp of their own.
func timestampColumn(status enums.FulfillmentStatus) string {
	switch status {
	case enums.FulfillmentStatusAccepted:
		return "accepted_at"
	case enums.FulfillmentStatusPacked:
		return "packed_at"
	case enums.FulfillmentStatusShipped:
		return "shipped_at"
	case enums.FulfillmentStatusDelivered:
		return "delivered_at"
	default:
		return ""
	}
}

func timestampValue(fulfillment *models.OrderFulfillment, status enums.FulfillmentStatus) *time.Time {
	switch status {
	case enums.FulfillmentStatusAccepted:
		return fulfillment.AcceptedAt
	case enums.FulfillmentStatusPacked:
		return fulfillment.PackedAt
	case enums.FulfillmentStatusShipped:
		return fulfillment.ShippedAt
	case enums.FulfillmentStatusDelivered:
		return fulfillment.DeliveredAt
	default:
		return nil
	}
}

// SetStatus moves the seller's fulfillment to the requested status in a single
// transaction. The matching lifecycle timestamp is written only on the first
// entry into that status, so replays never shift history. When SyncItems is
// set the same status is pushed to every order item belonging to this
// (order, seller) pair.
func (s *service) SetStatus(ctx context.Context, input SetStatusInput) (*models.OrderFulfillment, error) {
	if input.SellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "seller identity missing")
	}
	if input.FulfillmentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "fulfillment id required")
	}
	status, err := enums.ParseFulfillmentStatus(input.Status)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, err.Error())
	}

	var updated *models.OrderFulfillment
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.orders.WithTx(tx)

		current, err := repo.FindFulfillmentForSeller(ctx, input.FulfillmentID, input.SellerID)
		if err != nil {
			return err
		}
		if current == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "fulfillment not found")
		}
		if current.Status.IsTerminal() && current.Status != status {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("fulfillment is already %s", current.Status))
		}

		now := time.Now().UTC()
		updates := map[string]any{"status": status}
		if column := timestampColumn(status); column != "" && timestampValue(current, status) == nil {
			updates[column] = now
		}
		if err := repo.UpdateFulfillment(ctx, current.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to update fulfillment")
		}

		if input.SyncItems {
			itemStatus, err := enums.ParseOrderItemStatus(string(status))
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "status has no item counterpart")
			}
			if err := repo.UpdateSellerItemStatuses(ctx, current.OrderID, input.SellerID, itemStatus); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to sync item statuses")
			}
		}

		applied := *current
		applied.Status = status
		if column := timestampColumn(status); column != "" && timestampValue(current, status) == nil {
			stamped := now
			switch status {
			case enums.FulfillmentStatusAccepted:
				applied.AcceptedAt = &stamped
			case enums.FulfillmentStatusPacked:
				applied.PackedAt = &stamped
			case enums.FulfillmentStatusShipped:
				applied.ShippedAt = &stamped
			case enums.FulfillmentStatusDelivered:
				applied.DeliveredAt = &stamped
			}
		}
		updated = &applied

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventFulfillmentUpdated,
			AggregateType: enums.AggregateFulfillment,
			AggregateID:   current.ID,
			Actor:         &outbox.ActorRef{UserID: input.SellerID, Role: string(enums.ActorRoleSeller)},
			Data: payloads.FulfillmentUpdatedEvent{
				FulfillmentID: current.ID,
				OrderID:       current.OrderID,
				SellerID:      input.SellerID,
				Status:        status,
				UpdatedAt:     now,
			},
			Version:    1,
			OccurredAt: now,
		})
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"fulfillment_id": updated.ID,
			"seller_id":      input.SellerID,
			"status":         updated.Status,
		})
		s.logg.Info(logCtx, "fulfillment status updated")
	}
	return updated, nil
}

// GetForSeller returns one fulfillment with its derived items, scoped so a
// seller can never read another seller's shipment.
func (s *service) GetForSeller(ctx context.Context, fulfillmentID, sellerID uuid.UUID) (*orders.SellerFulfillment, error) {
	if sellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "seller identity missing")
	}
	fulfillment, err := s.orders.FindFulfillmentForSeller(ctx, fulfillmentID, sellerID)
	if err != nil {
		return nil, err
	}
	if fulfillment == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "fulfillment not found")
	}
	items, err := s.orders.FindFulfillmentItems(ctx, fulfillment.OrderID, sellerID)
	if err != nil {
		return nil, err
	}
	return &orders.SellerFulfillment{Fulfillment: *fulfillment, Items: items}, nil
}

// ListForSeller pages through the seller's fulfillments, optionally filtered
// by status.
func (s *service) ListForSeller(ctx context.Context, sellerID uuid.UUID, params pagination.Params, filters orders.FulfillmentFilters) (*orders.SellerFulfillmentList, error) {
	if sellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "seller identity missing")
	}
	return s.orders.ListSellerFulfillments(ctx, sellerID, params, filters)
}
