package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/anishmaharjan/kinmel-backend/internal/orders"
	"github.com/anishmaharjan/kinmel-backend/pkg/config"
	"github.com/anishmaharjan/kinmel-backend/pkg/db/models"
	"github.com/anishmaharjan/kinmel-backend/pkg/enums"
	pkgerrors "github.com/anishmaharjan/kinmel-backend/pkg/errors"
	"github.com/anishmaharjan/kinmel-backend/pkg/esewa"
	"github.com/anishmaharjan/kinmel-backend/pkg/logger"
	"github.com/anishmaharjan/kinmel-backend/pkg/metrics"
	"github.com/anishmaharjan/kinmel-backend/pkg/outbox"
	"github.com/anishmaharjan/kinmel-backend/pkg/outbox/payloads"
	redispkg "github.com/anishmaharjan/kinmel-backend/pkg/redis"
	"github.com/anishmaharjan/kinmel-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Source labels for reconciliation events and metrics.
const (
	sourceCallback = "callback"
	sourcePoll     = "poll"
)

// Service reconciles payments against the eSewa gateway: it hands out the
// signed initiation form, verifies inbound callbacks, and polls the
// authoritative status endpoint.
type Service interface {
	InitiatePayment(ctx context.Context, orderID, buyerID uuid.UUID) (*SignedRequest, error)
	VerifyAndApplyCallback(ctx context.Context, encodedData string) (*Summary, error)
	Poll(ctx context.Context, orderID, buyerID uuid.UUID) (*Summary, error)
}

// SignedRequest is everything the buyer's browser needs to post the payment
// form to the gateway.
type SignedRequest struct {
	Payment *models.Payment
	FormURL string
	Fields  map[string]string
}

// Summary reports where a payment landed after reconciliation.
type Summary struct {
	PaymentID       uuid.UUID           `json:"payment_id"`
	OrderID         uuid.UUID           `json:"order_id"`
	TransactionUUID string              `json:"transaction_uuid"`
	Status          enums.PaymentStatus `json:"status"`
	RefID           string              `json:"ref_id,omitempty"`
	OrderStatus     enums.OrderStatus   `json:"order_status"`
}

type service struct {
	payments    Repository
	orders      orders.Repository
	gateway     esewa.StatusChecker
	cfg         config.EsewaConfig
	tx          txRunner
	outbox      outboxPublisher
	idempotency redispkg.IdempotencyStore
	metrics     *metrics.PaymentMetrics
	logg        *logger.Logger
}

// NewService builds the reconciliation service. The idempotency store is
// optional; without it every callback replay costs one extra gateway round
// trip but remains correct.
func NewService(
	paymentsRepo Repository,
	ordersRepo orders.Repository,
	gateway esewa.StatusChecker,
	cfg config.EsewaConfig,
	tx txRunner,
	outboxSvc outboxPublisher,
	idempotency redispkg.IdempotencyStore,
	paymentMetrics *metrics.PaymentMetrics,
	logg *logger.Logger,
) (Service, error) {
	if paymentsRepo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("gateway status checker required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outboxSvc == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		payments:    paymentsRepo,
		orders:      ordersRepo,
		gateway:     gateway,
		cfg:         cfg,
		tx:          tx,
		outbox:      outboxSvc,
		idempotency: idempotency,
		metrics:     paymentMetrics,
		logg:        logg,
	}, nil
}

// InitiatePayment returns the signed gateway form for an order. Retried calls
// for an unresolved order reuse the open payment row (refreshing its amount to
// the order's current total) instead of creating duplicates.
func (s *service) InitiatePayment(ctx context.Context, orderID, buyerID uuid.UUID) (*SignedRequest, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "buyer identity missing")
	}
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	order, err := s.orders.FindOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load order")
	}
	if order == nil || order.BuyerID != buyerID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if order.Status != enums.OrderStatusPlaced {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("order is %s and cannot be paid", order.Status))
	}

	var payment *models.Payment
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.payments.WithTx(tx)
		payment, err = s.getOrCreatePending(ctx, repo, order)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.buildSignedRequest(payment), nil
}

// getOrCreatePending is the idempotency boundary: the latest open
// (pending/ambiguous) row for (order, provider) is reused with its amount
// refreshed to the order's current total; anything else gets a fresh row with
// a new opaque transaction identifier.
func (s *service) getOrCreatePending(ctx context.Context, repo Repository, order *models.Order) (*models.Payment, error) {
	latest, err := repo.FindLatestByOrderProvider(ctx, order.ID, enums.PaymentProviderEsewa)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load payment")
	}
	now := time.Now().UTC()
	if latest != nil && latest.Status.IsOpen() {
		if !latest.Amount.Equal(order.TotalPrice) {
			if err := repo.Update(ctx, latest.ID, map[string]any{"amount": order.TotalPrice}); err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to refresh payment amount")
			}
			latest.Amount = order.TotalPrice
		}
		return latest, nil
	}

	payment := &models.Payment{
		OrderID:         order.ID,
		Provider:        enums.PaymentProviderEsewa,
		Status:          enums.PaymentStatusPending,
		Amount:          order.TotalPrice,
		TransactionUUID: uuid.NewString(),
		InitiatedAt:     &now,
	}
	if err := repo.Create(ctx, payment); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to create payment")
	}
	return payment, nil
}

// buildSignedRequest assembles the ePay v2 form fields and signs the
// canonical message over exactly the signed_field_names list.
func (s *service) buildSignedRequest(payment *models.Payment) *SignedRequest {
	total := types.MoneyString(payment.Amount)
	fields := map[string]string{
		"amount":                  total,
		"tax_amount":              "0",
		"total_amount":            total,
		"transaction_uuid":        payment.TransactionUUID,
		"product_code":            s.cfg.ProductCode,
		"product_service_charge":  "0",
		"product_delivery_charge": "0",
		"success_url":             s.cfg.SuccessURL,
		"failure_url":             s.cfg.FailureURL,
		"signed_field_names":      esewa.SignedFieldNames,
	}
	fields["signature"] = esewa.Sign(esewa.CanonicalMessage(fields, esewa.SignedFieldNames), s.cfg.SecretKey)
	return &SignedRequest{Payment: payment, FormURL: s.cfg.FormURL, Fields: fields}
}

// VerifyAndApplyCallback handles the gateway redirect. The signature is
// checked before anything else touches state, and the status embedded in the
// callback is never trusted: the authoritative status endpoint is queried
// independently and only its answer is applied.
func (s *service) VerifyAndApplyCallback(ctx context.Context, encodedData string) (*Summary, error) {
	fields, err := esewa.DecodeCallbackData(encodedData)
	if err != nil {
		s.metrics.IncCallbackRejected("malformed")
		return nil, err
	}
	if err := esewa.VerifySignature(fields, s.cfg.SecretKey); err != nil {
		s.metrics.IncCallbackRejected("signature")
		return nil, err
	}

	transactionUUID := fields["transaction_uuid"]
	if transactionUUID == "" {
		s.metrics.IncCallbackRejected("missing_transaction")
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "callback missing transaction_uuid")
	}

	payment, err := s.payments.FindByTransactionUUID(ctx, transactionUUID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load payment")
	}
	if payment == nil {
		s.metrics.IncCallbackRejected("unknown_transaction")
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
	}

	// A replayed callback skips the gateway round trip; applying the same
	// status twice is a no-op anyway, so losing the key only costs latency.
	var dedupeKey string
	if s.idempotency != nil {
		dedupeKey = s.idempotency.CallbackKey(string(enums.PaymentProviderEsewa), transactionUUID)
		fresh, err := s.idempotency.SetNX(ctx, dedupeKey, "1", s.cfg.CallbackTTL)
		if err == nil && !fresh {
			return s.summarize(ctx, payment)
		}
	}

	summary, err := s.reconcile(ctx, payment, sourceCallback)
	if err != nil && dedupeKey != "" {
		// Release the key so a retried callback gets a real status check.
		_ = s.idempotency.Del(ctx, dedupeKey)
	}
	return summary, err
}

// Poll re-checks the gateway for the order's latest payment. Used when no
// callback arrived (closed browser, gateway hiccup).
func (s *service) Poll(ctx context.Context, orderID, buyerID uuid.UUID) (*Summary, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "buyer identity missing")
	}
	order, err := s.orders.FindOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load order")
	}
	if order == nil || order.BuyerID != buyerID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	payment, err := s.payments.FindLatestByOrderProvider(ctx, orderID, enums.PaymentProviderEsewa)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load payment")
	}
	if payment == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no payment initiated for order")
	}
	return s.reconcile(ctx, payment, sourcePoll)
}

// reconcile queries the authoritative status endpoint outside any transaction,
// then applies the mapped result atomically. Gateway failures leave the
// payment untouched.
func (s *service) reconcile(ctx context.Context, payment *models.Payment, source string) (*Summary, error) {
	started := time.Now()
	status, err := s.gateway.CheckStatus(ctx, types.MoneyString(payment.Amount), payment.TransactionUUID)
	if err != nil {
		s.metrics.ObserveStatusCheck("error", time.Since(started))
		return nil, err
	}
	s.metrics.ObserveStatusCheck("ok", time.Since(started))
	return s.applyGatewayStatus(ctx, payment, status, source)
}

// mapGatewayStatus is the pure status mapping. The second return is the order
// status to apply, nil when the order is left untouched. Unrecognized tokens
// fail closed.
func mapGatewayStatus(gatewayStatus string) (enums.PaymentStatus, *enums.OrderStatus) {
	completed := enums.OrderStatusCompleted
	cancelled := enums.OrderStatusCancelled
	switch gatewayStatus {
	case esewa.StatusComplete:
		return enums.PaymentStatusComplete, &completed
	case esewa.StatusPending:
		return enums.PaymentStatusPending, nil
	case esewa.StatusAmbiguous:
		return enums.PaymentStatusAmbiguous, nil
	case esewa.StatusCanceled:
		return enums.PaymentStatusNotFound, &cancelled
	case esewa.StatusFullRefund:
		return enums.PaymentStatusFullRefund, nil
	case esewa.StatusPartialRefund:
		return enums.PaymentStatusPartialRefund, nil
	default:
		return enums.PaymentStatusFailed, &cancelled
	}
}

// transitionAllowed enforces the payment state machine: open payments may move
// anywhere except into a refund, refunds are reachable only from complete, and
// terminal states are otherwise frozen.
func transitionAllowed(current, target enums.PaymentStatus) bool {
	if current == target {
		return true
	}
	isRefund := target == enums.PaymentStatusFullRefund || target == enums.PaymentStatusPartialRefund
	if isRefund {
		return current == enums.PaymentStatusComplete
	}
	return current.IsOpen() || current == enums.PaymentStatusUnpaid
}

func (s *service) applyGatewayStatus(ctx context.Context, payment *models.Payment, status *esewa.StatusResponse, source string) (*Summary, error) {
	target, orderStatus := mapGatewayStatus(status.Status)
	if !transitionAllowed(payment.Status, target) {
		if s.logg != nil {
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"payment_id":     payment.ID,
				"current_status": payment.Status,
				"gateway_status": status.Status,
			})
			s.logg.Warn(logCtx, "gateway status ignored for settled payment")
		}
		return s.summarize(ctx, payment)
	}

	changed := payment.Status != target
	now := time.Now().UTC()
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.payments.WithTx(tx)
		updates := map[string]any{"status": target}
		if target == enums.PaymentStatusComplete {
			if status.RefID != "" {
				updates["ref_id"] = status.RefID
			}
			if payment.VerifiedAt == nil {
				updates["verified_at"] = now
			}
		}
		if err := repo.Update(ctx, payment.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to update payment")
		}

		if orderStatus != nil {
			order, err := s.orders.WithTx(tx).FindOrder(ctx, payment.OrderID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load order")
			}
			// Order status is monotonic; only a placed order moves.
			if order != nil && order.Status == enums.OrderStatusPlaced {
				if err := s.orders.WithTx(tx).UpdateOrderStatus(ctx, order.ID, *orderStatus); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to update order status")
				}
			}
		}

		if !changed {
			return nil
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentReconciled,
			AggregateType: enums.AggregatePayment,
			AggregateID:   payment.ID,
			Data: payloads.PaymentReconciledEvent{
				PaymentID:       payment.ID,
				OrderID:         payment.OrderID,
				TransactionUUID: payment.TransactionUUID,
				Status:          target,
				RefID:           status.RefID,
				Source:          source,
			},
			Version:    1,
			OccurredAt: now,
		})
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.metrics.IncReconciled(string(target), source)
		if s.logg != nil {
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"payment_id": payment.ID,
				"order_id":   payment.OrderID,
				"status":     target,
				"source":     source,
			})
			s.logg.Info(logCtx, "payment reconciled")
		}
	}
	return s.summarize(ctx, payment)
}

// summarize reloads the payment and its order so the caller sees committed
// state rather than in-memory guesses.
func (s *service) summarize(ctx context.Context, payment *models.Payment) (*Summary, error) {
	fresh, err := s.payments.FindByTransactionUUID(ctx, payment.TransactionUUID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to reload payment")
	}
	if fresh == nil {
		fresh = payment
	}
	summary := &Summary{
		PaymentID:       fresh.ID,
		OrderID:         fresh.OrderID,
		TransactionUUID: fresh.TransactionUUID,
		Status:          fresh.Status,
	}
	if fresh.RefID != nil {
		summary.RefID = *fresh.RefID
	}
	if order, err := s.orders.FindOrder(ctx, fresh.OrderID); err == nil && order != nil {
		summary.OrderStatus = order.Status
	}
	return summary, nil
}
