package enums

// OutboxEventType names the domain events written to the outbox table.
type OutboxEventType string

const (
	EventOrderPlaced        OutboxEventType = "order.placed"
	EventOrderExpired       OutboxEventType = "order.expired"
	EventPaymentReconciled  OutboxEventType = "payment.reconciled"
	EventFulfillmentUpdated OutboxEventType = "fulfillment.updated"
)

// OutboxAggregateType names the aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateOrder       OutboxAggregateType = "order"
	AggregatePayment     OutboxAggregateType = "payment"
	AggregateFulfillment OutboxAggregateType = "fulfillment"
)
