package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics records outcomes of order placement attempts.
type CheckoutMetrics struct {
	duration *prometheus.HistogramVec
	orders   *prometheus.CounterVec
	rejected *prometheus.CounterVec
}

// NewCheckoutMetrics registers the checkout metrics on the provided registerer.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "checkout_duration_seconds",
		Help:    "Duration of checkout transactions in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"mode"})
	orders := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_orders_placed",
		Help: "Orders successfully placed.",
	}, []string{"mode"})
	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_rejected",
		Help: "Checkout attempts rejected before commit.",
	}, []string{"mode", "reason"})
	reg.MustRegister(duration, orders, rejected)
	return &CheckoutMetrics{
		duration: duration,
		orders:   orders,
		rejected: rejected,
	}
}

// ObserveDuration records how long a checkout transaction took.
func (c *CheckoutMetrics) ObserveDuration(mode string, duration time.Duration) {
	if c == nil || c.duration == nil {
		return
	}
	c.duration.WithLabelValues(normalizeLabel(mode)).Observe(duration.Seconds())
}

// IncPlaced increments the placed-order counter.
func (c *CheckoutMetrics) IncPlaced(mode string) {
	if c == nil || c.orders == nil {
		return
	}
	c.orders.WithLabelValues(normalizeLabel(mode)).Inc()
}

// IncRejected increments the rejection counter for the given reason.
func (c *CheckoutMetrics) IncRejected(mode, reason string) {
	if c == nil || c.rejected == nil {
		return
	}
	c.rejected.WithLabelValues(normalizeLabel(mode), normalizeLabel(reason)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
