package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PaymentMetrics records reconciliation activity against the gateway.
type PaymentMetrics struct {
	reconciled  *prometheus.CounterVec
	statusCheck *prometheus.HistogramVec
	rejected    *prometheus.CounterVec
}

// NewPaymentMetrics registers the payment metrics on the provided registerer.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	reconciled := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_reconciled",
		Help: "Payment rows moved to a new status.",
	}, []string{"status", "source"})
	statusCheck := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payment_status_check_seconds",
		Help:    "Duration of gateway status checks in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_callbacks_rejected",
		Help: "Gateway callbacks rejected before any state change.",
	}, []string{"reason"})
	reg.MustRegister(reconciled, statusCheck, rejected)
	return &PaymentMetrics{
		reconciled:  reconciled,
		statusCheck: statusCheck,
		rejected:    rejected,
	}
}

// IncReconciled counts a payment row landing on status via source.
func (p *PaymentMetrics) IncReconciled(status, source string) {
	if p == nil || p.reconciled == nil {
		return
	}
	p.reconciled.WithLabelValues(normalizeLabel(status), normalizeLabel(source)).Inc()
}

// ObserveStatusCheck records one round trip to the gateway status endpoint.
func (p *PaymentMetrics) ObserveStatusCheck(outcome string, duration time.Duration) {
	if p == nil || p.statusCheck == nil {
		return
	}
	p.statusCheck.WithLabelValues(normalizeLabel(outcome)).Observe(duration.Seconds())
}

// IncCallbackRejected counts a callback refused before touching state.
func (p *PaymentMetrics) IncCallbackRejected(reason string) {
	if p == nil || p.rejected == nil {
		return
	}
	p.rejected.WithLabelValues(normalizeLabel(reason)).Inc()
}
