package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// StorefrontMetrics records cart activity and checkout outcomes.
type StorefrontMetrics struct {
	cartMutations    *prometheus.CounterVec
	checkoutOutcomes *prometheus.CounterVec
	checkoutDuration *prometheus.HistogramVec
}

// NewStorefrontMetrics registers the storefront metrics on the provided registerer.
func NewStorefrontMetrics(reg prometheus.Registerer) *StorefrontMetrics {
	if reg == nil {
		return &StorefrontMetrics{}
	}
	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_mutations_total",
		Help: "Cart mutation operations by kind.",
	}, []string{"op"})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_outcomes_total",
		Help: "Terminal checkout outcomes.",
	}, []string{"outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "checkout_duration_seconds",
		Help:    "Duration of checkout attempts in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	reg.MustRegister(mutations, outcomes, duration)
	return &StorefrontMetrics{
		cartMutations:    mutations,
		checkoutOutcomes: outcomes,
		checkoutDuration: duration,
	}
}

// IncCartMutation increments the counter for the named cart operation.
func (m *StorefrontMetrics) IncCartMutation(op string) {
	if m == nil || m.cartMutations == nil {
		return
	}
	m.cartMutations.WithLabelValues(normalizeLabel(op)).Inc()
}

// ObserveCheckout records one terminal checkout outcome and its duration.
func (m *StorefrontMetrics) ObserveCheckout(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	label := normalizeLabel(outcome)
	if m.checkoutOutcomes != nil {
		m.checkoutOutcomes.WithLabelValues(label).Inc()
	}
	if m.checkoutDuration != nil {
		m.checkoutDuration.WithLabelValues(label).Observe(duration.Seconds())
	}
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
