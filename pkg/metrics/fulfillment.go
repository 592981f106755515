package metrics

import "github.com/prometheus/client_golang/prometheus"

// FulfillmentMetrics counts order placement outcomes and post-commit side effects.
type FulfillmentMetrics struct {
	ordersPlaced       prometheus.Counter
	placementFailures  *prometheus.CounterVec
	sideEffects        *prometheus.CounterVec
	sideEffectFailures *prometheus.CounterVec
	classifications    *prometheus.CounterVec
	broadcastFailures  *prometheus.CounterVec
}

// NewFulfillmentMetrics registers the fulfillment metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewFulfillmentMetrics(reg prometheus.Registerer) *FulfillmentMetrics {
	if reg == nil {
		return &FulfillmentMetrics{}
	}
	m := &FulfillmentMetrics{
		ordersPlaced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orders_placed_total",
			Help: "Orders committed by the fulfillment orchestrator.",
		}),
		placementFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "order_placement_failures_total",
			Help: "Order placements that rolled back, by error code.",
		}, []string{"code"}),
		sideEffects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "side_effects_dispatched_total",
			Help: "Post-commit events written to the outbox.",
		}, []string{"event_type"}),
		sideEffectFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "side_effects_failed_total",
			Help: "Post-commit events that could not be written to the outbox.",
		}, []string{"event_type"}),
		classifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_classifications_total",
			Help: "Payment status recomputations, by resulting status.",
		}, []string{"status"}),
		broadcastFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_broadcast_failures_total",
			Help: "Realtime notification broadcasts that failed after persistence.",
		}, []string{"audience"}),
	}
	reg.MustRegister(m.ordersPlaced, m.placementFailures, m.sideEffects, m.sideEffectFailures, m.classifications, m.broadcastFailures)
	return m
}

func (m *FulfillmentMetrics) IncOrderPlaced() {
	if m == nil || m.ordersPlaced == nil {
		return
	}
	m.ordersPlaced.Inc()
}

// IncPlacementFailure is keyed by error code, e.g. INSUFFICIENT_STOCK or CONCURRENCY_CONFLICT.
func (m *FulfillmentMetrics) IncPlacementFailure(code string) {
	if m == nil || m.placementFailures == nil {
		return
	}
	m.placementFailures.WithLabelValues(normalizeLabel(code)).Inc()
}

func (m *FulfillmentMetrics) IncSideEffect(eventType string) {
	if m == nil || m.sideEffects == nil {
		return
	}
	m.sideEffects.WithLabelValues(normalizeLabel(eventType)).Inc()
}

func (m *FulfillmentMetrics) IncSideEffectFailure(eventType string) {
	if m == nil || m.sideEffectFailures == nil {
		return
	}
	m.sideEffectFailures.WithLabelValues(normalizeLabel(eventType)).Inc()
}

func (m *FulfillmentMetrics) IncClassification(status string) {
	if m == nil || m.classifications == nil {
		return
	}
	m.classifications.WithLabelValues(normalizeLabel(status)).Inc()
}

func (m *FulfillmentMetrics) IncBroadcastFailure(audience string) {
	if m == nil || m.broadcastFailures == nil {
		return
	}
	m.broadcastFailures.WithLabelValues(normalizeLabel(audience)).Inc()
}
