package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// MarketplaceMetrics tracks module activity for operators. All counters are
// best-effort observability and never feed back into state transitions.
type MarketplaceMetrics struct {
	eventsEmitted    *prometheus.CounterVec
	sweepsRun        prometheus.Counter
	sweptInvocations prometheus.Counter
	callErrors       *prometheus.CounterVec
	currentTick      prometheus.Gauge
}

var (
	marketplaceOnce     sync.Once
	marketplaceRegistry *MarketplaceMetrics
)

// Marketplace returns the lazily-initialised marketplace metrics registry.
func Marketplace() *MarketplaceMetrics {
	marketplaceOnce.Do(func() {
		marketplaceRegistry = &MarketplaceMetrics{
			eventsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "marketplace_events_total",
				Help: "Count of marketplace events emitted by type.",
			}, []string{"type"}),
			sweepsRun: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "marketplace_sweeps_total",
				Help: "Count of per-tick expiry sweeps executed.",
			}),
			sweptInvocations: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "marketplace_swept_invocations_total",
				Help: "Count of invocations expired by the sweeper.",
			}),
			callErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "marketplace_call_errors_total",
				Help: "Count of rejected marketplace calls by operation.",
			}, []string{"op"}),
			currentTick: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "marketplace_current_tick",
				Help: "The tick most recently processed by the host.",
			}),
		}
		prometheus.MustRegister(
			marketplaceRegistry.eventsEmitted,
			marketplaceRegistry.sweepsRun,
			marketplaceRegistry.sweptInvocations,
			marketplaceRegistry.callErrors,
			marketplaceRegistry.currentTick,
		)
	})
	return marketplaceRegistry
}

// ObserveEvent records an emitted event by type.
func (m *MarketplaceMetrics) ObserveEvent(eventType string) {
	if m == nil {
		return
	}
	m.eventsEmitted.WithLabelValues(eventType).Inc()
}

// ObserveSweep records one sweep run and how many invocations it settled.
func (m *MarketplaceMetrics) ObserveSweep(expired int) {
	if m == nil {
		return
	}
	m.sweepsRun.Inc()
	m.sweptInvocations.Add(float64(expired))
}

// ObserveCallError records a rejected call for the named operation.
func (m *MarketplaceMetrics) ObserveCallError(op string) {
	if m == nil {
		return
	}
	m.callErrors.WithLabelValues(op).Inc()
}

// SetCurrentTick publishes the tick most recently processed.
func (m *MarketplaceMetrics) SetCurrentTick(tick uint64) {
	if m == nil {
		return
	}
	m.currentTick.Set(float64(tick))
}
