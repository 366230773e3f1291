// Package metrics provides the centralized Prometheus registry for the
// delta pipeline.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Global registry instance
var (
	registry *prometheus.Registry
	once     sync.Once
)

// Counter metrics
var (
	EventsReceivedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "prop_edge",
		Name:      "events_received_total",
		Help:      "Total number of market events received from the bus",
	})
	EventsDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "prop_edge",
		Name:      "events_dropped_total",
		Help:      "Total number of market events dropped before dispatch",
	})
	DeltasProcessedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "prop_edge",
		Name:      "deltas_processed_total",
		Help:      "Total number of deltas processed successfully per handler",
	}, []string{"handler", "sport"})
	DeltasFailedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "prop_edge",
		Name:      "deltas_failed_total",
		Help:      "Total number of deltas that failed per handler",
	}, []string{"handler", "sport"})
	DeltasDroppedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "prop_edge",
		Name:      "deltas_dropped_total",
		Help:      "Total number of deltas dropped by the reentrancy guard",
	}, []string{"handler"})
	OptimizationsRunTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "prop_edge",
		Name:      "optimizations_run_total",
		Help:      "Total number of portfolio optimization runs",
	})
	OptimizationsBatchedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "prop_edge",
		Name:      "optimizations_batched_total",
		Help:      "Total number of deltas absorbed into a pending batch",
	})
	SignificantEdgesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "prop_edge",
		Name:      "significant_edges_total",
		Help:      "Total number of edges detected above the significance threshold",
	})
)

// Gauge metrics
var (
	PendingAffectedProps = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "prop_edge",
		Name:      "pending_affected_props",
		Help:      "Props awaiting the next portfolio optimization",
	})
	PortfolioExposure = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "prop_edge",
		Name:      "portfolio_exposure",
		Help:      "Total exposure of the last optimized portfolio",
	})
)

// Histogram metrics
var (
	DeltaProcessingDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "prop_edge",
		Name:      "delta_processing_duration_seconds",
		Help:      "Duration of delta processing per handler in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"handler"})
	OptimizationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "prop_edge",
		Name:      "optimization_duration_seconds",
		Help:      "Duration of portfolio optimization runs in seconds",
		Buckets:   prometheus.DefBuckets,
	})
)

// InitRegistry initializes the global Prometheus registry.
func InitRegistry() *prometheus.Registry {
	once.Do(func() {
		registry = prometheus.NewRegistry()

		registry.MustRegister(EventsReceivedTotal)
		registry.MustRegister(EventsDroppedTotal)
		registry.MustRegister(DeltasProcessedTotal)
		registry.MustRegister(DeltasFailedTotal)
		registry.MustRegister(DeltasDroppedTotal)
		registry.MustRegister(OptimizationsRunTotal)
		registry.MustRegister(OptimizationsBatchedTotal)
		registry.MustRegister(SignificantEdgesTotal)

		registry.MustRegister(PendingAffectedProps)
		registry.MustRegister(PortfolioExposure)

		registry.MustRegister(DeltaProcessingDuration)
		registry.MustRegister(OptimizationDuration)
	})
	return registry
}

// GetRegistry returns the global Prometheus registry.
func GetRegistry() *prometheus.Registry {
	if registry == nil {
		return InitRegistry()
	}
	return registry
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(GetRegistry(), promhttp.HandlerOpts{})
}

// RecordEventReceived records one inbound market event.
func RecordEventReceived() {
	EventsReceivedTotal.Inc()
}

// RecordEventDropped records a market event dropped before dispatch.
func RecordEventDropped() {
	EventsDroppedTotal.Inc()
}

// RecordDeltaProcessed records a successful handler invocation.
func RecordDeltaProcessed(handler, sport string, durationSeconds float64) {
	DeltasProcessedTotal.WithLabelValues(handler, sport).Inc()
	DeltaProcessingDuration.WithLabelValues(handler).Observe(durationSeconds)
}

// RecordDeltaFailed records a failed handler invocation.
func RecordDeltaFailed(handler, sport string) {
	DeltasFailedTotal.WithLabelValues(handler, sport).Inc()
}

// RecordDeltaDropped records a delta rejected by the reentrancy guard.
func RecordDeltaDropped(handler string) {
	DeltasDroppedTotal.WithLabelValues(handler).Inc()
}

// RecordOptimizationRun records one completed optimization.
func RecordOptimizationRun(durationSeconds float64, exposure float64) {
	OptimizationsRunTotal.Inc()
	OptimizationDuration.Observe(durationSeconds)
	PortfolioExposure.Set(exposure)
}

// RecordBatchedDelta records a delta deferred into the pending batch.
func RecordBatchedDelta(pendingProps int) {
	OptimizationsBatchedTotal.Inc()
	PendingAffectedProps.Set(float64(pendingProps))
}

// RecordSignificantEdge records an edge crossing the significance threshold.
func RecordSignificantEdge() {
	SignificantEdgesTotal.Inc()
}
