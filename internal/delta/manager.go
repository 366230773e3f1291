package delta

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/prop-edge/internal/bus"
	"github.com/yourusername/prop-edge/internal/config"
	"github.com/yourusername/prop-edge/internal/metrics"
	"github.com/yourusername/prop-edge/internal/models"
	"github.com/yourusername/prop-edge/internal/store"
)

// marketEventPattern matches every market event published by providers
const marketEventPattern = "MARKET_*"

// emaAlpha controls how quickly the per-handler average processing time
// tracks recent deltas
const emaAlpha = 0.1

// handlerOrder is the fixed dispatch order. Upstream handlers run before
// the handlers that read what they wrote, so a single pass over the slice
// respects the dependency graph.
var handlerOrder = []string{
	ValuationHandlerName,
	EdgeHandlerName,
	PortfolioHandlerName,
}

// Manager owns the pipeline: it subscribes to market events, translates
// them into delta contexts, and dispatches every registered handler in
// dependency order.
type Manager struct {
	bus       bus.Bus
	valuation *ValuationHandler
	edge      *EdgeHandler
	portfolio *PortfolioHandler
	handlers  map[string]Handler
	logger    *logrus.Logger

	mu                 sync.RWMutex
	running            bool
	eventsReceived     int64
	eventsProcessed    int64
	eventsFailed       int64
	lastEventTimestamp time.Time
	avgProcessingMs    map[string]float64
	startedAt          time.Time
}

// ManagerStatus is the observability snapshot for the whole pipeline
type ManagerStatus struct {
	Running            bool                     `json:"running"`
	EventsReceived     int64                    `json:"events_received"`
	EventsProcessed    int64                    `json:"events_processed"`
	EventsFailed       int64                    `json:"events_failed"`
	LastEventTimestamp time.Time                `json:"last_event_timestamp"`
	AvgProcessingMs    map[string]float64       `json:"avg_processing_ms"`
	UptimeSeconds      float64                  `json:"uptime_seconds"`
	Handlers           map[string]HandlerStatus `json:"handlers"`
}

// NewManager builds the three pipeline handlers, wires the dependency
// graph between them and prepares dispatch. Subscription happens in Start.
func NewManager(b bus.Bus, stores *store.Stores, cfg *config.PipelineConfig, logger *logrus.Logger) *Manager {
	valuation := NewValuationHandler(stores.Valuations, cfg, logger)
	edge := NewEdgeHandler(stores.Edges, cfg, logger)
	portfolio := NewPortfolioHandler(stores.Edges, stores.PortfolioRuns, cfg, logger)

	edge.RegisterDependency(ValuationHandlerName, valuation)
	portfolio.RegisterDependency(ValuationHandlerName, valuation)
	portfolio.RegisterDependency(EdgeHandlerName, edge)

	valuation.RegisterDependent(EdgeHandlerName, edge)
	edge.RegisterDependent(PortfolioHandlerName, portfolio)

	valuation.SetSelfTrigger(cfg.SelfTriggerDependents)
	edge.SetSelfTrigger(cfg.SelfTriggerDependents)

	return &Manager{
		bus:       b,
		valuation: valuation,
		edge:      edge,
		portfolio: portfolio,
		handlers: map[string]Handler{
			ValuationHandlerName: valuation,
			EdgeHandlerName:      edge,
			PortfolioHandlerName: portfolio,
		},
		logger:          logger,
		avgProcessingMs: make(map[string]float64),
	}
}

// Start subscribes to market events. After Start returns the pipeline is
// live.
func (m *Manager) Start() error {
	if err := m.bus.Subscribe(marketEventPattern, m.handleMarketEvent); err != nil {
		return fmt.Errorf("failed to subscribe to market events: %w", err)
	}

	m.mu.Lock()
	m.running = true
	m.startedAt = time.Now().UTC()
	m.mu.Unlock()

	m.logger.WithFields(logrus.Fields{
		"pattern":  marketEventPattern,
		"handlers": handlerOrder,
	}).Info("Delta handler manager started")
	return nil
}

// Stop drains asynchronously triggered work and cancels the portfolio
// batch timer
func (m *Manager) Stop() {
	m.mu.Lock()
	m.running = false
	m.mu.Unlock()

	for _, name := range handlerOrder {
		m.handlers[name].Drain()
	}
	m.portfolio.Close()
	m.logger.Info("Delta handler manager stopped")
}

// handleMarketEvent translates a raw bus event into a delta context and
// dispatches it. Events without a prop identity cannot be routed and are
// dropped.
func (m *Manager) handleMarketEvent(ctx context.Context, eventType string, payload map[string]any) {
	m.mu.Lock()
	m.eventsReceived++
	m.lastEventTimestamp = time.Now().UTC()
	m.mu.Unlock()
	metrics.RecordEventReceived()

	dc, err := m.buildContext(eventType, payload)
	if err != nil {
		metrics.RecordEventDropped()
		m.logger.WithFields(logrus.Fields{
			"event_type": eventType,
			"error":      err.Error(),
		}).Warn("Dropping malformed market event")
		return
	}

	m.Dispatch(ctx, dc)
}

// Dispatch runs the delta through every handler in dependency order and
// returns the results keyed by handler name. Handlers that skip the delta
// produce no entry; every result that is produced counts toward the
// processed or failed aggregate.
func (m *Manager) Dispatch(ctx context.Context, dc *models.DeltaContext) map[string]*models.ProcessingResult {
	results := make(map[string]*models.ProcessingResult)

	for _, name := range handlerOrder {
		result := m.handlers[name].HandleDelta(ctx, dc)
		if result == nil {
			continue
		}
		results[name] = result

		m.mu.Lock()
		if result.Success {
			m.eventsProcessed++
		} else {
			m.eventsFailed++
		}
		m.mu.Unlock()

		if result.Success {
			m.updateAverage(name, float64(result.ProcessingTimeMs))
		}
	}

	m.logger.WithFields(logrus.Fields{
		"event_id":   dc.EventID,
		"prop_id":    dc.PropID,
		"event_type": dc.EventType,
		"handlers":   len(results),
	}).Debug("Delta dispatched")

	return results
}

// buildContext assembles a DeltaContext from a raw event payload. Provider
// payload shapes vary, so everything beyond prop identity is best effort.
func (m *Manager) buildContext(eventType string, payload map[string]any) (*models.DeltaContext, error) {
	propID := stringField(payload, "prop_id")
	if propID == "" {
		return nil, models.ErrMissingPropID
	}
	provider := stringField(payload, "provider")
	if provider == "" {
		return nil, models.ErrMissingProvider
	}

	dc := models.NewDeltaContext(propID, provider, models.ParseDeltaEventType(eventType, payload))

	if sport := stringField(payload, "sport"); sport != "" {
		dc.Sport = sport
	}
	if raw := stringField(payload, "timestamp"); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			dc.Timestamp = ts.UTC()
		}
	}
	if curr, ok := payload["current_data"].(map[string]any); ok {
		dc.CurrentData = curr
	} else if attrs := marketAttributes(payload); len(attrs) > 0 {
		dc.CurrentData = attrs
	}
	if prev, ok := payload["previous_data"].(map[string]any); ok {
		dc.PreviousData = prev
	}
	dc.Metadata = map[string]any{
		"source_event_type": eventType,
	}

	return dc, nil
}

// envelopeFields are payload keys that describe the event itself rather
// than the prop's market attributes
var envelopeFields = map[string]struct{}{
	"prop_id":       {},
	"provider":      {},
	"sport":         {},
	"timestamp":     {},
	"current_data":  {},
	"previous_data": {},
}

// marketAttributes collects top-level market attributes from a flat
// payload. Providers publish either a nested current_data snapshot or the
// attributes inline alongside the event envelope.
func marketAttributes(payload map[string]any) map[string]any {
	attrs := make(map[string]any)
	for k, v := range payload {
		if _, envelope := envelopeFields[k]; !envelope {
			attrs[k] = v
		}
	}
	return attrs
}

// updateAverage maintains an exponential moving average of processing time
// per handler. The first sample seeds the average directly.
func (m *Manager) updateAverage(handler string, ms float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, ok := m.avgProcessingMs[handler]
	if !ok {
		m.avgProcessingMs[handler] = ms
		return
	}
	m.avgProcessingMs[handler] = emaAlpha*ms + (1-emaAlpha)*prev
}

// GetHandler returns a registered handler by name
func (m *Manager) GetHandler(name string) (Handler, bool) {
	h, ok := m.handlers[name]
	return h, ok
}

// Portfolio exposes the portfolio stage for scheduled sweeps
func (m *Manager) Portfolio() *PortfolioHandler {
	return m.portfolio
}

// GetStatus returns the pipeline observability snapshot
func (m *Manager) GetStatus() ManagerStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	averages := make(map[string]float64, len(m.avgProcessingMs))
	for k, v := range m.avgProcessingMs {
		averages[k] = v
	}

	statuses := make(map[string]HandlerStatus, len(m.handlers))
	for name, h := range m.handlers {
		statuses[name] = h.Status()
	}

	var uptime float64
	if !m.startedAt.IsZero() {
		uptime = time.Since(m.startedAt).Seconds()
	}

	return ManagerStatus{
		Running:            m.running,
		EventsReceived:     m.eventsReceived,
		EventsProcessed:    m.eventsProcessed,
		EventsFailed:       m.eventsFailed,
		LastEventTimestamp: m.lastEventTimestamp,
		AvgProcessingMs:    averages,
		UptimeSeconds:      uptime,
		Handlers:           statuses,
	}
}
