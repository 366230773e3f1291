// Package delta implements the event-driven pipeline that reacts to prop
// market changes: valuation recomputation, edge (expected value) derivation,
// and rate-limited portfolio re-optimization, driven by a manager that
// subscribes to market events and dispatches handlers in dependency order.
package delta

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/prop-edge/internal/metrics"
	"github.com/yourusername/prop-edge/internal/models"
)

// Handler names double as dependency-graph node identifiers
const (
	ValuationHandlerName = "valuation_delta"
	EdgeHandlerName      = "edge_delta"
	PortfolioHandlerName = "portfolio_refresh"
)

// Processor is the part of a handler that concrete implementations supply:
// a cheap acceptance predicate and the actual work.
type Processor interface {
	// CanProcess reports whether this handler cares about the delta. It
	// must be cheap and side-effect free; sport filtering is handled
	// separately by the base handler.
	CanProcess(dc *models.DeltaContext) bool
	// ProcessDelta performs the work. It must not assume anything about
	// dependencies beyond what HandleDelta already checked.
	ProcessDelta(ctx context.Context, dc *models.DeltaContext) (*models.ProcessingResult, error)
}

// Handler is a fully assembled pipeline stage
type Handler interface {
	Processor
	Name() string
	HandleDelta(ctx context.Context, dc *models.DeltaContext) *models.ProcessingResult
	RegisterDependency(name string, h Handler)
	RegisterDependent(name string, h Handler)
	Status() HandlerStatus
	Drain()
}

// HandlerStatus is the observability surface of one handler
type HandlerStatus struct {
	Name                   string           `json:"name"`
	IsProcessing           bool             `json:"is_processing"`
	SupportedSports        []string         `json:"supported_sports"`
	LastProcessed          time.Time        `json:"last_processed"`
	ProcessingCount        int64            `json:"processing_count"`
	ErrorCount             int64            `json:"error_count"`
	SportProcessingCounts  map[string]int64 `json:"sport_processing_counts"`
	SportErrorCounts       map[string]int64 `json:"sport_error_counts"`
	DeclaredDependencies   []string         `json:"declared_dependencies"`
	RegisteredDependencies []string         `json:"registered_dependencies"`
	Details                map[string]any   `json:"details,omitempty"`
}

// BaseHandler carries the orchestration shared by every pipeline stage:
// sport filtering, dependency-readiness checks, the reentrancy guard,
// timing, counters, and optional dependent fan-out.
type BaseHandler struct {
	name            string
	supportedSports []string
	declaredDeps    []string
	impl            Processor
	logger          *logrus.Logger

	// processing is the reentrancy guard: deltas arriving while one is
	// in flight on this handler are dropped, not queued.
	processing  atomic.Bool
	selfTrigger atomic.Bool

	mu                 sync.RWMutex
	dependencyHandlers map[string]Handler
	dependents         map[string]Handler
	processingCount    int64
	errorCount         int64
	sportProcessing    map[string]int64
	sportErrors        map[string]int64
	lastProcessed      time.Time
	statusDetails      func() map[string]any

	wg sync.WaitGroup
}

// NewBaseHandler wires the shared machinery for a concrete processor.
// supportedSports defaults to NBA only.
func NewBaseHandler(name string, supportedSports, declaredDeps []string, impl Processor, logger *logrus.Logger) *BaseHandler {
	if len(supportedSports) == 0 {
		supportedSports = []string{models.DefaultSport}
	}
	return &BaseHandler{
		name:               name,
		supportedSports:    supportedSports,
		declaredDeps:       declaredDeps,
		impl:               impl,
		logger:             logger,
		dependencyHandlers: make(map[string]Handler),
		dependents:         make(map[string]Handler),
		sportProcessing:    make(map[string]int64),
		sportErrors:        make(map[string]int64),
	}
}

// Name returns the handler's graph node name
func (b *BaseHandler) Name() string {
	return b.name
}

// RegisterDependency registers the handler object for a declared dependency
// name. Readiness is structural: a delta is processed once every declared
// dependency has a registered handler, not once that handler has processed
// this particular delta.
func (b *BaseHandler) RegisterDependency(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dependencyHandlers[name] = h
}

// RegisterDependent registers a downstream handler that may be fired when a
// result names it in DependenciesTriggered and self-triggering is enabled
func (b *BaseHandler) RegisterDependent(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dependents[name] = h
}

// SetSelfTrigger enables or disables asynchronous dependent fan-out. Off by
// default: the manager's fixed-order dispatch is the authoritative driver,
// and running both mechanisms at once duplicates work.
func (b *BaseHandler) SetSelfTrigger(enabled bool) {
	b.selfTrigger.Store(enabled)
}

// setStatusDetails registers extra status fields contributed by the
// concrete handler
func (b *BaseHandler) setStatusDetails(fn func() map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.statusDetails = fn
}

// HandleDelta runs the full orchestration for one delta. A nil return means
// the delta was skipped: unsupported sport, handler not interested,
// dependencies not registered, or the handler was busy. Skips are normal
// operation, never errors.
func (b *BaseHandler) HandleDelta(ctx context.Context, dc *models.DeltaContext) *models.ProcessingResult {
	if !b.sportSupported(dc.Sport) {
		b.logger.WithFields(logrus.Fields{
			"handler": b.name,
			"sport":   dc.Sport,
		}).Debug("Skipping delta for unsupported sport")
		return nil
	}

	if !b.impl.CanProcess(dc) {
		b.logger.WithFields(logrus.Fields{
			"handler":  b.name,
			"event_id": dc.EventID,
		}).Debug("Handler not interested in delta")
		return nil
	}

	if missing := b.missingDependencies(); len(missing) > 0 {
		b.logger.WithFields(logrus.Fields{
			"handler": b.name,
			"missing": missing,
		}).Warn("Skipping delta: dependencies not registered")
		return nil
	}

	if !b.processing.CompareAndSwap(false, true) {
		b.logger.WithFields(logrus.Fields{
			"handler":  b.name,
			"event_id": dc.EventID,
			"prop_id":  dc.PropID,
		}).Warn("Handler busy, dropping delta")
		metrics.RecordDeltaDropped(b.name)
		return nil
	}
	defer b.processing.Store(false)

	start := time.Now()
	result, err := b.impl.ProcessDelta(ctx, dc)
	elapsed := time.Since(start)

	if err != nil {
		b.recordFailure(dc.Sport)
		metrics.RecordDeltaFailed(b.name, dc.Sport)

		b.logger.WithFields(logrus.Fields{
			"handler":  b.name,
			"event_id": dc.EventID,
			"prop_id":  dc.PropID,
			"error":    err.Error(),
		}).Error("Delta processing failed")

		failed := models.NewProcessingResult(b.name).Fail(err)
		failed.ProcessingTimeMs = elapsed.Milliseconds()
		return failed
	}

	if result == nil {
		result = models.NewProcessingResult(b.name)
	}
	result.HandlerName = b.name
	result.ProcessingTimeMs = elapsed.Milliseconds()

	b.recordSuccess(dc.Sport)
	metrics.RecordDeltaProcessed(b.name, dc.Sport, elapsed.Seconds())

	if result.Success && b.selfTrigger.Load() {
		b.triggerDependents(ctx, dc, result.DependenciesTriggered)
	}

	return result
}

// triggerDependents fires registered downstream handlers asynchronously with
// the same context. Each spawned invocation is tracked so Drain can wait for
// in-flight work; failures are handled inside the dependent's own
// HandleDelta and are not inspected here.
func (b *BaseHandler) triggerDependents(ctx context.Context, dc *models.DeltaContext, names []string) {
	for _, name := range names {
		b.mu.RLock()
		dep := b.dependents[name]
		b.mu.RUnlock()

		if dep == nil {
			b.logger.WithFields(logrus.Fields{
				"handler":   b.name,
				"dependent": name,
			}).Debug("Triggered dependent not registered")
			continue
		}

		b.wg.Add(1)
		go func(h Handler) {
			defer b.wg.Done()
			h.HandleDelta(ctx, dc)
		}(dep)
	}
}

// Drain waits for asynchronously triggered dependents spawned by this
// handler to finish
func (b *BaseHandler) Drain() {
	b.wg.Wait()
}

// Status returns the handler's observability snapshot
func (b *BaseHandler) Status() HandlerStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()

	registered := make([]string, 0, len(b.dependencyHandlers))
	for name := range b.dependencyHandlers {
		registered = append(registered, name)
	}

	status := HandlerStatus{
		Name:                   b.name,
		IsProcessing:           b.processing.Load(),
		SupportedSports:        append([]string(nil), b.supportedSports...),
		LastProcessed:          b.lastProcessed,
		ProcessingCount:        b.processingCount,
		ErrorCount:             b.errorCount,
		SportProcessingCounts:  copyCounts(b.sportProcessing),
		SportErrorCounts:       copyCounts(b.sportErrors),
		DeclaredDependencies:   append([]string(nil), b.declaredDeps...),
		RegisteredDependencies: registered,
	}
	if b.statusDetails != nil {
		status.Details = b.statusDetails()
	}
	return status
}

func (b *BaseHandler) sportSupported(sport string) bool {
	for _, s := range b.supportedSports {
		if s == sport {
			return true
		}
	}
	return false
}

func (b *BaseHandler) missingDependencies() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var missing []string
	for _, dep := range b.declaredDeps {
		if _, ok := b.dependencyHandlers[dep]; !ok {
			missing = append(missing, dep)
		}
	}
	return missing
}

func (b *BaseHandler) recordSuccess(sport string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.processingCount++
	b.sportProcessing[sport]++
	b.lastProcessed = time.Now().UTC()
}

func (b *BaseHandler) recordFailure(sport string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.errorCount++
	b.sportErrors[sport]++
}

func copyCounts(in map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
