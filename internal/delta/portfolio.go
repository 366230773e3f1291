package delta

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/prop-edge/internal/config"
	applog "github.com/yourusername/prop-edge/internal/logger"
	"github.com/yourusername/prop-edge/internal/metrics"
	"github.com/yourusername/prop-edge/internal/models"
	"github.com/yourusername/prop-edge/internal/store"
)

// batchedPlaceholder is reported instead of a run identifier when the delta
// was absorbed into a pending batch
const batchedPlaceholder = "batched_optimization_pending"

// greedyAlgorithm names the selection strategy recorded on every run
const greedyAlgorithm = "greedy_edge_sort"

// maxPositionSize caps a single position regardless of edge
var maxPositionSize = decimal.NewFromInt(100)

// PortfolioHandler re-optimizes the selected betting portfolio. It is the
// most expensive stage, so execution is rate limited: at most one
// optimization per interval, with deltas arriving inside the window
// batched onto a short timer.
type PortfolioHandler struct {
	*BaseHandler
	edges  store.EdgeStore
	runs   store.PortfolioRunStore
	logger *logrus.Logger
	audit  *applog.AuditLogger

	minInterval time.Duration
	batchDelay  time.Duration
	maxProps    int
	minEdge     float64
	maxExposure decimal.Decimal

	mu               sync.Mutex
	lastOptimization time.Time
	affectedProps    map[string]struct{}
	batchTimer       *time.Timer
}

// NewPortfolioHandler creates the portfolio stage
func NewPortfolioHandler(edges store.EdgeStore, runs store.PortfolioRunStore, cfg *config.PipelineConfig, logger *logrus.Logger) *PortfolioHandler {
	h := &PortfolioHandler{
		edges:         edges,
		runs:          runs,
		logger:        logger,
		audit:         applog.NewAuditLogger(logger),
		minInterval:   cfg.OptimizationInterval(),
		batchDelay:    cfg.BatchDelay(),
		maxProps:      cfg.MaxProps,
		minEdge:       cfg.MinEdge,
		maxExposure:   decimal.NewFromFloat(cfg.MaxExposure),
		affectedProps: make(map[string]struct{}),
	}
	h.BaseHandler = NewBaseHandler(
		PortfolioHandlerName,
		cfg.SupportedSports,
		[]string{ValuationHandlerName, EdgeHandlerName},
		h,
		logger,
	)
	h.setStatusDetails(h.statusDetails)
	return h
}

// CanProcess accepts every lifecycle event: portfolio composition can
// change on any of them
func (h *PortfolioHandler) CanProcess(_ *models.DeltaContext) bool {
	return true
}

// ProcessDelta records the affected prop and either optimizes immediately
// or defers to a batch timer when inside the rate-limit window
func (h *PortfolioHandler) ProcessDelta(ctx context.Context, dc *models.DeltaContext) (*models.ProcessingResult, error) {
	result := models.NewProcessingResult(PortfolioHandlerName)

	h.mu.Lock()
	h.affectedProps[dc.PropID] = struct{}{}
	pending := len(h.affectedProps)

	if !h.lastOptimization.IsZero() && time.Since(h.lastOptimization) < h.minInterval {
		if h.batchTimer == nil {
			h.batchTimer = time.AfterFunc(h.batchDelay, h.runBatch)
			h.logger.WithFields(logrus.Fields{
				"batch_delay":   h.batchDelay,
				"pending_props": pending,
			}).Debug("Optimization batched")
		}
		h.mu.Unlock()

		metrics.RecordBatchedDelta(pending)
		result.AddAffected(batchedPlaceholder)
		return result, nil
	}
	h.mu.Unlock()

	run, err := h.optimize(ctx)
	if err != nil {
		return nil, err
	}

	result.AddAffected(fmt.Sprintf("portfolio_opt_%d", run.Timestamp.UnixMilli()))
	return result, nil
}

// runBatch fires when the batch timer elapses. Deltas that arrived after
// scheduling are still absorbed: the affected set is read at fire time.
func (h *PortfolioHandler) runBatch() {
	h.mu.Lock()
	h.batchTimer = nil
	h.mu.Unlock()

	if _, err := h.optimize(context.Background()); err != nil {
		h.logger.WithError(err).Error("Batched portfolio optimization failed")
	}
}

// optimize snapshots and clears the affected set, selects positions
// greedily by descending edge, records the run and resets the rate limit
// window
func (h *PortfolioHandler) optimize(ctx context.Context) (*models.PortfolioOptimization, error) {
	start := time.Now()

	h.mu.Lock()
	props := make([]string, 0, len(h.affectedProps))
	for p := range h.affectedProps {
		props = append(props, p)
	}
	h.affectedProps = make(map[string]struct{})
	h.mu.Unlock()

	edges, err := h.edges.GetByPropIDs(ctx, props)
	if err != nil {
		return nil, fmt.Errorf("failed to load edges for optimization: %w", err)
	}

	run := h.selectPositions(edges)
	if err := h.runs.Record(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to record portfolio run: %w", err)
	}

	h.mu.Lock()
	h.lastOptimization = run.Timestamp
	h.mu.Unlock()

	exposure, _ := run.TotalExposure.Float64()
	metrics.RecordOptimizationRun(time.Since(start).Seconds(), exposure)
	metrics.PendingAffectedProps.Set(0)

	for _, p := range run.SelectedProps {
		h.audit.LogPositionSelected(p.PropID, p.EdgeValue, p.PositionSize.String(), p.ExpectedReturn.String())
	}
	h.audit.LogOptimizationRun(run.Algorithm, len(edges), len(run.SelectedProps),
		run.TotalExposure.String(), run.ExpectedReturn.String(), run.Timestamp)

	h.logger.WithFields(logrus.Fields{
		"candidates":     len(edges),
		"selected":       len(run.SelectedProps),
		"total_exposure": run.TotalExposure.String(),
	}).Info("Portfolio optimization completed")

	return run, nil
}

// selectPositions applies the greedy selection: sort candidates by
// descending edge, stop at the first edge below the minimum (the rest can
// only be smaller), cap the position count and total exposure, and size
// each position proportionally to its edge.
func (h *PortfolioHandler) selectPositions(edges []*models.Edge) *models.PortfolioOptimization {
	sort.Slice(edges, func(i, j int) bool {
		return edges[i].EdgeValue > edges[j].EdgeValue
	})

	run := &models.PortfolioOptimization{
		TotalExposure:  decimal.Zero,
		ExpectedReturn: decimal.Zero,
		Timestamp:      time.Now().UTC(),
		Algorithm:      greedyAlgorithm,
	}

	for _, e := range edges {
		if len(run.SelectedProps) >= h.maxProps {
			break
		}
		if e.EdgeValue < h.minEdge {
			break
		}

		edgeDec := decimal.NewFromFloat(e.EdgeValue)
		size := decimal.Min(maxPositionSize, h.maxExposure.Mul(decimal.NewFromFloat(0.1)).Mul(edgeDec))
		if run.TotalExposure.Add(size).GreaterThan(h.maxExposure) {
			break
		}

		expected := size.Mul(edgeDec)
		run.SelectedProps = append(run.SelectedProps, models.SelectedProp{
			PropID:         e.PropID,
			EdgeValue:      e.EdgeValue,
			PositionSize:   size,
			ExpectedReturn: expected,
		})
		run.TotalExposure = run.TotalExposure.Add(size)
		run.ExpectedReturn = run.ExpectedReturn.Add(expected)
	}

	return run
}

// Sweep forces a full re-optimization over every significant edge,
// bypassing the rate limit. Used by the scheduled maintenance sweep.
func (h *PortfolioHandler) Sweep(ctx context.Context) (*models.PortfolioOptimization, error) {
	significant, err := h.edges.GetSignificant(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load significant edges: %w", err)
	}

	h.mu.Lock()
	for _, e := range significant {
		h.affectedProps[e.PropID] = struct{}{}
	}
	h.mu.Unlock()

	return h.optimize(ctx)
}

// Close cancels any pending batch timer
func (h *PortfolioHandler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.batchTimer != nil {
		h.batchTimer.Stop()
		h.batchTimer = nil
	}
}

func (h *PortfolioHandler) statusDetails() map[string]any {
	h.mu.Lock()
	defer h.mu.Unlock()

	return map[string]any{
		"last_optimization":    h.lastOptimization,
		"pending_refresh":      len(h.affectedProps) > 0,
		"affected_props_count": len(h.affectedProps),
		"batch_timer_active":   h.batchTimer != nil,
		"rate_limit_seconds":   h.minInterval.Seconds(),
	}
}
