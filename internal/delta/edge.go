package delta

import (
	"context"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/prop-edge/internal/config"
	applog "github.com/yourusername/prop-edge/internal/logger"
	"github.com/yourusername/prop-edge/internal/metrics"
	"github.com/yourusername/prop-edge/internal/models"
	"github.com/yourusername/prop-edge/internal/pricing"
	"github.com/yourusername/prop-edge/internal/store"
)

// edgeFields are the attributes whose change warrants recomputing an edge
// on PROP_UPDATED
var edgeFields = []string{fieldLineValue, fieldOddsValue, fieldStatus}

// EdgeHandler derives expected value from valuations and posted market
// odds. It depends on the valuation stage.
type EdgeHandler struct {
	*BaseHandler
	edges        store.EdgeStore
	sigThreshold float64
	logger       *logrus.Logger
	audit        *applog.AuditLogger
}

// NewEdgeHandler creates the edge stage
func NewEdgeHandler(edges store.EdgeStore, cfg *config.PipelineConfig, logger *logrus.Logger) *EdgeHandler {
	h := &EdgeHandler{
		edges:        edges,
		sigThreshold: cfg.EdgeSignificanceThreshold,
		logger:       logger,
		audit:        applog.NewAuditLogger(logger),
	}
	h.BaseHandler = NewBaseHandler(EdgeHandlerName, cfg.SupportedSports, []string{ValuationHandlerName}, h, logger)
	return h
}

// CanProcess accepts adds and removals unconditionally; updates only when a
// pricing-relevant attribute changed
func (h *EdgeHandler) CanProcess(dc *models.DeltaContext) bool {
	switch dc.EventType {
	case models.PropAdded, models.PropRemoved:
		return true
	case models.PropUpdated:
		if dc.PreviousData == nil || dc.CurrentData == nil {
			return false
		}
		return anyFieldChanged(dc.PreviousData, dc.CurrentData, edgeFields...)
	default:
		return false
	}
}

// ProcessDelta branches on the delta's lifecycle stage. Every branch
// triggers the portfolio stage: portfolio composition can change on any
// prop lifecycle event.
func (h *EdgeHandler) ProcessDelta(ctx context.Context, dc *models.DeltaContext) (*models.ProcessingResult, error) {
	var (
		result *models.ProcessingResult
		err    error
	)

	switch dc.EventType {
	case models.PropAdded:
		result, err = h.processAdded(ctx, dc)
	case models.PropUpdated:
		result, err = h.processUpdated(ctx, dc)
	case models.PropRemoved:
		result, err = h.processRemoved(ctx, dc)
	default:
		return nil, fmt.Errorf("unsupported event type %q", dc.EventType)
	}
	if err != nil {
		return nil, err
	}

	result.DependenciesTriggered = []string{PortfolioHandlerName}
	return result, nil
}

func (h *EdgeHandler) processAdded(ctx context.Context, dc *models.DeltaContext) (*models.ProcessingResult, error) {
	result := models.NewProcessingResult(EdgeHandlerName)

	edge := h.buildEdge(dc, dc.CurrentData)
	if err := h.edges.Upsert(ctx, edge); err != nil {
		return nil, fmt.Errorf("failed to store edge: %w", err)
	}

	if h.significant(edge.EdgeValue) {
		result.AddAffected(edge.EntityID())
		metrics.RecordSignificantEdge()
		h.audit.LogEdgeSignal(dc.PropID, dc.Provider, dc.Sport, edge.EdgeValue, edge.TrueProbability)

		h.logger.WithFields(logrus.Fields{
			"prop_id":    dc.PropID,
			"provider":   dc.Provider,
			"edge_value": edge.EdgeValue,
		}).Info("Positive edge detected")
	}

	return result, nil
}

func (h *EdgeHandler) processUpdated(ctx context.Context, dc *models.DeltaContext) (*models.ProcessingResult, error) {
	result := models.NewProcessingResult(EdgeHandlerName)

	oldEdge := h.buildEdge(dc, dc.PreviousData)
	newEdge := h.buildEdge(dc, dc.CurrentData)

	if err := h.edges.Upsert(ctx, newEdge); err != nil {
		return nil, fmt.Errorf("failed to store edge: %w", err)
	}

	if math.Abs(newEdge.EdgeValue-oldEdge.EdgeValue) > h.sigThreshold {
		result.AddAffected(newEdge.EntityID())
	}

	oldSignificant := h.significant(oldEdge.EdgeValue)
	newSignificant := h.significant(newEdge.EdgeValue)
	if oldSignificant != newSignificant {
		if newSignificant {
			metrics.RecordSignificantEdge()
			h.audit.LogEdgeSignal(dc.PropID, dc.Provider, dc.Sport, newEdge.EdgeValue, newEdge.TrueProbability)
		}
		h.logger.WithFields(logrus.Fields{
			"prop_id":     dc.PropID,
			"provider":    dc.Provider,
			"old_edge":    oldEdge.EdgeValue,
			"new_edge":    newEdge.EdgeValue,
			"significant": newSignificant,
		}).Info("Edge crossed significance threshold")
	}

	return result, nil
}

func (h *EdgeHandler) processRemoved(ctx context.Context, dc *models.DeltaContext) (*models.ProcessingResult, error) {
	result := models.NewProcessingResult(EdgeHandlerName)

	if err := h.edges.Archive(ctx, dc.PropID, dc.Provider); err != nil && err != models.ErrNotFound {
		return nil, fmt.Errorf("failed to archive edge: %w", err)
	}

	result.AddAffected(fmt.Sprintf("edge_%s_%s", dc.PropID, dc.Provider))

	h.logger.WithFields(logrus.Fields{
		"prop_id":  dc.PropID,
		"provider": dc.Provider,
	}).Debug("Edge archived")

	return result, nil
}

// buildEdge computes an edge from one attribute snapshot
func (h *EdgeHandler) buildEdge(dc *models.DeltaContext, data map[string]any) *models.Edge {
	lineValue, _ := floatField(data, fieldLineValue)
	odds, _ := floatField(data, fieldOddsValue)

	p := pricing.EstimateProbability(
		lineValue,
		stringField(data, fieldPlayerName),
		stringField(data, fieldMarketType),
	)

	return &models.Edge{
		PropID:          dc.PropID,
		Provider:        dc.Provider,
		Sport:           dc.Sport,
		EdgeValue:       pricing.EdgeValue(p, odds),
		TrueProbability: p,
	}
}

func (h *EdgeHandler) significant(edgeValue float64) bool {
	return math.Abs(edgeValue) > h.sigThreshold
}
