package delta

import (
	"context"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/prop-edge/internal/config"
	applog "github.com/yourusername/prop-edge/internal/logger"
	"github.com/yourusername/prop-edge/internal/models"
	"github.com/yourusername/prop-edge/internal/pricing"
	"github.com/yourusername/prop-edge/internal/store"
)

// valuationFields are the attributes whose change warrants recomputing a
// valuation on PROP_UPDATED
var valuationFields = []string{
	fieldLineValue, fieldOddsValue, fieldStatus,
	fieldPlayerName, fieldMarketType, fieldPropCategory,
}

// ValuationHandler computes and maintains prop valuations from raw market
// attributes. It has no upstream dependencies and sits at the head of the
// pipeline.
type ValuationHandler struct {
	*BaseHandler
	valuations      store.ValuationStore
	changeThreshold float64
	logger          *logrus.Logger
	audit           *applog.AuditLogger
}

// NewValuationHandler creates the valuation stage
func NewValuationHandler(valuations store.ValuationStore, cfg *config.PipelineConfig, logger *logrus.Logger) *ValuationHandler {
	h := &ValuationHandler{
		valuations:      valuations,
		changeThreshold: cfg.ValuationChangeThreshold,
		logger:          logger,
		audit:           applog.NewAuditLogger(logger),
	}
	h.BaseHandler = NewBaseHandler(ValuationHandlerName, cfg.SupportedSports, nil, h, logger)
	return h
}

// CanProcess accepts adds and removals unconditionally; updates only when
// both snapshots are present and at least one relevant attribute changed.
// Consumers must not assume relevant fields changed on PROP_UPDATED, so the
// diff happens here.
func (h *ValuationHandler) CanProcess(dc *models.DeltaContext) bool {
	switch dc.EventType {
	case models.PropAdded, models.PropRemoved:
		return true
	case models.PropUpdated:
		if dc.PreviousData == nil || dc.CurrentData == nil {
			return false
		}
		return anyFieldChanged(dc.PreviousData, dc.CurrentData, valuationFields...)
	default:
		return false
	}
}

// ProcessDelta branches on the delta's lifecycle stage
func (h *ValuationHandler) ProcessDelta(ctx context.Context, dc *models.DeltaContext) (*models.ProcessingResult, error) {
	switch dc.EventType {
	case models.PropAdded:
		return h.processAdded(ctx, dc)
	case models.PropUpdated:
		return h.processUpdated(ctx, dc)
	case models.PropRemoved:
		return h.processRemoved(ctx, dc)
	default:
		return nil, fmt.Errorf("unsupported event type %q", dc.EventType)
	}
}

func (h *ValuationHandler) processAdded(ctx context.Context, dc *models.DeltaContext) (*models.ProcessingResult, error) {
	result := models.NewProcessingResult(ValuationHandlerName)

	valuation := h.buildValuation(dc, dc.CurrentData)
	if err := h.valuations.Upsert(ctx, valuation); err != nil {
		return nil, fmt.Errorf("failed to store valuation: %w", err)
	}

	result.AddAffected(valuation.EntityID())
	h.cascadeRelated(ctx, result, valuation)
	result.DependenciesTriggered = []string{EdgeHandlerName}

	h.logger.WithFields(logrus.Fields{
		"prop_id":          dc.PropID,
		"provider":         dc.Provider,
		"calculated_value": valuation.CalculatedValue,
	}).Debug("Valuation created")

	return result, nil
}

func (h *ValuationHandler) processUpdated(ctx context.Context, dc *models.DeltaContext) (*models.ProcessingResult, error) {
	result := models.NewProcessingResult(ValuationHandlerName)

	oldValuation := h.buildValuation(dc, dc.PreviousData)
	newValuation := h.buildValuation(dc, dc.CurrentData)

	if err := h.valuations.Upsert(ctx, newValuation); err != nil {
		return nil, fmt.Errorf("failed to store valuation: %w", err)
	}

	change := math.Abs(newValuation.CalculatedValue - oldValuation.CalculatedValue)
	if change > h.changeThreshold {
		result.AddAffected(newValuation.EntityID())
		h.cascadeRelated(ctx, result, newValuation)

		h.logger.WithFields(logrus.Fields{
			"prop_id":   dc.PropID,
			"provider":  dc.Provider,
			"old_value": oldValuation.CalculatedValue,
			"new_value": newValuation.CalculatedValue,
		}).Debug("Valuation changed")
	}

	// The edge stage re-applies its own threshold, so downstream
	// recomputation is attempted even when this one was not crossed.
	result.DependenciesTriggered = []string{EdgeHandlerName}

	return result, nil
}

func (h *ValuationHandler) processRemoved(ctx context.Context, dc *models.DeltaContext) (*models.ProcessingResult, error) {
	result := models.NewProcessingResult(ValuationHandlerName)

	if err := h.valuations.Archive(ctx, dc.PropID, dc.Provider); err != nil && err != models.ErrNotFound {
		return nil, fmt.Errorf("failed to archive valuation: %w", err)
	}
	h.audit.LogValuationArchived(dc.PropID, dc.Provider, "prop_removed")

	result.AddAffected(fmt.Sprintf("val_%s_%s", dc.PropID, dc.Provider))
	result.DependenciesTriggered = []string{EdgeHandlerName}

	h.logger.WithFields(logrus.Fields{
		"prop_id":  dc.PropID,
		"provider": dc.Provider,
	}).Debug("Valuation archived")

	return result, nil
}

// buildValuation computes a valuation from one attribute snapshot
func (h *ValuationHandler) buildValuation(dc *models.DeltaContext, data map[string]any) *models.Valuation {
	odds, _ := floatField(data, fieldOddsValue)
	player := stringField(data, fieldPlayerName)

	return &models.Valuation{
		PropID:          dc.PropID,
		Provider:        dc.Provider,
		Sport:           dc.Sport,
		PlayerName:      player,
		MarketType:      stringField(data, fieldMarketType),
		CalculatedValue: pricing.ValuationValue(odds, player),
		Confidence:      valuationConfidence(data),
	}
}

// cascadeRelated marks valuations related to the changed one as affected:
// the same player's other markets, then props sharing the market type
func (h *ValuationHandler) cascadeRelated(ctx context.Context, result *models.ProcessingResult, v *models.Valuation) {
	if v.PlayerName != "" {
		related, err := h.valuations.GetByPlayer(ctx, v.PlayerName)
		if err != nil {
			h.logger.WithError(err).Warn("Failed to look up related player valuations")
		} else {
			for _, r := range related {
				if r.Key() != v.Key() {
					result.AddAffected(r.EntityID())
				}
			}
		}
	}

	if v.MarketType != "" {
		related, err := h.valuations.GetByMarketType(ctx, v.MarketType)
		if err != nil {
			h.logger.WithError(err).Warn("Failed to look up related market valuations")
			return
		}
		for _, r := range related {
			if r.Key() != v.Key() {
				result.AddAffected(r.EntityID())
			}
		}
	}
}

// valuationConfidence scores how complete the snapshot is. Placeholder:
// confidence grows with attribute coverage, not model certainty.
func valuationConfidence(data map[string]any) float64 {
	confidence := 0.5
	if _, ok := floatField(data, fieldLineValue); ok {
		confidence += 0.15
	}
	if _, ok := floatField(data, fieldOddsValue); ok {
		confidence += 0.15
	}
	if stringField(data, fieldPlayerName) != "" {
		confidence += 0.1
	}
	if stringField(data, fieldMarketType) != "" {
		confidence += 0.05
	}
	if confidence > 0.95 {
		confidence = 0.95
	}
	return confidence
}
