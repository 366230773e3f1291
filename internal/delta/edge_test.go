package delta

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/prop-edge/internal/models"
	"github.com/yourusername/prop-edge/internal/pricing"
	"github.com/yourusername/prop-edge/internal/store"
)

func newTestEdgeHandler() (*EdgeHandler, *store.MemoryEdgeStore) {
	edges := store.NewMemoryEdgeStore()
	h := NewEdgeHandler(edges, testPipelineConfig(), testLogger())

	// Satisfy the structural readiness check the way the manager does
	valuation := NewValuationHandler(store.NewMemoryValuationStore(0), testPipelineConfig(), testLogger())
	h.RegisterDependency(ValuationHandlerName, valuation)

	return h, edges
}

func TestEdgeSkipsWithoutValuationDependency(t *testing.T) {
	h := NewEdgeHandler(store.NewMemoryEdgeStore(), testPipelineConfig(), testLogger())

	dc := models.NewDeltaContext("p1", "dk", models.PropAdded)
	dc.CurrentData = propPayload(25.5, -110, "LeBron James", "points")

	assert.Nil(t, h.HandleDelta(context.Background(), dc))
}

func TestEdgeCanProcessUpdateRequiresPricingFieldChange(t *testing.T) {
	h, _ := newTestEdgeHandler()

	dc := models.NewDeltaContext("p1", "dk", models.PropUpdated)
	dc.PreviousData = propPayload(25.5, -110, "LeBron James", "points")
	dc.CurrentData = propPayload(25.5, -110, "LeBron James", "points")
	assert.False(t, h.CanProcess(dc))

	// player_name is not a pricing field for the edge stage
	dc.CurrentData = propPayload(25.5, -110, "L. James", "points")
	assert.False(t, h.CanProcess(dc))

	dc.CurrentData = propPayload(25.5, -105, "LeBron James", "points")
	assert.True(t, h.CanProcess(dc))
}

func TestEdgeProcessAddedStoresEdgeAndTriggersPortfolio(t *testing.T) {
	h, edges := newTestEdgeHandler()

	dc := models.NewDeltaContext("p1", "dk", models.PropAdded)
	dc.CurrentData = propPayload(25.5, -110, "LeBron James", "points")

	result := h.HandleDelta(context.Background(), dc)
	require.NotNil(t, result)
	assert.True(t, result.Success)
	assert.Contains(t, result.DependenciesTriggered, PortfolioHandlerName)

	stored, err := edges.Get(context.Background(), "p1", "dk")
	require.NoError(t, err)

	p := pricing.EstimateProbability(25.5, "LeBron James", "points")
	assert.InDelta(t, pricing.EdgeValue(p, -110), stored.EdgeValue, 1e-9)
	assert.InDelta(t, p, stored.TrueProbability, 1e-9)
}

func TestEdgeSignificanceBoundary(t *testing.T) {
	h, _ := newTestEdgeHandler()

	// Strict inequality: an edge exactly at the threshold is not significant
	assert.False(t, h.significant(0.01))
	assert.False(t, h.significant(-0.01))
	assert.True(t, h.significant(0.0101))
	assert.True(t, h.significant(-0.0101))
	assert.False(t, h.significant(0.0))
}

func TestEdgeAddedMarksSignificantEdgeAffected(t *testing.T) {
	h, edges := newTestEdgeHandler()

	dc := models.NewDeltaContext("p1", "dk", models.PropAdded)
	dc.CurrentData = propPayload(25.5, -110, "LeBron James", "points")

	result := h.HandleDelta(context.Background(), dc)
	require.NotNil(t, result)

	stored, err := edges.Get(context.Background(), "p1", "dk")
	require.NoError(t, err)

	if h.significant(stored.EdgeValue) {
		assert.Contains(t, result.AffectedEntities, "edge_p1_dk")
	} else {
		assert.Empty(t, result.AffectedEntities)
	}
}

func TestEdgeProcessUpdatedBelowDeltaThreshold(t *testing.T) {
	h, _ := newTestEdgeHandler()

	// Status change only: recomputed edge is identical, delta below threshold
	dc := models.NewDeltaContext("p1", "dk", models.PropUpdated)
	dc.PreviousData = propPayload(25.5, -110, "LeBron James", "points")
	dc.CurrentData = propPayload(25.5, -110, "LeBron James", "points")
	dc.CurrentData["status"] = "suspended"

	result := h.HandleDelta(context.Background(), dc)
	require.NotNil(t, result)
	assert.Empty(t, result.AffectedEntities)
	assert.Contains(t, result.DependenciesTriggered, PortfolioHandlerName)
}

func TestEdgeProcessUpdatedLargeOddsMove(t *testing.T) {
	h, edges := newTestEdgeHandler()

	dc := models.NewDeltaContext("p1", "dk", models.PropUpdated)
	dc.PreviousData = propPayload(25.5, -110, "LeBron James", "points")
	dc.CurrentData = propPayload(25.5, 250, "LeBron James", "points")

	result := h.HandleDelta(context.Background(), dc)
	require.NotNil(t, result)
	assert.Contains(t, result.AffectedEntities, "edge_p1_dk")

	stored, err := edges.Get(context.Background(), "p1", "dk")
	require.NoError(t, err)

	p := pricing.EstimateProbability(25.5, "LeBron James", "points")
	assert.InDelta(t, pricing.EdgeValue(p, 250), stored.EdgeValue, 1e-9)
}

func TestEdgeProcessRemovedArchives(t *testing.T) {
	h, edges := newTestEdgeHandler()

	added := models.NewDeltaContext("p1", "dk", models.PropAdded)
	added.CurrentData = propPayload(25.5, -110, "LeBron James", "points")
	require.NotNil(t, h.HandleDelta(context.Background(), added))

	removed := models.NewDeltaContext("p1", "dk", models.PropRemoved)
	result := h.HandleDelta(context.Background(), removed)
	require.NotNil(t, result)
	assert.True(t, result.Success)
	assert.Contains(t, result.AffectedEntities, "edge_p1_dk")
	assert.Contains(t, result.DependenciesTriggered, PortfolioHandlerName)

	stored, err := edges.Get(context.Background(), "p1", "dk")
	require.NoError(t, err)
	assert.True(t, stored.Archived)

	// Archived edges never feed the optimizer
	candidates, err := edges.GetByPropIDs(context.Background(), []string{"p1"})
	require.NoError(t, err)
	assert.Empty(t, candidates)
}
