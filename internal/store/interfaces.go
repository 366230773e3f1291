// Package store defines the persistence ports the delta handlers compute
// through. The handlers only ever see these interfaces; deployments choose
// between the in-memory implementation and PostgreSQL.
package store

import (
	"context"

	"github.com/yourusername/prop-edge/internal/models"
)

// ValuationStore persists computed valuations keyed by (prop_id, provider)
type ValuationStore interface {
	Upsert(ctx context.Context, valuation *models.Valuation) error
	Get(ctx context.Context, propID, provider string) (*models.Valuation, error)
	// GetByPlayer returns unarchived valuations for the same player across
	// markets, used for the related-valuation cascade.
	GetByPlayer(ctx context.Context, playerName string) ([]*models.Valuation, error)
	// GetByMarketType returns unarchived valuations sharing a market type.
	GetByMarketType(ctx context.Context, marketType string) ([]*models.Valuation, error)
	// Archive marks a valuation archived; history is preserved, never deleted.
	Archive(ctx context.Context, propID, provider string) error
}

// EdgeStore persists computed edges keyed by (prop_id, provider)
type EdgeStore interface {
	Upsert(ctx context.Context, edge *models.Edge) error
	Get(ctx context.Context, propID, provider string) (*models.Edge, error)
	// GetByPropIDs returns unarchived edges for the given prop IDs across
	// all providers.
	GetByPropIDs(ctx context.Context, propIDs []string) ([]*models.Edge, error)
	// GetSignificant returns every unarchived edge above the significance
	// threshold.
	GetSignificant(ctx context.Context) ([]*models.Edge, error)
	Archive(ctx context.Context, propID, provider string) error
}

// PortfolioRunStore records completed optimization runs
type PortfolioRunStore interface {
	Record(ctx context.Context, run *models.PortfolioOptimization) error
	Latest(ctx context.Context) (*models.PortfolioOptimization, error)
}

// Stores bundles the three ports for wiring
type Stores struct {
	Valuations    ValuationStore
	Edges         EdgeStore
	PortfolioRuns PortfolioRunStore
}
