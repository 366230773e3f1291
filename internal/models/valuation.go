package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// EdgeSignificanceThreshold is the absolute edge value above which an edge
// is considered actionable
const EdgeSignificanceThreshold = 0.01

// Valuation is the system's computed fair value for a prop, keyed by
// (prop_id, provider). Valuations are archived rather than deleted when a
// prop is removed so history is preserved.
type Valuation struct {
	PropID          string    `db:"prop_id" json:"prop_id"`
	Provider        string    `db:"provider" json:"provider"`
	Sport           string    `db:"sport" json:"sport"`
	PlayerName      string    `db:"player_name" json:"player_name"`
	MarketType      string    `db:"market_type" json:"market_type"`
	CalculatedValue float64   `db:"calculated_value" json:"calculated_value"`
	Confidence      float64   `db:"confidence" json:"confidence"`
	Archived        bool      `db:"archived" json:"archived"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// Key returns the natural key for this valuation
func (v *Valuation) Key() string {
	return fmt.Sprintf("%s:%s", v.PropID, v.Provider)
}

// EntityID returns the opaque identifier reported in processing results
func (v *Valuation) EntityID() string {
	return fmt.Sprintf("val_%s_%s", v.PropID, v.Provider)
}

// Edge is the expected value of betting a prop given its valuation and the
// market's posted odds, keyed the same way as the valuation it derives from.
type Edge struct {
	PropID          string    `db:"prop_id" json:"prop_id"`
	Provider        string    `db:"provider" json:"provider"`
	Sport           string    `db:"sport" json:"sport"`
	EdgeValue       float64   `db:"edge_value" json:"edge_value"`
	TrueProbability float64   `db:"true_probability" json:"true_probability"`
	Archived        bool      `db:"archived" json:"archived"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// Key returns the natural key for this edge
func (e *Edge) Key() string {
	return fmt.Sprintf("%s:%s", e.PropID, e.Provider)
}

// EntityID returns the opaque identifier reported in processing results
func (e *Edge) EntityID() string {
	return fmt.Sprintf("edge_%s_%s", e.PropID, e.Provider)
}

// Significant reports whether the edge magnitude clears the actionability
// threshold
func (e *Edge) Significant() bool {
	return e.EdgeValue > EdgeSignificanceThreshold || e.EdgeValue < -EdgeSignificanceThreshold
}

// SelectedProp is one position in an optimized portfolio
type SelectedProp struct {
	PropID         string          `json:"prop_id"`
	EdgeValue      float64         `json:"edge_value"`
	PositionSize   decimal.Decimal `json:"position_size"`
	ExpectedReturn decimal.Decimal `json:"expected_return"`
}

// PortfolioOptimization is an ephemeral snapshot of one optimization run.
// Individual selections are not persisted per prop; only the aggregate run.
type PortfolioOptimization struct {
	SelectedProps []SelectedProp  `json:"selected_props"`
	TotalExposure decimal.Decimal `json:"total_exposure"`
	ExpectedReturn decimal.Decimal `json:"expected_return"`
	Timestamp     time.Time       `json:"optimization_timestamp"`
	Algorithm     string          `json:"algorithm"`
}
