package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/yourusername/prop-edge/internal/database"
	"github.com/yourusername/prop-edge/internal/models"
)

// PostgresValuationStore implements ValuationStore for PostgreSQL
type PostgresValuationStore struct {
	db *database.DB
}

// NewPostgresValuationStore creates a PostgreSQL valuation store
func NewPostgresValuationStore(db *database.DB) ValuationStore {
	return &PostgresValuationStore{db: db}
}

// Upsert stores or replaces a valuation
func (s *PostgresValuationStore) Upsert(ctx context.Context, v *models.Valuation) error {
	query := `
		INSERT INTO valuations (prop_id, provider, sport, player_name, market_type,
		                        calculated_value, confidence, archived, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, $8)
		ON CONFLICT (prop_id, provider) DO UPDATE SET
			sport = EXCLUDED.sport,
			player_name = EXCLUDED.player_name,
			market_type = EXCLUDED.market_type,
			calculated_value = EXCLUDED.calculated_value,
			confidence = EXCLUDED.confidence,
			archived = FALSE,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.db.GetPool().Exec(ctx, query,
		v.PropID, v.Provider, v.Sport, v.PlayerName, v.MarketType,
		v.CalculatedValue, v.Confidence, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert valuation: %w", err)
	}
	return nil
}

const valuationColumns = `prop_id, provider, sport, player_name, market_type,
	calculated_value, confidence, archived, updated_at`

// Get retrieves a valuation by its natural key
func (s *PostgresValuationStore) Get(ctx context.Context, propID, provider string) (*models.Valuation, error) {
	query := fmt.Sprintf(`SELECT %s FROM valuations WHERE prop_id = $1 AND provider = $2`, valuationColumns)

	v := &models.Valuation{}
	err := s.db.GetPool().QueryRow(ctx, query, propID, provider).Scan(
		&v.PropID, &v.Provider, &v.Sport, &v.PlayerName, &v.MarketType,
		&v.CalculatedValue, &v.Confidence, &v.Archived, &v.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get valuation: %w", err)
	}
	return v, nil
}

// GetByPlayer returns unarchived valuations for a player across markets
func (s *PostgresValuationStore) GetByPlayer(ctx context.Context, playerName string) ([]*models.Valuation, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM valuations WHERE player_name = $1 AND NOT archived`, valuationColumns)
	return s.queryValuations(ctx, query, playerName)
}

// GetByMarketType returns unarchived valuations sharing a market type
func (s *PostgresValuationStore) GetByMarketType(ctx context.Context, marketType string) ([]*models.Valuation, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM valuations WHERE market_type = $1 AND NOT archived`, valuationColumns)
	return s.queryValuations(ctx, query, marketType)
}

// Archive marks a valuation archived while keeping the row
func (s *PostgresValuationStore) Archive(ctx context.Context, propID, provider string) error {
	tag, err := s.db.GetPool().Exec(ctx,
		`UPDATE valuations SET archived = TRUE, updated_at = $3 WHERE prop_id = $1 AND provider = $2`,
		propID, provider, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to archive valuation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (s *PostgresValuationStore) queryValuations(ctx context.Context, query string, args ...any) ([]*models.Valuation, error) {
	rows, err := s.db.GetPool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query valuations: %w", err)
	}
	defer rows.Close()

	var out []*models.Valuation
	for rows.Next() {
		v := &models.Valuation{}
		if err := rows.Scan(
			&v.PropID, &v.Provider, &v.Sport, &v.PlayerName, &v.MarketType,
			&v.CalculatedValue, &v.Confidence, &v.Archived, &v.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan valuation: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// PostgresEdgeStore implements EdgeStore for PostgreSQL
type PostgresEdgeStore struct {
	db *database.DB
}

// NewPostgresEdgeStore creates a PostgreSQL edge store
func NewPostgresEdgeStore(db *database.DB) EdgeStore {
	return &PostgresEdgeStore{db: db}
}

// Upsert stores or replaces an edge
func (s *PostgresEdgeStore) Upsert(ctx context.Context, e *models.Edge) error {
	query := `
		INSERT INTO edges (prop_id, provider, sport, edge_value, true_probability, archived, updated_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, $6)
		ON CONFLICT (prop_id, provider) DO UPDATE SET
			sport = EXCLUDED.sport,
			edge_value = EXCLUDED.edge_value,
			true_probability = EXCLUDED.true_probability,
			archived = FALSE,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.db.GetPool().Exec(ctx, query,
		e.PropID, e.Provider, e.Sport, e.EdgeValue, e.TrueProbability, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert edge: %w", err)
	}
	return nil
}

// Get retrieves an edge by its natural key
func (s *PostgresEdgeStore) Get(ctx context.Context, propID, provider string) (*models.Edge, error) {
	query := `SELECT prop_id, provider, sport, edge_value, true_probability, archived, updated_at
		FROM edges WHERE prop_id = $1 AND provider = $2`

	e := &models.Edge{}
	err := s.db.GetPool().QueryRow(ctx, query, propID, provider).Scan(
		&e.PropID, &e.Provider, &e.Sport, &e.EdgeValue, &e.TrueProbability, &e.Archived, &e.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get edge: %w", err)
	}
	return e, nil
}

// GetByPropIDs returns unarchived edges for the given prop IDs
func (s *PostgresEdgeStore) GetByPropIDs(ctx context.Context, propIDs []string) ([]*models.Edge, error) {
	query := `SELECT prop_id, provider, sport, edge_value, true_probability, archived, updated_at
		FROM edges WHERE prop_id = ANY($1) AND NOT archived`
	return s.queryEdges(ctx, query, propIDs)
}

// GetSignificant returns every unarchived edge above the threshold
func (s *PostgresEdgeStore) GetSignificant(ctx context.Context) ([]*models.Edge, error) {
	query := `SELECT prop_id, provider, sport, edge_value, true_probability, archived, updated_at
		FROM edges WHERE ABS(edge_value) > $1 AND NOT archived`
	return s.queryEdges(ctx, query, models.EdgeSignificanceThreshold)
}

// Archive marks an edge archived while keeping the row
func (s *PostgresEdgeStore) Archive(ctx context.Context, propID, provider string) error {
	tag, err := s.db.GetPool().Exec(ctx,
		`UPDATE edges SET archived = TRUE, updated_at = $3 WHERE prop_id = $1 AND provider = $2`,
		propID, provider, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to archive edge: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (s *PostgresEdgeStore) queryEdges(ctx context.Context, query string, args ...any) ([]*models.Edge, error) {
	rows, err := s.db.GetPool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query edges: %w", err)
	}
	defer rows.Close()

	var out []*models.Edge
	for rows.Next() {
		e := &models.Edge{}
		if err := rows.Scan(
			&e.PropID, &e.Provider, &e.Sport, &e.EdgeValue, &e.TrueProbability, &e.Archived, &e.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// PostgresPortfolioRunStore implements PortfolioRunStore for PostgreSQL
type PostgresPortfolioRunStore struct {
	db *database.DB
}

// NewPostgresPortfolioRunStore creates a PostgreSQL run store
func NewPostgresPortfolioRunStore(db *database.DB) PortfolioRunStore {
	return &PostgresPortfolioRunStore{db: db}
}

// Record persists a completed optimization run
func (s *PostgresPortfolioRunStore) Record(ctx context.Context, run *models.PortfolioOptimization) error {
	selections, err := json.Marshal(run.SelectedProps)
	if err != nil {
		return fmt.Errorf("failed to marshal selections: %w", err)
	}

	_, err = s.db.GetPool().Exec(ctx, `
		INSERT INTO portfolio_runs (selected_props, total_exposure, expected_return, algorithm, run_at)
		VALUES ($1, $2, $3, $4, $5)`,
		selections, run.TotalExposure, run.ExpectedReturn, run.Algorithm, run.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to record portfolio run: %w", err)
	}
	return nil
}

// Latest returns the most recent optimization run
func (s *PostgresPortfolioRunStore) Latest(ctx context.Context) (*models.PortfolioOptimization, error) {
	run := &models.PortfolioOptimization{}
	var selections []byte

	err := s.db.GetPool().QueryRow(ctx, `
		SELECT selected_props, total_exposure, expected_return, algorithm, run_at
		FROM portfolio_runs ORDER BY run_at DESC LIMIT 1`,
	).Scan(&selections, &run.TotalExposure, &run.ExpectedReturn, &run.Algorithm, &run.Timestamp)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest portfolio run: %w", err)
	}

	if err := json.Unmarshal(selections, &run.SelectedProps); err != nil {
		return nil, fmt.Errorf("failed to unmarshal selections: %w", err)
	}
	return run, nil
}

// NewPostgresStores bundles PostgreSQL implementations of all three ports
func NewPostgresStores(db *database.DB) *Stores {
	return &Stores{
		Valuations:    NewPostgresValuationStore(db),
		Edges:         NewPostgresEdgeStore(db),
		PortfolioRuns: NewPostgresPortfolioRunStore(db),
	}
}
