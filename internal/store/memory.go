package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	cache "github.com/patrickmn/go-cache"

	"github.com/yourusername/prop-edge/internal/models"
)

// maxRetainedRuns bounds the optimization-run history held in memory
const maxRetainedRuns = 100

// MemoryValuationStore is an in-memory ValuationStore backed by go-cache.
// Entries never expire by default; the TTL exists so long-running processes
// eventually shed props that stopped trading.
type MemoryValuationStore struct {
	cache *cache.Cache
}

// NewMemoryValuationStore creates an in-memory valuation store
func NewMemoryValuationStore(ttl time.Duration) *MemoryValuationStore {
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	return &MemoryValuationStore{cache: cache.New(ttl, 10*time.Minute)}
}

func valuationKey(propID, provider string) string {
	return fmt.Sprintf("%s:%s", propID, provider)
}

// Upsert stores or replaces a valuation
func (s *MemoryValuationStore) Upsert(_ context.Context, v *models.Valuation) error {
	cp := *v
	cp.UpdatedAt = time.Now().UTC()
	s.cache.Set(v.Key(), &cp, cache.DefaultExpiration)
	return nil
}

// Get retrieves a valuation by its natural key
func (s *MemoryValuationStore) Get(_ context.Context, propID, provider string) (*models.Valuation, error) {
	if item, found := s.cache.Get(valuationKey(propID, provider)); found {
		if v, ok := item.(*models.Valuation); ok {
			cp := *v
			return &cp, nil
		}
	}
	return nil, models.ErrNotFound
}

// GetByPlayer returns unarchived valuations for a player across markets
func (s *MemoryValuationStore) GetByPlayer(_ context.Context, playerName string) ([]*models.Valuation, error) {
	return s.filter(func(v *models.Valuation) bool {
		return !v.Archived && v.PlayerName != "" && v.PlayerName == playerName
	}), nil
}

// GetByMarketType returns unarchived valuations sharing a market type
func (s *MemoryValuationStore) GetByMarketType(_ context.Context, marketType string) ([]*models.Valuation, error) {
	return s.filter(func(v *models.Valuation) bool {
		return !v.Archived && v.MarketType != "" && v.MarketType == marketType
	}), nil
}

// Archive marks a valuation archived while keeping the record
func (s *MemoryValuationStore) Archive(ctx context.Context, propID, provider string) error {
	item, found := s.cache.Get(valuationKey(propID, provider))
	if !found {
		return models.ErrNotFound
	}
	v, ok := item.(*models.Valuation)
	if !ok {
		return models.ErrNotFound
	}
	cp := *v
	cp.Archived = true
	cp.UpdatedAt = time.Now().UTC()
	s.cache.Set(cp.Key(), &cp, cache.DefaultExpiration)
	return nil
}

func (s *MemoryValuationStore) filter(keep func(*models.Valuation) bool) []*models.Valuation {
	var out []*models.Valuation
	for _, item := range s.cache.Items() {
		if v, ok := item.Object.(*models.Valuation); ok && keep(v) {
			cp := *v
			out = append(out, &cp)
		}
	}
	return out
}

// MemoryEdgeStore is an in-memory EdgeStore
type MemoryEdgeStore struct {
	mu    sync.RWMutex
	edges map[string]*models.Edge
}

// NewMemoryEdgeStore creates an in-memory edge store
func NewMemoryEdgeStore() *MemoryEdgeStore {
	return &MemoryEdgeStore{edges: make(map[string]*models.Edge)}
}

// Upsert stores or replaces an edge
func (s *MemoryEdgeStore) Upsert(_ context.Context, e *models.Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *e
	cp.UpdatedAt = time.Now().UTC()
	s.edges[e.Key()] = &cp
	return nil
}

// Get retrieves an edge by its natural key
func (s *MemoryEdgeStore) Get(_ context.Context, propID, provider string) (*models.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, found := s.edges[valuationKey(propID, provider)]
	if !found {
		return nil, models.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

// GetByPropIDs returns unarchived edges for the given prop IDs
func (s *MemoryEdgeStore) GetByPropIDs(_ context.Context, propIDs []string) ([]*models.Edge, error) {
	wanted := make(map[string]bool, len(propIDs))
	for _, id := range propIDs {
		wanted[id] = true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Edge
	for _, e := range s.edges {
		if !e.Archived && wanted[e.PropID] {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

// GetSignificant returns every unarchived edge above the threshold
func (s *MemoryEdgeStore) GetSignificant(_ context.Context) ([]*models.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Edge
	for _, e := range s.edges {
		if !e.Archived && e.Significant() {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

// Archive marks an edge archived while keeping the record
func (s *MemoryEdgeStore) Archive(_ context.Context, propID, provider string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, found := s.edges[valuationKey(propID, provider)]
	if !found {
		return models.ErrNotFound
	}
	e.Archived = true
	e.UpdatedAt = time.Now().UTC()
	return nil
}

// MemoryPortfolioRunStore retains a bounded history of optimization runs
type MemoryPortfolioRunStore struct {
	mu   sync.RWMutex
	runs []*models.PortfolioOptimization
}

// NewMemoryPortfolioRunStore creates an in-memory run store
func NewMemoryPortfolioRunStore() *MemoryPortfolioRunStore {
	return &MemoryPortfolioRunStore{}
}

// Record appends a completed run, dropping the oldest beyond the retention cap
func (s *MemoryPortfolioRunStore) Record(_ context.Context, run *models.PortfolioOptimization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs = append(s.runs, run)
	if len(s.runs) > maxRetainedRuns {
		s.runs = s.runs[len(s.runs)-maxRetainedRuns:]
	}
	return nil
}

// Latest returns the most recent run
func (s *MemoryPortfolioRunStore) Latest(_ context.Context) (*models.PortfolioOptimization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.runs) == 0 {
		return nil, models.ErrNotFound
	}
	return s.runs[len(s.runs)-1], nil
}

// NewMemoryStores bundles fresh in-memory implementations of all three ports
func NewMemoryStores(valuationTTL time.Duration) *Stores {
	return &Stores{
		Valuations:    NewMemoryValuationStore(valuationTTL),
		Edges:         NewMemoryEdgeStore(),
		PortfolioRuns: NewMemoryPortfolioRunStore(),
	}
}
