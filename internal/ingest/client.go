package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/prop-edge/internal/config"
)

// Prop is one player prop market as reported by the provider
type Prop struct {
	PropID     string  `json:"prop_id"`
	Sport      string  `json:"sport"`
	PlayerName string  `json:"player_name"`
	MarketType string  `json:"market_type"`
	LineValue  float64 `json:"line_value"`
	OddsValue  float64 `json:"odds_value"`
	Status     string  `json:"status"`
}

// Payload renders the prop as a market event attribute snapshot
func (p *Prop) Payload() map[string]any {
	return map[string]any{
		"line_value":  p.LineValue,
		"odds_value":  p.OddsValue,
		"status":      p.Status,
		"player_name": p.PlayerName,
		"market_type": p.MarketType,
	}
}

// propsResponse is the provider's list endpoint envelope
type propsResponse struct {
	Props []Prop `json:"props"`
}

// ProviderClient fetches prop markets from the upstream provider's REST API
type ProviderClient struct {
	http     *RateLimitedHTTPClient
	baseURL  string
	apiKey   string
	provider string
	logger   *logrus.Logger
}

// NewProviderClient creates a provider API client
func NewProviderClient(cfg *config.ProviderConfig, logger *logrus.Logger) *ProviderClient {
	httpCfg := DefaultHTTPClientConfig()
	if cfg.TimeoutSeconds > 0 {
		httpCfg.Timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	if cfg.MaxRetries > 0 {
		httpCfg.MaxRetries = cfg.MaxRetries
	}
	if cfg.RateLimit > 0 {
		httpCfg.RateLimit = cfg.RateLimit
	}

	return &ProviderClient{
		http:     NewRateLimitedHTTPClient(httpCfg, logger),
		baseURL:  cfg.BaseURL,
		apiKey:   cfg.APIKey,
		provider: cfg.Name,
		logger:   logger,
	}
}

// Provider returns the provider name attached to published events
func (c *ProviderClient) Provider() string {
	return c.provider
}

// FetchProps retrieves the current prop markets for one sport
func (c *ProviderClient) FetchProps(ctx context.Context, sport string) ([]Prop, error) {
	endpoint := fmt.Sprintf("%s/v1/props?sport=%s", c.baseURL, url.QueryEscape(sport))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build props request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("props request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("props request returned status %d", resp.StatusCode)
	}

	var parsed propsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode props response: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"provider": c.provider,
		"sport":    sport,
		"props":    len(parsed.Props),
	}).Debug("Fetched props snapshot")

	return parsed.Props, nil
}

// Close releases the underlying HTTP client
func (c *ProviderClient) Close() error {
	return c.http.Close()
}
