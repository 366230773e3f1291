package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/prop-edge/internal/bus"
)

// Market event types published by the poller
const (
	EventPropAdded   = "MARKET_PROP_ADDED"
	EventPropUpdated = "MARKET_PROP_UPDATED"
	EventPropRemoved = "MARKET_PROP_REMOVED"
)

// PropFetcher is the part of the provider client the poller needs
type PropFetcher interface {
	Provider() string
	FetchProps(ctx context.Context, sport string) ([]Prop, error)
}

// Poller turns periodic provider snapshots into market delta events. It
// keeps the previous snapshot per sport and publishes added, updated and
// removed events for the difference.
type Poller struct {
	fetcher PropFetcher
	bus     bus.Bus
	sports  []string
	logger  *logrus.Logger

	mu        sync.Mutex
	snapshots map[string]map[string]Prop // sport -> prop_id -> last seen prop
}

// NewPoller creates a snapshot-diffing poller
func NewPoller(fetcher PropFetcher, b bus.Bus, sports []string, logger *logrus.Logger) *Poller {
	return &Poller{
		fetcher:   fetcher,
		bus:       b,
		sports:    sports,
		logger:    logger,
		snapshots: make(map[string]map[string]Prop),
	}
}

// PollOnce fetches a fresh snapshot for every sport and publishes the
// delta against the previous one. The first poll for a sport publishes
// every prop as added.
func (p *Poller) PollOnce(ctx context.Context) error {
	for _, sport := range p.sports {
		if err := p.pollSport(ctx, sport); err != nil {
			return fmt.Errorf("poll failed for %s: %w", sport, err)
		}
	}
	return nil
}

func (p *Poller) pollSport(ctx context.Context, sport string) error {
	props, err := p.fetcher.FetchProps(ctx, sport)
	if err != nil {
		return err
	}

	current := make(map[string]Prop, len(props))
	for _, prop := range props {
		current[prop.PropID] = prop
	}

	p.mu.Lock()
	previous := p.snapshots[sport]
	p.snapshots[sport] = current
	p.mu.Unlock()

	var added, updated, removed int
	for id, prop := range current {
		prev, seen := previous[id]
		switch {
		case !seen:
			added++
			p.publish(ctx, EventPropAdded, sport, prop.PropID, prop.Payload(), nil)
		case prev != prop:
			updated++
			p.publish(ctx, EventPropUpdated, sport, prop.PropID, prop.Payload(), prev.Payload())
		}
	}
	for id, prev := range previous {
		if _, still := current[id]; !still {
			removed++
			p.publish(ctx, EventPropRemoved, sport, id, nil, prev.Payload())
		}
	}

	if added+updated+removed > 0 {
		p.logger.WithFields(logrus.Fields{
			"sport":   sport,
			"added":   added,
			"updated": updated,
			"removed": removed,
		}).Info("Published market deltas")
	}

	return nil
}

func (p *Poller) publish(ctx context.Context, eventType, sport, propID string, currentData, previousData map[string]any) {
	payload := map[string]any{
		"prop_id":   propID,
		"provider":  p.fetcher.Provider(),
		"sport":     sport,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if currentData != nil {
		payload["current_data"] = currentData
	}
	if previousData != nil {
		payload["previous_data"] = previousData
	}

	if err := p.bus.Publish(ctx, eventType, payload); err != nil {
		p.logger.WithFields(logrus.Fields{
			"event_type": eventType,
			"prop_id":    propID,
			"error":      err.Error(),
		}).Error("Failed to publish market event")
	}
}
