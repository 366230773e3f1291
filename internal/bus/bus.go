// Package bus provides the market event transport the delta pipeline
// subscribes to. Two implementations exist: an in-process bus used by tests
// and single-binary deployments, and a Redis-backed bus for multi-service
// deployments.
package bus

import (
	"context"
	"path"
)

// EventHandler receives one published event. Handlers must tolerate
// concurrent invocation.
type EventHandler func(ctx context.Context, eventType string, payload map[string]any)

// Bus is the pub/sub port between market data producers and the delta
// pipeline
type Bus interface {
	// Publish delivers an event to every subscription whose pattern
	// matches eventType.
	Publish(ctx context.Context, eventType string, payload map[string]any) error
	// Subscribe registers a handler for every event type matching the
	// glob pattern, e.g. "MARKET_*".
	Subscribe(pattern string, handler EventHandler) error
}

// matchPattern reports whether eventType matches a glob pattern. Event
// types never contain slashes, so path globbing semantics are sufficient.
func matchPattern(pattern, eventType string) bool {
	ok, err := path.Match(pattern, eventType)
	return err == nil && ok
}
