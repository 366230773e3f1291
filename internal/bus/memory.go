package bus

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

type subscription struct {
	pattern string
	handler EventHandler
}

// MemoryBus is an in-process bus. Delivery is synchronous in the
// publisher's goroutine, which keeps ordering deterministic for a single
// producer and makes the pipeline directly testable.
type MemoryBus struct {
	mu            sync.RWMutex
	subscriptions []subscription
	logger        *logrus.Logger
}

// NewMemoryBus creates an in-process bus
func NewMemoryBus(logger *logrus.Logger) *MemoryBus {
	return &MemoryBus{logger: logger}
}

// Subscribe registers a handler for event types matching pattern
func (b *MemoryBus) Subscribe(pattern string, handler EventHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subscriptions = append(b.subscriptions, subscription{pattern: pattern, handler: handler})

	b.logger.WithField("pattern", pattern).Debug("Bus subscription registered")
	return nil
}

// Publish delivers the event to every matching subscription
func (b *MemoryBus) Publish(ctx context.Context, eventType string, payload map[string]any) error {
	b.mu.RLock()
	subs := make([]subscription, len(b.subscriptions))
	copy(subs, b.subscriptions)
	b.mu.RUnlock()

	for _, sub := range subs {
		if matchPattern(sub.pattern, eventType) {
			sub.handler(ctx, eventType, payload)
		}
	}
	return nil
}
