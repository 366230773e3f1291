package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisBus carries market events over Redis pub/sub. The event type is the
// channel name and the payload travels as JSON, so pattern subscriptions
// map directly onto PSUBSCRIBE.
type RedisBus struct {
	client *redis.Client
	logger *logrus.Logger
	mu     sync.Mutex
	subs   []*redis.PubSub
	wg     sync.WaitGroup
}

// NewRedisBus creates a Redis-backed bus
func NewRedisBus(client *redis.Client, logger *logrus.Logger) *RedisBus {
	return &RedisBus{client: client, logger: logger}
}

// Ping verifies connectivity to Redis
func (b *RedisBus) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Publish serializes the payload and publishes it on the event-type channel
func (b *RedisBus) Publish(ctx context.Context, eventType string, payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	if err := b.client.Publish(ctx, eventType, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event %s: %w", eventType, err)
	}
	return nil
}

// Subscribe opens a pattern subscription and dispatches messages to the
// handler until Close is called
func (b *RedisBus) Subscribe(pattern string, handler EventHandler) error {
	pubsub := b.client.PSubscribe(context.Background(), pattern)

	b.mu.Lock()
	b.subs = append(b.subs, pubsub)
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		for msg := range pubsub.Channel() {
			var payload map[string]any
			if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
				b.logger.WithFields(logrus.Fields{
					"channel": msg.Channel,
					"error":   err.Error(),
				}).Warn("Dropping malformed event payload")
				continue
			}
			handler(context.Background(), msg.Channel, payload)
		}
	}()

	b.logger.WithField("pattern", pattern).Info("Redis bus subscription registered")
	return nil
}

// Close tears down all subscriptions and waits for dispatch loops to exit
func (b *RedisBus) Close() error {
	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	for _, s := range subs {
		if err := s.Close(); err != nil {
			b.logger.WithError(err).Warn("Failed to close subscription")
		}
	}
	b.wg.Wait()
	return nil
}
