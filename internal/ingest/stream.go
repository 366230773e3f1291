package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/prop-edge/internal/bus"
)

// ReconnectConfig controls reconnection behavior
type ReconnectConfig struct {
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// DefaultReconnectConfig returns default reconnection configuration
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		MaxRetries:        10,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 1.5,
	}
}

// streamMessage is one pushed market change from the provider
type streamMessage struct {
	EventType string         `json:"event_type"`
	Payload   map[string]any `json:"payload"`
}

// StreamClient consumes a provider's push feed over a websocket and
// republishes each change as a market event on the bus. Providers that
// support streaming make polling unnecessary for live updates.
type StreamClient struct {
	streamURL       string
	apiKey          string
	bus             bus.Bus
	reconnectConfig ReconnectConfig
	logger          *logrus.Logger

	mu              sync.RWMutex
	conn            *websocket.Conn
	isConnected     bool
	lastMessageTime time.Time
}

// NewStreamClient creates a new stream client
func NewStreamClient(streamURL, apiKey string, b bus.Bus, logger *logrus.Logger) *StreamClient {
	return &StreamClient{
		streamURL:       streamURL,
		apiKey:          apiKey,
		bus:             b,
		reconnectConfig: DefaultReconnectConfig(),
		logger:          logger,
	}
}

// Connect establishes the websocket connection and starts the read loop
func (s *StreamClient) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isConnected {
		return fmt.Errorf("already connected")
	}

	s.logger.WithField("url", s.streamURL).Info("Connecting to provider stream")

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, s.streamURL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to stream: %w", err)
	}

	s.conn = conn
	s.isConnected = true
	s.lastMessageTime = time.Now()

	if s.apiKey != "" {
		if err := conn.WriteJSON(map[string]any{
			"op":      "auth",
			"api_key": s.apiKey,
		}); err != nil {
			conn.Close()
			s.isConnected = false
			return fmt.Errorf("failed to authenticate stream: %w", err)
		}
	}

	go s.readMessages(ctx)

	return nil
}

// Run connects and keeps the connection alive with exponential backoff
// until the context is cancelled or retries are exhausted
func (s *StreamClient) Run(ctx context.Context) error {
	backoff := s.reconnectConfig.InitialBackoff

	for attempt := 0; attempt <= s.reconnectConfig.MaxRetries; attempt++ {
		if err := s.Connect(ctx); err != nil {
			s.logger.WithFields(logrus.Fields{
				"attempt": attempt,
				"backoff": backoff,
				"error":   err.Error(),
			}).Warn("Stream connection failed, retrying")
		} else {
			// Connection succeeded, wait for it to drop
			backoff = s.reconnectConfig.InitialBackoff
			s.waitDisconnected(ctx)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff = time.Duration(float64(backoff) * s.reconnectConfig.BackoffMultiplier)
		if backoff > s.reconnectConfig.MaxBackoff {
			backoff = s.reconnectConfig.MaxBackoff
		}
	}

	return fmt.Errorf("stream gave up after %d reconnect attempts", s.reconnectConfig.MaxRetries)
}

func (s *StreamClient) waitDisconnected(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.IsConnected() {
				return
			}
		}
	}
}

// readMessages reads pushed changes and republishes them on the bus
func (s *StreamClient) readMessages(ctx context.Context) {
	defer s.Close()

	for {
		var msg streamMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			s.logger.WithError(err).Warn("Stream read failed")
			s.mu.Lock()
			s.isConnected = false
			s.mu.Unlock()
			return
		}

		s.mu.Lock()
		s.lastMessageTime = time.Now()
		s.mu.Unlock()

		if msg.EventType == "" {
			continue
		}

		if err := s.bus.Publish(ctx, msg.EventType, msg.Payload); err != nil {
			s.logger.WithFields(logrus.Fields{
				"event_type": msg.EventType,
				"error":      err.Error(),
			}).Error("Failed to republish stream event")
		}
	}
}

// IsConnected returns whether the stream is connected
func (s *StreamClient) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isConnected
}

// LastMessageTime returns the time of the last received message
func (s *StreamClient) LastMessageTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastMessageTime
}

// Close closes the stream connection
func (s *StreamClient) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}

	s.isConnected = false
	return s.conn.Close()
}
