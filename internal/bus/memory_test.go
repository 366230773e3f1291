package bus

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestMemoryBusDeliversMatchingEvents(t *testing.T) {
	b := NewMemoryBus(testLogger())

	var received []string
	require.NoError(t, b.Subscribe("MARKET_*", func(_ context.Context, eventType string, _ map[string]any) {
		received = append(received, eventType)
	}))

	require.NoError(t, b.Publish(context.Background(), "MARKET_PROP_ADDED", nil))
	require.NoError(t, b.Publish(context.Background(), "MARKET_PROP_REMOVED", nil))
	require.NoError(t, b.Publish(context.Background(), "SETTLEMENT_POSTED", nil))

	assert.Equal(t, []string{"MARKET_PROP_ADDED", "MARKET_PROP_REMOVED"}, received)
}

func TestMemoryBusDeliversPayloadToAllSubscribers(t *testing.T) {
	b := NewMemoryBus(testLogger())

	var first, second map[string]any
	require.NoError(t, b.Subscribe("MARKET_*", func(_ context.Context, _ string, payload map[string]any) {
		first = payload
	}))
	require.NoError(t, b.Subscribe("*", func(_ context.Context, _ string, payload map[string]any) {
		second = payload
	}))

	payload := map[string]any{"prop_id": "p1"}
	require.NoError(t, b.Publish(context.Background(), "MARKET_PROP_ADDED", payload))

	assert.Equal(t, "p1", first["prop_id"])
	assert.Equal(t, "p1", second["prop_id"])
}

func TestMemoryBusNoSubscribers(t *testing.T) {
	b := NewMemoryBus(testLogger())
	assert.NoError(t, b.Publish(context.Background(), "MARKET_PROP_ADDED", nil))
}

func TestMatchPattern(t *testing.T) {
	cases := []struct {
		pattern   string
		eventType string
		want      bool
	}{
		{"MARKET_*", "MARKET_PROP_ADDED", true},
		{"MARKET_*", "MARKET_", true},
		{"MARKET_*", "SETTLEMENT_POSTED", false},
		{"MARKET_*", "market_prop_added", false},
		{"*", "ANYTHING", true},
		{"MARKET_PROP_?DDED", "MARKET_PROP_ADDED", true},
		{"[", "MARKET_PROP_ADDED", false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, matchPattern(tc.pattern, tc.eventType), "%s vs %s", tc.pattern, tc.eventType)
	}
}
