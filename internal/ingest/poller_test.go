package ingest

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/prop-edge/internal/bus"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// fakeFetcher serves a mutable snapshot so tests can drive successive polls
type fakeFetcher struct {
	props map[string][]Prop
	err   error
}

func (f *fakeFetcher) Provider() string { return "dk" }

func (f *fakeFetcher) FetchProps(_ context.Context, sport string) ([]Prop, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.props[sport], nil
}

type capturedEvent struct {
	eventType string
	payload   map[string]any
}

func newTestPoller(t *testing.T) (*Poller, *fakeFetcher, *[]capturedEvent) {
	t.Helper()

	fetcher := &fakeFetcher{props: make(map[string][]Prop)}
	b := bus.NewMemoryBus(testLogger())

	var events []capturedEvent
	require.NoError(t, b.Subscribe("MARKET_*", func(_ context.Context, eventType string, payload map[string]any) {
		events = append(events, capturedEvent{eventType: eventType, payload: payload})
	}))

	return NewPoller(fetcher, b, []string{"NBA"}, testLogger()), fetcher, &events
}

func testProp(propID string, line float64) Prop {
	return Prop{
		PropID:     propID,
		Sport:      "NBA",
		PlayerName: "LeBron James",
		MarketType: "points",
		LineValue:  line,
		OddsValue:  -110,
		Status:     "active",
	}
}

func TestPollerFirstPollPublishesAdded(t *testing.T) {
	p, fetcher, events := newTestPoller(t)
	fetcher.props["NBA"] = []Prop{testProp("p1", 25.5), testProp("p2", 8.5)}

	require.NoError(t, p.PollOnce(context.Background()))
	require.Len(t, *events, 2)

	for _, ev := range *events {
		assert.Equal(t, EventPropAdded, ev.eventType)
		assert.Equal(t, "dk", ev.payload["provider"])
		assert.Equal(t, "NBA", ev.payload["sport"])
		assert.NotEmpty(t, ev.payload["timestamp"])

		current, ok := ev.payload["current_data"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "LeBron James", current["player_name"])
		assert.NotContains(t, ev.payload, "previous_data")
	}
}

func TestPollerSecondPollQuietWhenUnchanged(t *testing.T) {
	p, fetcher, events := newTestPoller(t)
	fetcher.props["NBA"] = []Prop{testProp("p1", 25.5)}

	require.NoError(t, p.PollOnce(context.Background()))
	require.NoError(t, p.PollOnce(context.Background()))

	assert.Len(t, *events, 1, "identical snapshot publishes nothing")
}

func TestPollerPublishesUpdateWithBothSnapshots(t *testing.T) {
	p, fetcher, events := newTestPoller(t)
	fetcher.props["NBA"] = []Prop{testProp("p1", 25.5)}
	require.NoError(t, p.PollOnce(context.Background()))

	fetcher.props["NBA"] = []Prop{testProp("p1", 26.5)}
	require.NoError(t, p.PollOnce(context.Background()))

	require.Len(t, *events, 2)
	update := (*events)[1]
	assert.Equal(t, EventPropUpdated, update.eventType)

	current := update.payload["current_data"].(map[string]any)
	previous := update.payload["previous_data"].(map[string]any)
	assert.Equal(t, 26.5, current["line_value"])
	assert.Equal(t, 25.5, previous["line_value"])
}

func TestPollerPublishesRemovedWithPreviousData(t *testing.T) {
	p, fetcher, events := newTestPoller(t)
	fetcher.props["NBA"] = []Prop{testProp("p1", 25.5), testProp("p2", 8.5)}
	require.NoError(t, p.PollOnce(context.Background()))

	fetcher.props["NBA"] = []Prop{testProp("p1", 25.5)}
	require.NoError(t, p.PollOnce(context.Background()))

	require.Len(t, *events, 3)
	removed := (*events)[2]
	assert.Equal(t, EventPropRemoved, removed.eventType)
	assert.Equal(t, "p2", removed.payload["prop_id"])
	assert.NotContains(t, removed.payload, "current_data")

	previous := removed.payload["previous_data"].(map[string]any)
	assert.Equal(t, 8.5, previous["line_value"])
}

func TestPollerFetchErrorStopsPoll(t *testing.T) {
	p, fetcher, events := newTestPoller(t)
	fetcher.err = errors.New("provider unavailable")

	err := p.PollOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NBA")
	assert.Empty(t, *events)
}
