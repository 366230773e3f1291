package delta

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/prop-edge/internal/config"
	"github.com/yourusername/prop-edge/internal/models"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func testPipelineConfig() *config.PipelineConfig {
	return &config.PipelineConfig{
		SupportedSports:             []string{"NBA"},
		ValuationChangeThreshold:    0.01,
		EdgeSignificanceThreshold:   0.01,
		OptimizationIntervalSeconds: 30,
		BatchDelaySeconds:           5,
		MaxProps:                    10,
		MinEdge:                     0.02,
		MaxExposure:                 1000.0,
	}
}

// stubProcessor lets tests drive the base handler with controlled behavior
type stubProcessor struct {
	canProcess bool
	err        error
	triggered  []string
	calls      atomic.Int64
	started    chan struct{}
	release    chan struct{}
}

func (s *stubProcessor) CanProcess(_ *models.DeltaContext) bool {
	return s.canProcess
}

func (s *stubProcessor) ProcessDelta(_ context.Context, _ *models.DeltaContext) (*models.ProcessingResult, error) {
	s.calls.Add(1)
	if s.started != nil {
		close(s.started)
	}
	if s.release != nil {
		<-s.release
	}
	if s.err != nil {
		return nil, s.err
	}
	result := models.NewProcessingResult("stub")
	result.AddAffected("entity_1")
	result.DependenciesTriggered = s.triggered
	return result, nil
}

// stubHandler assembles a stub processor into a full handler the way the
// concrete pipeline stages do
type stubHandler struct {
	*BaseHandler
	stub *stubProcessor
}

func newStubHandler(name string, stub *stubProcessor, deps []string) *stubHandler {
	h := &stubHandler{stub: stub}
	h.BaseHandler = NewBaseHandler(name, []string{"NBA"}, deps, h, testLogger())
	return h
}

func (h *stubHandler) CanProcess(dc *models.DeltaContext) bool {
	return h.stub.CanProcess(dc)
}

func (h *stubHandler) ProcessDelta(ctx context.Context, dc *models.DeltaContext) (*models.ProcessingResult, error) {
	return h.stub.ProcessDelta(ctx, dc)
}

func TestHandleDeltaSkipsUnsupportedSport(t *testing.T) {
	stub := &stubProcessor{canProcess: true}
	h := newStubHandler("stub", stub, nil)

	dc := models.NewDeltaContext("p1", "dk", models.PropAdded)
	dc.Sport = "NFL"

	result := h.HandleDelta(context.Background(), dc)
	assert.Nil(t, result)
	assert.Equal(t, int64(0), stub.calls.Load())
}

func TestHandleDeltaSkipsWhenNotInterested(t *testing.T) {
	stub := &stubProcessor{canProcess: false}
	h := newStubHandler("stub", stub, nil)

	result := h.HandleDelta(context.Background(), models.NewDeltaContext("p1", "dk", models.PropAdded))
	assert.Nil(t, result)
	assert.Equal(t, int64(0), stub.calls.Load())
}

func TestHandleDeltaSkipsWhenDependencyNotRegistered(t *testing.T) {
	stub := &stubProcessor{canProcess: true}
	h := newStubHandler("stub", stub, []string{ValuationHandlerName})

	dc := models.NewDeltaContext("p1", "dk", models.PropAdded)

	result := h.HandleDelta(context.Background(), dc)
	assert.Nil(t, result)
	assert.Equal(t, int64(0), stub.calls.Load())

	// Registering the dependency handler is all the readiness check wants
	dep := newStubHandler(ValuationHandlerName, &stubProcessor{canProcess: true}, nil)
	h.RegisterDependency(ValuationHandlerName, dep)

	result = h.HandleDelta(context.Background(), dc)
	require.NotNil(t, result)
	assert.True(t, result.Success)
	assert.Equal(t, int64(1), stub.calls.Load())
}

func TestHandleDeltaStampsResult(t *testing.T) {
	stub := &stubProcessor{canProcess: true}
	h := newStubHandler("stub", stub, nil)

	result := h.HandleDelta(context.Background(), models.NewDeltaContext("p1", "dk", models.PropAdded))
	require.NotNil(t, result)
	assert.True(t, result.Success)
	assert.Equal(t, "stub", result.HandlerName)
	assert.GreaterOrEqual(t, result.ProcessingTimeMs, int64(0))
	assert.Contains(t, result.AffectedEntities, "entity_1")

	status := h.Status()
	assert.Equal(t, int64(1), status.ProcessingCount)
	assert.Equal(t, int64(0), status.ErrorCount)
	assert.Equal(t, int64(1), status.SportProcessingCounts["NBA"])
	assert.False(t, status.LastProcessed.IsZero())
}

func TestHandleDeltaFailureReturnsFailedResult(t *testing.T) {
	stub := &stubProcessor{canProcess: true, err: errors.New("store unavailable")}
	h := newStubHandler("stub", stub, nil)

	result := h.HandleDelta(context.Background(), models.NewDeltaContext("p1", "dk", models.PropAdded))
	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.Equal(t, "stub", result.HandlerName)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "store unavailable")

	status := h.Status()
	assert.Equal(t, int64(0), status.ProcessingCount)
	assert.Equal(t, int64(1), status.ErrorCount)
	assert.Equal(t, int64(1), status.SportErrorCounts["NBA"])
}

func TestHandleDeltaDropsConcurrentDelta(t *testing.T) {
	stub := &stubProcessor{
		canProcess: true,
		started:    make(chan struct{}),
		release:    make(chan struct{}),
	}
	h := newStubHandler("stub", stub, nil)

	dc := models.NewDeltaContext("p1", "dk", models.PropAdded)

	firstDone := make(chan *models.ProcessingResult)
	go func() {
		firstDone <- h.HandleDelta(context.Background(), dc)
	}()

	<-stub.started
	assert.True(t, h.Status().IsProcessing)

	// A delta arriving while one is in flight is dropped, not queued
	second := h.HandleDelta(context.Background(), dc)
	assert.Nil(t, second)

	close(stub.release)
	first := <-firstDone
	require.NotNil(t, first)
	assert.True(t, first.Success)
	assert.Equal(t, int64(1), stub.calls.Load())
	assert.False(t, h.Status().IsProcessing)
}

func TestSelfTriggerFiresDependents(t *testing.T) {
	depStub := &stubProcessor{canProcess: true}
	dep := newStubHandler("downstream", depStub, nil)

	stub := &stubProcessor{canProcess: true, triggered: []string{"downstream"}}
	h := newStubHandler("stub", stub, nil)
	h.RegisterDependent("downstream", dep)
	h.SetSelfTrigger(true)

	result := h.HandleDelta(context.Background(), models.NewDeltaContext("p1", "dk", models.PropAdded))
	require.NotNil(t, result)

	h.Drain()
	assert.Equal(t, int64(1), depStub.calls.Load())
}

func TestSelfTriggerOffByDefault(t *testing.T) {
	depStub := &stubProcessor{canProcess: true}
	dep := newStubHandler("downstream", depStub, nil)

	stub := &stubProcessor{canProcess: true, triggered: []string{"downstream"}}
	h := newStubHandler("stub", stub, nil)
	h.RegisterDependent("downstream", dep)

	result := h.HandleDelta(context.Background(), models.NewDeltaContext("p1", "dk", models.PropAdded))
	require.NotNil(t, result)

	h.Drain()
	assert.Equal(t, int64(0), depStub.calls.Load())
}

func TestDrainWaitsForDependents(t *testing.T) {
	depStub := &stubProcessor{
		canProcess: true,
		started:    make(chan struct{}),
		release:    make(chan struct{}),
	}
	dep := newStubHandler("downstream", depStub, nil)

	stub := &stubProcessor{canProcess: true, triggered: []string{"downstream"}}
	h := newStubHandler("stub", stub, nil)
	h.RegisterDependent("downstream", dep)
	h.SetSelfTrigger(true)

	h.HandleDelta(context.Background(), models.NewDeltaContext("p1", "dk", models.PropAdded))

	<-depStub.started

	drained := make(chan struct{})
	go func() {
		h.Drain()
		close(drained)
	}()

	select {
	case <-drained:
		t.Fatal("Drain returned while a dependent was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(depStub.release)
	select {
	case <-drained:
	case <-time.After(time.Second):
		t.Fatal("Drain did not return after dependents finished")
	}
}
