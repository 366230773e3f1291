package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DeltaEventType represents the lifecycle stage of a prop market change
type DeltaEventType string

const (
	PropAdded   DeltaEventType = "PROP_ADDED"
	PropUpdated DeltaEventType = "PROP_UPDATED"
	PropRemoved DeltaEventType = "PROP_REMOVED"
)

// DefaultSport is assumed when an inbound event carries no sport attribute.
// Kept for backward compatibility with the earliest providers, which only
// published NBA props.
const DefaultSport = "NBA"

// DeltaContext is the unit of work flowing through the delta pipeline
type DeltaContext struct {
	EventID      string         `json:"event_id"`
	Provider     string         `json:"provider"`
	PropID       string         `json:"prop_id"`
	EventType    DeltaEventType `json:"event_type"`
	Sport        string         `json:"sport"`
	Timestamp    time.Time      `json:"timestamp"`
	PreviousData map[string]any `json:"previous_data,omitempty"`
	CurrentData  map[string]any `json:"current_data,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// NewDeltaContext creates a context with defaults applied: a generated
// event ID for tracing and the default sport when none is given.
func NewDeltaContext(propID, provider string, eventType DeltaEventType) *DeltaContext {
	return &DeltaContext{
		EventID:   uuid.NewString(),
		Provider:  provider,
		PropID:    propID,
		EventType: eventType,
		Sport:     DefaultSport,
		Timestamp: time.Now().UTC(),
	}
}

// Key returns the natural key shared by valuations and edges for this prop
func (c *DeltaContext) Key() string {
	return fmt.Sprintf("%s:%s", c.PropID, c.Provider)
}

// ParseDeltaEventType maps a raw bus event type onto a delta event type.
// Provider naming is inconsistent, so matching is by substring; when nothing
// matches, the presence of a previous_line attribute implies an update,
// otherwise the event is treated as an add.
func ParseDeltaEventType(raw string, payload map[string]any) DeltaEventType {
	upper := strings.ToUpper(raw)
	switch {
	case strings.Contains(upper, "ADDED"), strings.Contains(upper, "NEW"):
		return PropAdded
	case strings.Contains(upper, "UPDATED"), strings.Contains(upper, "CHANGED"):
		return PropUpdated
	case strings.Contains(upper, "REMOVED"), strings.Contains(upper, "DELETED"):
		return PropRemoved
	}
	if _, ok := payload["previous_line"]; ok {
		return PropUpdated
	}
	return PropAdded
}

// ProcessingResult is the outcome of one handler invocation
type ProcessingResult struct {
	Success               bool     `json:"success"`
	HandlerName           string   `json:"handler_name"`
	ProcessingTimeMs      int64    `json:"processing_time_ms"`
	AffectedEntities      []string `json:"affected_entities,omitempty"`
	Errors                []string `json:"errors,omitempty"`
	DependenciesTriggered []string `json:"dependencies_triggered,omitempty"`
}

// NewProcessingResult creates a successful result for the named handler
func NewProcessingResult(handlerName string) *ProcessingResult {
	return &ProcessingResult{
		Success:     true,
		HandlerName: handlerName,
	}
}

// AddAffected records an affected entity identifier, skipping duplicates
func (r *ProcessingResult) AddAffected(entity string) {
	for _, e := range r.AffectedEntities {
		if e == entity {
			return
		}
	}
	r.AffectedEntities = append(r.AffectedEntities, entity)
}

// Fail marks the result failed and records the error message
func (r *ProcessingResult) Fail(err error) *ProcessingResult {
	r.Success = false
	r.Errors = append(r.Errors, err.Error())
	return r
}
