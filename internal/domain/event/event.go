package event

import (
	"time"

	"github.com/google/uuid"
)

// Event is a fact emitted after a workflow or project change has committed.
type Event struct {
	ID            string         `json:"id"`
	Type          Type           `json:"type"`
	ProjectID     int64          `json:"project_id"`
	WorkflowID    int64          `json:"workflow_id,omitempty"`
	ActorID       string         `json:"actor_id,omitempty"`
	Payload       map[string]any `json:"payload,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
	CorrelationID string         `json:"correlation_id"`
}

// NewEvent stamps a new event with a fresh id and a correlation id of its own.
func NewEvent(eventType Type, projectID, workflowID int64, actorID string, payload map[string]any) *Event {
	id := uuid.NewString()
	return &Event{
		ID:            id,
		Type:          eventType,
		ProjectID:     projectID,
		WorkflowID:    workflowID,
		ActorID:       actorID,
		Payload:       payload,
		Timestamp:     time.Now().UTC(),
		CorrelationID: id,
	}
}

// Correlated returns a copy of e that belongs to the chain of correlationID.
func (e *Event) Correlated(correlationID string) *Event {
	c := e.WithPayload()
	c.CorrelationID = correlationID
	return c
}

// WithPayload returns a copy of e with the given key/value pairs added.
// Odd trailing keys are ignored.
func (e *Event) WithPayload(kv ...any) *Event {
	payload := make(map[string]any, len(e.Payload)+len(kv)/2)
	for k, v := range e.Payload {
		payload[k] = v
	}
	for i := 0; i+1 < len(kv); i += 2 {
		if key, ok := kv[i].(string); ok {
			payload[key] = kv[i+1]
		}
	}

	c := *e
	c.Payload = payload
	return &c
}

// PayloadString returns the string stored under key, or "".
func (e *Event) PayloadString(key string) string {
	if s, ok := e.Payload[key].(string); ok {
		return s
	}
	return ""
}

// PayloadInt returns the integer stored under key, accepting the numeric
// types that survive a JSON round trip.
func (e *Event) PayloadInt(key string) int64 {
	switch v := e.Payload[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}
