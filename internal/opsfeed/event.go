// Package opsfeed re-purposes the teacher's WebSocket broadcast hub
// (internal/websocket in the pack: Hub/ClientInterface/EventPublisher) from
// a per-workspace browser event stream into a single ops-liveness feed: the
// admin HTTP surface's /internal/tasks/stream endpoint lets an operator
// watch a dispatch or reconciler run's progress as it happens (spec §9's
// gorilla/websocket adaptation note). There is one feed, not one per
// workspace, since this engine has no tenant concept to partition by.
package opsfeed

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType is the run-lifecycle stage an Event reports.
type EventType string

const (
	EventTypeRunStarted   EventType = "started"
	EventTypeRunProgress  EventType = "progress"
	EventTypeRunCompleted EventType = "completed"
	EventTypeRunFailed    EventType = "failed"
)

// Event is one message pushed to operators watching /internal/tasks/stream.
// Format: { type, job, payload, timestamp }.
type Event struct {
	Type      string      `json:"type"`      // e.g. "invoice_dispatch.progress"
	Job       string      `json:"job"`       // job/reconciler name, e.g. "invoice_dispatch"
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewEvent builds an Event for job at stage eventType.
func NewEvent(eventType EventType, job string, payload interface{}) Event {
	return Event{
		Type:      fmt.Sprintf("%s.%s", job, eventType),
		Job:       job,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON serializes the event to JSON bytes.
func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// RunStarted creates a <job>.started event.
func RunStarted(job string, payload interface{}) Event {
	return NewEvent(EventTypeRunStarted, job, payload)
}

// RunProgress creates a <job>.progress event.
func RunProgress(job string, payload interface{}) Event {
	return NewEvent(EventTypeRunProgress, job, payload)
}

// RunCompleted creates a <job>.completed event.
func RunCompleted(job string, payload interface{}) Event {
	return NewEvent(EventTypeRunCompleted, job, payload)
}

// RunFailed creates a <job>.failed event.
func RunFailed(job string, payload interface{}) Event {
	return NewEvent(EventTypeRunFailed, job, payload)
}
