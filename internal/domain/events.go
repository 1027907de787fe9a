package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventKind enumerates the structured events the core emits while
// walking the graph.
type EventKind string

const (
	EventStageStarted   EventKind = "stage_started"
	EventStageCompleted EventKind = "stage_completed"
	EventStageRetried   EventKind = "stage_retried"
	EventRunFailed      EventKind = "run_failed"
)

// Event is one observability record. Attempt counts are 1-based.
type Event struct {
	Kind    EventKind
	RunID   uuid.UUID
	Stage   string
	Attempt int
	Err     string
	At      time.Time
}

// EventSink receives events from the execution graph. Implementations
// must be safe for concurrent use; the sink's transport (tracing, log
// shipping) is external to the core.
type EventSink interface {
	Emit(Event)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Emit(Event) {}
