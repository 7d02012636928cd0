package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType defines the type of event
type EventType string

const (
	// Source lifecycle
	EventTypeSourceSynced EventType = "source.synced"

	// Concept lifecycle
	EventTypeConceptRetired EventType = "concept.retired"
	EventTypeConceptsMerged EventType = "concepts.merged"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventType     EventType `json:"event_type"`
	SchemaVersion string    `json:"schema_version"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// SourceSyncedEvent is emitted after one source finishes an ETL pass.
type SourceSyncedEvent struct {
	BaseEvent
	Source    string `json:"src_name"`
	Version   string `json:"version,omitempty"`
	Added     int    `json:"added"`
	Updated   int    `json:"updated"`
	Unchanged int    `json:"unchanged"`
	Retired   int    `json:"retired"`
	Skipped   int    `json:"skipped"`
}

// ConceptRetiredEvent is emitted when a concept vanishes from its source.
type ConceptRetiredEvent struct {
	BaseEvent
	ConceptID string `json:"concept_id"`
	Source    string `json:"src_name"`
}

// ConceptsMergedEvent is emitted after a merge pass completes.
type ConceptsMergedEvent struct {
	BaseEvent
	Groups   int `json:"groups"`
	Records  int `json:"records"`
	Dangling int `json:"dangling"`
}

// NewBaseEvent creates a base event with common fields
func NewBaseEvent(eventType EventType) BaseEvent {
	return BaseEvent{
		EventType:     eventType,
		SchemaVersion: SchemaVersion,
		Timestamp:     time.Now().UTC(),
		CorrelationID: uuid.New().String(),
	}
}
