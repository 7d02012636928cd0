// Package events handles event emission for concept lifecycle changes
package events

import (
	"context"
	"encoding/json"

	"github.com/Gobusters/ectologger"

	"github.com/yarrow-bio/yarrow/pkg/kafka"
	"github.com/yarrow-bio/yarrow/pkg/models"
	"github.com/yarrow-bio/yarrow/pkg/tracing"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// Emitter publishes concept lifecycle events. A nil Emitter is a no-op so
// the ETL and merge drivers run unchanged when eventing is disabled.
type Emitter struct {
	producer *kafka.Producer
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer *kafka.Producer, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// EmitSourceSynced emits a source.synced event after an ETL pass.
func (e *Emitter) EmitSourceSynced(ctx context.Context, source models.SourceName, version string, added, updated, unchanged, retired, skipped int) error {
	if e == nil {
		return nil
	}
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitSourceSynced")
	defer span.End()

	payload := SourceSyncedEvent{
		BaseEvent: NewBaseEvent(EventTypeSourceSynced),
		Source:    string(source),
		Version:   version,
		Added:     added,
		Updated:   updated,
		Unchanged: unchanged,
		Retired:   retired,
		Skipped:   skipped,
	}
	data, _ := json.Marshal(payload)

	event := &kafka.ConceptEvent{
		EventType:     string(EventTypeSourceSynced),
		Source:        string(source),
		Data:          data,
		CorrelationID: payload.CorrelationID,
	}

	if err := e.producer.PublishConceptEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit source.synced event")
		return err
	}

	return nil
}

// EmitConceptRetired emits a concept.retired event.
func (e *Emitter) EmitConceptRetired(ctx context.Context, conceptID string, source models.SourceName) error {
	if e == nil {
		return nil
	}
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitConceptRetired")
	defer span.End()

	payload := ConceptRetiredEvent{
		BaseEvent: NewBaseEvent(EventTypeConceptRetired),
		ConceptID: conceptID,
		Source:    string(source),
	}
	data, _ := json.Marshal(payload)

	event := &kafka.ConceptEvent{
		EventType:     string(EventTypeConceptRetired),
		ConceptID:     conceptID,
		Source:        string(source),
		Data:          data,
		CorrelationID: payload.CorrelationID,
	}

	if err := e.producer.PublishConceptEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit concept.retired event")
		return err
	}

	return nil
}

// EmitConceptsMerged emits a concepts.merged event after a merge pass.
func (e *Emitter) EmitConceptsMerged(ctx context.Context, groups, records, dangling int) error {
	if e == nil {
		return nil
	}
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitConceptsMerged")
	defer span.End()

	payload := ConceptsMergedEvent{
		BaseEvent: NewBaseEvent(EventTypeConceptsMerged),
		Groups:    groups,
		Records:   records,
		Dangling:  dangling,
	}
	data, _ := json.Marshal(payload)

	event := &kafka.ConceptEvent{
		EventType:     string(EventTypeConceptsMerged),
		Data:          data,
		CorrelationID: payload.CorrelationID,
	}

	if err := e.producer.PublishConceptEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit concepts.merged event")
		return err
	}

	return nil
}
