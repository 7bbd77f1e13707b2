package events

import (
	"testing"

	"github.com/listenarr/listenarr/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitter_SubscribeAndEmit(t *testing.T) {
	emitter := NewEmitter()

	var received []Event
	emitter.Subscribe(BookAcquired, func(event Event) {
		received = append(received, event)
	})

	merged := models.MergedRecord{
		models.FieldTitle: {Value: "Dune", Source: models.SourceBiblioAPI, Confidence: 0.9},
	}
	emitter.Emit(Event{Type: BookAcquired, WorkItemID: 7, Merged: merged})

	require.Len(t, received, 1)
	assert.Equal(t, 7, received[0].WorkItemID)
	assert.Equal(t, merged, received[0].Merged)
}

func TestEmitter_OnlyMatchingTypeFires(t *testing.T) {
	emitter := NewEmitter()

	acquired := 0
	updated := 0
	emitter.Subscribe(BookAcquired, func(Event) { acquired++ })
	emitter.Subscribe(MetadataUpdated, func(Event) { updated++ })

	emitter.Emit(Event{Type: MetadataUpdated, WorkItemID: 1})

	assert.Equal(t, 0, acquired)
	assert.Equal(t, 1, updated)
}

func TestEmitter_MultipleHandlers(t *testing.T) {
	emitter := NewEmitter()

	calls := 0
	emitter.Subscribe(BatchComplete, func(Event) { calls++ })
	emitter.Subscribe(BatchComplete, func(Event) { calls++ })

	emitter.Emit(Event{Type: BatchComplete, BatchID: "batch-1"})

	assert.Equal(t, 2, calls)
}

func TestEmitter_NoHandlersIsNoop(t *testing.T) {
	emitter := NewEmitter()
	assert.NotPanics(t, func() {
		emitter.Emit(Event{Type: BookAcquired})
	})
}
