// Package events is the in-process notification boundary toward library
// import and linking collaborators. Handlers run synchronously on the
// worker goroutine that emitted the event.
package events

import (
	"sync"

	"github.com/listenarr/listenarr/pkg/models"
)

const (
	BookAcquired    = "book_acquired"
	MetadataUpdated = "metadata_updated"
	BatchComplete   = "batch_complete"
)

// Event carries the work item id and its merged record; BatchID is set only
// for batch_complete.
type Event struct {
	Type       string
	WorkItemID int
	BatchID    string
	Merged     models.MergedRecord
}

type Handler func(Event)

type Emitter struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

func NewEmitter() *Emitter {
	return &Emitter{handlers: map[string][]Handler{}}
}

func (e *Emitter) Subscribe(eventType string, handler Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[eventType] = append(e.handlers[eventType], handler)
}

func (e *Emitter) Emit(event Event) {
	e.mu.RLock()
	handlers := e.handlers[event.Type]
	e.mu.RUnlock()

	for _, handler := range handlers {
		handler(event)
	}
}
