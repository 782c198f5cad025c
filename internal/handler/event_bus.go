// internal/handler/event_bus.go
package handler

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fprint-service/internal/model"
	"fprint-service/internal/service"
)

const (
	eventBufferSize      = 1000
	subscriberBufferSize = 100
)

// EventBus fans service events out to subscribers. Publishing never blocks:
// events are dropped when the bus or a subscriber falls behind.
type EventBus struct {
	subscribers map[uuid.UUID]chan model.Event
	events      chan model.Event
	mutex       sync.RWMutex
	logger      *zap.Logger
}

var _ service.EventPublisher = (*EventBus)(nil)

// NewEventBus creates a new event bus
func NewEventBus(logger *zap.Logger) *EventBus {
	return &EventBus{
		subscribers: make(map[uuid.UUID]chan model.Event),
		events:      make(chan model.Event, eventBufferSize),
		logger:      logger.With(zap.String("component", "event-bus")),
	}
}

// Start distributes events until ctx is done, then closes every subscriber
func (eb *EventBus) Start(ctx context.Context) {
	defer eb.closeAll()
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-eb.events:
			eb.distributeEvent(event)
		}
	}
}

// Publish queues an event
func (eb *EventBus) Publish(event model.Event) {
	select {
	case eb.events <- event:
	default:
		eb.logger.Warn("Event bus full, dropping event", zap.String("event_type", string(event.Type)))
	}
}

// Subscribe returns a channel receiving every event published from now on
func (eb *EventBus) Subscribe() (uuid.UUID, <-chan model.Event) {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	id := uuid.New()
	subscriber := make(chan model.Event, subscriberBufferSize)
	eb.subscribers[id] = subscriber
	return id, subscriber
}

// Unsubscribe closes the subscriber's channel
func (eb *EventBus) Unsubscribe(id uuid.UUID) {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	if subscriber, ok := eb.subscribers[id]; ok {
		delete(eb.subscribers, id)
		close(subscriber)
	}
}

func (eb *EventBus) distributeEvent(event model.Event) {
	eb.mutex.RLock()
	defer eb.mutex.RUnlock()

	for id, subscriber := range eb.subscribers {
		select {
		case subscriber <- event:
		default:
			eb.logger.Debug("Subscriber slow, dropping event",
				zap.String("subscriber", id.String()),
				zap.String("event_type", string(event.Type)),
			)
		}
	}
}

func (eb *EventBus) closeAll() {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	for id, subscriber := range eb.subscribers {
		delete(eb.subscribers, id)
		close(subscriber)
	}
}
