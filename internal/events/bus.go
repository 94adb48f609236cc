package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventBalanceUpdated   EventType = "BALANCE_UPDATED"
	EventRequestFinalized EventType = "REQUEST_FINALIZED"
	EventSnapshotStale    EventType = "SNAPSHOT_STALE"
	EventPlatformDegraded EventType = "PLATFORM_DEGRADED"
	EventError            EventType = "ERROR"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// EventBus manages event publishing and subscriptions. Delivery is
// fire-and-forget, at most once per subscriber, with no ordering
// guarantee across subscribers.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all subscribers
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if subs, ok := eb.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event) // Run in goroutine to avoid blocking
		}
	}

	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishBalanceUpdated publishes a balance change after an approved request.
// deltaSign is "+" for deposits and "-" for withdrawals.
func (eb *EventBus) PublishBalanceUpdated(requestID, kind, userID, accountType string, newBalance, delta float64, deltaSign string) {
	eb.Publish(Event{
		Type: EventBalanceUpdated,
		Data: map[string]interface{}{
			"request_id":   requestID,
			"kind":         kind,
			"user_id":      userID,
			"account_type": accountType,
			"new_balance":  newBalance,
			"delta":        delta,
			"delta_sign":   deltaSign,
		},
	})
}

// PublishRequestFinalized publishes a terminal decision on a payment request
func (eb *EventBus) PublishRequestFinalized(requestID, kind, status, operatorID string) {
	eb.Publish(Event{
		Type: EventRequestFinalized,
		Data: map[string]interface{}{
			"request_id":  requestID,
			"kind":        kind,
			"status":      status,
			"operator_id": operatorID,
		},
	})
}

// PublishSnapshotStale signals that a view is being served from cache
func (eb *EventBus) PublishSnapshotStale(scope string, cachedAt time.Time) {
	eb.Publish(Event{
		Type: EventSnapshotStale,
		Data: map[string]interface{}{
			"scope":     scope,
			"cached_at": cachedAt,
		},
	})
}

// PublishPlatformDegraded signals repeated platform call failures
func (eb *EventBus) PublishPlatformDegraded(operation string, attempts int, err error) {
	data := map[string]interface{}{
		"operation": operation,
		"attempts":  attempts,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	eb.Publish(Event{
		Type: EventPlatformDegraded,
		Data: data,
	})
}

// PublishError publishes an error event
func (eb *EventBus) PublishError(source, message string, err error) {
	data := map[string]interface{}{
		"source":  source,
		"message": message,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	eb.Publish(Event{
		Type: EventError,
		Data: data,
	})
}
