// Package events carries task, table and status notifications between the
// workflows and whatever is displaying them.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/tablerag/tablerag-client/internal/constants"
	"github.com/tablerag/tablerag-client/internal/models"
)

// EventType defines the types of events that can be emitted
type EventType string

const (
	EventStatus       EventType = "status"        // message shown in a status region
	EventTaskUpdate   EventType = "task_update"   // non-terminal snapshot
	EventTaskTerminal EventType = "task_terminal" // succeeded or failed
	EventTaskAborted  EventType = "task_aborted"  // polling stopped without a terminal status
	EventTableRefresh EventType = "table_refresh" // listing rebuilt or failed
	EventChatAnswered EventType = "chat_answered" // chat exchange completed
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common event fields
type BaseEvent struct {
	EventType EventType
	Time      time.Time
}

func (e BaseEvent) Type() EventType      { return e.EventType }
func (e BaseEvent) Timestamp() time.Time { return e.Time }

// StatusEvent is a human-readable status message for one region
// ("upload", "cleanup", "chat", ...).
type StatusEvent struct {
	BaseEvent
	Region  string
	Message string
}

// TaskEvent carries a task snapshot.
type TaskEvent struct {
	BaseEvent
	Task      models.Task
	Observers int
	Err       error // set for EventTaskAborted
}

// TableEvent reports the outcome of a table listing refresh.
type TableEvent struct {
	BaseEvent
	State string
	Rows  int
	Err   error
}

// ChatEvent reports a completed chat exchange.
type ChatEvent struct {
	BaseEvent
	Question string
	TableID  string
	Answer   string
}

// EventBus manages event subscriptions and publishing
type EventBus struct {
	subscribers   map[EventType][]chan Event
	all           []chan Event // Subscribers to all events
	mu            sync.RWMutex
	bufferSize    int
	closed        bool
	droppedEvents atomic.Int64 // Count of dropped events due to full buffers
}

// NewEventBus creates a new event bus with specified buffer size
func NewEventBus(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = constants.EventBusDefaultBuffer
	}
	if bufferSize > constants.EventBusMaxBuffer {
		bufferSize = constants.EventBusMaxBuffer
	}
	return &EventBus{
		subscribers: make(map[EventType][]chan Event),
		all:         make([]chan Event, 0),
		bufferSize:  bufferSize,
	}
}

// Subscribe creates a subscription to a specific event type
func (eb *EventBus) Subscribe(eventType EventType) <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, eb.bufferSize)
	eb.subscribers[eventType] = append(eb.subscribers[eventType], ch)
	return ch
}

// SubscribeAll creates a subscription to all events
func (eb *EventBus) SubscribeAll() <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, eb.bufferSize)
	eb.all = append(eb.all, ch)
	return ch
}

// Publish sends an event to all subscribers without blocking.
// A nil bus is valid and drops everything.
func (eb *EventBus) Publish(event Event) {
	if eb == nil {
		return
	}
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.closed {
		return
	}

	for _, ch := range eb.subscribers[event.Type()] {
		select {
		case ch <- event:
		default:
			eb.droppedEvents.Add(1)
		}
	}

	for _, ch := range eb.all {
		select {
		case ch <- event:
		default:
			eb.droppedEvents.Add(1)
		}
	}
}

// Close shuts down the event bus and closes all channels
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	eb.closed = true

	for _, channels := range eb.subscribers {
		for _, ch := range channels {
			close(ch)
		}
	}

	for _, ch := range eb.all {
		close(ch)
	}
}

// PublishStatus publishes a status message for a region.
func (eb *EventBus) PublishStatus(region, message string) {
	eb.Publish(&StatusEvent{
		BaseEvent: BaseEvent{EventType: EventStatus, Time: time.Now()},
		Region:    region,
		Message:   message,
	})
}

// PublishTask publishes a task snapshot under the given event type.
func (eb *EventBus) PublishTask(eventType EventType, task *models.Task, observers int, err error) {
	if task == nil {
		return
	}
	eb.Publish(&TaskEvent{
		BaseEvent: BaseEvent{EventType: eventType, Time: time.Now()},
		Task:      *task,
		Observers: observers,
		Err:       err,
	})
}

// PublishTable publishes a table refresh outcome.
func (eb *EventBus) PublishTable(state string, rows int, err error) {
	eb.Publish(&TableEvent{
		BaseEvent: BaseEvent{EventType: EventTableRefresh, Time: time.Now()},
		State:     state,
		Rows:      rows,
		Err:       err,
	})
}

// PublishChat publishes a completed chat exchange.
func (eb *EventBus) PublishChat(question, tableID, answer string) {
	eb.Publish(&ChatEvent{
		BaseEvent: BaseEvent{EventType: EventChatAnswered, Time: time.Now()},
		Question:  question,
		TableID:   tableID,
		Answer:    answer,
	})
}

// GetDroppedEventCount returns the total number of events dropped due to full buffers
func (eb *EventBus) GetDroppedEventCount() int64 {
	if eb == nil {
		return 0
	}
	return eb.droppedEvents.Load()
}
