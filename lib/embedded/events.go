package embedded

import (
	"sync"
	"sync/atomic"
	"time"
)

// EventType categorizes engine events.
type EventType int

const (
	// EventInstanceCreated is emitted when an instance is registered.
	EventInstanceCreated EventType = iota
	// EventDeviceBound is emitted when a host device is bound to an instance.
	EventDeviceBound
	// EventInstanceStarted is emitted when an instance runtime comes up.
	EventInstanceStarted
	// EventInstanceStopped is emitted when an instance is stopped and removed.
	EventInstanceStopped
	// EventError is emitted when a boundary operation fails.
	EventError
)

// String returns a human-readable name for the event type.
func (t EventType) String() string {
	switch t {
	case EventInstanceCreated:
		return "instance_created"
	case EventDeviceBound:
		return "device_bound"
	case EventInstanceStarted:
		return "instance_started"
	case EventInstanceStopped:
		return "instance_stopped"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event represents an engine lifecycle event.
type Event struct {
	// Type is the category of this event.
	Type EventType

	// Timestamp is when the event occurred.
	Timestamp time.Time

	// Instance is the instance name the event concerns, if any.
	Instance string

	// Error contains the error for EventError events. Nil otherwise.
	Error error

	// Message is a human-readable description of the event.
	Message string
}

// eventEmitter manages the event channel and emission.
type eventEmitter struct {
	// mu is held across the channel send so emit never races close;
	// boundary operations may run concurrently with engine shutdown.
	mu           sync.Mutex
	events       chan Event
	closed       bool
	droppedCount atomic.Uint64 // counts events dropped due to full buffer
}

// newEventEmitter creates a new event emitter with the given buffer size.
func newEventEmitter(bufferSize int) *eventEmitter {
	if bufferSize < 1 {
		bufferSize = 100
	}
	return &eventEmitter{
		events: make(chan Event, bufferSize),
	}
}

// emit sends an event to the channel.
// If the channel is full, the event is dropped (non-blocking) and the
// dropped counter is incremented.
func (e *eventEmitter) emit(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	select {
	case e.events <- event:
	default:
		e.droppedCount.Add(1)
	}
}

// emitInstance emits an instance lifecycle event.
func (e *eventEmitter) emitInstance(eventType EventType, instance, message string) {
	e.emit(Event{
		Type:     eventType,
		Instance: instance,
		Message:  message,
	})
}

// emitError emits an error event.
func (e *eventEmitter) emitError(instance string, err error) {
	e.emit(Event{
		Type:     EventError,
		Instance: instance,
		Error:    err,
		Message:  err.Error(),
	})
}

// channel returns the event channel for consumers.
func (e *eventEmitter) channel() <-chan Event {
	return e.events
}

// droppedEvents returns the total count of events dropped due to a full buffer.
func (e *eventEmitter) droppedEvents() uint64 {
	return e.droppedCount.Load()
}

// close closes the event channel.
func (e *eventEmitter) close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.events)
	}
}
