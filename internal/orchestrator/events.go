package orchestrator

import (
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// EventType identifies a state-change notification.
type EventType string

const (
	// EventSubmitted fires when a task is accepted.
	EventSubmitted EventType = "task_submitted"
	// EventPlanned fires when decomposition and assignment finish.
	EventPlanned EventType = "task_planned"
	// EventRunning fires when execution starts or resumes.
	EventRunning EventType = "task_running"
	// EventPaused fires when execution halts at a wave boundary.
	EventPaused EventType = "task_paused"
	// EventCompleted fires when a task reaches completed.
	EventCompleted EventType = "task_completed"
	// EventFailed fires when a task reaches failed.
	EventFailed EventType = "task_failed"
)

// Event is one state-change notification for a task.
type Event struct {
	Type      EventType
	TaskID    string
	Message   string
	Timestamp time.Time
}

// EventEmitter provides a thread-safe state-change notification channel
// for subscribers polling alternatives (CLI follow mode, tests).
type EventEmitter struct {
	mu           sync.RWMutex
	closed       bool
	events       chan Event
	droppedCount atomic.Uint64
}

// NewEventEmitter creates an EventEmitter with the given buffer size.
func NewEventEmitter(bufferSize int) *EventEmitter {
	return &EventEmitter{events: make(chan Event, bufferSize)}
}

// Emit sends an event, trying briefly before dropping when the channel is
// full. Submission progress never blocks on a slow subscriber. Emitting
// after Close silently drops the event.
func (e *EventEmitter) Emit(event Event) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return
	}

	event.Timestamp = time.Now()

	select {
	case e.events <- event:
		return
	default:
	}

	select {
	case e.events <- event:
		return
	case <-time.After(100 * time.Millisecond):
		count := e.droppedCount.Add(1)
		if count%10 == 1 { // Log every 10th drop to avoid spam
			log.Printf("[orchestrator] WARNING: event channel full, dropped event (total dropped: %d): type=%s", count, event.Type)
		}
	}
}

// DroppedCount returns the total number of dropped events.
func (e *EventEmitter) DroppedCount() uint64 {
	return e.droppedCount.Load()
}

// Events returns the read-only subscriber channel.
func (e *EventEmitter) Events() <-chan Event {
	return e.events
}

// Close closes the events channel. Later Emit calls are no-ops, and Close
// itself is idempotent.
func (e *EventEmitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	close(e.events)
}
