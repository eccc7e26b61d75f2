package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ocrdesk/ocrdesk/internal/constants"
)

// EventType defines the types of events that can be emitted
type EventType string

const (
	EventNotification EventType = "notification"
	EventLog          EventType = "log"
	EventStateChange  EventType = "state_change"
	EventProgress     EventType = "progress"
	EventTree         EventType = "tree"
	EventSelection    EventType = "selection"
	EventComplete     EventType = "complete"
)

// Level defines notification and log severity
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	SuccessLevel
	WarnLevel
	ErrorLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case SuccessLevel:
		return "SUCCESS"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

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

// NotificationEvent is a transient user-facing message (a toast in the browser).
type NotificationEvent struct {
	BaseEvent
	Level       Level
	Title       string
	Description string
}

// LogEvent represents log messages
type LogEvent struct {
	BaseEvent
	Level   Level
	Message string
	Stage   string
	Error   error
}

// StateChangeEvent represents job state transitions
type StateChangeEvent struct {
	BaseEvent
	TaskID    string
	OldState  string
	NewState  string
	ResultDir string
}

// ProgressEvent represents poll ticks and per-file download progress
type ProgressEvent struct {
	BaseEvent
	Key      string // task id for polls, file path for downloads
	Stage    string // "poll", "download"
	Progress float64
	Message  string
}

// TreeEvent is published when the result tree is replaced or cleared
type TreeEvent struct {
	BaseEvent
	ResultDir string
	Nodes     int
	Error     string
}

// SelectionEvent is published when a file's content has been fetched
type SelectionEvent struct {
	BaseEvent
	Name string
	Path string
	Kind string
}

// CompleteEvent is the download-all summary
type CompleteEvent struct {
	BaseEvent
	Total    int
	Saved    int
	Failed   int
	Duration time.Duration
}

// EventBus manages event subscriptions and publishing
type EventBus struct {
	subscribers   map[EventType][]chan Event
	all           []chan Event
	mu            sync.RWMutex
	bufferSize    int
	closed        bool
	droppedEvents atomic.Int64
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

// IsClosed reports whether Close has been called. A nil bus counts as closed.
func (eb *EventBus) IsClosed() bool {
	if eb == nil {
		return true
	}
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return eb.closed
}

// SubscribeAll creates a subscription to all events. On a closed bus the
// returned channel is already closed.
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
// Events that do not fit a subscriber's buffer are dropped and counted.
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

// Notify publishes a NotificationEvent.
func (eb *EventBus) Notify(level Level, title, description string) {
	eb.Publish(&NotificationEvent{
		BaseEvent:   BaseEvent{EventType: EventNotification, Time: time.Now()},
		Level:       level,
		Title:       title,
		Description: description,
	})
}

// PublishLog is a convenience method for publishing log events
func (eb *EventBus) PublishLog(level Level, message, stage string, err error) {
	eb.Publish(&LogEvent{
		BaseEvent: BaseEvent{EventType: EventLog, Time: time.Now()},
		Level:     level,
		Message:   message,
		Stage:     stage,
		Error:     err,
	})
}

// PublishProgress is a convenience method for publishing progress events
func (eb *EventBus) PublishProgress(key, stage string, progress float64, message string) {
	eb.Publish(&ProgressEvent{
		BaseEvent: BaseEvent{EventType: EventProgress, Time: time.Now()},
		Key:       key,
		Stage:     stage,
		Progress:  progress,
		Message:   message,
	})
}

// PublishStateChange is a convenience method for publishing job transitions
func (eb *EventBus) PublishStateChange(taskID, oldState, newState, resultDir string) {
	eb.Publish(&StateChangeEvent{
		BaseEvent: BaseEvent{EventType: EventStateChange, Time: time.Now()},
		TaskID:    taskID,
		OldState:  oldState,
		NewState:  newState,
		ResultDir: resultDir,
	})
}

// Unsubscribe removes a subscription channel from a specific event type
func (eb *EventBus) Unsubscribe(eventType EventType, ch <-chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	subscribers := eb.subscribers[eventType]
	for i, subCh := range subscribers {
		if subCh == ch {
			subscribers[i] = subscribers[len(subscribers)-1]
			eb.subscribers[eventType] = subscribers[:len(subscribers)-1]
			break
		}
	}
}

// UnsubscribeAll removes a subscription channel from all event types
func (eb *EventBus) UnsubscribeAll(ch <-chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	for eventType, subscribers := range eb.subscribers {
		for i, subCh := range subscribers {
			if subCh == ch {
				subscribers[i] = subscribers[len(subscribers)-1]
				eb.subscribers[eventType] = subscribers[:len(subscribers)-1]
				break
			}
		}
	}

	for i, subCh := range eb.all {
		if subCh == ch {
			eb.all[i] = eb.all[len(eb.all)-1]
			eb.all = eb.all[:len(eb.all)-1]
			break
		}
	}
}

// GetDroppedEventCount returns the total number of events dropped due to full buffers
func (eb *EventBus) GetDroppedEventCount() int64 {
	return eb.droppedEvents.Load()
}
