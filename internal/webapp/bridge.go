package webapp

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ocrdesk/ocrdesk/internal/events"
	"github.com/ocrdesk/ocrdesk/internal/models"
)

// Frame is one server-sent event.
type Frame struct {
	Event string
	Data  []byte
}

// WriteTo writes the frame in text/event-stream format.
func (f Frame) WriteTo(w io.Writer) (int64, error) {
	n, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", f.Event, f.Data)
	return int64(n), err
}

// Bridge translates bus events into frames for one SSE connection. Progress
// events are throttled per key; everything else, and progress that reached
// its end, always goes through.
type Bridge struct {
	interval time.Duration
	now      func() time.Time

	mu           sync.Mutex
	lastProgress map[string]time.Time
}

// NewBridge creates a bridge forwarding at most one progress update per key
// per interval.
func NewBridge(interval time.Duration) *Bridge {
	return &Bridge{
		interval:     interval,
		now:          time.Now,
		lastProgress: make(map[string]time.Time),
	}
}

// Translate returns the frame for event, or false when the event is
// throttled or not forwarded to the browser.
func (b *Bridge) Translate(event events.Event) (Frame, bool) {
	var (
		name string
		dto  interface{}
	)

	switch e := event.(type) {
	case *events.ProgressEvent:
		if !isFinalProgress(e) && b.shouldThrottle(e.Stage+":"+e.Key) {
			return Frame{}, false
		}
		name, dto = "progress", progressEventToDTO(e)
	case *events.NotificationEvent:
		name, dto = "notification", notificationEventToDTO(e)
	case *events.StateChangeEvent:
		name, dto = "state_change", stateChangeEventToDTO(e)
	case *events.TreeEvent:
		name, dto = "tree", treeEventToDTO(e)
	case *events.SelectionEvent:
		name, dto = "selection", selectionEventToDTO(e)
	case *events.CompleteEvent:
		name, dto = "complete", completeEventToDTO(e)
	case *events.LogEvent:
		if e.Level < events.WarnLevel {
			return Frame{}, false
		}
		name, dto = "log", logEventToDTO(e)
	default:
		return Frame{}, false
	}

	data, err := json.Marshal(dto)
	if err != nil {
		return Frame{}, false
	}
	return Frame{Event: name, Data: data}, true
}

func (b *Bridge) shouldThrottle(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if last, ok := b.lastProgress[key]; ok && now.Sub(last) < b.interval {
		return true
	}
	b.lastProgress[key] = now
	return false
}

// isFinalProgress reports whether e is the last update of its stream. Poll
// progress runs 0-100, transfers report a fraction.
func isFinalProgress(e *events.ProgressEvent) bool {
	if e.Stage == "poll" {
		return e.Progress >= 100 || e.Message == string(models.JobFinished)
	}
	return e.Progress >= 1
}

// DTO conversion functions for JSON-safe serialization

type progressEventDTO struct {
	Timestamp string  `json:"timestamp"`
	Key       string  `json:"key"`
	Stage     string  `json:"stage"`
	Progress  float64 `json:"progress"`
	Message   string  `json:"message,omitempty"`
}

func progressEventToDTO(e *events.ProgressEvent) progressEventDTO {
	return progressEventDTO{
		Timestamp: e.Timestamp().Format(time.RFC3339Nano),
		Key:       e.Key,
		Stage:     e.Stage,
		Progress:  e.Progress,
		Message:   e.Message,
	}
}

type notificationEventDTO struct {
	Timestamp   string `json:"timestamp"`
	Level       string `json:"level"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

func notificationEventToDTO(e *events.NotificationEvent) notificationEventDTO {
	return notificationEventDTO{
		Timestamp:   e.Timestamp().Format(time.RFC3339Nano),
		Level:       e.Level.String(),
		Title:       e.Title,
		Description: e.Description,
	}
}

type stateChangeEventDTO struct {
	Timestamp string `json:"timestamp"`
	TaskID    string `json:"taskId"`
	OldState  string `json:"oldState"`
	NewState  string `json:"newState"`
	ResultDir string `json:"resultDir,omitempty"`
}

func stateChangeEventToDTO(e *events.StateChangeEvent) stateChangeEventDTO {
	return stateChangeEventDTO{
		Timestamp: e.Timestamp().Format(time.RFC3339Nano),
		TaskID:    e.TaskID,
		OldState:  e.OldState,
		NewState:  e.NewState,
		ResultDir: e.ResultDir,
	}
}

type treeEventDTO struct {
	Timestamp string `json:"timestamp"`
	ResultDir string `json:"resultDir"`
	Nodes     int    `json:"nodes"`
	Error     string `json:"error,omitempty"`
}

func treeEventToDTO(e *events.TreeEvent) treeEventDTO {
	return treeEventDTO{
		Timestamp: e.Timestamp().Format(time.RFC3339Nano),
		ResultDir: e.ResultDir,
		Nodes:     e.Nodes,
		Error:     e.Error,
	}
}

type selectionEventDTO struct {
	Timestamp string `json:"timestamp"`
	Name      string `json:"name"`
	Path      string `json:"path"`
	Kind      string `json:"kind"`
}

func selectionEventToDTO(e *events.SelectionEvent) selectionEventDTO {
	return selectionEventDTO{
		Timestamp: e.Timestamp().Format(time.RFC3339Nano),
		Name:      e.Name,
		Path:      e.Path,
		Kind:      e.Kind,
	}
}

type completeEventDTO struct {
	Timestamp  string `json:"timestamp"`
	Total      int    `json:"total"`
	Saved      int    `json:"saved"`
	Failed     int    `json:"failed"`
	DurationMs int64  `json:"durationMs"`
}

func completeEventToDTO(e *events.CompleteEvent) completeEventDTO {
	return completeEventDTO{
		Timestamp:  e.Timestamp().Format(time.RFC3339Nano),
		Total:      e.Total,
		Saved:      e.Saved,
		Failed:     e.Failed,
		DurationMs: e.Duration.Milliseconds(),
	}
}

type logEventDTO struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Message   string `json:"message"`
	Stage     string `json:"stage,omitempty"`
	Error     string `json:"error,omitempty"`
}

func logEventToDTO(e *events.LogEvent) logEventDTO {
	dto := logEventDTO{
		Timestamp: e.Timestamp().Format(time.RFC3339Nano),
		Level:     e.Level.String(),
		Message:   e.Message,
		Stage:     e.Stage,
	}
	if e.Error != nil {
		dto.Error = e.Error.Error()
	}
	return dto
}
