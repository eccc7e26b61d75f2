package webapp

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ocrdesk/ocrdesk/internal/events"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBridge() (*Bridge, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	b := NewBridge(100 * time.Millisecond)
	b.now = clock.now
	return b, clock
}

func progress(key, stage string, p float64, msg string) *events.ProgressEvent {
	return &events.ProgressEvent{
		BaseEvent: events.BaseEvent{EventType: events.EventProgress, Time: time.Now()},
		Key:       key,
		Stage:     stage,
		Progress:  p,
		Message:   msg,
	}
}

func TestBridgeThrottlesProgressPerKey(t *testing.T) {
	b, clock := newTestBridge()

	steps := []struct {
		name    string
		advance time.Duration
		event   *events.ProgressEvent
		want    bool
	}{
		{"first update", 0, progress("t1", "poll", 10, "running"), true},
		{"too soon", 10 * time.Millisecond, progress("t1", "poll", 20, "running"), false},
		{"other key", 0, progress("t2", "poll", 20, "running"), true},
		{"same key other stage", 0, progress("t1", "download", 0.5, ""), true},
		{"after interval", 100 * time.Millisecond, progress("t1", "poll", 30, "running"), true},
		{"finished poll never throttled", 0, progress("t1", "poll", 50, "finished"), true},
		{"completed transfer never throttled", 0, progress("t1", "download", 1, ""), true},
	}

	for _, s := range steps {
		clock.advance(s.advance)
		if _, got := b.Translate(s.event); got != s.want {
			t.Errorf("%s: forwarded = %v, want %v", s.name, got, s.want)
		}
	}
}

func TestBridgeNeverThrottlesTerminalEvents(t *testing.T) {
	b, _ := newTestBridge()
	now := time.Now()

	evs := []events.Event{
		&events.StateChangeEvent{BaseEvent: events.BaseEvent{EventType: events.EventStateChange, Time: now}, TaskID: "t1", NewState: "finished"},
		&events.StateChangeEvent{BaseEvent: events.BaseEvent{EventType: events.EventStateChange, Time: now}, TaskID: "t1", NewState: "finished"},
		&events.NotificationEvent{BaseEvent: events.BaseEvent{EventType: events.EventNotification, Time: now}, Level: events.ErrorLevel, Title: "a"},
		&events.NotificationEvent{BaseEvent: events.BaseEvent{EventType: events.EventNotification, Time: now}, Level: events.ErrorLevel, Title: "a"},
		&events.CompleteEvent{BaseEvent: events.BaseEvent{EventType: events.EventComplete, Time: now}, Total: 2, Saved: 2},
		&events.TreeEvent{BaseEvent: events.BaseEvent{EventType: events.EventTree, Time: now}, ResultDir: "/r"},
		&events.SelectionEvent{BaseEvent: events.BaseEvent{EventType: events.EventSelection, Time: now}, Name: "a.md"},
	}
	for i, ev := range evs {
		if _, ok := b.Translate(ev); !ok {
			t.Errorf("event %d (%s) was dropped", i, ev.Type())
		}
	}
}

func TestBridgeFrames(t *testing.T) {
	b, _ := newTestBridge()

	frame, ok := b.Translate(&events.NotificationEvent{
		BaseEvent:   events.BaseEvent{EventType: events.EventNotification, Time: time.Now()},
		Level:       events.SuccessLevel,
		Title:       "Parsing complete",
		Description: "done",
	})
	if !ok {
		t.Fatal("notification dropped")
	}
	if frame.Event != "notification" {
		t.Errorf("Event = %q", frame.Event)
	}
	if !strings.Contains(string(frame.Data), `"level":"SUCCESS"`) || !strings.Contains(string(frame.Data), `"title":"Parsing complete"`) {
		t.Errorf("Data = %s", frame.Data)
	}

	var buf bytes.Buffer
	if _, err := frame.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(buf.String(), "event: notification\ndata: {") || !strings.HasSuffix(buf.String(), "}\n\n") {
		t.Errorf("wire format = %q", buf.String())
	}
}

func TestBridgeLogLevels(t *testing.T) {
	b, _ := newTestBridge()
	mk := func(level events.Level) *events.LogEvent {
		return &events.LogEvent{
			BaseEvent: events.BaseEvent{EventType: events.EventLog, Time: time.Now()},
			Level:     level,
			Message:   "m",
			Error:     errors.New("boom"),
		}
	}

	if _, ok := b.Translate(mk(events.DebugLevel)); ok {
		t.Error("debug log forwarded")
	}
	frame, ok := b.Translate(mk(events.ErrorLevel))
	if !ok {
		t.Fatal("error log dropped")
	}
	if !strings.Contains(string(frame.Data), `"error":"boom"`) {
		t.Errorf("Data = %s", frame.Data)
	}
}
