package progress

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/vbauerster/mpb/v8"

	"github.com/ocrdesk/ocrdesk/internal/events"
)

type recordingReporter struct {
	updates []int64
}

func (r *recordingReporter) Start(int64, string)   {}
func (r *recordingReporter) Update(current int64)  { r.updates = append(r.updates, current) }
func (r *recordingReporter) Finish()               {}
func (r *recordingReporter) Error(error)           {}
func (r *recordingReporter) SetDescription(string) {}

func TestProgressReader(t *testing.T) {
	rec := &recordingReporter{}
	src := strings.Repeat("x", 10)
	pr := NewProgressReader(strings.NewReader(src), int64(len(src)), rec)

	buf := make([]byte, 4)
	var got []byte
	for {
		n, err := pr.Read(buf)
		got = append(got, buf[:n]...)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
	}

	if string(got) != src {
		t.Errorf("read %q, want %q", got, src)
	}
	if pr.Current() != 10 {
		t.Errorf("Current() = %d, want 10", pr.Current())
	}
	if last := rec.updates[len(rec.updates)-1]; last != 10 {
		t.Errorf("last update = %d, want 10", last)
	}
}

func TestBusProgress(t *testing.T) {
	bus := events.NewEventBus(10)
	defer bus.Close()
	ch := bus.Subscribe(events.EventProgress)

	p := NewBusProgress(bus, "scan.pdf", "upload")
	p.Start(200, "scan.pdf")
	p.Update(50)
	p.Update(400)
	p.Finish()

	want := []float64{0, 0.25, 1, 1}
	for i, w := range want {
		select {
		case ev := <-ch:
			pe := ev.(*events.ProgressEvent)
			if pe.Key != "scan.pdf" || pe.Stage != "upload" {
				t.Errorf("event %d = %+v", i, pe)
			}
			if pe.Progress != w {
				t.Errorf("event %d progress = %v, want %v", i, pe.Progress, w)
			}
		case <-time.After(time.Second):
			t.Fatalf("missing event %d", i)
		}
	}
}

func TestBusProgressZeroTotal(t *testing.T) {
	p := NewBusProgress(nil, "k", "upload")
	p.Start(0, "")
	p.Update(10)
	if f := p.fraction(); f != 0 {
		t.Errorf("fraction() = %v, want 0", f)
	}
}

func TestParseUIPlainOutput(t *testing.T) {
	var out bytes.Buffer
	u := newParseUI(mpb.New(mpb.WithOutput(io.Discard)), &out, false, "task-1")

	u.Update(10)
	u.Update(10.4)
	u.Update(55)
	u.Update(150)
	u.Done("/data/results/task-1", nil)
	u.Wait()

	got := out.String()
	for _, want := range []string{"task-1: 10%", "task-1: 55%", "task-1: 100%", "→ /data/results/task-1"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if strings.Count(got, ": 10%") != 1 {
		t.Errorf("unchanged percentage printed twice:\n%s", got)
	}
}

func TestParseUIFailure(t *testing.T) {
	var out bytes.Buffer
	u := newParseUI(mpb.New(mpb.WithOutput(io.Discard)), &out, false, "task-1")
	u.Done("", errors.New("backend down"))
	u.Wait()
	if !strings.Contains(out.String(), "✗ task-1: backend down") {
		t.Errorf("output = %q", out.String())
	}
}

func TestDownloadUIPlainOutput(t *testing.T) {
	var out bytes.Buffer
	u := newDownloadUI(mpb.New(mpb.WithOutput(io.Discard)), &out, false, 2)

	u.FileDone(1, "/data/results/t1/images/0.jpg", "/tmp/out/0.jpg", nil)
	u.FileDone(2, "/data/results/t1/result.md", "", errors.New("boom"))
	u.Wait()

	got := out.String()
	if !strings.Contains(got, "✓ [1/2] .../images/0.jpg → /tmp/out/0.jpg") {
		t.Errorf("missing success line:\n%s", got)
	}
	if !strings.Contains(got, "✗ [2/2] .../t1/result.md: boom") {
		t.Errorf("missing failure line:\n%s", got)
	}
	if u.Failed() != 1 {
		t.Errorf("Failed() = %d, want 1", u.Failed())
	}
	if u.IsTerminal() {
		t.Error("IsTerminal() = true for plain output")
	}
}

func TestTruncatePath(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"a/b", 2, "a/b"},
		{"/a/b/c", 2, ".../b/c"},
		{"file.md", 2, "file.md"},
	}
	for _, tt := range tests {
		if got := truncatePath(tt.in, tt.n); got != tt.want {
			t.Errorf("truncatePath(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
