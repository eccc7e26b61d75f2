package core

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ocrdesk/ocrdesk/internal/api"
	"github.com/ocrdesk/ocrdesk/internal/api/apitest"
	"github.com/ocrdesk/ocrdesk/internal/config"
	"github.com/ocrdesk/ocrdesk/internal/constants"
	"github.com/ocrdesk/ocrdesk/internal/events"
	"github.com/ocrdesk/ocrdesk/internal/logging"
	"github.com/ocrdesk/ocrdesk/internal/models"
	"github.com/ocrdesk/ocrdesk/internal/uploader"
)

const testInterval = 10 * time.Millisecond

func newTestController(t *testing.T, backend Backend) (*Controller, *events.EventBus) {
	t.Helper()
	bus := events.NewEventBus(100)
	t.Cleanup(bus.Close)
	c := NewController(context.Background(), backend, bus, logging.NewTestLogger(), Options{PollInterval: testInterval})
	t.Cleanup(c.Reset)
	return c, bus
}

func newFakeClient(t *testing.T) (*api.Client, *apitest.Backend) {
	t.Helper()
	fake := apitest.NewBackend()
	t.Cleanup(fake.Close)

	cfg := config.NewConfig()
	cfg.BaseURL = fake.URL()
	client, err := api.NewClient(cfg, logging.NewTestLogger())
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return client, fake
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// drainNotifications collects notification titles published so far.
func drainNotifications(ch <-chan events.Event) []*events.NotificationEvent {
	var out []*events.NotificationEvent
	for {
		select {
		case ev := <-ch:
			if n, ok := ev.(*events.NotificationEvent); ok {
				out = append(out, n)
			}
		default:
			return out
		}
	}
}

func TestNewControllerDefaults(t *testing.T) {
	c, _ := newTestController(t, nil)

	s := c.State()
	if s.Prompt != constants.DefaultPrompt {
		t.Errorf("Prompt = %q, want default prompt", s.Prompt)
	}
	if s.Processing || s.ParseCompleted || s.UploadedPath != "" {
		t.Errorf("unexpected initial state: %+v", s)
	}
	if c.interval != testInterval {
		t.Errorf("interval = %v, want %v", c.interval, testInterval)
	}
}

func TestFullParseLifecycle(t *testing.T) {
	client, fake := newFakeClient(t)
	c, bus := newTestController(t, client)
	notes := bus.Subscribe(events.EventNotification)
	states := bus.Subscribe(events.EventStateChange)

	ctx := context.Background()
	path, err := c.SubmitUpload(ctx, "a.pdf", strings.NewReader("%PDF-1.4"))
	if err != nil {
		t.Fatalf("SubmitUpload() error = %v", err)
	}
	if path != "/data/uploads/a.pdf" {
		t.Errorf("path = %q", path)
	}

	c.SetPrompt("Free OCR.")
	if err := c.StartParse(ctx); err != nil {
		t.Fatalf("StartParse() error = %v", err)
	}
	if got := fake.LastPrompt(); got != "Free OCR." {
		t.Errorf("prompt sent = %q, want %q", got, "Free OCR.")
	}

	s := c.State()
	if !s.Processing || s.Job.TaskID != "t1" || s.Job.State != models.JobRunning {
		t.Fatalf("state after start = %+v", s)
	}

	job, err := c.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if job.ResultDir != "/data/results/t1" || job.State != models.JobFinished {
		t.Errorf("job = %+v", job)
	}

	s = c.State()
	if s.Processing || !s.ParseCompleted || s.Job.ResultDir != "/data/results/t1" {
		t.Errorf("final state = %+v", s)
	}
	if fake.Progresses() != 3 {
		t.Errorf("progress calls = %d, want 3", fake.Progresses())
	}
	if fake.Results() != 1 {
		t.Errorf("result calls = %d, want 1", fake.Results())
	}

	// No more polling once finished
	before := fake.Progresses()
	time.Sleep(5 * testInterval)
	if fake.Progresses() != before {
		t.Errorf("poller kept running after finish: %d -> %d", before, fake.Progresses())
	}

	var success bool
	for _, n := range drainNotifications(notes) {
		if n.Level == events.SuccessLevel && n.Title == "Parsing complete" {
			success = true
		}
	}
	if !success {
		t.Error("expected a success notification for the finished job")
	}

	var finished bool
	for len(states) > 0 {
		ev := <-states
		if sc, ok := ev.(*events.StateChangeEvent); ok && sc.NewState == string(models.JobFinished) {
			finished = sc.ResultDir == "/data/results/t1"
		}
	}
	if !finished {
		t.Error("expected a finished state change with the result dir")
	}
}

func TestStartParseWithoutUploadMakesNoCalls(t *testing.T) {
	client, fake := newFakeClient(t)
	c, bus := newTestController(t, client)
	notes := bus.Subscribe(events.EventNotification)

	err := c.StartParse(context.Background())
	if !errors.Is(err, ErrNoFileUploaded) {
		t.Fatalf("StartParse() error = %v, want ErrNoFileUploaded", err)
	}
	if fake.Total() != 0 {
		t.Errorf("expected zero backend calls, got %d", fake.Total())
	}
	if c.State().Processing {
		t.Error("controller must stay idle")
	}

	got := drainNotifications(notes)
	if len(got) != 1 || got[0].Level != events.ErrorLevel {
		t.Errorf("expected one error notification, got %+v", got)
	}
}

func TestUploadFailureRecordsNoPath(t *testing.T) {
	client, fake := newFakeClient(t)
	fake.SetUploadStatus("error")
	c, bus := newTestController(t, client)
	notes := bus.Subscribe(events.EventNotification)

	if _, err := c.SubmitUpload(context.Background(), "a.pdf", strings.NewReader("x")); err == nil {
		t.Fatal("expected upload error")
	}
	s := c.State()
	if s.UploadedPath != "" || s.Uploading {
		t.Errorf("state after failed upload = %+v", s)
	}
	if s.FileName != "a.pdf" {
		t.Errorf("FileName = %q, want a.pdf", s.FileName)
	}

	got := drainNotifications(notes)
	if len(got) != 1 || got[0].Level != events.ErrorLevel {
		t.Errorf("expected one error notification, got %+v", got)
	}
}

func TestStartFailureReturnsToIdle(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*apitest.Backend)
	}{
		{"error status", func(b *apitest.Backend) { b.SetStartStatus("error") }},
		{"missing task id", func(b *apitest.Backend) { b.SetTaskID("") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, fake := newFakeClient(t)
			c, _ := newTestController(t, client)
			ctx := context.Background()

			if _, err := c.SubmitUpload(ctx, "a.pdf", strings.NewReader("x")); err != nil {
				t.Fatal(err)
			}
			tt.setup(fake)

			if err := c.StartParse(ctx); err == nil {
				t.Fatal("expected start error")
			}
			s := c.State()
			if s.Processing || s.Job.TaskID != "" {
				t.Errorf("state after failed start = %+v", s)
			}

			time.Sleep(5 * testInterval)
			if fake.Progresses() != 0 {
				t.Errorf("no poller should run, got %d progress calls", fake.Progresses())
			}
			if _, err := c.Wait(ctx); !errors.Is(err, ErrNoJob) {
				t.Errorf("Wait() error = %v, want ErrNoJob", err)
			}
		})
	}
}

func TestPollFailuresAreIgnored(t *testing.T) {
	client, fake := newFakeClient(t)
	fake.SetProgressFailures(2)
	fake.SetProgressSteps("finished")
	c, _ := newTestController(t, client)
	ctx := context.Background()

	if _, err := c.SubmitUpload(ctx, "a.png", strings.NewReader("x")); err != nil {
		t.Fatal(err)
	}
	if err := c.StartParse(ctx); err != nil {
		t.Fatal(err)
	}

	job, err := c.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if !job.Finished() {
		t.Errorf("job = %+v, want finished", job)
	}
	if fake.Progresses() != 3 {
		t.Errorf("progress calls = %d, want 3", fake.Progresses())
	}
}

func TestResultFailureReturnsToIdle(t *testing.T) {
	client, fake := newFakeClient(t)
	fake.SetProgressSteps("finished")
	fake.SetResultStatus("error")
	c, bus := newTestController(t, client)
	notes := bus.Subscribe(events.EventNotification)
	ctx := context.Background()

	if _, err := c.SubmitUpload(ctx, "a.pdf", strings.NewReader("x")); err != nil {
		t.Fatal(err)
	}
	drainNotifications(notes)
	if err := c.StartParse(ctx); err != nil {
		t.Fatal(err)
	}

	if _, err := c.Wait(ctx); !errors.Is(err, models.ErrUnexpectedResponse) {
		t.Fatalf("Wait() error = %v, want ErrUnexpectedResponse", err)
	}
	s := c.State()
	if s.Processing || s.ParseCompleted || s.Job.ResultDir != "" {
		t.Errorf("state after failed result = %+v", s)
	}

	var sawError bool
	for _, n := range drainNotifications(notes) {
		if n.Level == events.ErrorLevel {
			sawError = true
		}
	}
	if !sawError {
		t.Error("expected an error notification")
	}
}

func TestFileRemovedStopsPolling(t *testing.T) {
	client, fake := newFakeClient(t)
	fake.SetProgressSteps("running")
	c, _ := newTestController(t, client)
	ctx := context.Background()

	c.FileChanged(ctx, &uploader.File{Name: "a.pdf", Data: []byte("x")})
	if c.State().UploadedPath == "" {
		t.Fatal("expected upload to be recorded")
	}
	if err := c.StartParse(ctx); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "first poll", func() bool { return fake.Progresses() >= 1 })

	c.SetPrompt("kept")
	c.FileChanged(ctx, nil)

	after := fake.Progresses()
	time.Sleep(5 * testInterval)
	if fake.Progresses() != after {
		t.Errorf("progress requests after reset: %d -> %d", after, fake.Progresses())
	}

	s := c.State()
	if s.UploadedPath != "" || s.FileName != "" || s.Processing || s.Job.TaskID != "" {
		t.Errorf("state after removal = %+v", s)
	}
	if s.Prompt != "kept" {
		t.Errorf("Prompt = %q, reset must keep the prompt", s.Prompt)
	}
	if _, err := c.Wait(ctx); !errors.Is(err, ErrNoJob) {
		t.Errorf("Wait() error = %v, want ErrNoJob", err)
	}
}

func TestRestartReplacesPoller(t *testing.T) {
	client, fake := newFakeClient(t)
	fake.SetProgressSteps("running")
	c, _ := newTestController(t, client)
	ctx := context.Background()

	if _, err := c.SubmitUpload(ctx, "a.pdf", strings.NewReader("x")); err != nil {
		t.Fatal(err)
	}
	if err := c.StartParse(ctx); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "first poll", func() bool { return fake.Progresses() >= 1 })

	fake.SetTaskID("t2")
	if err := c.StartParse(ctx); err != nil {
		t.Fatal(err)
	}
	// The first poller is gone once StartParse returns
	fake.SetProgressSteps("finished")

	job, err := c.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if job.TaskID != "t2" {
		t.Errorf("TaskID = %q, want t2", job.TaskID)
	}
	if fake.Results() != 1 {
		t.Errorf("result calls = %d, want exactly 1", fake.Results())
	}
}

// stubBackend finishes on the first poll and blocks Result until released.
type stubBackend struct {
	release chan struct{}
	entered chan struct{}
	once    sync.Once
}

func (s *stubBackend) Upload(ctx context.Context, name string, r io.Reader) (*models.UploadResponse, error) {
	return &models.UploadResponse{Status: "success", FilePath: "/data/uploads/" + name}, nil
}

func (s *stubBackend) Start(ctx context.Context, filePath, prompt string) (*models.StartResponse, error) {
	return &models.StartResponse{Status: "running", TaskID: "t1"}, nil
}

func (s *stubBackend) Progress(ctx context.Context, taskID string) (*models.ProgressResponse, error) {
	return &models.ProgressResponse{Status: "success", TaskID: taskID, State: "finished"}, nil
}

func (s *stubBackend) Result(ctx context.Context, taskID string) (*models.ResultResponse, error) {
	s.once.Do(func() { close(s.entered) })
	<-s.release
	return &models.ResultResponse{Status: "success", State: "finished", ResultDir: "/data/results/" + taskID}, nil
}

func TestStalePollerDoesNotMutateState(t *testing.T) {
	stub := &stubBackend{release: make(chan struct{}), entered: make(chan struct{})}
	bus := events.NewEventBus(100)
	defer bus.Close()
	c := NewController(context.Background(), stub, bus, logging.NewTestLogger(), Options{PollInterval: testInterval})
	ctx := context.Background()

	if _, err := c.SubmitUpload(ctx, "a.pdf", strings.NewReader("x")); err != nil {
		t.Fatal(err)
	}
	if err := c.StartParse(ctx); err != nil {
		t.Fatal(err)
	}
	<-stub.entered

	// Detach the poller without waiting, then let its result arrive late.
	c.mu.Lock()
	cancel, done := c.detachPollerLocked()
	c.mu.Unlock()
	close(stub.release)
	stopPoller(cancel, done)

	s := c.State()
	if s.ParseCompleted || s.Job.ResultDir != "" {
		t.Errorf("stale poller mutated state: %+v", s)
	}
}
