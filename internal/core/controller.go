// Package core owns the prompt and the lifecycle of one OCR job: upload,
// start, background progress polling and the final result fetch.
package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ocrdesk/ocrdesk/internal/constants"
	"github.com/ocrdesk/ocrdesk/internal/events"
	"github.com/ocrdesk/ocrdesk/internal/logging"
	"github.com/ocrdesk/ocrdesk/internal/metrics"
	"github.com/ocrdesk/ocrdesk/internal/models"
	"github.com/ocrdesk/ocrdesk/internal/progress"
	"github.com/ocrdesk/ocrdesk/internal/uploader"
)

var (
	// ErrNoFileUploaded is returned by StartParse before any upload succeeded.
	ErrNoFileUploaded = errors.New("no file uploaded")
	// ErrSuperseded is returned when a newer upload, start or reset replaced
	// the operation while it was in flight.
	ErrSuperseded = errors.New("superseded by a newer request")
	// ErrNoJob is returned by Wait when no job was started.
	ErrNoJob = errors.New("no job running")
	// ErrJobAborted is returned by Wait when polling stopped before a result.
	ErrJobAborted = errors.New("job polling stopped before a result was available")
)

// Backend is the subset of the OCR client the controller drives.
type Backend interface {
	Upload(ctx context.Context, name string, r io.Reader) (*models.UploadResponse, error)
	Start(ctx context.Context, filePath, prompt string) (*models.StartResponse, error)
	Progress(ctx context.Context, taskID string) (*models.ProgressResponse, error)
	Result(ctx context.Context, taskID string) (*models.ResultResponse, error)
}

// State is a snapshot of everything the front ends render.
type State struct {
	FileName        string           `json:"fileName"`
	UploadedPath    string           `json:"uploadedPath"`
	Uploading       bool             `json:"uploading"`
	Prompt          string           `json:"prompt"`
	Processing      bool             `json:"processing"`
	Progress        float64          `json:"progress"`
	Job             models.Job       `json:"job"`
	ParseCompleted  bool             `json:"parseCompleted"`
	Selected        *models.FileNode `json:"selected,omitempty"`
	PreviewExpanded bool             `json:"previewExpanded"`
}

// Options tune a Controller. Zero values select the defaults.
type Options struct {
	PollInterval time.Duration
	Prompt       string
}

// Controller coordinates one file, one prompt and at most one live job.
type Controller struct {
	ctx      context.Context
	backend  Backend
	eventBus *events.EventBus
	logger   *logging.Logger
	interval time.Duration

	mu        sync.Mutex
	state     State
	uploadSeq uint64
	lastErr   error

	// Poller ownership: only the holder of the current generation may
	// mutate job state. pollDone is closed when that poller exits.
	pollGen    uint64
	pollCancel context.CancelFunc
	pollDone   chan struct{}
}

// NewController creates a controller. ctx bounds the lifetime of every
// poller it starts.
func NewController(ctx context.Context, backend Backend, eventBus *events.EventBus, logger *logging.Logger, opts Options) *Controller {
	if opts.PollInterval <= 0 {
		opts.PollInterval = constants.PollInterval
	}
	if opts.Prompt == "" {
		opts.Prompt = constants.DefaultPrompt
	}
	if logger == nil {
		logger = logging.NewTestLogger()
	}
	return &Controller{
		ctx:      ctx,
		backend:  backend,
		eventBus: eventBus,
		logger:   logger,
		interval: opts.PollInterval,
		state:    State{Prompt: opts.Prompt},
	}
}

// State returns a copy of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.state
	s.Selected = s.Selected.Clone()
	return s
}

// SetPrompt replaces the prompt used by the next StartParse.
func (c *Controller) SetPrompt(prompt string) {
	c.mu.Lock()
	c.state.Prompt = prompt
	c.mu.Unlock()
}

// FileChanged is the uploader callback: nil clears everything, anything
// else is uploaded to the backend.
func (c *Controller) FileChanged(ctx context.Context, f *uploader.File) {
	if f == nil {
		c.Reset()
		return
	}
	reporter := progress.NewBusProgress(c.eventBus, f.Name, "upload")
	reporter.Start(int64(len(f.Data)), f.Name)
	r := progress.NewProgressReader(bytes.NewReader(f.Data), int64(len(f.Data)), reporter)
	if _, err := c.SubmitUpload(ctx, f.Name, r); err != nil {
		c.logger.Debug().Err(err).Str("file", f.Name).Msg("upload not recorded")
	}
}

// SubmitUpload sends a file to the backend and records its storage path.
// A successful upload discards any previous job.
func (c *Controller) SubmitUpload(ctx context.Context, name string, r io.Reader) (string, error) {
	c.mu.Lock()
	c.uploadSeq++
	seq := c.uploadSeq
	c.state.FileName = name
	c.state.UploadedPath = ""
	c.state.Uploading = true
	c.mu.Unlock()

	resp, err := c.backend.Upload(ctx, name, r)

	c.mu.Lock()
	if seq != c.uploadSeq {
		c.mu.Unlock()
		return "", ErrSuperseded
	}
	c.state.Uploading = false
	if err != nil {
		c.mu.Unlock()
		c.logger.Error().Err(err).Str("file", name).Msg("Upload failed")
		c.eventBus.Notify(events.ErrorLevel, "Upload failed", describeErr(err))
		return "", fmt.Errorf("upload %s: %w", name, err)
	}

	c.state.UploadedPath = resp.FilePath
	cancel, done := c.detachPollerLocked()
	c.clearJobLocked()
	c.mu.Unlock()
	stopPoller(cancel, done)

	c.logger.Info().Str("file", name).Str("path", resp.FilePath).Msg("File uploaded")
	c.eventBus.Notify(events.SuccessLevel, "File uploaded", "Uploaded "+name)
	return resp.FilePath, nil
}

// StartParse starts OCR on the uploaded file with the current prompt and
// begins polling for completion.
func (c *Controller) StartParse(ctx context.Context) error {
	c.mu.Lock()
	path, prompt := c.state.UploadedPath, c.state.Prompt
	if path == "" {
		c.mu.Unlock()
		c.eventBus.Notify(events.ErrorLevel, "Please upload a file first", "")
		return ErrNoFileUploaded
	}

	cancel, done := c.detachPollerLocked()
	gen := c.pollGen
	c.state.Job = models.Job{}
	c.state.ParseCompleted = false
	c.state.Progress = 0
	c.state.Processing = true
	c.lastErr = nil
	c.mu.Unlock()
	stopPoller(cancel, done)

	resp, err := c.backend.Start(ctx, path, prompt)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.pollGen {
		return ErrSuperseded
	}
	if err != nil {
		c.state.Processing = false
		c.lastErr = err
		metrics.RecordJob("start_failed")
		c.logger.Error().Err(err).Str("path", path).Msg("Failed to start parse")
		c.eventBus.Notify(events.ErrorLevel, "Failed to start parsing", describeErr(err))
		return fmt.Errorf("start parse: %w", err)
	}

	c.state.Job = models.Job{TaskID: resp.TaskID, State: models.JobRunning}
	c.logger.Info().Str("task_id", resp.TaskID).Msg("Parse started")
	c.eventBus.PublishStateChange(resp.TaskID, string(models.JobNotStarted), string(models.JobRunning), "")
	c.startPollerLocked(resp.TaskID)
	return nil
}

// Reset stops polling and clears everything except the prompt. No progress
// request is issued after Reset returns.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.uploadSeq++
	cancel, done := c.detachPollerLocked()
	c.state = State{Prompt: c.state.Prompt}
	c.lastErr = nil
	c.mu.Unlock()

	stopPoller(cancel, done)
	c.logger.Debug().Msg("Controller reset")
}

// Wait blocks until the current job finishes, its poller is cancelled, or
// ctx is done.
func (c *Controller) Wait(ctx context.Context) (models.Job, error) {
	c.mu.Lock()
	done := c.pollDone
	job := c.state.Job
	c.mu.Unlock()

	if done == nil {
		if job.State == models.JobFinished {
			return job, nil
		}
		return job, ErrNoJob
	}

	select {
	case <-ctx.Done():
		return job, ctx.Err()
	case <-done:
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Job.State == models.JobFinished {
		return c.state.Job, nil
	}
	if c.lastErr != nil {
		return c.state.Job, c.lastErr
	}
	return c.state.Job, ErrJobAborted
}

// SelectFile records the node shown in the preview panel.
func (c *Controller) SelectFile(node *models.FileNode) {
	c.mu.Lock()
	c.state.Selected = node.Clone()
	c.mu.Unlock()
}

// TogglePreviewExpanded flips the preview layout and returns the new value.
func (c *Controller) TogglePreviewExpanded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.PreviewExpanded = !c.state.PreviewExpanded
	return c.state.PreviewExpanded
}

// clearJobLocked drops job progress and results. Caller holds c.mu.
func (c *Controller) clearJobLocked() {
	c.state.Job = models.Job{}
	c.state.Processing = false
	c.state.Progress = 0
	c.state.ParseCompleted = false
	c.lastErr = nil
}

// describeErr turns a transport failure into toast text.
func describeErr(err error) string {
	if errors.Is(err, models.ErrUnexpectedResponse) {
		return "The OCR service rejected the request"
	}
	return "Cannot reach the OCR service"
}
