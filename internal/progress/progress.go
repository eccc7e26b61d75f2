// Package progress provides a unified interface for progress reporting
// across CLI (progress bars) and browser UI (event bus) modes.
package progress

import (
	"fmt"
	"io"
	"os"

	"github.com/schollz/progressbar/v3"

	"github.com/ocrdesk/ocrdesk/internal/events"
)

// Reporter is the interface for reporting progress in both CLI and UI modes.
type Reporter interface {
	Start(total int64, description string)
	Update(current int64)
	Finish()
	Error(err error)
	SetDescription(desc string)
}

// CLIProgress implements progress reporting for CLI mode using progress bars.
type CLIProgress struct {
	out io.Writer
	bar *progressbar.ProgressBar
}

// NewCLIProgress creates a new CLI progress reporter writing to stderr.
func NewCLIProgress() *CLIProgress {
	return &CLIProgress{out: os.Stderr}
}

// Start initializes the progress bar with total size and description.
func (p *CLIProgress) Start(total int64, description string) {
	p.bar = progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(p.out),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(50),
		progressbar.OptionThrottle(100),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(p.out, "\n")
		}),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// Update updates the progress bar to the current position.
func (p *CLIProgress) Update(current int64) {
	if p.bar != nil {
		_ = p.bar.Set64(current)
	}
}

// Finish completes the progress bar.
func (p *CLIProgress) Finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}

// Error displays an error message.
func (p *CLIProgress) Error(err error) {
	if err != nil {
		fmt.Fprintf(p.out, "\nError: %v\n", err)
	}
}

// SetDescription updates the progress bar description.
func (p *CLIProgress) SetDescription(desc string) {
	if p.bar != nil {
		p.bar.Describe(desc)
	}
}

// BusProgress publishes progress as ProgressEvents keyed by key. Progress is
// reported as a fraction of total.
type BusProgress struct {
	eventBus *events.EventBus
	key      string
	stage    string
	total    int64
	current  int64
}

// NewBusProgress creates a reporter for one transfer.
func NewBusProgress(eventBus *events.EventBus, key, stage string) *BusProgress {
	return &BusProgress{
		eventBus: eventBus,
		key:      key,
		stage:    stage,
	}
}

// Start resets progress tracking.
func (p *BusProgress) Start(total int64, description string) {
	p.total = total
	p.current = 0
	p.eventBus.PublishProgress(p.key, p.stage, 0, description)
}

// Update publishes the current fraction.
func (p *BusProgress) Update(current int64) {
	p.current = current
	p.eventBus.PublishProgress(p.key, p.stage, p.fraction(), "")
}

// Finish publishes completion.
func (p *BusProgress) Finish() {
	p.current = p.total
	p.eventBus.PublishProgress(p.key, p.stage, 1, "")
}

// Error publishes an error log event.
func (p *BusProgress) Error(err error) {
	if err != nil {
		p.eventBus.PublishLog(events.ErrorLevel, err.Error(), p.stage, err)
	}
}

// SetDescription publishes the new stage description.
func (p *BusProgress) SetDescription(desc string) {
	p.eventBus.PublishProgress(p.key, p.stage, p.fraction(), desc)
}

func (p *BusProgress) fraction() float64 {
	if p.total <= 0 {
		return 0
	}
	f := float64(p.current) / float64(p.total)
	if f > 1 {
		f = 1
	}
	return f
}

// NoOpProgress is a progress reporter that does nothing (for scripted/silent runs).
type NoOpProgress struct{}

// NewNoOpProgress creates a new no-op progress reporter.
func NewNoOpProgress() *NoOpProgress {
	return &NoOpProgress{}
}

func (p *NoOpProgress) Start(total int64, description string) {}
func (p *NoOpProgress) Update(current int64)                   {}
func (p *NoOpProgress) Finish()                                {}
func (p *NoOpProgress) Error(err error)                        {}
func (p *NoOpProgress) SetDescription(desc string)             {}

// ProgressReader wraps an io.Reader to report progress.
type ProgressReader struct {
	reader   io.Reader
	reporter Reporter
	total    int64
	current  int64
}

// NewProgressReader creates a new progress-reporting reader.
func NewProgressReader(reader io.Reader, total int64, reporter Reporter) *ProgressReader {
	return &ProgressReader{
		reader:   reader,
		reporter: reporter,
		total:    total,
	}
}

// Read implements io.Reader interface with progress reporting.
func (pr *ProgressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	pr.current += int64(n)
	pr.reporter.Update(pr.current)
	return n, err
}

// Current returns the number of bytes read so far.
func (pr *ProgressReader) Current() int64 {
	return pr.current
}
