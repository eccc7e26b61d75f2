// Package notify provides cross-platform desktop notifications for ocrdesk.
// It uses github.com/gen2brain/beeep for cross-platform notification support.
package notify

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/gen2brain/beeep"

	"github.com/ocrdesk/ocrdesk/internal/events"
	"github.com/ocrdesk/ocrdesk/internal/logging"
	"github.com/ocrdesk/ocrdesk/internal/models"
)

const appTitle = "ocrdesk"

// Notifier handles desktop notifications.
type Notifier struct {
	logger  *logging.Logger
	enabled bool
	mu      sync.RWMutex

	// send delivers one notification; replaced in tests.
	send func(title, message string) error
}

// Config holds notification configuration.
type Config struct {
	// Enabled determines if notifications are sent.
	Enabled bool

	// ShowJobFinished notifies when an OCR job completes.
	ShowJobFinished bool

	// ShowDownloadSummary notifies when a download-all run ends.
	ShowDownloadSummary bool
}

// DefaultConfig returns the default notification configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled:             true,
		ShowJobFinished:     true,
		ShowDownloadSummary: true,
	}
}

// NewNotifier creates a new notifier with the given configuration.
func NewNotifier(cfg *Config, logger *logging.Logger) *Notifier {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = logging.NewTestLogger()
	}

	return &Notifier{
		logger:  logger,
		enabled: cfg.Enabled,
		send: func(title, message string) error {
			return beeep.Notify(title, message, "")
		},
	}
}

// SetEnabled enables or disables notifications.
func (n *Notifier) SetEnabled(enabled bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.enabled = enabled
}

// IsEnabled returns whether notifications are enabled.
func (n *Notifier) IsEnabled() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.enabled
}

// JobFinished sends a notification for a completed OCR job.
func (n *Notifier) JobFinished(taskID, resultDir string) {
	if !n.IsEnabled() {
		return
	}

	message := fmt.Sprintf("Task %s finished.\nResults in %s", truncate(taskID, 40), shortenPath(resultDir))
	if err := n.send(appTitle, message); err != nil {
		n.logger.Warn().Err(err).Str("task_id", taskID).Msg("Failed to send job finished notification")
	}
}

// DownloadSummary sends a notification summarising a download-all run.
func (n *Notifier) DownloadSummary(saved, total int) {
	if !n.IsEnabled() || total == 0 {
		return
	}

	title := "Download Complete"
	if saved < total {
		title = "Download Finished With Errors"
	}
	message := fmt.Sprintf("Saved %d of %d file(s).", saved, total)

	if err := n.send(title, message); err != nil {
		n.logger.Warn().Err(err).Msg("Failed to send download summary notification")
	}
}

// Alert sends an alert notification (error level).
func (n *Notifier) Alert(message string) {
	if !n.IsEnabled() {
		return
	}

	title := appTitle + " Alert"
	if err := beeep.Alert(title, truncate(message, 100), ""); err != nil {
		if err := n.send(title, truncate(message, 100)); err != nil {
			n.logger.Error().Err(err).Str("message", message).Msg("Failed to send alert notification")
		}
	}
}

// Watch forwards job-finished and download-summary events from the bus to
// the desktop until ctx is done or the bus is closed.
func (n *Notifier) Watch(ctx context.Context, bus *events.EventBus, cfg *Config) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	stateCh := bus.Subscribe(events.EventStateChange)
	completeCh := bus.Subscribe(events.EventComplete)
	defer bus.Unsubscribe(events.EventStateChange, stateCh)
	defer bus.Unsubscribe(events.EventComplete, completeCh)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-stateCh:
			if !ok {
				return
			}
			sc, isState := ev.(*events.StateChangeEvent)
			if isState && cfg.ShowJobFinished && sc.NewState == string(models.JobFinished) {
				n.JobFinished(sc.TaskID, sc.ResultDir)
			}
		case ev, ok := <-completeCh:
			if !ok {
				return
			}
			if ce, isComplete := ev.(*events.CompleteEvent); isComplete && cfg.ShowDownloadSummary {
				n.DownloadSummary(ce.Saved, ce.Total)
			}
		}
	}
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// shortenPath abbreviates a long path for display in notifications.
func shortenPath(path string) string {
	const maxLen = 60

	if len(path) <= maxLen {
		return path
	}

	_, file := filepath.Split(path)
	parentDir := filepath.Base(filepath.Dir(path))
	short := filepath.Join("...", parentDir, file)

	if len(short) > maxLen {
		return "..." + path[len(path)-(maxLen-3):]
	}
	return short
}
