package core

import (
	"context"
	"time"

	"github.com/ocrdesk/ocrdesk/internal/constants"
	"github.com/ocrdesk/ocrdesk/internal/events"
	"github.com/ocrdesk/ocrdesk/internal/metrics"
	"github.com/ocrdesk/ocrdesk/internal/models"
)

// startPollerLocked launches the progress poller for taskID. Caller holds
// c.mu and has already detached any previous poller.
func (c *Controller) startPollerLocked(taskID string) {
	ctx, cancel := context.WithCancel(c.ctx)
	c.pollGen++
	gen := c.pollGen
	done := make(chan struct{})
	c.pollCancel = cancel
	c.pollDone = done

	metrics.PollerStarted()
	go func() {
		defer close(done)
		defer metrics.PollerStopped()
		defer cancel()
		c.poll(ctx, gen, taskID)
	}()
}

// detachPollerLocked invalidates the current poller and hands back its
// cancel func and done channel. Caller holds c.mu and must call stopPoller
// after unlocking.
func (c *Controller) detachPollerLocked() (context.CancelFunc, chan struct{}) {
	c.pollGen++
	cancel, done := c.pollCancel, c.pollDone
	c.pollCancel = nil
	c.pollDone = nil
	return cancel, done
}

// stopPoller cancels a detached poller and waits for it to exit.
func stopPoller(cancel context.CancelFunc, done chan struct{}) {
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (c *Controller) poll(ctx context.Context, gen uint64, taskID string) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		reqCtx, cancel := context.WithTimeout(ctx, constants.PollRequestTimeout)
		progress, err := c.backend.Progress(reqCtx, taskID)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			metrics.RecordPollTick(false)
			c.logger.Warn().Err(err).Str("task_id", taskID).Msg("Progress poll failed")
			continue
		}
		metrics.RecordPollTick(true)

		if !c.recordProgress(gen, progress.Progress) {
			return
		}
		c.eventBus.PublishProgress(taskID, "poll", progress.Progress, progress.State)

		if progress.Finished() {
			ticker.Stop()
			c.finish(ctx, gen, taskID)
			return
		}
	}
}

// recordProgress stores the latest progress value. It reports false once
// the poller is no longer current.
func (c *Controller) recordProgress(gen uint64, p float64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.pollGen {
		return false
	}
	c.state.Progress = p
	return true
}

// finish fetches the result once and publishes the outcome.
func (c *Controller) finish(ctx context.Context, gen uint64, taskID string) {
	result, err := c.backend.Result(ctx, taskID)

	c.mu.Lock()
	if gen != c.pollGen || ctx.Err() != nil {
		c.mu.Unlock()
		return
	}
	c.pollCancel = nil
	c.pollDone = nil
	c.state.Processing = false

	if err != nil {
		c.state.Job = models.Job{}
		c.lastErr = err
		c.mu.Unlock()

		metrics.RecordJob("result_failed")
		c.logger.Error().Err(err).Str("task_id", taskID).Msg("Failed to fetch result")
		c.eventBus.Notify(events.ErrorLevel, "Failed to fetch result", describeErr(err))
		return
	}

	c.state.Job = models.Job{TaskID: taskID, State: models.JobFinished, ResultDir: result.ResultDir}
	c.state.ParseCompleted = true
	c.state.Progress = 100
	c.mu.Unlock()

	metrics.RecordJob("finished")
	c.logger.Info().Str("task_id", taskID).Str("result_dir", result.ResultDir).Msg("Parse finished")
	c.eventBus.PublishStateChange(taskID, string(models.JobRunning), string(models.JobFinished), result.ResultDir)
	c.eventBus.Notify(events.SuccessLevel, "Parsing complete", "The document was parsed successfully")
}
