package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"content-batch/internal/logger"
	"content-batch/internal/models"
)

type haltMode int

const (
	haltNone haltMode = iota
	haltPause
	haltStop
)

// runToken is the cancellation request for one run. The loop only looks at it
// between items.
type runToken struct {
	mu   sync.Mutex
	mode haltMode
	done chan struct{}
}

func newRunToken() *runToken {
	return &runToken{done: make(chan struct{})}
}

// request records a halt; a stop upgrades an earlier pause
func (t *runToken) request(m haltMode) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.mode == haltNone {
		t.mode = m
		close(t.done)
		return
	}
	if m == haltStop {
		t.mode = haltStop
	}
}

func (t *runToken) Done() <-chan struct{} {
	return t.done
}

func (t *runToken) Mode() haltMode {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mode
}

// run is the single worker for a job. It executes items strictly one at a time in
// order and checks for cancellation only between items. ctx is the controller's base
// context; its cancellation is treated like a pause and never reaches an in-flight
// generation call or snapshot write.
func (c *Controller) run(ctx context.Context, job *models.Job, tok *runToken, done chan struct{}) {
	defer close(done)

	bg := context.WithoutCancel(ctx)
	for {
		if mode := checkpoint(ctx, tok); mode != haltNone {
			c.halt(bg, job, mode)
			return
		}
		// an exhausted queue completes without waiting on the call window
		c.mu.Lock()
		if job.NextPending() == nil {
			c.complete(bg, job)
			return
		}
		c.mu.Unlock()

		if !c.pacer.Admit(ctx, tok.Done()) {
			c.halt(bg, job, haltModeOr(tok, ctx))
			return
		}
		if mode := checkpoint(ctx, tok); mode != haltNone {
			c.halt(bg, job, mode)
			return
		}

		c.mu.Lock()
		// failed items were moved back to pending when the run started, so an
		// item that fails again is left for the next run
		item := job.NextPending()
		if item == nil {
			c.complete(bg, job)
			return
		}

		settings := job.GlobalSettings.Merge(item.Settings)
		if err := c.executor.Begin(item); err != nil {
			c.failRun(bg, job, err)
			return
		}
		job.RecomputeProgress()
		if err := c.store.Save(bg, job); err != nil {
			c.failRun(bg, job, err)
			return
		}
		itemID := item.ID
		input := models.NewGenerationInput(item.Input, settings)
		startEv := newEvent(models.EventItemStart, job, item)
		c.mu.Unlock()

		c.notifier.Publish(startEv)

		res, genErr := c.executor.Generate(bg, input)

		c.mu.Lock()
		item, _ = job.FindItem(itemID)
		if item == nil {
			c.failRun(bg, job, fmt.Errorf("item %s disappeared while processing", itemID))
			return
		}
		evType := c.executor.Finish(job, item, res, genErr)
		if err := c.store.Save(bg, job); err != nil {
			c.failRun(bg, job, err)
			return
		}
		itemEv := newEvent(evType, job, item)
		more := job.NextPending() != nil
		c.mu.Unlock()

		c.notifier.Publish(itemEv)

		if !more {
			continue
		}
		if !c.pacer.Gap(ctx, tok.Done()) {
			c.halt(bg, job, haltModeOr(tok, ctx))
			return
		}
	}
}

func checkpoint(ctx context.Context, tok *runToken) haltMode {
	if mode := tok.Mode(); mode != haltNone {
		return mode
	}
	if ctx.Err() != nil {
		return haltPause
	}
	return haltNone
}

func haltModeOr(tok *runToken, ctx context.Context) haltMode {
	if mode := checkpoint(ctx, tok); mode != haltNone {
		return mode
	}
	return haltPause
}

// complete finishes the run. Must be called with c.mu held; it releases it.
func (c *Controller) complete(ctx context.Context, job *models.Job) {
	job.Status = models.JobCompleted
	job.RecomputeProgress()
	c.running = false
	if err := c.store.Save(ctx, job); err != nil {
		c.runErr = fmt.Errorf("failed to save completed job: %w", err)
		logger.WithJob(c.log, job).WithError(err).Error("failed to save completed job")
	}
	ev := newEvent(models.EventCompleted, job, nil)
	c.mu.Unlock()

	logger.WithJob(c.log, ev.Job).WithFields(logrus.Fields{
		"completed":   ev.Job.Progress.Completed,
		"failed":      ev.Job.Progress.Failed,
		"actual_cost": ev.Job.Cost.Actual,
	}).Info("run completed")
	c.notifier.Publish(ev)
}

// halt ends the run at a safe point between items
func (c *Controller) halt(ctx context.Context, job *models.Job, mode haltMode) {
	c.mu.Lock()
	revertProcessing(job)
	job.RecomputeProgress()
	evType := models.EventPaused
	job.Status = models.JobPaused
	if mode == haltStop {
		evType = models.EventStopped
		job.Status = models.JobStopped
	}
	c.running = false
	if err := c.store.Save(ctx, job); err != nil {
		c.runErr = fmt.Errorf("failed to save halted job: %w", err)
		logger.WithJob(c.log, job).WithError(err).Error("failed to save halted job")
	}
	ev := newEvent(evType, job, nil)
	c.mu.Unlock()

	logger.WithJob(c.log, ev.Job).Info("run halted")
	c.notifier.Publish(ev)
}

// failRun ends the run on an unexpected error and leaves the job paused.
// Must be called with c.mu held; it releases it.
func (c *Controller) failRun(ctx context.Context, job *models.Job, cause error) {
	revertProcessing(job)
	job.RecomputeProgress()
	job.Status = models.JobPaused
	c.running = false
	c.runErr = fmt.Errorf("run halted: %w", cause)

	l := logger.WithJob(c.log, job).WithError(cause)
	if err := c.store.Save(ctx, job); err != nil {
		l = l.WithField("save_error", err.Error())
	}
	ev := newEvent(models.EventPaused, job, nil)
	ev.Error = cause.Error()
	c.mu.Unlock()

	l.Error("run halted on error")
	c.notifier.Publish(ev)
}
