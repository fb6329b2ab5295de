package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"content-batch/internal/estimator"
	"content-batch/internal/events"
	"content-batch/internal/logger"
	"content-batch/internal/models"
)

// DefaultMaxItems bounds the size of one batch
const DefaultMaxItems = 50

// SnapshotStore persists the single active job
type SnapshotStore interface {
	Save(ctx context.Context, job *models.Job) error
	Load(ctx context.Context) (*models.Job, error)
	Clear(ctx context.Context) error
}

// Options configures a Controller. Zero values get defaults.
type Options struct {
	// Context bounds every run; cancelling it pauses the active run
	Context context.Context

	MaxItems  int
	Pacer     *Pacer
	Estimator *estimator.Estimator
	Notifier  *events.Notifier
	Logger    logrus.FieldLogger
}

// Controller owns the active job and its single run loop.
//
// opMu serialises the public operations that change the job. mu guards the job
// itself and is shared with the run loop; it is never held across a generation
// call or an inter-item wait.
type Controller struct {
	opMu sync.Mutex
	mu   sync.Mutex

	baseCtx  context.Context
	job      *models.Job
	running  bool
	token    *runToken
	done     chan struct{}
	runErr   error
	maxItems int

	store     SnapshotStore
	executor  *Executor
	pacer     *Pacer
	estimator *estimator.Estimator
	notifier  *events.Notifier
	log       logrus.FieldLogger
}

// NewController creates a controller with no job loaded; call Recover to pick up a stored one
func NewController(store SnapshotStore, gen Generator, opts Options) *Controller {
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	if opts.Logger == nil {
		opts.Logger = logger.GetLogger()
	}
	if opts.MaxItems <= 0 {
		opts.MaxItems = DefaultMaxItems
	}
	if opts.Pacer == nil {
		opts.Pacer = NewPacer(5*time.Second, 0)
	}
	if opts.Estimator == nil {
		opts.Estimator = estimator.New(opts.Pacer.Delay())
	}
	if opts.Notifier == nil {
		opts.Notifier = events.NewNotifier(opts.Logger)
	}

	return &Controller{
		baseCtx:   opts.Context,
		maxItems:  opts.MaxItems,
		store:     store,
		executor:  NewExecutor(gen, opts.Logger),
		pacer:     opts.Pacer,
		estimator: opts.Estimator,
		notifier:  opts.Notifier,
		log:       opts.Logger,
	}
}

// Notifier returns the notifier lifecycle events are published on
func (c *Controller) Notifier() *events.Notifier {
	return c.notifier
}

// Estimator returns the estimator used for cost projections
func (c *Controller) Estimator() *estimator.Estimator {
	return c.estimator
}

// Recover loads the stored job at process start. An item left processing by a
// process that died mid-execution goes back to pending and the job is surfaced as
// paused; nothing is resumed automatically.
func (c *Controller) Recover(ctx context.Context) (*models.Job, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil, &InvalidStateError{Op: "recover", Status: models.JobProcessing}
	}

	job, err := c.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to recover job: %w", err)
	}
	c.job = job
	if job == nil {
		return nil, nil
	}

	interrupted := revertProcessing(job)
	changed := interrupted > 0
	if job.Status == models.JobProcessing {
		job.Status = models.JobPaused
		changed = true
	}
	job.RecomputeProgress()

	l := logger.WithJob(c.log, job)
	if changed {
		if err := c.store.Save(ctx, job); err != nil {
			return nil, fmt.Errorf("failed to save recovered job: %w", err)
		}
		l.WithField("interrupted_items", interrupted).Warn("recovered job from an unclean shutdown")
	} else {
		l.Info("recovered job")
	}
	return job.Clone(), nil
}

// CreateJob replaces any existing job with a new idle one
func (c *Controller) CreateJob(ctx context.Context, inputs []models.ItemInput, settings models.Settings) (*models.Job, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if len(inputs) == 0 {
		return nil, &ValidationError{Field: "items", Reason: "at least one item is required"}
	}
	if len(inputs) > c.maxItems {
		return nil, &ValidationError{Field: "items", Reason: fmt.Sprintf("%d items exceeds the maximum of %d", len(inputs), c.maxItems)}
	}
	for i, in := range inputs {
		if strings.TrimSpace(in.Topic) == "" {
			return nil, &ValidationError{Field: fmt.Sprintf("items[%d].topic", i), Reason: "topic is required"}
		}
	}

	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil, &InvalidStateError{Op: "create job", Status: models.JobProcessing}
	}

	now := time.Now().UTC()
	job := &models.Job{
		ID:             uuid.New().String(),
		Status:         models.JobIdle,
		GlobalSettings: settings,
		Items:          make([]*models.Item, 0, len(inputs)),
		CreatedAt:      now,
	}
	for _, in := range inputs {
		job.Items = append(job.Items, newItem(in, nil))
	}
	job.Renumber()
	job.RecomputeProgress()
	job.Cost.Estimated = c.estimator.EstimateJobCost(job)

	if err := c.store.Save(ctx, job); err != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	c.job = job
	c.runErr = nil
	ev := newEvent(models.EventCreated, job, nil)
	out := job.Clone()
	c.mu.Unlock()

	logger.WithJob(c.log, out).WithFields(logrus.Fields{
		"items":          len(out.Items),
		"estimated_cost": out.Cost.Estimated,
	}).Info("job created")
	c.notifier.Publish(ev)
	return out, nil
}

func newItem(in models.ItemInput, override *models.Settings) *models.Item {
	in.Topic = strings.TrimSpace(in.Topic)
	in.AdditionalInfo = strings.TrimSpace(in.AdditionalInfo)
	var keywords []string
	for _, k := range in.Keywords {
		if k = strings.TrimSpace(k); k != "" {
			keywords = append(keywords, k)
		}
	}
	in.Keywords = keywords
	var s *models.Settings
	if override != nil {
		merged := models.Settings{}.Merge(override)
		s = &merged
	}
	return &models.Item{
		ID:       uuid.New().String(),
		Status:   models.ItemPending,
		Input:    in,
		Settings: s,
	}
}

// Start begins processing pending and failed items in order
func (c *Controller) Start(ctx context.Context) error {
	return c.start(ctx, "start", false)
}

// Resume continues a paused job
func (c *Controller) Resume(ctx context.Context) error {
	return c.start(ctx, "resume", true)
}

func (c *Controller) start(ctx context.Context, op string, requirePaused bool) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.mu.Lock()

	job := c.job
	if job == nil {
		c.mu.Unlock()
		return &InvalidStateError{Op: op, Err: ErrNoJob}
	}
	if c.running || job.Status == models.JobProcessing {
		c.mu.Unlock()
		return &InvalidStateError{Op: op, Status: models.JobProcessing}
	}
	if requirePaused && job.Status != models.JobPaused {
		c.mu.Unlock()
		return &InvalidStateError{Op: op, Status: job.Status}
	}

	prevStatus := job.Status
	retried := 0
	for _, it := range job.Items {
		if it.Status == models.ItemFailed {
			it.Status = models.ItemPending
			it.Error = ""
			retried++
		}
	}
	revertProcessing(job)
	job.RecomputeProgress()
	job.Status = models.JobProcessing

	if err := c.store.Save(ctx, job); err != nil {
		job.Status = prevStatus
		c.mu.Unlock()
		return fmt.Errorf("failed to %s job: %w", op, err)
	}

	tok := newRunToken()
	done := make(chan struct{})
	c.running = true
	c.token = tok
	c.done = done
	c.runErr = nil
	ev := newEvent(models.EventStarted, job, nil)
	c.mu.Unlock()

	logger.WithJob(c.log, job).WithFields(logrus.Fields{
		"op":            op,
		"retried_items": retried,
	}).Info("run started")
	c.notifier.Publish(ev)

	go c.run(c.baseCtx, job, tok, done)
	return nil
}

// Pause asks the run loop to halt after the current item. No-op when not processing.
func (c *Controller) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		c.token.request(haltPause)
	}
	return nil
}

// Stop halts the run like Pause but leaves the job stopped. On a job that is not
// processing it takes effect immediately.
func (c *Controller) Stop(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.mu.Lock()

	job := c.job
	if job == nil {
		c.mu.Unlock()
		return &InvalidStateError{Op: "stop", Err: ErrNoJob}
	}
	if c.running {
		c.token.request(haltStop)
		c.mu.Unlock()
		return nil
	}
	if job.Status == models.JobCompleted || job.Status == models.JobStopped {
		c.mu.Unlock()
		return nil
	}

	revertProcessing(job)
	job.RecomputeProgress()
	job.Status = models.JobStopped
	if err := c.store.Save(ctx, job); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("failed to stop job: %w", err)
	}
	ev := newEvent(models.EventStopped, job, nil)
	c.mu.Unlock()

	logger.WithJob(c.log, job).Info("job stopped")
	c.notifier.Publish(ev)
	return nil
}

// Reset stops any run, waits for it to exit and discards the job
func (c *Controller) Reset(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	running, done := c.running, c.done
	if running {
		c.token.request(haltStop)
	}
	c.mu.Unlock()

	if running {
		<-done
	}

	c.mu.Lock()
	if err := c.store.Clear(ctx); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("failed to reset job: %w", err)
	}
	prev := c.job
	c.job = nil
	c.runErr = nil
	ev := newEvent(models.EventReset, nil, nil)
	c.mu.Unlock()

	if prev != nil {
		logger.WithJob(c.log, prev).Info("job reset")
	}
	c.notifier.Publish(ev)
	return nil
}

// AddItem appends an item to a job that is not processing
func (c *Controller) AddItem(ctx context.Context, input models.ItemInput, override *models.Settings) (*models.Item, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if strings.TrimSpace(input.Topic) == "" {
		return nil, &ValidationError{Field: "topic", Reason: "topic is required"}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	job := c.job
	if job == nil {
		return nil, &InvalidStateError{Op: "add item", Err: ErrNoJob}
	}
	if c.running || job.Status == models.JobProcessing {
		return nil, &InvalidStateError{Op: "add item", Status: models.JobProcessing}
	}
	if len(job.Items) >= c.maxItems {
		return nil, &ValidationError{Field: "items", Reason: fmt.Sprintf("job already has the maximum of %d items", c.maxItems)}
	}

	item := newItem(input, override)
	job.Items = append(job.Items, item)
	c.restructured(job)

	if err := c.store.Save(ctx, job); err != nil {
		job.Items = job.Items[:len(job.Items)-1]
		c.restructured(job)
		return nil, fmt.Errorf("failed to add item: %w", err)
	}

	logger.WithItem(c.log, job.ID, item).Info("item added")
	return item.Clone(), nil
}

// RemoveItem deletes an item that is not currently processing
func (c *Controller) RemoveItem(ctx context.Context, id string) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()

	job := c.job
	if job == nil {
		return &InvalidStateError{Op: "remove item", Err: ErrNoJob}
	}
	item, idx := job.FindItem(id)
	if item == nil {
		return fmt.Errorf("failed to remove item %s: %w", id, ErrItemNotFound)
	}
	if item.Status == models.ItemProcessing {
		return &InvalidStateError{Op: "remove item", Reason: "item is processing"}
	}

	prev := job.Items
	job.Items = append(append([]*models.Item(nil), prev[:idx]...), prev[idx+1:]...)
	c.restructured(job)

	if err := c.store.Save(ctx, job); err != nil {
		job.Items = prev
		c.restructured(job)
		return fmt.Errorf("failed to remove item: %w", err)
	}

	logger.WithJob(c.log, job).WithField("item_id", id).Info("item removed")
	return nil
}

// UpdateGlobalSettings replaces the default settings of a job that is not processing
func (c *Controller) UpdateGlobalSettings(ctx context.Context, settings models.Settings) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()

	job := c.job
	if job == nil {
		return &InvalidStateError{Op: "update settings", Err: ErrNoJob}
	}
	if c.running || job.Status == models.JobProcessing {
		return &InvalidStateError{Op: "update settings", Status: models.JobProcessing}
	}

	prev := job.GlobalSettings
	job.GlobalSettings = settings
	job.Cost.Estimated = c.estimator.EstimateJobCost(job)
	if err := c.store.Save(ctx, job); err != nil {
		job.GlobalSettings = prev
		job.Cost.Estimated = c.estimator.EstimateJobCost(job)
		return fmt.Errorf("failed to update settings: %w", err)
	}
	return nil
}

// restructured re-derives everything that depends on the item list
func (c *Controller) restructured(job *models.Job) {
	job.Renumber()
	job.RecomputeProgress()
	job.Cost.Estimated = c.estimator.EstimateJobCost(job)
}

// GetJob returns a copy of the current job, or nil
func (c *Controller) GetJob() *models.Job {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.job.Clone()
}

// GetProgressPercent returns the share of items that have an outcome, 0-100
func (c *Controller) GetProgressPercent() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.job == nil || c.job.Progress.Total == 0 {
		return 0
	}
	p := c.job.Progress
	return (p.Completed + p.Failed) * 100 / p.Total
}

// Running reports whether a run loop is active
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Wait blocks until the current run loop exits and returns the error that halted it, if any
func (c *Controller) Wait() error {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()

	if done != nil {
		<-done
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runErr
}

// revertProcessing moves items left processing back to pending and returns how many moved
func revertProcessing(job *models.Job) int {
	n := 0
	for _, it := range job.Items {
		if it.Status == models.ItemProcessing {
			it.Status = models.ItemPending
			it.StartedAt = nil
			n++
		}
	}
	return n
}

func newEvent(typ models.EventType, job *models.Job, item *models.Item) models.Event {
	return models.Event{
		Type: typ,
		Job:  job.Clone(),
		Item: item.Clone(),
		At:   time.Now().UTC(),
	}
}
