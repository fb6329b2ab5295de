package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"content-batch/internal/generator"
	"content-batch/internal/logger"
	"content-batch/internal/models"
)

// Generator is the external content generation capability
type Generator interface {
	GenerateContent(ctx context.Context, in models.GenerationInput) (*models.GenerationResult, error)
}

// Executor runs one item against the generator and records the outcome on the item.
// Generation failures never escape it; they become the item's failed state.
type Executor struct {
	gen Generator
	log logrus.FieldLogger
	now func() time.Time
}

// NewExecutor creates a new executor
func NewExecutor(gen Generator, log logrus.FieldLogger) *Executor {
	return &Executor{gen: gen, log: log, now: time.Now}
}

// Execute runs the whole item lifecycle in one call. An item that cannot be
// started is reported as an item error; a completed item keeps its output.
func (e *Executor) Execute(ctx context.Context, job *models.Job, item *models.Item, settings models.Settings) models.EventType {
	if err := e.Begin(item); err != nil {
		logger.WithItem(e.log, job.ID, item).WithError(err).Error("item could not be started")
		if item.Status != models.ItemCompleted {
			item.Error = err.Error()
		}
		return models.EventItemError
	}
	res, err := e.Generate(ctx, models.NewGenerationInput(item.Input, settings))
	return e.Finish(job, item, res, err)
}

// Begin marks the item processing
func (e *Executor) Begin(item *models.Item) error {
	if err := item.Transition(models.ItemProcessing); err != nil {
		return err
	}
	now := e.now().UTC()
	item.Attempts++
	item.StartedAt = &now
	item.CompletedAt = nil
	item.Error = ""
	return nil
}

// Generate calls the generator; a panic inside it is reported as a generation error
func (e *Executor) Generate(ctx context.Context, in models.GenerationInput) (res *models.GenerationResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = &generator.GenerationError{Message: fmt.Sprintf("generator panicked: %v", r)}
		}
	}()

	res, err = e.gen.GenerateContent(ctx, in)
	if err == nil && res == nil {
		err = &generator.GenerationError{Message: "generator returned no result"}
	}
	return res, err
}

// Finish records the generation outcome on the item and job and returns the event to publish
func (e *Executor) Finish(job *models.Job, item *models.Item, res *models.GenerationResult, genErr error) models.EventType {
	now := e.now().UTC()
	item.CompletedAt = &now
	l := logger.WithItem(e.log, job.ID, item)

	if genErr != nil {
		if err := item.Transition(models.ItemFailed); err != nil {
			l.WithError(err).Error("failed to mark item failed")
		}
		item.Error = errorMessage(genErr)
		item.Output = nil
		job.RecomputeProgress()
		l.WithFields(logrus.Fields{
			"error":    item.Error,
			"upstream": generator.IsGenerationError(genErr),
		}).Warn("item failed")
		return models.EventItemError
	}

	if err := item.Transition(models.ItemCompleted); err != nil {
		l.WithError(err).Error("failed to mark item completed")
	}
	charCount := res.CharCount
	if charCount == 0 {
		charCount = len([]rune(res.Body))
	}
	item.Output = &models.ItemOutput{Title: res.Title, Body: res.Body, CharCount: charCount}
	usage := res.Usage
	item.Usage = &usage
	item.Cost = res.Cost.Total
	item.Error = ""
	job.Cost.Actual += res.Cost.Total
	job.RecomputeProgress()

	l.WithFields(logrus.Fields{
		"input_tokens":  usage.InputTokens,
		"output_tokens": usage.OutputTokens,
		"cost":          res.Cost.Total,
	}).Info("item completed")
	return models.EventItemComplete
}

func errorMessage(err error) string {
	var gerr *generator.GenerationError
	if errors.As(err, &gerr) && gerr.Message != "" {
		return gerr.Error()
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return "unknown generation error"
}
