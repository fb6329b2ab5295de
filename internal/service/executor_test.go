package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"content-batch/internal/generator"
	"content-batch/internal/logger"
	"content-batch/internal/models"
)

func newExecutorJob() (*models.Job, *models.Item) {
	item := &models.Item{ID: "item-1", Order: 1, Status: models.ItemPending, Input: models.ItemInput{Topic: "Go"}}
	job := &models.Job{ID: "job-1", Status: models.JobProcessing, Items: []*models.Item{item}}
	job.RecomputeProgress()
	return job, item
}

func TestExecutor_Success(t *testing.T) {
	gen := generatorFunc(func(ctx context.Context, in models.GenerationInput) (*models.GenerationResult, error) {
		if in.Topic != "Go" || in.Model != "gpt-4o" {
			t.Errorf("unexpected generation input %+v", in)
		}
		return &models.GenerationResult{
			Title: "Go",
			Body:  "héllo",
			Usage: models.Usage{InputTokens: 10, OutputTokens: 20},
			Cost:  models.GenerationCost{Total: 0.5},
		}, nil
	})
	e := NewExecutor(gen, logger.Discard())
	job, item := newExecutorJob()

	ev := e.Execute(context.Background(), job, item, models.Settings{Model: "gpt-4o"})

	if ev != models.EventItemComplete {
		t.Errorf("expected itemComplete, got %s", ev)
	}
	if item.Status != models.ItemCompleted {
		t.Errorf("expected status completed, got %s", item.Status)
	}
	if item.Output == nil || item.Output.CharCount != 5 {
		t.Errorf("expected char count derived from body, got %+v", item.Output)
	}
	if item.Usage == nil || item.Usage.OutputTokens != 20 {
		t.Errorf("expected usage recorded, got %+v", item.Usage)
	}
	if item.StartedAt == nil || item.CompletedAt == nil {
		t.Errorf("expected timestamps set")
	}
	if item.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", item.Attempts)
	}
	if job.Cost.Actual != 0.5 || job.Progress.Completed != 1 {
		t.Errorf("expected job totals updated, got cost=%f progress=%+v", job.Cost.Actual, job.Progress)
	}
}

func TestExecutor_FailureIsContained(t *testing.T) {
	tests := []struct {
		name    string
		gen     Generator
		wantMsg string
	}{
		{
			name: "generation error",
			gen: generatorFunc(func(ctx context.Context, in models.GenerationInput) (*models.GenerationResult, error) {
				return nil, &generator.GenerationError{Message: "quota exceeded", StatusCode: 429}
			}),
			wantMsg: "quota exceeded",
		},
		{
			name: "plain error",
			gen: generatorFunc(func(ctx context.Context, in models.GenerationInput) (*models.GenerationResult, error) {
				return nil, errors.New("connection reset")
			}),
			wantMsg: "connection reset",
		},
		{
			name: "panic",
			gen: generatorFunc(func(ctx context.Context, in models.GenerationInput) (*models.GenerationResult, error) {
				panic("boom")
			}),
			wantMsg: "boom",
		},
		{
			name: "nil result",
			gen: generatorFunc(func(ctx context.Context, in models.GenerationInput) (*models.GenerationResult, error) {
				return nil, nil
			}),
			wantMsg: "no result",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewExecutor(tt.gen, logger.Discard())
			job, item := newExecutorJob()

			ev := e.Execute(context.Background(), job, item, models.Settings{})

			if ev != models.EventItemError {
				t.Errorf("expected itemError, got %s", ev)
			}
			if item.Status != models.ItemFailed {
				t.Errorf("expected status failed, got %s", item.Status)
			}
			if !strings.Contains(item.Error, tt.wantMsg) {
				t.Errorf("expected error containing %q, got %q", tt.wantMsg, item.Error)
			}
			if item.Output != nil {
				t.Errorf("expected no output on failure")
			}
			if job.Progress.Failed != 1 || job.Cost.Actual != 0 {
				t.Errorf("expected failed count 1 and no cost, got %+v %f", job.Progress, job.Cost.Actual)
			}
		})
	}
}

func TestExecutor_BeginRejectsCompletedItem(t *testing.T) {
	e := NewExecutor(newFakeGenerator(), logger.Discard())
	item := &models.Item{ID: "x", Status: models.ItemCompleted}

	if err := e.Begin(item); err == nil {
		t.Errorf("expected error starting a completed item")
	}
	if item.Attempts != 0 {
		t.Errorf("expected attempts unchanged, got %d", item.Attempts)
	}
}

func TestExecutor_ExecuteReportsUnstartableItem(t *testing.T) {
	gen := newFakeGenerator()
	e := NewExecutor(gen, logger.Discard())
	job := &models.Job{ID: "job-1"}

	done := &models.Item{ID: "done", Status: models.ItemCompleted, Output: &models.ItemOutput{Title: "kept"}}
	if ev := e.Execute(context.Background(), job, done, models.Settings{}); ev != models.EventItemError {
		t.Errorf("expected %s, got %q", models.EventItemError, ev)
	}
	if done.Status != models.ItemCompleted || done.Output == nil || done.Error != "" {
		t.Errorf("expected completed item untouched, got %+v", done)
	}

	busy := &models.Item{ID: "busy", Status: models.ItemProcessing}
	if ev := e.Execute(context.Background(), job, busy, models.Settings{}); ev != models.EventItemError {
		t.Errorf("expected %s, got %q", models.EventItemError, ev)
	}
	if busy.Error == "" {
		t.Errorf("expected the start failure recorded on the item")
	}
	if gen.callCount("") != 0 {
		t.Errorf("expected no generation call for unstartable items")
	}
}
