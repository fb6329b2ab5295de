package metrics

import (
	"sync"
	"testing"

	"content-batch/internal/models"
)

func TestMetrics_ObserveItemComplete(t *testing.T) {
	m := NewMetrics()
	m.Observe(models.Event{
		Type: models.EventItemComplete,
		Item: &models.Item{Usage: &models.Usage{InputTokens: 100, OutputTokens: 400}, Cost: 0.25},
	})

	snapshot := m.GetSnapshot()
	if snapshot["items_completed"] != 1 {
		t.Errorf("expected items_completed 1, got %d", snapshot["items_completed"])
	}
	if snapshot["input_tokens"] != 100 || snapshot["output_tokens"] != 400 {
		t.Errorf("unexpected token counters %v", snapshot)
	}
	if m.ActualCost() != 0.25 {
		t.Errorf("expected cost 0.25, got %v", m.ActualCost())
	}
}

func TestMetrics_ObserveRetry(t *testing.T) {
	m := NewMetrics()
	m.Observe(models.Event{Type: models.EventItemStart, Item: &models.Item{Attempts: 1}})
	m.Observe(models.Event{Type: models.EventItemError, Item: &models.Item{Attempts: 1}})
	m.Observe(models.Event{Type: models.EventItemStart, Item: &models.Item{Attempts: 2}})

	snapshot := m.GetSnapshot()
	if snapshot["items_started"] != 2 {
		t.Errorf("expected items_started 2, got %d", snapshot["items_started"])
	}
	if snapshot["items_failed"] != 1 {
		t.Errorf("expected items_failed 1, got %d", snapshot["items_failed"])
	}
	if snapshot["items_retried"] != 1 {
		t.Errorf("expected items_retried 1, got %d", snapshot["items_retried"])
	}
}

func TestMetrics_ConcurrentAccess(t *testing.T) {
	m := NewMetrics()
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Observe(models.Event{Type: models.EventCreated})
			m.Observe(models.Event{Type: models.EventStarted})
			m.Observe(models.Event{Type: models.EventCompleted})
		}()
	}

	wg.Wait()

	snapshot := m.GetSnapshot()
	for _, key := range []string{"jobs_created", "runs_started", "runs_completed"} {
		if snapshot[key] != 100 {
			t.Errorf("expected %s 100, got %d", key, snapshot[key])
		}
	}
}
