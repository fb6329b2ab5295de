package estimator

import (
	"math"
	"testing"
	"time"

	"content-batch/internal/models"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestEstimateCost(t *testing.T) {
	e := New(5 * time.Second)

	// gpt-4o-mini, short: (400*0.15 + 800*0.60) / 1e6 = 0.00054
	got := e.EstimateCost(10, models.Settings{Model: "gpt-4o-mini", Length: "short"})
	if !almostEqual(got, 0.0054) {
		t.Errorf("expected 0.0054, got %v", got)
	}

	// unknown tier falls back to medium: (500*2.5 + 1600*10) / 1e6 = 0.01725
	got = e.EstimateCost(2, models.Settings{Model: "GPT-4o", Length: "epic"})
	if !almostEqual(got, 0.0345) {
		t.Errorf("expected 0.0345, got %v", got)
	}
}

func TestEstimateCost_UnknownModel(t *testing.T) {
	e := New(0)
	if got := e.EstimateCost(5, models.Settings{Model: "local-llama"}); got != 0 {
		t.Errorf("expected 0 for unknown model, got %v", got)
	}
	if got := e.EstimateCost(0, models.Settings{Model: "gpt-4o"}); got != 0 {
		t.Errorf("expected 0 for no items, got %v", got)
	}
}

func TestEstimateJobCost_HonoursOverrides(t *testing.T) {
	e := New(0)
	job := &models.Job{
		GlobalSettings: models.Settings{Model: "gpt-4o-mini", Length: "short"},
		Items: []*models.Item{
			{ID: "a"},
			{ID: "b", Settings: &models.Settings{Model: "gpt-4o"}},
		},
	}

	want := e.PerItemCost(models.Settings{Model: "gpt-4o-mini", Length: "short"}) +
		e.PerItemCost(models.Settings{Model: "gpt-4o", Length: "short"})
	if got := e.EstimateJobCost(job); !almostEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestEstimateMinutes(t *testing.T) {
	e := New(5 * time.Second)

	tests := []struct {
		items int
		want  int
	}{
		{0, 0},
		{1, 1},  // 35s
		{2, 2},  // 70s
		{12, 7}, // 420s
	}
	for _, tt := range tests {
		if got := e.EstimateMinutes(tt.items); got != tt.want {
			t.Errorf("EstimateMinutes(%d): expected %d, got %d", tt.items, tt.want, got)
		}
	}
}
