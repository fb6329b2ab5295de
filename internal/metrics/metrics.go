package metrics

import (
	"sync"

	"content-batch/internal/models"
)

// Metrics tracks engine counters across runs
type Metrics struct {
	mu sync.RWMutex

	jobsCreated    int64
	runsStarted    int64
	runsCompleted  int64
	itemsStarted   int64
	itemsCompleted int64
	itemsFailed    int64
	itemsRetried   int64
	inputTokens    int64
	outputTokens   int64
	actualCost     float64
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{}
}

// Observe updates counters from a lifecycle event; it is meant to be subscribed to a notifier
func (m *Metrics) Observe(ev models.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch ev.Type {
	case models.EventCreated:
		m.jobsCreated++
	case models.EventStarted:
		m.runsStarted++
	case models.EventCompleted:
		m.runsCompleted++
	case models.EventItemStart:
		m.itemsStarted++
		if ev.Item != nil && ev.Item.Attempts > 1 {
			m.itemsRetried++
		}
	case models.EventItemComplete:
		m.itemsCompleted++
		if ev.Item != nil {
			if ev.Item.Usage != nil {
				m.inputTokens += int64(ev.Item.Usage.InputTokens)
				m.outputTokens += int64(ev.Item.Usage.OutputTokens)
			}
			m.actualCost += ev.Item.Cost
		}
	case models.EventItemError:
		m.itemsFailed++
	}
}

// GetSnapshot returns a snapshot of all counters
func (m *Metrics) GetSnapshot() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]int64{
		"jobs_created":    m.jobsCreated,
		"runs_started":    m.runsStarted,
		"runs_completed":  m.runsCompleted,
		"items_started":   m.itemsStarted,
		"items_completed": m.itemsCompleted,
		"items_failed":    m.itemsFailed,
		"items_retried":   m.itemsRetried,
		"input_tokens":    m.inputTokens,
		"output_tokens":   m.outputTokens,
	}
}

// ActualCost returns the spend accumulated from completed items
func (m *Metrics) ActualCost() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.actualCost
}
