package models

import (
	"fmt"
	"time"
)

// JobStatus represents the state of a batch job
type JobStatus string

const (
	JobIdle       JobStatus = "idle"
	JobProcessing JobStatus = "processing"
	JobPaused     JobStatus = "paused"
	JobStopped    JobStatus = "stopped"
	JobCompleted  JobStatus = "completed"
)

// ItemStatus represents the state of a single generation request
type ItemStatus string

const (
	ItemPending    ItemStatus = "pending"
	ItemProcessing ItemStatus = "processing"
	ItemCompleted  ItemStatus = "completed"
	ItemFailed     ItemStatus = "failed"
)

var itemTransitions = map[ItemStatus]map[ItemStatus]bool{
	ItemPending: {
		ItemProcessing: true,
	},
	ItemProcessing: {
		ItemCompleted: true,
		ItemFailed:    true,
		ItemPending:   true, // interrupted run
	},
	ItemFailed: {
		ItemPending: true, // retried by a new run
	},
	ItemCompleted: {},
}

// CanTransitionItem reports whether an item may move from one status to another
func CanTransitionItem(from, to ItemStatus) bool {
	return itemTransitions[from][to]
}

// Settings holds generation parameters. On an item, zero fields inherit from the job.
type Settings struct {
	Provider    string   `json:"provider,omitempty"`
	Model       string   `json:"model,omitempty"`
	Style       string   `json:"style,omitempty"`
	Length      string   `json:"length,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// Merge returns s with every non-zero field of override applied on top
func (s Settings) Merge(override *Settings) Settings {
	if override == nil {
		return s
	}
	out := s
	if override.Provider != "" {
		out.Provider = override.Provider
	}
	if override.Model != "" {
		out.Model = override.Model
	}
	if override.Style != "" {
		out.Style = override.Style
	}
	if override.Length != "" {
		out.Length = override.Length
	}
	if override.Temperature != nil {
		t := *override.Temperature
		out.Temperature = &t
	}
	return out
}

// ItemInput is the user-supplied part of an item
type ItemInput struct {
	Topic          string   `json:"topic"`
	Keywords       []string `json:"keywords"`
	AdditionalInfo string   `json:"additionalInfo"`
}

// ItemOutput is the generated content for a completed item
type ItemOutput struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	CharCount int    `json:"charCount"`
}

// Usage is the token usage reported by the generation capability
type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

// Item is one generation request within a job
type Item struct {
	ID          string      `json:"id"`
	Order       int         `json:"order"`
	Status      ItemStatus  `json:"status"`
	Input       ItemInput   `json:"input"`
	Settings    *Settings   `json:"settings"`
	Output      *ItemOutput `json:"output"`
	Error       string      `json:"error,omitempty"`
	Usage       *Usage      `json:"usage"`
	Cost        float64     `json:"cost"`
	Attempts    int         `json:"attempts"`
	StartedAt   *time.Time  `json:"startedAt"`
	CompletedAt *time.Time  `json:"completedAt"`
}

// Transition moves the item to a new status, rejecting moves the state machine does not allow
func (it *Item) Transition(to ItemStatus) error {
	if !CanTransitionItem(it.Status, to) {
		return fmt.Errorf("invalid item status transition: %q -> %q (item_id=%s)", it.Status, to, it.ID)
	}
	it.Status = to
	return nil
}

// Progress counters, always derived from the item list
type Progress struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// Cost tracks projected and accumulated spend in USD
type Cost struct {
	Estimated float64 `json:"estimated"`
	Actual    float64 `json:"actual"`
}

// Job is the aggregate root for one batch run
type Job struct {
	ID             string    `json:"id"`
	Status         JobStatus `json:"status"`
	GlobalSettings Settings  `json:"globalSettings"`
	Items          []*Item   `json:"items"`
	Progress       Progress  `json:"progress"`
	Cost           Cost      `json:"cost"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// RecomputeProgress re-derives the progress counters from the items
func (j *Job) RecomputeProgress() {
	p := Progress{Total: len(j.Items)}
	for _, it := range j.Items {
		switch it.Status {
		case ItemCompleted:
			p.Completed++
		case ItemFailed:
			p.Failed++
		}
	}
	j.Progress = p
}

// Renumber rewrites item order as a contiguous 1..N sequence
func (j *Job) Renumber() {
	for i, it := range j.Items {
		it.Order = i + 1
	}
}

// FindItem returns the item with the given id and its index, or -1
func (j *Job) FindItem(id string) (*Item, int) {
	for i, it := range j.Items {
		if it.ID == id {
			return it, i
		}
	}
	return nil, -1
}

// NextRunnable returns the lowest-order item that is pending or failed
func (j *Job) NextRunnable() *Item {
	var next *Item
	for _, it := range j.Items {
		if it.Status != ItemPending && it.Status != ItemFailed {
			continue
		}
		if next == nil || it.Order < next.Order {
			next = it
		}
	}
	return next
}

// NextPending returns the lowest-order pending item
func (j *Job) NextPending() *Item {
	var next *Item
	for _, it := range j.Items {
		if it.Status == ItemPending && (next == nil || it.Order < next.Order) {
			next = it
		}
	}
	return next
}

// CountStatus returns how many items currently have the given status
func (j *Job) CountStatus(status ItemStatus) int {
	n := 0
	for _, it := range j.Items {
		if it.Status == status {
			n++
		}
	}
	return n
}

// Clone returns a deep copy safe to hand to observers
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	out := *j
	out.GlobalSettings = Settings{}.Merge(&j.GlobalSettings)
	out.Items = make([]*Item, len(j.Items))
	for i, it := range j.Items {
		out.Items[i] = it.Clone()
	}
	return &out
}

// Clone returns a deep copy of the item
func (it *Item) Clone() *Item {
	if it == nil {
		return nil
	}
	out := *it
	out.Input.Keywords = append([]string(nil), it.Input.Keywords...)
	if it.Settings != nil {
		s := Settings{}.Merge(it.Settings)
		out.Settings = &s
	}
	if it.Output != nil {
		o := *it.Output
		out.Output = &o
	}
	if it.Usage != nil {
		u := *it.Usage
		out.Usage = &u
	}
	if it.StartedAt != nil {
		t := *it.StartedAt
		out.StartedAt = &t
	}
	if it.CompletedAt != nil {
		t := *it.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}

// CreateJobRequest represents a request to create a job
type CreateJobRequest struct {
	Items    []ItemInput `json:"items"`
	Settings Settings    `json:"settings"`
}

// AddItemRequest represents a request to append an item
type AddItemRequest struct {
	Input    ItemInput `json:"input"`
	Settings *Settings `json:"settings,omitempty"`
}
