// Package estimator projects cost and duration of a batch before it runs.
// The numbers are advisory and never reconciled against actual spend.
package estimator

import (
	"math"
	"strings"
	"time"

	"content-batch/internal/models"
)

// Price is USD per one million tokens
type Price struct {
	Input  float64
	Output float64
}

// TokenProfile is the assumed average token count of one item
type TokenProfile struct {
	Input  int
	Output int
}

// DefaultPricing maps model names to their list prices
var DefaultPricing = map[string]Price{
	"gpt-4o":                     {Input: 2.50, Output: 10.00},
	"gpt-4o-mini":                {Input: 0.15, Output: 0.60},
	"gpt-4.1":                    {Input: 2.00, Output: 8.00},
	"gpt-4.1-mini":               {Input: 0.40, Output: 1.60},
	"claude-3-5-sonnet-20241022": {Input: 3.00, Output: 15.00},
	"claude-3-5-haiku-20241022":  {Input: 0.80, Output: 4.00},
	"gemini-1.5-flash":           {Input: 0.075, Output: 0.30},
	"gemini-1.5-pro":             {Input: 1.25, Output: 5.00},
}

// DefaultTokenProfiles maps length tiers to assumed token counts
var DefaultTokenProfiles = map[string]TokenProfile{
	"short":  {Input: 400, Output: 800},
	"medium": {Input: 500, Output: 1600},
	"long":   {Input: 600, Output: 3200},
}

// DefaultSecondsPerItem is the assumed generation latency of one item
const DefaultSecondsPerItem = 30

// Estimator holds the tables used for projections
type Estimator struct {
	Pricing        map[string]Price
	Profiles       map[string]TokenProfile
	SecondsPerItem float64
	InterItemDelay time.Duration
}

// New creates an estimator with the default tables and the given inter-item delay
func New(interItemDelay time.Duration) *Estimator {
	return &Estimator{
		Pricing:        DefaultPricing,
		Profiles:       DefaultTokenProfiles,
		SecondsPerItem: DefaultSecondsPerItem,
		InterItemDelay: interItemDelay,
	}
}

// PerItemCost returns the projected cost of one item, or 0 when the model has no known price
func (e *Estimator) PerItemCost(settings models.Settings) float64 {
	price, ok := e.Pricing[strings.ToLower(strings.TrimSpace(settings.Model))]
	if !ok {
		return 0
	}
	profile, ok := e.Profiles[strings.ToLower(settings.Length)]
	if !ok {
		profile = e.Profiles["medium"]
	}
	return (float64(profile.Input)*price.Input + float64(profile.Output)*price.Output) / 1_000_000
}

// EstimateCost projects the cost of itemCount items generated with settings
func (e *Estimator) EstimateCost(itemCount int, settings models.Settings) float64 {
	if itemCount <= 0 {
		return 0
	}
	return e.PerItemCost(settings) * float64(itemCount)
}

// EstimateJobCost sums per-item projections, honouring per-item setting overrides
func (e *Estimator) EstimateJobCost(job *models.Job) float64 {
	total := 0.0
	for _, it := range job.Items {
		total += e.PerItemCost(job.GlobalSettings.Merge(it.Settings))
	}
	return total
}

// EstimateMinutes projects wall-clock minutes for itemCount sequential items
func (e *Estimator) EstimateMinutes(itemCount int) int {
	if itemCount <= 0 {
		return 0
	}
	perItem := e.SecondsPerItem + e.InterItemDelay.Seconds()
	return int(math.Ceil(float64(itemCount) * perItem / 60))
}
