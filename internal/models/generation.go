package models

// GenerationInput is what the generation capability receives for one item
type GenerationInput struct {
	Topic          string   `json:"topic"`
	Keywords       []string `json:"keywords"`
	AdditionalInfo string   `json:"additionalInfo"`
	Style          string   `json:"style"`
	Length         string   `json:"length"`
	Provider       string   `json:"provider"`
	Model          string   `json:"model"`
	Temperature    *float64 `json:"temperature,omitempty"`
}

// NewGenerationInput merges an item input with its effective settings
func NewGenerationInput(in ItemInput, s Settings) GenerationInput {
	return GenerationInput{
		Topic:          in.Topic,
		Keywords:       append([]string(nil), in.Keywords...),
		AdditionalInfo: in.AdditionalInfo,
		Style:          s.Style,
		Length:         s.Length,
		Provider:       s.Provider,
		Model:          s.Model,
		Temperature:    s.Temperature,
	}
}

// GenerationCost is the cost reported for one generation call
type GenerationCost struct {
	Total float64 `json:"total"`
}

// GenerationResult is a successful response of the generation capability
type GenerationResult struct {
	Title     string         `json:"title"`
	Body      string         `json:"body"`
	CharCount int            `json:"charCount"`
	Usage     Usage          `json:"usage"`
	Cost      GenerationCost `json:"cost"`
}
