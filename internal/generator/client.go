// Package generator adapts the external content generation service.
package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"content-batch/internal/models"
)

// GenerationError reports a failed generation call for one item
type GenerationError struct {
	Message    string
	StatusCode int
	Err        error
}

func (e *GenerationError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("generation failed (status %d): %s", e.StatusCode, e.Message)
	}
	return "generation failed: " + e.Message
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// HTTPClient calls a JSON content generation endpoint
type HTTPClient struct {
	url    string
	apiKey string
	client *http.Client
}

// NewHTTPClient creates a client; timeout bounds each call
func NewHTTPClient(url, apiKey string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &HTTPClient{
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}
}

type errorBody struct {
	Error string `json:"error"`
}

// GenerateContent posts the input and decodes the generated content
func (c *HTTPClient) GenerateContent(ctx context.Context, in models.GenerationInput) (*models.GenerationResult, error) {
	if strings.TrimSpace(c.url) == "" {
		return nil, &GenerationError{Message: "generator URL is not configured"}
	}

	body, err := json.Marshal(in)
	if err != nil {
		return nil, &GenerationError{Message: "failed to encode request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, &GenerationError{Message: "failed to build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &GenerationError{Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, &GenerationError{Message: "failed to read response", StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(data))
		var eb errorBody
		if json.Unmarshal(data, &eb) == nil && eb.Error != "" {
			msg = eb.Error
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &GenerationError{Message: msg, StatusCode: resp.StatusCode}
	}

	var result models.GenerationResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, &GenerationError{Message: "malformed response", StatusCode: resp.StatusCode, Err: err}
	}
	if strings.TrimSpace(result.Body) == "" {
		return nil, &GenerationError{Message: "empty body in response", StatusCode: resp.StatusCode}
	}
	if result.CharCount == 0 {
		result.CharCount = len([]rune(result.Body))
	}
	return &result, nil
}

// IsGenerationError reports whether err is a generation failure
func IsGenerationError(err error) bool {
	var gerr *GenerationError
	return errors.As(err, &gerr)
}
