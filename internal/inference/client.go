// Package inference calls the external model service that turns query
// results into a natural-language summary. Outbound calls share one global
// rate limiter; failures map onto the gateway error taxonomy so the breaker
// and the response shaper can act on them.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	gwerrors "emissions-gateway/internal/common/errors"
	"emissions-gateway/internal/common/logger"
)

const maxRetries = 2

// Input carries the question plus the warehouse rows to summarize.
type Input struct {
	Question string                   `json:"question"`
	Rows     []map[string]interface{} `json:"rows"`
	Filters  map[string]interface{}   `json:"filters,omitempty"`
}

// Output is the synthesized answer.
type Output struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

type Config struct {
	BaseURL     string
	APIKey      string
	Timeout     time.Duration
	MaxTokens   int
	Temperature float64
	MaxRPS      float64
}

type Client struct {
	config  *Config
	client  *http.Client
	limiter *rate.Limiter
	logger  logger.Logger
}

func NewClient(config *Config, log logger.Logger) *Client {
	return &Client{
		config: config,
		client: &http.Client{
			// No client-level timeout: the context deadline governs.
		},
		limiter: rate.NewLimiter(rate.Limit(config.MaxRPS), 1),
		logger:  log.With(map[string]interface{}{"component": "inference"}),
	}
}

// Synthesize asks the model service for a summary of the rows. The global
// limiter smooths request rate across all callers before the HTTP attempt.
func (c *Client) Synthesize(ctx context.Context, input *Input) (*Output, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, gwerrors.NewTimeoutError("inference rate wait", err)
	}

	requestBody := map[string]interface{}{
		"prompt":      buildPrompt(input),
		"max_tokens":  c.config.MaxTokens,
		"temperature": c.config.Temperature,
	}
	body, _ := json.Marshal(requestBody)

	var resp *http.Response
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(100*(1<<(attempt-1))) * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, gwerrors.NewTimeoutError("inference call", ctx.Err())
			}
		}

		req, err := http.NewRequestWithContext(ctx, "POST", c.config.BaseURL+"/v1/generate", bytes.NewReader(body))
		if err != nil {
			return nil, gwerrors.NewQueryFailedError(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.config.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
		}

		resp, lastErr = c.client.Do(req)
		if lastErr == nil {
			if resp.StatusCode == http.StatusOK {
				break
			}
			resp.Body.Close()
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
			resp = nil
		}

		if ctx.Err() != nil {
			return nil, gwerrors.NewTimeoutError("inference call", ctx.Err())
		}
	}

	if lastErr != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, gwerrors.NewTimeoutError("inference call", ctx.Err())
		}
		return nil, gwerrors.NewQueryFailedError(lastErr)
	}
	if resp == nil {
		return nil, gwerrors.NewQueryFailedError(fmt.Errorf("no successful response after retries"))
	}
	defer resp.Body.Close()

	var apiResponse struct {
		Text       string  `json:"text"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResponse); err != nil {
		return nil, gwerrors.NewQueryFailedError(fmt.Errorf("decode response: %w", err))
	}

	if strings.TrimSpace(apiResponse.Text) == "" {
		apiResponse.Text = "The available data is not sufficient to answer that question."
		apiResponse.Confidence = 0.1
	}
	if apiResponse.Confidence < 0.0 || apiResponse.Confidence > 1.0 {
		apiResponse.Confidence = 0.5
	}

	c.logger.WithTrace(ctx).Info("synthesis completed", map[string]interface{}{
		"confidence": apiResponse.Confidence,
		"rowCount":   len(input.Rows),
	})

	return &Output{
		Text:       apiResponse.Text,
		Confidence: apiResponse.Confidence,
	}, nil
}

func buildPrompt(input *Input) string {
	var parts []string

	parts = append(parts, "You are an emissions data analyst. Answer the user's question based ONLY on the provided warehouse rows.")
	parts = append(parts, fmt.Sprintf("\nUser Question: %s", input.Question))

	if len(input.Filters) > 0 {
		filterJSON, _ := json.MarshalIndent(input.Filters, "", "  ")
		parts = append(parts, "\nFilters Applied:")
		parts = append(parts, string(filterJSON))
	}

	if len(input.Rows) > 0 {
		rowJSON, _ := json.MarshalIndent(input.Rows, "", "  ")
		parts = append(parts, "\nWarehouse Rows:")
		parts = append(parts, string(rowJSON))
	}

	parts = append(parts, "\nInstructions:")
	parts = append(parts, "- State units (metric tons CO2e) when quoting figures")
	parts = append(parts, "- If the rows are insufficient, say so clearly")
	parts = append(parts, "- Keep the answer concise")

	parts = append(parts, "\nAnswer:")

	return strings.Join(parts, "\n")
}
