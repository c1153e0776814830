package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	openAIAPIURL       = "https://api.openai.com/v1/chat/completions"
	defaultOpenAIModel = "gpt-4o"
)

// ErrNotConfigured is returned when a driver lacks required settings.
var ErrNotConfigured = errors.New("llm driver not configured")

// OpenAIDriver implements the Driver interface against the chat completions API.
type OpenAIDriver struct {
	httpClient  *http.Client
	apiKey      string
	endpoint    string
	model       string
	temperature float64
	maxTokens   int
}

// NewOpenAIDriver creates a driver with default settings; an API key must be
// supplied through Configure.
func NewOpenAIDriver() *OpenAIDriver {
	return &OpenAIDriver{
		httpClient:  &http.Client{Timeout: 2 * time.Minute},
		endpoint:    openAIAPIURL,
		model:       defaultOpenAIModel,
		temperature: 0.2,
		maxTokens:   4000,
	}
}

// Configure implements Driver interface.
func (d *OpenAIDriver) Configure(config map[string]any) error {
	if key, ok := config["api_key"].(string); ok {
		d.apiKey = key
	}
	if endpoint, ok := config["endpoint"].(string); ok && endpoint != "" {
		d.endpoint = endpoint
	}
	if model, ok := config["model"].(string); ok && model != "" {
		d.model = model
	}
	if temp, ok := config["temperature"].(float64); ok {
		d.temperature = temp
	}
	switch maxTokens := config["max_tokens"].(type) {
	case int:
		d.maxTokens = maxTokens
	case float64:
		d.maxTokens = int(maxTokens)
	}
	if timeout, ok := config["timeout"].(time.Duration); ok && timeout > 0 {
		d.httpClient.Timeout = timeout
	}
	return nil
}

// Complete implements Driver interface. Failures are returned as-is; the
// caller decides whether to retry.
func (d *OpenAIDriver) Complete(ctx context.Context, req Request) (string, error) {
	if d.apiKey == "" {
		return "", fmt.Errorf("%w: API key is required", ErrNotConfigured)
	}

	temperature := req.Temperature
	if temperature == 0 {
		temperature = d.temperature
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = d.maxTokens
	}

	messages := make([]openAIMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openAIMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, openAIMessage{Role: "user", Content: req.Prompt})

	body, err := json.Marshal(openAIRequest{
		Model:       d.model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+d.apiKey)

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("openai request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp openAIErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error.Message != "" {
			return "", fmt.Errorf("openai API error: %s - %s", errResp.Error.Type, errResp.Error.Message)
		}
		return "", fmt.Errorf("openai API error: status %d", resp.StatusCode)
	}

	var parsed openAIResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

// GetCapabilities implements Driver interface.
func (d *OpenAIDriver) GetCapabilities() Capabilities {
	return Capabilities{
		ModelName:           d.model,
		MaxTokensPerRequest: 128000,
	}
}

// EstimateTokens implements Driver interface.
func (d *OpenAIDriver) EstimateTokens(prompt string) (int, error) {
	return estimateTokens(prompt), nil
}

// HealthCheck implements Driver interface.
func (d *OpenAIDriver) HealthCheck(context.Context) error {
	if d.apiKey == "" {
		return fmt.Errorf("%w: API key is required", ErrNotConfigured)
	}
	return nil
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature"`
}

type openAIResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
}

type openAIErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func init() {
	DefaultRegistry.Register("openai", func() Driver {
		return NewOpenAIDriver()
	})
}
