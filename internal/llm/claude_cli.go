package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/joshsymonds/fixloop/internal/toolexec"
)

const toolClaude = "claude"

// ClaudeCLIDriver implements the Driver interface using the Claude CLI.
type ClaudeCLIDriver struct {
	exec        toolexec.Executor
	binary      string
	model       string
	temperature float64
	maxTokens   int
}

// NewClaudeCLIDriver creates a new Claude CLI driver.
func NewClaudeCLIDriver() *ClaudeCLIDriver {
	return NewClaudeCLIDriverWithExecutor(toolexec.NewRunner(2 * time.Minute))
}

// NewClaudeCLIDriverWithExecutor creates a driver that runs the CLI through exec.
func NewClaudeCLIDriverWithExecutor(exec toolexec.Executor) *ClaudeCLIDriver {
	return &ClaudeCLIDriver{
		exec:        exec,
		binary:      "claude",
		model:       "sonnet",
		temperature: 0.2,
		maxTokens:   4000,
	}
}

// Configure implements Driver interface.
func (d *ClaudeCLIDriver) Configure(config map[string]any) error {
	if model, ok := config["model"].(string); ok && model != "" {
		d.model = model
	}
	if binary, ok := config["binary"].(string); ok && binary != "" {
		d.binary = binary
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

	return nil
}

// Complete implements Driver interface. The prompt goes over stdin and the
// CLI answers with a single JSON document.
func (d *ClaudeCLIDriver) Complete(ctx context.Context, req Request) (string, error) {
	args := []string{
		"-p",
		"--model", d.model,
		"--output-format", "json",
		"--max-turns", "1",
	}
	if req.System != "" {
		args = append(args, "--append-system-prompt", req.System)
	}

	output, err := d.exec.Run(ctx, toolClaude, toolexec.Command{
		Binary: d.binary,
		Args:   args,
		Stdin:  req.Prompt,
	})
	if err != nil {
		return "", fmt.Errorf("claude CLI failed: %w", err)
	}

	text, err := parseClaudeOutput(output)
	if err != nil {
		return "", err
	}
	return text, nil
}

// GetCapabilities implements Driver interface.
func (d *ClaudeCLIDriver) GetCapabilities() Capabilities {
	capabilities := map[string]Capabilities{
		"opus": {
			ModelName:           "claude-opus",
			MaxTokensPerRequest: 200000,
		},
		"sonnet": {
			ModelName:           "claude-sonnet",
			MaxTokensPerRequest: 200000,
		},
		"haiku": {
			ModelName:           "claude-haiku",
			MaxTokensPerRequest: 200000,
		},
	}

	if c, ok := capabilities[d.model]; ok {
		return c
	}
	return capabilities["sonnet"]
}

// EstimateTokens implements Driver interface.
func (d *ClaudeCLIDriver) EstimateTokens(prompt string) (int, error) {
	return estimateTokens(prompt), nil
}

// HealthCheck implements Driver interface.
func (d *ClaudeCLIDriver) HealthCheck(ctx context.Context) error {
	output, err := d.exec.Run(ctx, toolClaude, toolexec.Command{Binary: d.binary, Args: []string{"--version"}})
	if err != nil {
		return fmt.Errorf("claude CLI not found or not working: %w (output: %s)", err, toolexec.Truncate(output))
	}
	return nil
}

// claudeResponse represents the JSON response from Claude CLI. Newer CLI
// versions put the text in result, older ones in content.
type claudeResponse struct {
	Result  string `json:"result"`
	Content string `json:"content"`
	IsError bool   `json:"is_error"`
}

func parseClaudeOutput(output []byte) (string, error) {
	// stderr noise may precede the JSON document
	start := bytes.IndexByte(output, '{')
	end := bytes.LastIndexByte(output, '}')
	if start == -1 || end < start {
		return "", fmt.Errorf("no JSON document in claude output: %s", toolexec.Truncate(output))
	}

	var response claudeResponse
	if err := json.Unmarshal(output[start:end+1], &response); err != nil {
		return "", fmt.Errorf("failed to parse claude response: %w", err)
	}
	text := response.Result
	if text == "" {
		text = response.Content
	}
	if response.IsError {
		return "", fmt.Errorf("claude reported an error: %s", text)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("claude returned an empty response")
	}
	return text, nil
}

// init registers the driver.
func init() {
	DefaultRegistry.Register("claude-cli", func() Driver {
		return NewClaudeCLIDriver()
	})
}
