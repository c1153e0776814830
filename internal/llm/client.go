package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joshsymonds/fixloop/internal/models"
	"github.com/joshsymonds/fixloop/pkg/logger"
)

// ErrPromptTooLarge is returned when a request exceeds the driver's input
// budget. The request is not sent.
var ErrPromptTooLarge = errors.New("prompt exceeds model context")

// Client runs the fix-oriented conversations on top of a Driver.
type Client struct {
	driver Driver
	logger logger.Logger
}

// NewClient creates a client over driver.
func NewClient(driver Driver) *Client {
	return NewClientWithLogger(driver, logger.GetGlobalLogger())
}

// NewClientWithLogger creates a client with a custom logger.
func NewClientWithLogger(driver Driver, log logger.Logger) *Client {
	return &Client{driver: driver, logger: log}
}

// NewClientFromRegistry looks up driver name, configures it and wraps it.
func NewClientFromRegistry(registry *DriverRegistry, name string, settings map[string]any, log logger.Logger) (*Client, error) {
	driver, err := registry.Get(name)
	if err != nil {
		return nil, err
	}
	if err := driver.Configure(settings); err != nil {
		return nil, fmt.Errorf("configuring %s driver: %w", name, err)
	}
	return NewClientWithLogger(driver, log), nil
}

// GenerateFix asks for candidate fixes and returns the raw model text.
func (c *Client) GenerateFix(ctx context.Context, fc FixContext) (string, error) {
	return c.complete(ctx, "generate", Request{
		System: generateSystemPrompt,
		Prompt: buildGeneratePrompt(fc),
	})
}

// Candidates generates fixes and parses them. A response that does not
// follow the expected layout yields zero candidates, not an error.
func (c *Client) Candidates(ctx context.Context, fc FixContext) ([]models.FixCandidate, error) {
	text, err := c.GenerateFix(ctx, fc)
	if err != nil {
		return nil, err
	}
	candidates := ParseCandidates(text)
	if len(candidates) == 0 {
		c.logger.Warn("No candidates parsed from LLM response", "bug_type", fc.BugType, "response_len", len(text))
	}
	return candidates, nil
}

// Rewrite returns content with buggy replaced by fixed. The model is told to
// return the whole file; fences are stripped.
func (c *Client) Rewrite(ctx context.Context, content, buggy, fixed string) (string, error) {
	text, err := c.complete(ctx, "rewrite", Request{
		System:      rewriteSystemPrompt,
		Prompt:      buildRewritePrompt(content, buggy, fixed),
		Temperature: 0.1,
	})
	if err != nil {
		return "", err
	}
	return ExtractCode(text), nil
}

// Refine asks for a revised fix that addresses feedback.
func (c *Client) Refine(ctx context.Context, bugType, description, original, current, feedback string) (Refinement, error) {
	text, err := c.complete(ctx, "refine", Request{
		System: refineSystemPrompt,
		Prompt: buildRefinePrompt(bugType, description, original, current, feedback),
	})
	if err != nil {
		return Refinement{}, err
	}
	return ParseRefinement(text)
}

// ExtractStatement asks for the statement a finding at line points at.
func (c *Client) ExtractStatement(ctx context.Context, content string, line int, description string) (string, error) {
	text, err := c.complete(ctx, "extract", Request{
		System:      extractSystemPrompt,
		Prompt:      buildExtractPrompt(content, line, description),
		Temperature: 0.1,
	})
	if err != nil {
		return "", err
	}
	code := ExtractCode(text)
	if code == "" {
		return "", ErrNoCode
	}
	return code, nil
}

// HealthCheck reports whether the driver can serve requests.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := c.driver.HealthCheck(ctx); err != nil {
		return fmt.Errorf("llm driver %s: %w", c.driver.GetCapabilities().ModelName, err)
	}
	return nil
}

// checkBudget rejects requests the model could not accept. Drivers that do
// not publish a limit or cannot estimate are not checked.
func (c *Client) checkBudget(purpose string, req Request) error {
	limit := c.driver.GetCapabilities().MaxTokensPerRequest
	if limit <= 0 {
		return nil
	}
	tokens, err := c.driver.EstimateTokens(req.System + "\n" + req.Prompt)
	if err != nil {
		c.logger.Debug("Token estimate unavailable", "purpose", purpose, "error", err)
		return nil
	}
	if tokens > limit {
		return fmt.Errorf("%w: ~%d tokens, limit %d", ErrPromptTooLarge, tokens, limit)
	}
	return nil
}

func (c *Client) complete(ctx context.Context, purpose string, req Request) (string, error) {
	if err := c.checkBudget(purpose, req); err != nil {
		c.logger.Warn("LLM request rejected", "purpose", purpose, "error", err)
		return "", fmt.Errorf("llm %s: %w", purpose, err)
	}
	start := time.Now()
	text, err := c.driver.Complete(ctx, req)
	if err != nil {
		c.logger.Warn("LLM request failed", "purpose", purpose, "error", err, "duration", time.Since(start))
		return "", fmt.Errorf("llm %s: %w", purpose, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("llm %s: empty response", purpose)
	}
	c.logger.Debug("LLM request completed", "purpose", purpose, "duration", time.Since(start), "response_len", len(text))
	return text, nil
}
