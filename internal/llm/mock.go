package llm

import (
	"context"
	"sync"
)

// MockDriver implements the Driver interface for testing. Requests are
// recorded; CompleteFunc decides the answer.
type MockDriver struct {
	CompleteFunc    func(ctx context.Context, req Request) (string, error)
	HealthCheckFunc func(ctx context.Context) error
	// MaxTokens overrides the advertised request budget when positive.
	MaxTokens int

	requests []Request
	mu       sync.Mutex
}

// NewMockDriver returns a driver that always answers with response.
func NewMockDriver(response string) *MockDriver {
	return &MockDriver{
		CompleteFunc: func(context.Context, Request) (string, error) {
			return response, nil
		},
	}
}

// Complete implements Driver interface.
func (m *MockDriver) Complete(ctx context.Context, req Request) (string, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	return "", nil
}

// Requests returns a copy of the recorded requests.
func (m *MockDriver) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}

// GetCapabilities implements Driver interface.
func (m *MockDriver) GetCapabilities() Capabilities {
	limit := 100000
	if m.MaxTokens > 0 {
		limit = m.MaxTokens
	}
	return Capabilities{
		ModelName:           "mock-model",
		MaxTokensPerRequest: limit,
	}
}

// EstimateTokens implements Driver interface.
func (m *MockDriver) EstimateTokens(prompt string) (int, error) {
	return estimateTokens(prompt), nil
}

// HealthCheck implements Driver interface.
func (m *MockDriver) HealthCheck(ctx context.Context) error {
	if m.HealthCheckFunc != nil {
		return m.HealthCheckFunc(ctx)
	}
	return nil
}

// Configure implements Driver interface.
func (m *MockDriver) Configure(map[string]any) error {
	return nil
}
