// Package llm talks to the language models that propose, rewrite and refine
// Java fixes.
package llm

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Request is one text completion.
type Request struct {
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Driver is the interface that all LLM drivers must implement.
type Driver interface {
	// Complete sends one request and returns the raw model text.
	Complete(ctx context.Context, req Request) (string, error)

	// GetCapabilities returns the driver's capabilities
	GetCapabilities() Capabilities

	// EstimateTokens estimates the number of tokens for a given prompt
	EstimateTokens(prompt string) (int, error)

	// HealthCheck verifies the driver is working
	HealthCheck(ctx context.Context) error

	// Configure sets driver-specific configuration
	Configure(config map[string]any) error
}

// Capabilities describes what an LLM driver can do.
type Capabilities struct {
	ModelName           string
	MaxTokensPerRequest int
}

// DriverRegistry manages available LLM drivers.
type DriverRegistry struct {
	drivers map[string]func() Driver
	mu      sync.RWMutex
}

// NewDriverRegistry creates a new driver registry.
func NewDriverRegistry() *DriverRegistry {
	return &DriverRegistry{
		drivers: make(map[string]func() Driver),
	}
}

// Register registers a new driver.
func (r *DriverRegistry) Register(name string, factory func() Driver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drivers[name] = factory
}

// Get returns a driver by name.
func (r *DriverRegistry) Get(name string) (Driver, error) {
	r.mu.RLock()
	factory, ok := r.drivers[name]
	r.mu.RUnlock()
	if !ok {
		return nil, &DriverNotFoundError{Name: name, Available: r.Names()}
	}
	return factory(), nil
}

// Names lists the registered drivers in sorted order.
func (r *DriverRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.drivers))
	for name := range r.drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DriverNotFoundError is returned when a requested driver doesn't exist.
type DriverNotFoundError struct {
	Name      string
	Available []string
}

func (e *DriverNotFoundError) Error() string {
	if len(e.Available) == 0 {
		return "driver not found: " + e.Name
	}
	return "driver not found: " + e.Name + " (available: " + strings.Join(e.Available, ", ") + ")"
}

// DefaultRegistry is the global driver registry.
var DefaultRegistry = NewDriverRegistry()

// estimateTokens is the ~4 characters per token heuristic shared by drivers.
func estimateTokens(prompt string) int {
	return len(prompt) / 4
}
