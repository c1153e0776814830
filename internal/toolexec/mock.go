package toolexec

import (
	"context"
	"sync"
)

// MockExecutor records commands and replies through a handler.
type MockExecutor struct {
	Handler func(tool string, cmd Command) ([]byte, error)
	calls   []Command
	tools   []string
	mu      sync.Mutex
}

// Run implements Executor.
func (m *MockExecutor) Run(_ context.Context, tool string, cmd Command) ([]byte, error) {
	m.mu.Lock()
	m.calls = append(m.calls, cmd)
	m.tools = append(m.tools, tool)
	handler := m.Handler
	m.mu.Unlock()

	if handler == nil {
		return nil, nil
	}
	return handler(tool, cmd)
}

// Calls returns a copy of the recorded commands.
func (m *MockExecutor) Calls() []Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Command, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times tool was run.
func (m *MockExecutor) CallCount(tool string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.tools {
		if t == tool {
			n++
		}
	}
	return n
}
