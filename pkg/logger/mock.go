package logger

import (
	"fmt"
	"strings"
	"sync"
)

// MockLogger records log calls for assertions in tests.
type MockLogger struct {
	Messages *[]LogMessage
	mu       *sync.Mutex
	attrs    []any
}

// LogMessage is one recorded log call.
type LogMessage struct {
	Level string
	Msg   string
	Args  []any
}

// NewMockLogger creates an empty mock logger.
func NewMockLogger() *MockLogger {
	messages := make([]LogMessage, 0)
	return &MockLogger{
		Messages: &messages,
		mu:       &sync.Mutex{},
	}
}

func (m *MockLogger) record(level, msg string, args []any) {
	m.lock()
	defer m.mu.Unlock()
	*m.Messages = append(*m.Messages, LogMessage{Level: level, Msg: msg, Args: m.mergeAttrs(args)})
}

// lock lazily initializes zero-value mocks.
func (m *MockLogger) lock() {
	if m.mu == nil {
		m.mu = &sync.Mutex{}
	}
	m.mu.Lock()
	if m.Messages == nil {
		messages := make([]LogMessage, 0)
		m.Messages = &messages
	}
}

// Debug logs a debug message.
func (m *MockLogger) Debug(msg string, args ...any) { m.record("DEBUG", msg, args) }

// Info logs an info message.
func (m *MockLogger) Info(msg string, args ...any) { m.record("INFO", msg, args) }

// Warn logs a warning message.
func (m *MockLogger) Warn(msg string, args ...any) { m.record("WARN", msg, args) }

// Error logs an error message.
func (m *MockLogger) Error(msg string, args ...any) { m.record("ERROR", msg, args) }

// With returns a logger sharing the message log with extra attributes.
func (m *MockLogger) With(args ...any) Logger {
	m.lock()
	defer m.mu.Unlock()

	attrs := make([]any, 0, len(m.attrs)+len(args))
	attrs = append(attrs, m.attrs...)
	attrs = append(attrs, args...)

	return &MockLogger{
		Messages: m.Messages,
		mu:       m.mu,
		attrs:    attrs,
	}
}

// WithGroup returns a logger tagged with the group name.
func (m *MockLogger) WithGroup(name string) Logger {
	return m.With("group", name)
}

func (m *MockLogger) mergeAttrs(args []any) []any {
	if len(m.attrs) == 0 {
		return args
	}
	merged := make([]any, 0, len(m.attrs)+len(args))
	merged = append(merged, m.attrs...)
	merged = append(merged, args...)
	return merged
}

// HasMessage reports whether a message with the exact level and text was logged.
func (m *MockLogger) HasMessage(level, msg string) bool {
	m.lock()
	defer m.mu.Unlock()
	for _, lm := range *m.Messages {
		if lm.Level == level && lm.Msg == msg {
			return true
		}
	}
	return false
}

// HasMessageContaining reports whether a message at level contains substring.
func (m *MockLogger) HasMessageContaining(level, substring string) bool {
	m.lock()
	defer m.mu.Unlock()
	for _, lm := range *m.Messages {
		if lm.Level == level && strings.Contains(lm.Msg, substring) {
			return true
		}
	}
	return false
}

// Count returns how many messages were logged at level.
func (m *MockLogger) Count(level string) int {
	m.lock()
	defer m.mu.Unlock()
	n := 0
	for _, lm := range *m.Messages {
		if lm.Level == level {
			n++
		}
	}
	return n
}

// Clear drops all recorded messages.
func (m *MockLogger) Clear() {
	m.lock()
	defer m.mu.Unlock()
	*m.Messages = (*m.Messages)[:0]
}

// String renders all recorded messages, one per line.
func (m *MockLogger) String() string {
	m.lock()
	defer m.mu.Unlock()
	var b strings.Builder
	for _, msg := range *m.Messages {
		fmt.Fprintf(&b, "[%s] %s %v\n", msg.Level, msg.Msg, msg.Args)
	}
	return b.String()
}
