package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockLogger(t *testing.T) {
	mock := NewMockLogger()

	mock.Info("analysis started", "file", "Foo.java")
	mock.Debug("cache miss")
	mock.Warn("formatter failed")
	mock.Error("tool crashed", "error", "exit status 2")

	require.Len(t, *mock.Messages, 4)
	assert.True(t, mock.HasMessage("INFO", "analysis started"))
	assert.True(t, mock.HasMessageContaining("ERROR", "crashed"))
	assert.False(t, mock.HasMessage("INFO", "tool crashed"))
	assert.Equal(t, 1, mock.Count("WARN"))

	scoped := mock.With("tool", "spotbugs")
	scoped.Info("report parsed")

	last := (*mock.Messages)[len(*mock.Messages)-1]
	assert.Equal(t, "report parsed", last.Msg)
	assert.Equal(t, []any{"tool", "spotbugs"}, last.Args)

	mock.Clear()
	assert.Empty(t, *mock.Messages)
}

func TestMockLoggerZeroValue(t *testing.T) {
	var mock MockLogger
	mock.Info("hello")
	assert.True(t, mock.HasMessage("INFO", "hello"))
	assert.Contains(t, mock.String(), "[INFO] hello")
}

func TestLoggerInterface(t *testing.T) {
	var _ Logger = &SlogLogger{}
	var _ Logger = &MockLogger{}
	var _ Logger = Nop()

	exercise := func(l Logger) {
		l.Info("info")
		l.Debug("debug")
		l.Warn("warn")
		l.Error("error")
		l.With("key", "value").Info("with context")
		l.WithGroup("group").Info("grouped")
	}

	exercise(NewMockLogger())
	exercise(NewLogger(false, "text"))
	exercise(NewLogger(true, "json"))
	exercise(Nop())
	exercise(&SlogLogger{})
}

func TestGlobalLogger(t *testing.T) {
	original := GetGlobalLogger()
	t.Cleanup(func() { SetGlobalLogger(original) })

	mock := NewMockLogger()
	SetGlobalLogger(mock)

	Info("global info", "k", 1)
	WithTool("pmd").Warn("scoped")

	assert.True(t, mock.HasMessage("INFO", "global info"))
	assert.True(t, mock.HasMessage("WARN", "scoped"))
}
