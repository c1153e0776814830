package models

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
)

// ErrorType classifies failures of external collaborators.
type ErrorType string

const (
	// ErrorTypeParse indicates a malformed tool report.
	ErrorTypeParse ErrorType = "parse"
	// ErrorTypeCompile indicates the compiler rejected the sources.
	ErrorTypeCompile ErrorType = "compile"
	// ErrorTypeNoChange indicates a fix transformation produced no diff.
	ErrorTypeNoChange ErrorType = "no_change"
	// ErrorTypeUnavailable indicates a missing or misconfigured binary.
	ErrorTypeUnavailable ErrorType = "unavailable"
	// ErrorTypeTimeout indicates an adapter deadline was exceeded.
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeExecution indicates a tool crashed or exited unexpectedly.
	ErrorTypeExecution ErrorType = "execution"
	// ErrorTypeConfig indicates invalid input or configuration.
	ErrorTypeConfig ErrorType = "config"
)

// ErrNoChange is wrapped by every no-change failure.
var ErrNoChange = errors.New("no changes made, the fix was not applied")

// ToolError is a structured failure from an external collaborator.
type ToolError struct {
	Err     error
	Tool    string
	Type    ErrorType
	Message string
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	return fmt.Sprintf("%s %s error: %s", e.Tool, e.Type, e.Message)
}

// Unwrap returns the underlying error.
func (e *ToolError) Unwrap() error {
	return e.Err
}

// NewToolError wraps err with tool context.
func NewToolError(tool string, errType ErrorType, err error) *ToolError {
	msg := string(errType)
	if err != nil {
		msg = err.Error()
	}
	return &ToolError{Tool: tool, Type: errType, Message: msg, Err: err}
}

// NewToolErrorf creates a ToolError with a formatted message.
func NewToolErrorf(tool string, errType ErrorType, format string, args ...any) *ToolError {
	return &ToolError{Tool: tool, Type: errType, Message: fmt.Sprintf(format, args...)}
}

// NewParseError reports a malformed report from tool.
func NewParseError(tool string, err error) *ToolError {
	return NewToolError(tool, ErrorTypeParse, err)
}

// NewCompileError reports a failed compilation with the compiler output.
func NewCompileError(file, output string) *ToolError {
	return NewToolErrorf("compiler", ErrorTypeCompile, "compilation of %s failed: %s", file, output)
}

// NewNoChangeError reports a replacement that left file unchanged.
func NewNoChangeError(file string) *ToolError {
	return &ToolError{
		Tool:    "applier",
		Type:    ErrorTypeNoChange,
		Message: fmt.Sprintf("%s: %s", file, ErrNoChange.Error()),
		Err:     ErrNoChange,
	}
}

// NewToolUnavailableError reports a binary that cannot be executed.
func NewToolUnavailableError(tool string, err error) *ToolError {
	return NewToolError(tool, ErrorTypeUnavailable, err)
}

// WrapToolError classifies a raw execution error. Deadlines become timeouts
// and missing executables become unavailable errors.
func WrapToolError(tool string, err error) error {
	if err == nil {
		return nil
	}

	var te *ToolError
	if errors.As(err, &te) {
		return err
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewToolError(tool, ErrorTypeTimeout, err)
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist), errors.Is(err, fs.ErrPermission):
		return NewToolUnavailableError(tool, err)
	default:
		return NewToolError(tool, ErrorTypeExecution, err)
	}
}

// ClassifyError returns the ErrorType carried by err, or execution.
func ClassifyError(err error) ErrorType {
	var te *ToolError
	if errors.As(err, &te) {
		return te.Type
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeTimeout
	}
	return ErrorTypeExecution
}

func isType(err error, t ErrorType) bool {
	var te *ToolError
	return errors.As(err, &te) && te.Type == t
}

// IsParseError reports whether err is a malformed-report error.
func IsParseError(err error) bool { return isType(err, ErrorTypeParse) }

// IsCompileError reports whether err is a compilation failure.
func IsCompileError(err error) bool { return isType(err, ErrorTypeCompile) }

// IsNoChange reports whether err signals a replacement with no effect.
func IsNoChange(err error) bool { return errors.Is(err, ErrNoChange) || isType(err, ErrorTypeNoChange) }

// IsToolUnavailable reports whether err is a missing-binary error.
func IsToolUnavailable(err error) bool { return isType(err, ErrorTypeUnavailable) }

// IsTimeout reports whether err is an adapter timeout.
func IsTimeout(err error) bool { return isType(err, ErrorTypeTimeout) }
