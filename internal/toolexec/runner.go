// Package toolexec runs external command-line tools with timeouts, exit-code
// interpretation and structured errors.
package toolexec

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/joshsymonds/fixloop/internal/models"
	"github.com/joshsymonds/fixloop/internal/telemetry"
	"github.com/joshsymonds/fixloop/pkg/logger"
)

// maxOutputInError bounds how much tool output is copied into error messages.
const maxOutputInError = 2048

// Command describes one process invocation.
type Command struct {
	Env              map[string]string
	Binary           string
	Dir              string
	Stdin            string
	Args             []string
	AllowedExitCodes []int
}

// String renders the command line for logs.
func (c Command) String() string {
	return strings.TrimSpace(c.Binary + " " + strings.Join(c.Args, " "))
}

// Executor runs commands. Runner is the production implementation.
type Executor interface {
	Run(ctx context.Context, tool string, cmd Command) ([]byte, error)
}

// Runner executes commands with a per-call timeout.
type Runner struct {
	logger  logger.Logger
	timeout time.Duration
}

// NewRunner creates a runner using the global logger.
func NewRunner(timeout time.Duration) *Runner {
	return NewRunnerWithLogger(timeout, logger.GetGlobalLogger())
}

// NewRunnerWithLogger creates a runner with a custom logger.
func NewRunnerWithLogger(timeout time.Duration, log logger.Logger) *Runner {
	return &Runner{timeout: timeout, logger: log}
}

// Run executes cmd and returns its combined output. Exit codes listed in
// AllowedExitCodes count as success. Timeouts, missing binaries and crashes
// come back as *models.ToolError.
func (r *Runner) Run(ctx context.Context, tool string, cmd Command) (output []byte, err error) {
	start := time.Now()
	defer func() {
		telemetry.ObserveToolRun(tool, start, err)
	}()

	if _, lookErr := exec.LookPath(cmd.Binary); lookErr != nil {
		return nil, models.NewToolUnavailableError(tool, lookErr)
	}

	runCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	c := exec.CommandContext(runCtx, cmd.Binary, cmd.Args...)
	c.WaitDelay = time.Second
	if cmd.Dir != "" {
		c.Dir = cmd.Dir
	}
	if len(cmd.Env) > 0 {
		env := os.Environ()
		for k, v := range cmd.Env {
			env = append(env, fmt.Sprintf("%s=%s", k, v))
		}
		c.Env = env
	}
	if cmd.Stdin != "" {
		c.Stdin = strings.NewReader(cmd.Stdin)
	}

	r.logger.Debug("Running tool", "tool", tool, "command", cmd.String(), "dir", cmd.Dir)
	output, runErr := c.CombinedOutput()

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return output, models.NewToolError(tool, models.ErrorTypeTimeout,
			fmt.Errorf("%s timed out after %s: %w", tool, r.timeout, context.DeadlineExceeded))
	}

	ok, exitErr := HandleNonZeroExit(runErr, cmd.AllowedExitCodes...)
	if !ok {
		r.logger.Warn("Tool failed", "tool", tool, "error", exitErr, "duration", time.Since(start))
		return output, models.NewToolErrorf(tool, models.ErrorTypeExecution, "%v: %s", exitErr, Truncate(output))
	}

	r.logger.Debug("Tool finished", "tool", tool, "duration", time.Since(start), "output_len", len(output))
	return output, nil
}

// HandleNonZeroExit interprets exit codes for tools that return non-zero
// when they report findings.
func HandleNonZeroExit(err error, allowedCodes ...int) (bool, error) {
	if err == nil {
		return true, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		for _, code := range allowedCodes {
			if exitErr.ExitCode() == code {
				return true, nil
			}
		}
	}
	return false, err
}

// Truncate shortens tool output for inclusion in error messages.
func Truncate(output []byte) string {
	s := strings.TrimSpace(string(output))
	if len(s) <= maxOutputInError {
		return s
	}
	return s[:maxOutputInError] + "..."
}
