// Package validate decides whether a fix removed the finding it targeted.
package validate

import (
	"context"
	"fmt"

	"golang.org/x/text/cases"

	"github.com/joshsymonds/fixloop/internal/models"
	"github.com/joshsymonds/fixloop/internal/normalize"
	"github.com/joshsymonds/fixloop/internal/telemetry"
	"github.com/joshsymonds/fixloop/pkg/logger"
	"github.com/joshsymonds/fixloop/pkg/pathutil"
)

const purposeValidate = "validate"

// Scanner compiles and analyzes files of the working copy.
type Scanner interface {
	Compile(ctx context.Context, file pathutil.PathKey) error
	Run(ctx context.Context, file pathutil.PathKey, tool models.Tool, purpose string) (normalize.Report, error)
}

// WindowFunc returns the line tolerance used to re-identify findings of tool.
type WindowFunc func(tool models.Tool) int

// Validator re-analyzes a file after a fix.
type Validator struct {
	scanner Scanner
	window  WindowFunc
	logger  logger.Logger
}

// NewValidator creates a validator using the global logger. A nil window
// uses each tool's default tolerance.
func NewValidator(scanner Scanner, window WindowFunc) *Validator {
	return NewValidatorWithLogger(scanner, window, logger.GetGlobalLogger())
}

// NewValidatorWithLogger creates a validator with a custom logger.
func NewValidatorWithLogger(scanner Scanner, window WindowFunc, log logger.Logger) *Validator {
	if window == nil {
		window = models.Tool.DefaultMatchWindow
	}
	return &Validator{scanner: scanner, window: window, logger: log}
}

// Validate recompiles file when tool needs classes, re-runs the analyzer
// without consulting any cache and looks for targetType near targetLine.
// It never fails: any error yields a result with Fixed false.
func (v *Validator) Validate(ctx context.Context, file pathutil.PathKey, targetLine int, targetType string,
	tool models.Tool) (result models.ValidationResult) {
	log := v.logger.With("file", file, "tool", tool, "type", targetType, "line", targetLine)
	failed := false
	defer func() {
		if r := recover(); r != nil {
			log.Error("Validation panicked", "panic", r)
			result = models.FailedValidation(fmt.Sprintf("Validation failed: %v", r))
			failed = true
		}
		telemetry.ObserveValidation(tool, result, failed)
	}()

	compileFailed := false
	if tool.Compiled() {
		if err := v.scanner.Compile(ctx, file); err != nil {
			log.Warn("Compilation failed before validation, analyzing stale classes", "error", err)
			compileFailed = true
		}
	}

	report, err := v.scanner.Run(ctx, file, tool, purposeValidate)
	if err != nil {
		log.Warn("Validation analysis failed", "error", err)
		failed = true
		result = models.FailedValidation("Validation failed: " + err.Error())
		result.ErrorType = models.ClassifyError(err)
		result.CompileFailed = compileFailed
		return result
	}

	findings := models.ForFile(report.Findings, file)
	window := v.window(tool)
	match, found := Match(findings, targetLine, targetType, window)

	result = Classify(findings, targetType, found)
	result.CompileFailed = compileFailed
	if found {
		result.MatchedAtLine = match.Line
	}
	result.Summarize()

	log.Info("Validation finished", "fixed", result.Fixed, "other_findings", result.RemainingCount,
		"window", window, "compile_failed", compileFailed)
	return result
}

// Match finds a finding of targetType whose line lies within window lines
// of targetLine. Type comparison ignores case.
func Match(findings []models.Finding, targetLine int, targetType string, window int) (models.Finding, bool) {
	fold := cases.Fold()
	want := fold.String(targetType)
	lo := max(1, targetLine-window)
	hi := targetLine + window

	for _, f := range findings {
		if fold.String(f.Type) != want {
			continue
		}
		if f.Line >= lo && f.Line <= hi {
			return f, true
		}
	}
	return models.Finding{}, false
}

// Classify builds the result for the findings of one file. When the target
// is gone every finding is reported as other; otherwise findings of the
// target type are excluded.
func Classify(findings []models.Finding, targetType string, found bool) models.ValidationResult {
	if !found {
		other := make([]models.Finding, len(findings))
		copy(other, findings)
		return models.ValidationResult{Fixed: true, OtherFindings: other}
	}

	fold := cases.Fold()
	want := fold.String(targetType)
	other := make([]models.Finding, 0, len(findings))
	for _, f := range findings {
		if fold.String(f.Type) != want {
			other = append(other, f)
		}
	}
	return models.ValidationResult{Fixed: false, OtherFindings: other}
}
