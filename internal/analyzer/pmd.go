package analyzer

import (
	"context"
	"fmt"
	"os"

	"github.com/joshsymonds/fixloop/internal/models"
	"github.com/joshsymonds/fixloop/internal/toolexec"
	"github.com/joshsymonds/fixloop/pkg/logger"
)

// pmdViolationsExitCode is what PMD returns when it found violations.
const pmdViolationsExitCode = 4

// PMD lints a single source file.
type PMD struct {
	exec    toolexec.Executor
	logger  logger.Logger
	binary  string
	ruleset string
}

// NewPMD creates a PMD adapter.
func NewPMD(binary, ruleset string, exec toolexec.Executor) *PMD {
	return NewPMDWithLogger(binary, ruleset, exec, logger.GetGlobalLogger())
}

// NewPMDWithLogger creates a PMD adapter with a custom logger.
func NewPMDWithLogger(binary, ruleset string, exec toolexec.Executor, log logger.Logger) *PMD {
	return &PMD{binary: binary, ruleset: ruleset, exec: exec, logger: log}
}

// Tool implements Analyzer.
func (p *PMD) Tool() models.Tool { return models.ToolPMD }

// RunAnalysis implements Analyzer.
func (p *PMD) RunAnalysis(ctx context.Context, sourceFile, reportPath string) error {
	if err := prepareReport(reportPath); err != nil {
		return models.NewToolError(string(models.ToolPMD), models.ErrorTypeExecution, err)
	}
	if _, err := os.Stat(sourceFile); err != nil {
		return models.NewToolError(string(models.ToolPMD), models.ErrorTypeExecution,
			fmt.Errorf("source file: %w", err))
	}

	cmd := toolexec.Command{
		Binary: p.binary,
		Args: []string{
			"check",
			"--dir", sourceFile,
			"--rulesets", p.ruleset,
			"--format", "xml",
			"--report-file", reportPath,
			"--no-cache",
		},
		AllowedExitCodes: []int{pmdViolationsExitCode},
	}
	p.logger.Info("Running PMD", "target", sourceFile, "report", reportPath)
	if _, err := p.exec.Run(ctx, string(models.ToolPMD), cmd); err != nil {
		return fmt.Errorf("pmd analysis failed: %w", err)
	}
	return nil
}
