package analyzer

import (
	"context"
	"fmt"

	"github.com/joshsymonds/fixloop/internal/models"
	"github.com/joshsymonds/fixloop/internal/toolexec"
	"github.com/joshsymonds/fixloop/pkg/logger"
)

// Visitors that produce mostly noise on student-sized projects.
const (
	spotbugsOmitVisitors  = "FindDeadLocalStores,FindUnrelatedTypesInGenericContainer"
	spotbugsBugCategories = "BAD_PRACTICE,CORRECTNESS,PERFORMANCE,SECURITY"
)

// SpotBugs analyzes compiled classes.
type SpotBugs struct {
	exec   toolexec.Executor
	logger logger.Logger
	binary string
}

// NewSpotBugs creates a SpotBugs adapter.
func NewSpotBugs(binary string, exec toolexec.Executor) *SpotBugs {
	return NewSpotBugsWithLogger(binary, exec, logger.GetGlobalLogger())
}

// NewSpotBugsWithLogger creates a SpotBugs adapter with a custom logger.
func NewSpotBugsWithLogger(binary string, exec toolexec.Executor, log logger.Logger) *SpotBugs {
	return &SpotBugs{binary: binary, exec: exec, logger: log}
}

// Tool implements Analyzer.
func (s *SpotBugs) Tool() models.Tool { return models.ToolSpotBugs }

// RunAnalysis implements Analyzer. binDir must already hold compiled classes.
func (s *SpotBugs) RunAnalysis(ctx context.Context, binDir, reportPath string) error {
	if err := prepareReport(reportPath); err != nil {
		return models.NewToolError(string(models.ToolSpotBugs), models.ErrorTypeExecution, err)
	}
	if !HasClassFiles(binDir) {
		return models.NewToolError(string(models.ToolSpotBugs), models.ErrorTypeExecution,
			fmt.Errorf("%w in %s", ErrNoClassFiles, binDir))
	}

	cmd := toolexec.Command{
		Binary: s.binary,
		Args:   s.args(binDir, reportPath),
	}
	s.logger.Info("Running SpotBugs", "target", binDir, "report", reportPath)
	if _, err := s.exec.Run(ctx, string(models.ToolSpotBugs), cmd); err != nil {
		return fmt.Errorf("spotbugs analysis failed: %w", err)
	}
	return nil
}

func (s *SpotBugs) args(binDir, reportPath string) []string {
	return []string{
		"-textui",
		"-effort:max",
		"-low",
		"-xml",
		"-output", reportPath,
		"-omitVisitors", spotbugsOmitVisitors,
		"-bugCategories", spotbugsBugCategories,
		binDir,
	}
}
