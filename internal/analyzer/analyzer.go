// Package analyzer drives the SpotBugs and PMD command-line tools. Adapters
// only write reports; parsing belongs to the normalize package.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joshsymonds/fixloop/internal/config"
	"github.com/joshsymonds/fixloop/internal/models"
	"github.com/joshsymonds/fixloop/internal/toolexec"
	"github.com/joshsymonds/fixloop/pkg/logger"
)

// Common errors returned by analyzers.
var (
	ErrNoClassFiles = errors.New("no compiled .class files found")
	ErrUnknownTool  = errors.New("unknown analysis tool")
)

// Analyzer runs one static-analysis tool. Implementations are stateless and
// safe for concurrent use as long as callers pass distinct report paths.
type Analyzer interface {
	// Tool identifies the analyzer.
	Tool() models.Tool

	// RunAnalysis analyzes target and writes an XML report to reportPath.
	// For compiled tools target is the class output directory, otherwise it
	// is a single source file. A run that leaves no report means zero
	// findings.
	RunAnalysis(ctx context.Context, target, reportPath string) error
}

// Factory builds analyzers from configuration.
type Factory struct {
	exec   toolexec.Executor
	logger logger.Logger
	tools  config.ToolsConfig
}

// NewFactory creates an analyzer factory.
func NewFactory(tools config.ToolsConfig, exec toolexec.Executor) *Factory {
	return NewFactoryWithLogger(tools, exec, logger.GetGlobalLogger())
}

// NewFactoryWithLogger creates an analyzer factory with a custom logger.
func NewFactoryWithLogger(tools config.ToolsConfig, exec toolexec.Executor, log logger.Logger) *Factory {
	return &Factory{tools: tools, exec: exec, logger: log}
}

// Create returns the analyzer for tool.
func (f *Factory) Create(tool models.Tool) (Analyzer, error) {
	switch tool {
	case models.ToolSpotBugs:
		return NewSpotBugsWithLogger(f.tools.SpotBugs, f.exec, f.logger), nil
	case models.ToolPMD:
		return NewPMDWithLogger(f.tools.PMD, f.tools.PMDRuleset, f.exec, f.logger), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, tool)
	}
}

// prepareReport removes a stale report so a silent run cannot be mistaken
// for fresh results, and creates the report directory.
func prepareReport(reportPath string) error {
	if err := os.Remove(reportPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing stale report: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(reportPath), 0o750); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}
	return nil
}

// HasClassFiles reports whether dir contains at least one compiled class.
func HasClassFiles(dir string) bool {
	found := false
	_ = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".class") {
			found = true
			return fs.SkipAll
		}
		return nil
	})
	return found
}
