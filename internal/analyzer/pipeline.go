package analyzer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/joshsymonds/fixloop/internal/build"
	"github.com/joshsymonds/fixloop/internal/models"
	"github.com/joshsymonds/fixloop/internal/normalize"
	"github.com/joshsymonds/fixloop/pkg/logger"
	"github.com/joshsymonds/fixloop/pkg/pathutil"
)

// PipelineConfig locates the directories a pipeline works in.
type PipelineConfig struct {
	RepoRoot   string
	SourceRoot string
	BinDir     string
	ReportsDir string
}

// Pipeline compiles, runs an analyzer and normalizes its report for one
// file of the working copy. Runs of compiled-code analyzers share the bin
// directory and are serialized with compilation.
type Pipeline struct {
	analyzers  map[models.Tool]Analyzer
	normalizer *normalize.Normalizer
	compiler   build.Compiler
	logger     logger.Logger
	cfg        PipelineConfig
	binMu      sync.Mutex
}

// NewPipeline creates a pipeline using the global logger.
func NewPipeline(cfg PipelineConfig, normalizer *normalize.Normalizer, compiler build.Compiler, analyzers ...Analyzer) *Pipeline {
	return NewPipelineWithLogger(cfg, normalizer, compiler, logger.GetGlobalLogger(), analyzers...)
}

// NewPipelineWithLogger creates a pipeline with a custom logger.
func NewPipelineWithLogger(cfg PipelineConfig, normalizer *normalize.Normalizer, compiler build.Compiler,
	log logger.Logger, analyzers ...Analyzer) *Pipeline {
	byTool := make(map[models.Tool]Analyzer, len(analyzers))
	for _, a := range analyzers {
		byTool[a.Tool()] = a
	}
	return &Pipeline{
		analyzers:  byTool,
		normalizer: normalizer,
		compiler:   compiler,
		logger:     log,
		cfg:        cfg,
	}
}

// BinDir returns the shared class output directory.
func (p *Pipeline) BinDir() string {
	return p.cfg.BinDir
}

// ClassFile returns where the top-level class compiled from file is expected.
// Sources under the source root map to their package path.
func (p *Pipeline) ClassFile(file pathutil.PathKey) string {
	rel := file.String()
	if root := strings.Trim(filepath.ToSlash(p.cfg.SourceRoot), "/"); root != "" {
		rel = strings.TrimPrefix(rel, root+"/")
	}
	rel = strings.TrimSuffix(rel, ".java") + ".class"
	return filepath.Join(p.cfg.BinDir, filepath.FromSlash(rel))
}

// NeedsCompile reports whether analyzing file with tool requires compiling
// first.
func (p *Pipeline) NeedsCompile(file pathutil.PathKey, tool models.Tool) bool {
	if !tool.Compiled() {
		return false
	}
	_, err := os.Stat(p.ClassFile(file))
	return err != nil
}

// Compile compiles file into the bin directory.
func (p *Pipeline) Compile(ctx context.Context, file pathutil.PathKey) error {
	p.binMu.Lock()
	defer p.binMu.Unlock()
	return p.compiler.Compile(ctx, file.Abs(p.cfg.RepoRoot), p.cfg.BinDir)
}

// ReportPath returns the report location for one run. purpose keeps
// analyze and validate runs apart.
func (p *Pipeline) ReportPath(file pathutil.PathKey, tool models.Tool, purpose string) string {
	name := strings.NewReplacer("/", "_", "\\", "_").Replace(strings.TrimSuffix(file.String(), ".java"))
	return filepath.Join(p.cfg.ReportsDir, fmt.Sprintf("%s_%s_%s.xml", tool, purpose, name))
}

// Run analyzes file with tool, bypassing any cache, and returns the whole
// normalized report. Callers select the findings for file themselves.
func (p *Pipeline) Run(ctx context.Context, file pathutil.PathKey, tool models.Tool, purpose string) (normalize.Report, error) {
	a, ok := p.analyzers[tool]
	if !ok {
		return normalize.Report{}, models.NewToolError(string(tool), models.ErrorTypeConfig, fmt.Errorf("%w: %s", ErrUnknownTool, tool))
	}

	reportPath := p.ReportPath(file, tool, purpose)
	target := file.Abs(p.cfg.RepoRoot)
	if tool.Compiled() {
		target = p.cfg.BinDir
		p.binMu.Lock()
		defer p.binMu.Unlock()
	}

	if err := a.RunAnalysis(ctx, target, reportPath); err != nil {
		return normalize.Report{}, err
	}

	report, err := p.normalizer.ReadReport(reportPath, tool)
	if err != nil {
		return report, err
	}
	p.logger.Debug("Analysis finished", "file", file, "tool", tool, "status", report.Status, "findings", len(report.Findings))
	return report, nil
}
