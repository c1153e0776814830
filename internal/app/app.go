// Package app wires configuration into a ready coordinator.
package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joshsymonds/fixloop/internal/analyzer"
	"github.com/joshsymonds/fixloop/internal/build"
	"github.com/joshsymonds/fixloop/internal/cache"
	"github.com/joshsymonds/fixloop/internal/codemetrics"
	"github.com/joshsymonds/fixloop/internal/config"
	"github.com/joshsymonds/fixloop/internal/coordinator"
	"github.com/joshsymonds/fixloop/internal/fix"
	"github.com/joshsymonds/fixloop/internal/llm"
	"github.com/joshsymonds/fixloop/internal/models"
	"github.com/joshsymonds/fixloop/internal/normalize"
	"github.com/joshsymonds/fixloop/internal/repository"
	"github.com/joshsymonds/fixloop/internal/storage"
	"github.com/joshsymonds/fixloop/internal/toolexec"
	"github.com/joshsymonds/fixloop/internal/validate"
	"github.com/joshsymonds/fixloop/pkg/logger"
)

// App holds the long-lived components of one fixloop process.
type App struct {
	Config      *config.Config
	Coordinator *coordinator.Coordinator
	Journal     *storage.Journal
	LLM         *llm.Client
	Logger      logger.Logger
}

// Options adjust wiring for tests and alternative runtimes.
type Options struct {
	// Executor runs external tools. Defaults to toolexec runners bounded by
	// the configured timeouts.
	Executor toolexec.Executor
	// Driver replaces the configured LLM driver.
	Driver llm.Driver
}

// New builds every component from cfg. Workspace directories are made
// absolute relative to the current directory.
func New(cfg *config.Config, log logger.Logger, opts Options) (*App, error) {
	ws, err := absWorkspace(cfg.Workspace)
	if err != nil {
		return nil, err
	}

	toolExec, compileExec := opts.Executor, opts.Executor
	if toolExec == nil {
		toolExec = toolexec.NewRunnerWithLogger(cfg.Tools.Timeout, log)
		compileExec = toolexec.NewRunnerWithLogger(cfg.Tools.CompileTimeout, log)
	}

	client, err := newClient(cfg, log, opts.Driver)
	if err != nil {
		return nil, err
	}

	factory := analyzer.NewFactoryWithLogger(cfg.Tools, toolExec, log)
	analyzers := make([]analyzer.Analyzer, 0, 2)
	for _, tool := range []models.Tool{models.ToolSpotBugs, models.ToolPMD} {
		a, err := factory.Create(tool)
		if err != nil {
			return nil, err
		}
		analyzers = append(analyzers, a)
	}

	normalizer := normalize.NewNormalizerWithLogger(ws.RepoDir, ws.SourceRoot, log)
	if cfg.Tools.DescriptionsFile != "" {
		if err := normalizer.LoadDescriptions(cfg.Tools.DescriptionsFile); err != nil {
			return nil, err
		}
	}

	compiler := build.NewProjectCompilerWithLogger(ws.RepoDir, ws.SourceRoot, cfg.Tools.Javac, compileExec, log)
	pipeline := analyzer.NewPipelineWithLogger(analyzer.PipelineConfig{
		RepoRoot:   ws.RepoDir,
		SourceRoot: ws.SourceRoot,
		BinDir:     ws.BinDir,
		ReportsDir: ws.ReportsDir,
	}, normalizer, compiler, log, analyzers...)

	var formatter build.Formatter = build.NopFormatter{}
	if _, err := os.Stat(cfg.Tools.FormatterJar); err == nil {
		formatter = build.NewJarFormatterWithLogger(cfg.Tools.Java, cfg.Tools.FormatterJar, toolExec, log)
	} else {
		log.Warn("Formatter jar not found, fixes stay unformatted", "jar", cfg.Tools.FormatterJar)
	}

	metrics := codemetrics.NewStoreWithLogger(cfg.Tools.Java, cfg.Tools.CKJar, ws.DataDir, toolExec, log)
	analysisCache := cache.NewAnalysisCache(cfg.Cache.TTL, cache.WithLogger(log))
	workspace := fix.NewWorkspace(ws.ScratchDir)

	applier := fix.NewApplierWithLogger(ws.RepoDir, client, formatter, metrics, analysisCache, workspace, log)
	manager := fix.NewCandidateManagerWithLogger(client, applier, metrics, analysisCache, workspace, fix.ManagerOptions{
		Formatter:   formatter,
		PerRequest:  cfg.LLM.Candidates,
		Parallelism: cfg.LLM.Parallelism,
	}, log)

	journal, err := storage.NewJournalWithLogger(ws.DataDir, log)
	if err != nil {
		return nil, err
	}
	if _, err := journal.Resume(); err != nil {
		log.Warn("Could not resume journal session", "error", err)
	}

	fetcher := repository.NewFetcher(ws.RepoDir,
		repository.WithLogger(log),
		repository.WithToken(cfg.Repository.Token()),
		repository.WithDepth(cfg.Repository.Depth))

	committer := repository.NewCommitter(ws.RepoDir,
		repository.WithLogger(log),
		repository.WithToken(cfg.Repository.Token()),
		repository.WithRemote(cfg.Repository.Remote),
		repository.WithAuthor(cfg.Repository.AuthorName, cfg.Repository.AuthorEmail))

	coord, err := coordinator.NewWithLogger(coordinator.Deps{
		Fetcher:    fetcher,
		Committer:  committer,
		Scanner:    pipeline,
		Metrics:    metrics,
		Cache:      analysisCache,
		Candidates: manager,
		Applier:    applier,
		Validator:  validate.NewValidatorWithLogger(pipeline, cfg.MatchWindow, log),
		Workspace:  workspace,
		Journal:    journal,
		Extractor:  client,
		RepoRoot:   ws.RepoDir,
	}, log)
	if err != nil {
		return nil, err
	}

	return &App{
		Config:      cfg,
		Coordinator: coord,
		Journal:     journal,
		LLM:         client,
		Logger:      log,
	}, nil
}

func newClient(cfg *config.Config, log logger.Logger, driver llm.Driver) (*llm.Client, error) {
	if driver != nil {
		return llm.NewClientWithLogger(driver, log), nil
	}
	client, err := llm.NewClientFromRegistry(llm.DefaultRegistry, cfg.LLM.Driver, cfg.LLMSettings(), log)
	if err != nil {
		return nil, fmt.Errorf("creating LLM client: %w", err)
	}
	return client, nil
}

func absWorkspace(ws config.WorkspaceConfig) (config.WorkspaceConfig, error) {
	for _, dir := range []*string{&ws.RepoDir, &ws.BinDir, &ws.ScratchDir, &ws.ReportsDir, &ws.DataDir} {
		if *dir == "" {
			continue
		}
		abs, err := filepath.Abs(*dir)
		if err != nil {
			return ws, fmt.Errorf("resolving workspace directory %s: %w", *dir, err)
		}
		*dir = abs
	}
	return ws, nil
}
