// Package config provides configuration loading and validation for fixloop.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/joshsymonds/fixloop/internal/models"
	"github.com/joshsymonds/fixloop/pkg/pathutil"
)

// Config is the complete fixloop configuration.
type Config struct {
	Workspace  WorkspaceConfig  `yaml:"workspace"`
	Repository RepositoryConfig `yaml:"repository"`
	LLM        LLMConfig        `yaml:"llm"`
	Server     ServerConfig     `yaml:"server"`
	Tools      ToolsConfig      `yaml:"tools"`
	Cache      CacheConfig      `yaml:"cache"`
	Validation ValidationConfig `yaml:"validation"`
}

// WorkspaceConfig locates the working copy and the directories derived from it.
type WorkspaceConfig struct {
	RepoDir    string `yaml:"repo_dir"`
	BinDir     string `yaml:"bin_dir"`
	ScratchDir string `yaml:"scratch_dir"`
	ReportsDir string `yaml:"reports_dir"`
	DataDir    string `yaml:"data_dir"`
	SourceRoot string `yaml:"source_root"`
}

// RepositoryConfig controls how repositories are fetched and how applied
// fixes are committed back.
type RepositoryConfig struct {
	TokenEnv    string `yaml:"token_env"`
	Branch      string `yaml:"branch,omitempty"`
	Remote      string `yaml:"remote"`
	AuthorName  string `yaml:"author_name"`
	AuthorEmail string `yaml:"author_email"`
	Depth       int    `yaml:"depth"`
}

// Token returns the git token from the configured environment variable.
func (r RepositoryConfig) Token() string {
	if r.TokenEnv == "" {
		return ""
	}
	return os.Getenv(r.TokenEnv)
}

// ToolsConfig describes the external binaries fixloop drives.
type ToolsConfig struct {
	Java             string        `yaml:"java"`
	Javac            string        `yaml:"javac"`
	SpotBugs         string        `yaml:"spotbugs"`
	PMD              string        `yaml:"pmd"`
	PMDRuleset       string        `yaml:"pmd_ruleset"`
	CKJar            string        `yaml:"ck_jar"`
	FormatterJar     string        `yaml:"formatter_jar"`
	DescriptionsFile string        `yaml:"descriptions_file,omitempty"`
	Timeout          time.Duration `yaml:"timeout"`
	CompileTimeout   time.Duration `yaml:"compile_timeout"`
}

// CacheConfig controls the analysis cache.
type CacheConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// ValidationConfig holds the line tolerances used to re-identify a finding.
type ValidationConfig struct {
	SpotBugsWindow int `yaml:"spotbugs_window"`
	PMDWindow      int `yaml:"pmd_window"`
}

// LLMConfig selects and tunes the fix generation driver.
type LLMConfig struct {
	Driver      string        `yaml:"driver"`
	Model       string        `yaml:"model"`
	APIKeyEnv   string        `yaml:"api_key_env"`
	Endpoint    string        `yaml:"endpoint,omitempty"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Candidates  int           `yaml:"candidates"`
	Parallelism int           `yaml:"parallelism"`
	Timeout     time.Duration `yaml:"timeout"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
}

// Default returns a configuration usable without a config file.
func Default() *Config {
	return &Config{
		Workspace: WorkspaceConfig{
			RepoDir:    "cloned_repo",
			BinDir:     "bin",
			ScratchDir: "scratch",
			ReportsDir: "reports",
			DataDir:    "data",
			SourceRoot: "src/main/java",
		},
		Repository: RepositoryConfig{
			TokenEnv:    "GITHUB_TOKEN",
			Remote:      "origin",
			AuthorName:  "fixloop",
			AuthorEmail: "fixloop@localhost",
			Depth:       1,
		},
		Tools: ToolsConfig{
			Java:           "java",
			Javac:          "javac",
			SpotBugs:       "spotbugs",
			PMD:            "pmd",
			PMDRuleset:     "rulesets/java/quickstart.xml",
			CKJar:          "tools/ck.jar",
			FormatterJar:   "tools/google-java-format.jar",
			Timeout:        5 * time.Minute,
			CompileTimeout: 2 * time.Minute,
		},
		Cache: CacheConfig{
			TTL: 5 * time.Minute,
		},
		Validation: ValidationConfig{
			SpotBugsWindow: models.ToolSpotBugs.DefaultMatchWindow(),
			PMDWindow:      models.ToolPMD.DefaultMatchWindow(),
		},
		LLM: LLMConfig{
			Driver:      "claude-cli",
			Model:       "sonnet",
			APIKeyEnv:   "OPENAI_API_KEY",
			Temperature: 0.2,
			MaxTokens:   4000,
			Candidates:  3,
			Parallelism: 3,
			Timeout:     2 * time.Minute,
		},
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 15 * time.Minute,
			MaxBodyBytes: 4 << 20,
		},
	}
}

// LoadConfig reads a YAML file on top of the defaults and validates it.
func LoadConfig(path string) (*Config, error) {
	validPath, err := pathutil.ValidateConfigPath(path)
	if err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	data, err := os.ReadFile(validPath) //nolint:gosec // path validated above
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if c.Workspace.RepoDir == "" {
		return fmt.Errorf("workspace.repo_dir is required")
	}
	if c.Workspace.BinDir == "" {
		return fmt.Errorf("workspace.bin_dir is required")
	}
	if c.Workspace.DataDir == "" {
		return fmt.Errorf("workspace.data_dir is required")
	}
	if c.Workspace.ScratchDir == "" {
		return fmt.Errorf("workspace.scratch_dir is required")
	}
	if c.Workspace.ReportsDir == "" {
		return fmt.Errorf("workspace.reports_dir is required")
	}
	if c.Workspace.ScratchDir == c.Workspace.RepoDir {
		return fmt.Errorf("workspace.scratch_dir must differ from workspace.repo_dir")
	}
	if c.Repository.Depth < 0 {
		return fmt.Errorf("repository.depth must not be negative")
	}
	if c.Repository.AuthorName == "" || c.Repository.AuthorEmail == "" {
		return fmt.Errorf("repository.author_name and repository.author_email are required")
	}
	if c.Tools.Java == "" {
		return fmt.Errorf("tools.java is required")
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive")
	}
	if c.Tools.Timeout < 0 || c.Tools.CompileTimeout < 0 {
		return fmt.Errorf("tool timeouts must not be negative")
	}
	if c.Validation.SpotBugsWindow < 0 || c.Validation.PMDWindow < 0 {
		return fmt.Errorf("validation windows must not be negative")
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 || c.Server.MaxBodyBytes < 0 {
		return fmt.Errorf("server limits must not be negative")
	}
	if c.LLM.Candidates < 1 {
		return fmt.Errorf("llm.candidates must be at least 1")
	}
	if c.LLM.Driver == "" {
		return fmt.Errorf("llm.driver is required")
	}
	return nil
}

// MatchWindow returns the configured line tolerance for tool.
func (c *Config) MatchWindow(tool models.Tool) int {
	switch tool {
	case models.ToolPMD:
		return c.Validation.PMDWindow
	default:
		return c.Validation.SpotBugsWindow
	}
}

// LLMSettings flattens the LLM section into the map accepted by drivers.
func (c *Config) LLMSettings() map[string]any {
	settings := map[string]any{
		"model":       c.LLM.Model,
		"temperature": c.LLM.Temperature,
		"max_tokens":  c.LLM.MaxTokens,
		"timeout":     c.LLM.Timeout,
	}
	if c.LLM.APIKeyEnv != "" {
		if key := os.Getenv(c.LLM.APIKeyEnv); key != "" {
			settings["api_key"] = key
		}
	}
	if c.LLM.Endpoint != "" {
		settings["endpoint"] = c.LLM.Endpoint
	}
	return settings
}
