package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshsymonds/fixloop/internal/models"
)

func TestLoadConfig(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		errMsg  string
		wantErr bool
		check   func(t *testing.T, cfg *Config)
	}{
		{
			name: "full config",
			yaml: `workspace:
  repo_dir: work/repo
  scratch_dir: work/scratch
  reports_dir: work/reports
tools:
  java: /usr/bin/java
  ck_jar: /opt/ck.jar
  timeout: 90s
cache:
  ttl: 10m
validation:
  spotbugs_window: 7
  pmd_window: 12
llm:
  driver: openai
  model: gpt-4o
  candidates: 4
server:
  addr: 127.0.0.1:9000
`,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "work/repo", cfg.Workspace.RepoDir)
				assert.Equal(t, "src/main/java", cfg.Workspace.SourceRoot, "unset fields keep defaults")
				assert.Equal(t, 90*time.Second, cfg.Tools.Timeout)
				assert.Equal(t, 10*time.Minute, cfg.Cache.TTL)
				assert.Equal(t, 7, cfg.MatchWindow(models.ToolSpotBugs))
				assert.Equal(t, 12, cfg.MatchWindow(models.ToolPMD))
				assert.Equal(t, "openai", cfg.LLM.Driver)
				assert.Equal(t, 4, cfg.LLM.Candidates)
				assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
			},
		},
		{
			name: "empty file uses defaults",
			yaml: "",
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
				assert.Equal(t, 5, cfg.MatchWindow(models.ToolSpotBugs))
				assert.Equal(t, 10, cfg.MatchWindow(models.ToolPMD))
			},
		},
		{
			name:    "zero ttl",
			yaml:    "cache:\n  ttl: 0s\n",
			wantErr: true,
			errMsg:  "cache.ttl",
		},
		{
			name:    "scratch equals repo",
			yaml:    "workspace:\n  repo_dir: same\n  scratch_dir: same\n",
			wantErr: true,
			errMsg:  "scratch_dir must differ",
		},
		{
			name:    "invalid yaml",
			yaml:    "workspace: [unclosed",
			wantErr: true,
			errMsg:  "parsing config YAML",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "fixloop.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0o600))

			cfg, err := LoadConfig(path)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestLoadConfigRejectsNonYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixloop.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o600))

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config path")
}

func TestDefaultValidates(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLLMSettings(t *testing.T) {
	t.Setenv("FIXLOOP_TEST_KEY", "sk-test")

	cfg := Default()
	cfg.LLM.APIKeyEnv = "FIXLOOP_TEST_KEY"
	cfg.LLM.Endpoint = "http://localhost:1234/v1/chat/completions"

	settings := cfg.LLMSettings()
	assert.Equal(t, "sk-test", settings["api_key"])
	assert.Equal(t, cfg.LLM.Model, settings["model"])
	assert.Equal(t, cfg.LLM.MaxTokens, settings["max_tokens"])
	assert.Equal(t, cfg.LLM.Endpoint, settings["endpoint"])
}

func TestRepositoryToken(t *testing.T) {
	t.Setenv("FIXLOOP_TEST_GIT_TOKEN", "ghp_test")

	repo := RepositoryConfig{TokenEnv: "FIXLOOP_TEST_GIT_TOKEN"}
	assert.Equal(t, "ghp_test", repo.Token())
	assert.Empty(t, RepositoryConfig{}.Token())

	cfg := Default()
	cfg.Repository.Depth = -1
	assert.Error(t, cfg.Validate())

	cfg = Default()
	assert.Equal(t, "origin", cfg.Repository.Remote)
	cfg.Repository.AuthorEmail = ""
	assert.ErrorContains(t, cfg.Validate(), "repository.author_email")
}
