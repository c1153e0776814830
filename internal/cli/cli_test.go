package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshsymonds/fixloop/internal/models"
	"github.com/joshsymonds/fixloop/internal/render"
)

func TestEmit(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		want    string
		wantErr bool
	}{
		{name: "text", output: FormatText, want: "✓ done\n"},
		{name: "default", output: "", want: "✓ done\n"},
		{name: "json", output: FormatJSON, want: "{\n  \"status\": \"success\",\n  \"message\": \"done\"\n}\n"},
		{name: "unknown", output: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := &Globals{Output: tt.output}
			outcome := models.Succeeded("done")
			var buf bytes.Buffer

			err := g.Emit(&buf, outcome, func(p *render.Printer) { p.Outcome(outcome) })
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestCheck(t *testing.T) {
	assert.NoError(t, Check(models.Succeeded("ok")))
	assert.NoError(t, Check(models.Outcome{Status: models.StatusDegraded, Message: "partial"}))

	err := Check(models.Outcome{Status: models.StatusFailed, Message: "broken"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOperationFailed)
	assert.Contains(t, err.Error(), "broken")
}

func TestReadSnippet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fix.txt")
	require.NoError(t, os.WriteFile(path, []byte("return x;\n"), 0o600))

	got, err := ReadSnippet(path, strings.NewReader("unused"))
	require.NoError(t, err)
	assert.Equal(t, "return x;\n", got)

	got, err = ReadSnippet("-", strings.NewReader("from stdin"))
	require.NoError(t, err)
	assert.Equal(t, "from stdin", got)

	_, err = ReadSnippet(filepath.Join(t.TempDir(), "missing.txt"), nil)
	assert.Error(t, err)
}

func TestConfigDefaults(t *testing.T) {
	g := NewGlobals()
	cfg, err := g.Config()
	require.NoError(t, err)
	assert.Equal(t, "cloned_repo", cfg.Workspace.RepoDir)

	g.ConfigFile = filepath.Join(t.TempDir(), "fixloop.toml")
	_, err = g.Config()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config")
}
