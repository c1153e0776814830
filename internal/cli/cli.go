// Package cli holds the flags and bootstrap shared by fixloop commands.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/joshsymonds/fixloop/internal/app"
	"github.com/joshsymonds/fixloop/internal/config"
	"github.com/joshsymonds/fixloop/internal/models"
	"github.com/joshsymonds/fixloop/internal/render"
	"github.com/joshsymonds/fixloop/pkg/logger"
)

// ErrOperationFailed is returned when a command's operation failed; the
// outcome has already been printed.
var ErrOperationFailed = errors.New("operation failed")

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Globals are the persistent flags of the root command.
type Globals struct {
	ConfigFile string
	LogFormat  string
	Output     string
	Debug      bool

	// NewApp builds the application; tests replace it.
	NewApp func(cfg *config.Config, log logger.Logger) (*app.App, error)
}

// NewGlobals returns globals wired to the real application.
func NewGlobals() *Globals {
	return &Globals{
		LogFormat: "text",
		Output:    FormatText,
		NewApp: func(cfg *config.Config, log logger.Logger) (*app.App, error) {
			return app.New(cfg, log, app.Options{})
		},
	}
}

// Config loads the configuration file, or the defaults when none is given.
func (g *Globals) Config() (*config.Config, error) {
	if g.ConfigFile == "" {
		cfg := config.Default()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	cfg, err := config.LoadConfig(g.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// App loads the configuration and builds the application.
func (g *Globals) App() (*app.App, error) {
	cfg, err := g.Config()
	if err != nil {
		return nil, err
	}
	return g.NewApp(cfg, logger.GetGlobalLogger())
}

// Emit writes v as JSON when requested, otherwise calls text with a printer.
func (g *Globals) Emit(w io.Writer, v any, text func(p *render.Printer)) error {
	switch g.Output {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatText, "":
		text(render.NewPrinter(w))
		return nil
	default:
		return fmt.Errorf("unknown output format %q", g.Output)
	}
}

// Check turns a failed outcome into ErrOperationFailed.
func Check(o models.Outcome) error {
	if o.OK() {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrOperationFailed, o.Message)
}

// ReadSnippet returns the contents of path, or stdin when path is "-".
func ReadSnippet(path string, stdin io.Reader) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path) //nolint:gosec // operator supplied snippet
	if err != nil {
		return "", fmt.Errorf("reading snippet: %w", err)
	}
	return string(data), nil
}
