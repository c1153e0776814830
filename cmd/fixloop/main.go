// Package main is the entry point for the fixloop CLI.
// Fixloop fetches a Java repository, runs SpotBugs or PMD on its files, asks
// an LLM for candidate fixes, measures each candidate in isolation, applies
// the chosen one and verifies that the finding is gone.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/joshsymonds/fixloop/cmd/analyze"
	"github.com/joshsymonds/fixloop/cmd/apply"
	"github.com/joshsymonds/fixloop/cmd/commit"
	"github.com/joshsymonds/fixloop/cmd/config"
	"github.com/joshsymonds/fixloop/cmd/fetch"
	"github.com/joshsymonds/fixloop/cmd/files"
	"github.com/joshsymonds/fixloop/cmd/history"
	"github.com/joshsymonds/fixloop/cmd/serve"
	"github.com/joshsymonds/fixloop/cmd/solutions"
	"github.com/joshsymonds/fixloop/cmd/validate"
	"github.com/joshsymonds/fixloop/internal/cli"
	"github.com/joshsymonds/fixloop/pkg/logger"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	root := newRootCommand(cli.NewGlobals())
	if err := root.ExecuteContext(context.Background()); err != nil {
		// Failed operations have already printed their outcome.
		if !errors.Is(err, cli.ErrOperationFailed) {
			logger.Error("command failed", "error", err)
		}
		os.Exit(1)
	}
}

func newRootCommand(g *cli.Globals) *cobra.Command {
	root := &cobra.Command{
		Use:   "fixloop",
		Short: "Fix static analysis findings in Java repositories",
		Long: `Fixloop runs the bug-fix lifecycle for a Java repository: fetch it, analyze
a file with SpotBugs or PMD, generate candidate fixes, compare their code
metrics, apply one and validate that the finding is gone.`,
		Example: `  fixloop fetch https://github.com/acme/service
  fixloop analyze src/main/java/com/acme/Foo.java
  fixloop solutions src/main/java/com/acme/Foo.java --type NP_NULL_ON_SOME_PATH --line 42 --apply 1 --validate
  fixloop commit -m "Fix NP_NULL_ON_SOME_PATH in Foo"
  fixloop history --session all`,
		Version:       fmt.Sprintf("%s (built %s)", version, buildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			switch g.Output {
			case cli.FormatText, cli.FormatJSON:
			default:
				return fmt.Errorf("unknown output format %q", g.Output)
			}
			logger.SetupLogger(g.Debug, g.LogFormat)
			return nil
		},
	}
	root.SetVersionTemplate("fixloop version {{.Version}}\n")

	flags := root.PersistentFlags()
	flags.StringVarP(&g.ConfigFile, "config", "c", "", "Configuration file (defaults are used when omitted)")
	flags.BoolVar(&g.Debug, "debug", false, "Enable debug logging")
	flags.StringVar(&g.LogFormat, "log-format", g.LogFormat, "Log format (text or json)")
	flags.StringVarP(&g.Output, "output", "o", g.Output, "Output format (text or json)")

	root.AddCommand(
		fetch.NewCommand(g),
		files.NewCommand(g),
		analyze.NewCommand(g),
		solutions.NewCommand(g),
		apply.NewCommand(g),
		validate.NewCommand(g),
		commit.NewCommand(g),
		history.NewCommand(g),
		serve.NewCommand(g),
		config.NewCommand(g),
	)
	return root
}
