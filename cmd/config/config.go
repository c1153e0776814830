// Package config implements the config command.
package config

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joshsymonds/fixloop/internal/cli"
	"github.com/joshsymonds/fixloop/internal/config"
	"github.com/joshsymonds/fixloop/pkg/logger"
)

// NewCommand creates the config command.
func NewCommand(g *cli.Globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate configuration",
	}
	cmd.AddCommand(newValidateCommand(g), newShowCommand(g))
	return cmd
}

func newValidateCommand(g *cli.Globals) *cobra.Command {
	return &cobra.Command{
		Use:     "validate",
		Short:   "Validate a configuration file",
		Example: `  fixloop --config fixloop.yaml config validate`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if g.ConfigFile == "" {
				return fmt.Errorf("--config flag is required")
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Validating configuration: %s\n\n", g.ConfigFile)

			cfg, err := g.Config()
			if err != nil {
				return fmt.Errorf("configuration is invalid: %w", err)
			}

			printValidationResults(out, cfg)
			fmt.Fprintln(out, "\nConfiguration is valid!")
			return nil
		},
	}
}

func newShowCommand(g *cli.Globals) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		Long: `Print the configuration that commands would run with: the defaults, or the
file given with --config layered on top of them. The output is a valid
starting point for a new configuration file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.Config()
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(cfg); err != nil {
				return fmt.Errorf("encoding config: %w", err)
			}
			return enc.Close()
		},
	}
}

func printValidationResults(out io.Writer, cfg *config.Config) {
	fmt.Fprintln(out, "Workspace:")
	fmt.Fprintf(out, "   Working copy: %s\n", cfg.Workspace.RepoDir)
	fmt.Fprintf(out, "   Source root:  %s\n", cfg.Workspace.SourceRoot)
	fmt.Fprintf(out, "   Classes:      %s\n", cfg.Workspace.BinDir)
	fmt.Fprintf(out, "   Scratch:      %s\n", cfg.Workspace.ScratchDir)
	fmt.Fprintf(out, "   Reports:      %s\n", cfg.Workspace.ReportsDir)
	fmt.Fprintf(out, "   Data:         %s\n", cfg.Workspace.DataDir)

	fmt.Fprintln(out, "\nTools:")
	fmt.Fprintf(out, "   java: %s  javac: %s\n", cfg.Tools.Java, cfg.Tools.Javac)
	fmt.Fprintf(out, "   spotbugs: %s  pmd: %s (%s)\n", cfg.Tools.SpotBugs, cfg.Tools.PMD, cfg.Tools.PMDRuleset)
	fmt.Fprintf(out, "   metrics jar: %s\n", cfg.Tools.CKJar)
	fmt.Fprintf(out, "   formatter jar: %s\n", cfg.Tools.FormatterJar)
	fmt.Fprintf(out, "   timeouts: analysis %s, compile %s\n", cfg.Tools.Timeout, cfg.Tools.CompileTimeout)

	fmt.Fprintln(out, "\nLLM:")
	fmt.Fprintf(out, "   Driver: %s (%s)\n", cfg.LLM.Driver, cfg.LLM.Model)
	fmt.Fprintf(out, "   Candidates per finding: %d, %d measured in parallel\n", cfg.LLM.Candidates, cfg.LLM.Parallelism)
	if cfg.LLM.APIKeyEnv != "" {
		fmt.Fprintf(out, "   API key from: $%s\n", cfg.LLM.APIKeyEnv)
	}

	fmt.Fprintf(out, "\nAnalysis cache TTL: %s\n", cfg.Cache.TTL)
	fmt.Fprintf(out, "Match windows: spotbugs %d lines, pmd %d lines\n", cfg.Validation.SpotBugsWindow, cfg.Validation.PMDWindow)
	fmt.Fprintf(out, "Server: %s\n", cfg.Server.Addr)
	fmt.Fprintf(out, "Commits: %s <%s>, pushed to %s\n", cfg.Repository.AuthorName, cfg.Repository.AuthorEmail, cfg.Repository.Remote)

	if cfg.Repository.Token() != "" {
		logger.Debug("Repository token configured", "env", cfg.Repository.TokenEnv)
	}
}
