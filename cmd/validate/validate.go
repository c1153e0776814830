// Package validate implements the validate command.
package validate

import (
	"github.com/spf13/cobra"

	"github.com/joshsymonds/fixloop/internal/cli"
	"github.com/joshsymonds/fixloop/internal/coordinator"
	"github.com/joshsymonds/fixloop/internal/models"
	"github.com/joshsymonds/fixloop/internal/render"
)

// NewCommand creates the validate command.
func NewCommand(g *cli.Globals) *cobra.Command {
	var (
		tool    string
		bugType string
		line    int
	)

	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Check whether a fixed finding is gone",
		Long: `Recompile the file when the analyzer needs classes, re-run the analyzer
without the cache and look for the finding near its original line. Line
drift of a few lines caused by the fix is tolerated.`,
		Example: `  fixloop validate src/main/java/com/acme/Foo.java --type NP_NULL_ON_SOME_PATH --line 42
  fixloop validate Foo.java --tool pmd --type UnusedLocalVariable --line 17`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := models.ParseTool(tool)
			if err != nil {
				return err
			}
			a, err := g.App()
			if err != nil {
				return err
			}
			res := a.Coordinator.Validate(cmd.Context(), coordinator.ValidateRequest{
				File: args[0],
				Tool: t,
				Type: bugType,
				Line: line,
			})
			if err := g.Emit(cmd.OutOrStdout(), res, func(p *render.Printer) {
				p.Validation(res)
			}); err != nil {
				return err
			}
			return cli.Check(res.Outcome)
		},
	}

	cmd.Flags().StringVar(&tool, "tool", string(models.ToolSpotBugs), "Analyzer that reported the finding (spotbugs, pmd)")
	cmd.Flags().StringVar(&bugType, "type", "", "Bug type of the finding (required)")
	cmd.Flags().IntVar(&line, "line", 0, "Original line of the finding (required)")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("line")
	return cmd
}
