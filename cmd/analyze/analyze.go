// Package analyze implements the analyze command.
package analyze

import (
	"github.com/spf13/cobra"

	"github.com/joshsymonds/fixloop/internal/cli"
	"github.com/joshsymonds/fixloop/internal/models"
	"github.com/joshsymonds/fixloop/internal/render"
)

// NewCommand creates the analyze command.
func NewCommand(g *cli.Globals) *cobra.Command {
	var tool string

	cmd := &cobra.Command{
		Use:   "analyze <file>",
		Short: "Report static-analysis findings and metrics for one file",
		Long: `Run SpotBugs or PMD on one Java file of the working copy.

SpotBugs analyzes compiled classes; the file is compiled first when its
class file is missing. The file's initial metrics are recorded on first
analysis and serve as the baseline for every fix in the session.`,
		Example: `  fixloop analyze src/main/java/com/acme/Foo.java
  fixloop analyze src/main/java/com/acme/Foo.java --tool pmd --output json`,
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
			res := a.Coordinator.AnalyzeFile(cmd.Context(), args[0], t)
			if err := g.Emit(cmd.OutOrStdout(), res, func(p *render.Printer) {
				p.Analysis(res)
			}); err != nil {
				return err
			}
			return cli.Check(res.Outcome)
		},
	}

	cmd.Flags().StringVar(&tool, "tool", string(models.ToolSpotBugs), "Analyzer to run (spotbugs, pmd)")
	return cmd
}
