// Package apply implements the apply command.
package apply

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joshsymonds/fixloop/internal/cli"
	"github.com/joshsymonds/fixloop/internal/coordinator"
	"github.com/joshsymonds/fixloop/internal/render"
)

// NewCommand creates the apply command.
func NewCommand(g *cli.Globals) *cobra.Command {
	var snippetFile, fixFile string

	cmd := &cobra.Command{
		Use:   "apply <file>",
		Short: "Replace a snippet of the working copy with a fix",
		Long: `Splice the fixed code in place of the buggy snippet, format the file and
print how the tracked metrics changed against the file's initial metrics.
Either file may be "-" to read it from stdin.`,
		Example: `  fixloop apply src/main/java/com/acme/Foo.java --snippet-file buggy.txt --fix-file fixed.txt
  pbpaste | fixloop apply Foo.java --snippet-file buggy.txt --fix-file -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if snippetFile == "-" && fixFile == "-" {
				return fmt.Errorf("only one of --snippet-file and --fix-file can read stdin")
			}
			buggy, err := cli.ReadSnippet(snippetFile, cmd.InOrStdin())
			if err != nil {
				return err
			}
			fixed, err := cli.ReadSnippet(fixFile, cmd.InOrStdin())
			if err != nil {
				return err
			}

			a, err := g.App()
			if err != nil {
				return err
			}
			res := a.Coordinator.ApplyFix(cmd.Context(), coordinator.ApplyRequest{
				File:  args[0],
				Buggy: buggy,
				Fixed: fixed,
			})
			if err := g.Emit(cmd.OutOrStdout(), res, func(p *render.Printer) {
				p.Applied(res)
			}); err != nil {
				return err
			}
			return cli.Check(res.Outcome)
		},
	}

	cmd.Flags().StringVar(&snippetFile, "snippet-file", "", "File holding the buggy snippet (required)")
	cmd.Flags().StringVar(&fixFile, "fix-file", "", "File holding the fixed code (required)")
	_ = cmd.MarkFlagRequired("snippet-file")
	_ = cmd.MarkFlagRequired("fix-file")
	return cmd
}
