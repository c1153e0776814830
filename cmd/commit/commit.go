// Package commit implements the commit command.
package commit

import (
	"github.com/spf13/cobra"

	"github.com/joshsymonds/fixloop/internal/cli"
	"github.com/joshsymonds/fixloop/internal/render"
)

// NewCommand creates the commit command.
func NewCommand(g *cli.Globals) *cobra.Command {
	var message string

	cmd := &cobra.Command{
		Use:   "commit",
		Short: "Commit applied fixes and push them",
		Long: `Stage every changed Java file of the working copy, commit it and push the
branch to the configured remote. Working copies without that remote are
committed locally. The committed code becomes the new metrics baseline.`,
		Example: `  fixloop commit -m "Fix NP_NULL_ON_SOME_PATH in Foo"`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := g.App()
			if err != nil {
				return err
			}
			res := a.Coordinator.Commit(cmd.Context(), message)
			if err := g.Emit(cmd.OutOrStdout(), res, func(p *render.Printer) {
				p.Committed(res)
			}); err != nil {
				return err
			}
			return cli.Check(res.Outcome)
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "Commit message (required)")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}
