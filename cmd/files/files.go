// Package files implements the files command.
package files

import (
	"github.com/spf13/cobra"

	"github.com/joshsymonds/fixloop/internal/cli"
	"github.com/joshsymonds/fixloop/internal/render"
)

// NewCommand creates the files command.
func NewCommand(g *cli.Globals) *cobra.Command {
	return &cobra.Command{
		Use:   "files",
		Short: "List Java sources in the working copy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := g.App()
			if err != nil {
				return err
			}
			res := a.Coordinator.ListFiles(cmd.Context())
			if err := g.Emit(cmd.OutOrStdout(), res, func(p *render.Printer) {
				if !res.Outcome.OK() {
					p.Outcome(res.Outcome)
					return
				}
				p.Files(res.Files)
			}); err != nil {
				return err
			}
			return cli.Check(res.Outcome)
		},
	}
}
