// Package fetch implements the fetch command.
package fetch

import (
	"github.com/spf13/cobra"

	"github.com/joshsymonds/fixloop/internal/cli"
	"github.com/joshsymonds/fixloop/internal/render"
)

// NewCommand creates the fetch command.
func NewCommand(g *cli.Globals) *cobra.Command {
	var branch string

	cmd := &cobra.Command{
		Use:   "fetch <url|path>",
		Short: "Replace the working copy with a repository",
		Long: `Clone a git repository, or copy a local directory, into the working copy.

Every cache, compiled class, scratch workspace and candidate batch of the
previous repository is discarded, and a new journal session starts.
GitHub blob URLs select the branch and report the file they point at.`,
		Example: `  fixloop fetch https://github.com/acme/service
  fixloop fetch https://github.com/acme/service/blob/main/src/main/java/com/acme/Foo.java
  fixloop fetch ../service --branch develop`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.App()
			if err != nil {
				return err
			}
			if branch == "" {
				branch = a.Config.Repository.Branch
			}
			res := a.Coordinator.FetchRepository(cmd.Context(), args[0], branch)
			if err := g.Emit(cmd.OutOrStdout(), res, func(p *render.Printer) {
				p.Fetch(res)
			}); err != nil {
				return err
			}
			return cli.Check(res.Outcome)
		},
	}

	cmd.Flags().StringVar(&branch, "branch", "", "Branch to check out (defaults to repository.branch)")
	return cmd
}
