// Package history implements the history command for viewing the session
// journal.
package history

import (
	"github.com/spf13/cobra"

	"github.com/joshsymonds/fixloop/internal/cli"
	"github.com/joshsymonds/fixloop/internal/render"
)

// Options represents history command options.
type Options struct {
	Session  string
	Limit    int
	Sessions bool
}

// NewCommand creates the history command.
func NewCommand(g *cli.Globals) *cobra.Command {
	opts := &Options{}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show fetches, applied fixes and validations",
		Example: `  fixloop history
  fixloop history --session all --limit 20
  fixloop history --sessions`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := g.App()
			if err != nil {
				return err
			}

			if opts.Sessions {
				sessions, err := a.Journal.Sessions()
				if err != nil {
					return err
				}
				if opts.Limit > 0 && len(sessions) > opts.Limit {
					sessions = sessions[:opts.Limit]
				}
				return g.Emit(cmd.OutOrStdout(), sessions, func(p *render.Printer) {
					p.Sessions(sessions)
				})
			}

			entries, err := a.Coordinator.History(opts.Session, opts.Limit)
			if err != nil {
				return err
			}
			return g.Emit(cmd.OutOrStdout(), entries, func(p *render.Printer) {
				p.History(entries)
			})
		},
	}

	cmd.Flags().StringVar(&opts.Session, "session", "", `Session ID to show, "all" for every session (defaults to the current one)`)
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Maximum number of entries to show, newest kept")
	cmd.Flags().BoolVar(&opts.Sessions, "sessions", false, "List sessions instead of entries")
	return cmd
}
