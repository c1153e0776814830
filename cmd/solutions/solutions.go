// Package solutions implements the solutions command: candidate generation
// with optional refinement, application and validation in one run.
package solutions

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joshsymonds/fixloop/internal/cli"
	"github.com/joshsymonds/fixloop/internal/coordinator"
	"github.com/joshsymonds/fixloop/internal/models"
	"github.com/joshsymonds/fixloop/internal/render"
)

// Options represents solutions command options.
type Options struct {
	Tool     string
	Type     string
	Feedback string
	Line     int
	Refine   int
	Apply    int
	Validate bool
}

// report is the JSON document printed with --output json.
type report struct {
	Refined    *coordinator.CandidateResult   `json:"refined,omitempty"`
	Applied    *coordinator.ApplyOutcome      `json:"applied,omitempty"`
	Validation *coordinator.ValidationOutcome `json:"validation,omitempty"`
	Candidates coordinator.CandidatesResult   `json:"candidates"`
}

// NewCommand creates the solutions command.
func NewCommand(g *cli.Globals) *cobra.Command {
	opts := &Options{}

	cmd := &cobra.Command{
		Use:   "solutions <file>",
		Short: "Generate candidate fixes for one finding",
		Long: `Analyze the file, pick the finding of --type at --line and ask the model for
candidate fixes. Each candidate is applied to its own scratch copy and
measured; the working copy is not modified.

Candidates only live for the duration of the command, so refinement,
application and validation of a candidate happen in the same run.`,
		Example: `  fixloop solutions src/main/java/com/acme/Foo.java --type NP_NULL_ON_SOME_PATH --line 42
  fixloop solutions Foo.java --type NP_NULL_ON_SOME_PATH --line 42 --refine 1 --feedback "use Optional"
  fixloop solutions Foo.java --type NP_NULL_ON_SOME_PATH --line 42 --apply 1 --validate`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, g, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Tool, "tool", string(models.ToolSpotBugs), "Analyzer that reported the finding (spotbugs, pmd)")
	cmd.Flags().StringVar(&opts.Type, "type", "", "Bug type of the finding (required)")
	cmd.Flags().IntVar(&opts.Line, "line", 0, "Line of the finding (required)")
	cmd.Flags().IntVar(&opts.Refine, "refine", 0, "Refine this solution with --feedback")
	cmd.Flags().StringVar(&opts.Feedback, "feedback", "", "Feedback used to refine a solution")
	cmd.Flags().IntVar(&opts.Apply, "apply", 0, "Apply this solution to the working copy")
	cmd.Flags().BoolVar(&opts.Validate, "validate", false, "Validate the applied solution")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("line")

	return cmd
}

func run(cmd *cobra.Command, g *cli.Globals, opts *Options, file string) error {
	if opts.Refine > 0 && opts.Feedback == "" {
		return fmt.Errorf("--refine requires --feedback")
	}
	if opts.Validate && opts.Apply == 0 {
		return fmt.Errorf("--validate requires --apply")
	}
	tool, err := models.ParseTool(opts.Tool)
	if err != nil {
		return err
	}

	a, err := g.App()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	coord := a.Coordinator

	out := report{}
	out.Candidates = coord.GenerateCandidates(ctx, coordinator.CandidatesRequest{
		File: file,
		Tool: tool,
		Type: opts.Type,
		Line: opts.Line,
	})
	last := out.Candidates.Outcome

	if last.OK() && opts.Refine > 0 {
		refined := coord.RefineCandidate(ctx, file, opts.Refine, opts.Feedback)
		out.Refined, last = &refined, refined.Outcome
	}
	if last.OK() && opts.Apply > 0 {
		applied := coord.ApplyFix(ctx, coordinator.ApplyRequest{File: file, SolutionID: opts.Apply})
		out.Applied, last = &applied, applied.Outcome
	}
	if last.OK() && opts.Validate {
		validated := coord.Validate(ctx, coordinator.ValidateRequest{File: file, Tool: tool, Type: opts.Type, Line: opts.Line})
		out.Validation, last = &validated, validated.Outcome
	}

	if err := g.Emit(cmd.OutOrStdout(), out, func(p *render.Printer) {
		p.Candidates(out.Candidates)
		if out.Refined != nil {
			p.Candidate(*out.Refined)
		}
		if out.Applied != nil {
			p.Applied(*out.Applied)
		}
		if out.Validation != nil {
			p.Validation(*out.Validation)
		}
	}); err != nil {
		return err
	}
	return cli.Check(last)
}
