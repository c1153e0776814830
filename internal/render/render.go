// Package render prints lifecycle results for the terminal.
package render

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/joshsymonds/fixloop/internal/coordinator"
	"github.com/joshsymonds/fixloop/internal/models"
	"github.com/joshsymonds/fixloop/internal/storage"
	"github.com/joshsymonds/fixloop/pkg/pathutil"
)

// Printer writes styled results to one output. Colors are dropped when the
// output is not a terminal.
type Printer struct {
	out      io.Writer
	title    lipgloss.Style
	label    lipgloss.Style
	info     lipgloss.Style
	muted    lipgloss.Style
	code     lipgloss.Style
	good     lipgloss.Style
	warn     lipgloss.Style
	bad      lipgloss.Style
	renderer *lipgloss.Renderer
}

// NewPrinter creates a printer for out.
func NewPrinter(out io.Writer) *Printer {
	r := lipgloss.NewRenderer(out)
	return &Printer{
		out:      out,
		renderer: r,
		title:    r.NewStyle().Bold(true).Foreground(lipgloss.Color("86")),
		label:    r.NewStyle().Bold(true).Width(12),
		info:     r.NewStyle().Foreground(lipgloss.Color("246")),
		muted:    r.NewStyle().Foreground(lipgloss.Color("240")),
		code:     r.NewStyle().Foreground(lipgloss.Color("252")).PaddingLeft(4),
		good:     r.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
		warn:     r.NewStyle().Bold(true).Foreground(lipgloss.Color("214")),
		bad:      r.NewStyle().Bold(true).Foreground(lipgloss.Color("197")),
	}
}

func (p *Printer) println(s string) {
	fmt.Fprintln(p.out, s)
}

// Outcome prints the status line of an operation.
func (p *Printer) Outcome(o models.Outcome) {
	var badge string
	switch o.Status {
	case models.StatusSuccess:
		badge = p.good.Render("✓")
	case models.StatusDegraded:
		badge = p.warn.Render("!")
	default:
		badge = p.bad.Render("✗")
	}
	line := badge + " " + o.Message
	if o.ErrorType != "" {
		line += " " + p.muted.Render("("+string(o.ErrorType)+")")
	}
	p.println(line)
	if o.Detail != "" {
		p.println("  " + p.muted.Render(o.Detail))
	}
}

// Fetch prints a fetched repository.
func (p *Printer) Fetch(res coordinator.FetchResult) {
	p.Outcome(res.Outcome)
	if !res.Outcome.OK() {
		return
	}
	p.field("Directory", res.Dir)
	if res.Head != "" {
		p.field("Head", shortHash(res.Head))
	}
	if !res.File.IsZero() {
		p.field("File", res.File.String())
	}
}

// Files prints one path per line.
func (p *Printer) Files(files []pathutil.PathKey) {
	for _, f := range files {
		p.println(f.String())
	}
}

// Analysis prints the findings of one file and its initial metrics.
func (p *Printer) Analysis(res coordinator.AnalysisResult) {
	p.Outcome(res.Outcome)
	if !res.Outcome.OK() {
		return
	}
	p.println(p.title.Render(fmt.Sprintf("%s (%s)", res.File, res.Tool)))
	for _, f := range res.Findings {
		p.finding(f)
	}
	if res.Metrics != nil {
		p.println(p.title.Render("Initial metrics"))
		p.metrics(res.Metrics)
	}
}

func (p *Printer) finding(f models.Finding) {
	head := fmt.Sprintf("%4d  %s", f.Line, f.Type)
	p.println(severityStyle(p.renderer, f.Severity).Render(strings.ToUpper(orUnknown(f.Severity))) + " " + head)
	if f.Description != "" {
		p.println("      " + p.info.Render(f.Description))
	}
	if f.CodeSnippet != "" {
		p.println(p.code.Render(f.CodeSnippet))
	}
}

// Candidates prints a candidate batch, best first.
func (p *Printer) Candidates(res coordinator.CandidatesResult) {
	p.Outcome(res.Outcome)
	if len(res.Batch.Candidates) == 0 {
		return
	}
	p.field("Batch", res.Batch.BatchID)
	for _, c := range res.Batch.Candidates {
		p.candidate(c, res.Initial)
	}
}

// Candidate prints a single candidate, typically after refinement.
func (p *Printer) Candidate(res coordinator.CandidateResult) {
	p.Outcome(res.Outcome)
	if res.Candidate.SolutionID > 0 {
		p.candidate(res.Candidate, nil)
	}
}

func (p *Printer) candidate(c models.FixCandidate, initial *models.MetricsSnapshot) {
	p.println(p.title.Render(fmt.Sprintf("Solution %d (Rating %d/10)", c.SolutionID, c.Rating)))
	if c.Explanation != "" {
		p.println("  " + p.info.Render(c.Explanation))
	}
	p.println(p.code.Render(c.Code))
	switch {
	case c.Failed():
		p.println("  " + p.bad.Render("not isolated: ") + c.Error)
	case initial != nil && c.Metrics != nil:
		p.Deltas(models.CompareMetrics(initial, c.Metrics, models.TrackedMetrics...))
	}
}

// CandidateMetrics prints a measured candidate against the initial snapshot.
func (p *Printer) CandidateMetrics(res coordinator.MetricsResult) {
	p.Outcome(res.Outcome)
	if res.Metrics != nil && len(res.Deltas) == 0 {
		p.metrics(res.Metrics)
	}
	p.Deltas(res.Deltas)
}

// Applied prints the result of applying a fix.
func (p *Printer) Applied(res coordinator.ApplyOutcome) {
	p.Outcome(res.Outcome)
	if res.Result != nil {
		p.Deltas(res.Result.Deltas)
	}
}

// Deltas prints before, after and change for each metric, sorted by name.
func (p *Printer) Deltas(deltas map[string]models.MetricDelta) {
	for _, name := range sortedKeys(deltas) {
		d := deltas[name]
		change := p.muted.Render("±0")
		switch {
		case d.Delta > 0:
			change = p.warn.Render(fmt.Sprintf("+%g", d.Delta))
		case d.Delta < 0:
			change = p.good.Render(fmt.Sprintf("%g", d.Delta))
		}
		p.println(fmt.Sprintf("  %s %g → %g  %s", p.label.Render(strings.ToUpper(name)), d.Before, d.After, change))
	}
}

func (p *Printer) metrics(snap *models.MetricsSnapshot) {
	for _, name := range sortedKeys(snap.Values) {
		p.println(fmt.Sprintf("  %s %g", p.label.Render(strings.ToUpper(name)), snap.Values[name]))
	}
}

// Validation prints whether the targeted finding is gone.
func (p *Printer) Validation(res coordinator.ValidationOutcome) {
	p.Outcome(res.Outcome)
	r := res.Result
	if r.Failed {
		return
	}
	verdict := p.bad.Render("STILL PRESENT")
	if r.Fixed {
		verdict = p.good.Render("FIXED")
	}
	p.println(p.label.Render("Target") + " " + verdict)
	if r.MatchedAtLine > 0 {
		p.field("Matched at", fmt.Sprintf("line %d", r.MatchedAtLine))
	}
	if r.CompileFailed {
		p.println(p.warn.Render("Compilation failed; previously compiled classes were analyzed"))
	}
	for _, f := range r.OtherFindings {
		p.finding(f)
	}
}

// Committed prints a commit of the working copy.
func (p *Printer) Committed(res coordinator.CommitResult) {
	p.Outcome(res.Outcome)
	if res.Commit == nil {
		return
	}
	p.field("Commit", shortHash(res.Commit.Hash))
	if res.Commit.Pushed {
		p.field("Remote", res.Commit.Remote)
	}
	for _, f := range res.Commit.Files {
		p.println("  " + f.String())
	}
}

// History prints journal entries, oldest first.
func (p *Printer) History(entries []storage.Entry) {
	if len(entries) == 0 {
		p.println(p.muted.Render("No history recorded"))
		return
	}
	for _, e := range entries {
		status := p.statusStyle(e.Status).Render(string(e.Status))
		line := fmt.Sprintf("%s  %-8s %s", e.Time.Format("2006-01-02 15:04:05"), e.Kind, status)
		switch e.Kind {
		case storage.EventApply:
			line += fmt.Sprintf("  %s solution %d", e.File, e.SolutionID)
		case storage.EventValidate:
			fixed := "not fixed"
			if e.Fixed != nil && *e.Fixed {
				fixed = "fixed"
			}
			line += fmt.Sprintf("  %s %s@%d %s", e.File, e.BugType, e.Line, fixed)
		case storage.EventCommit:
			if e.Commit != "" {
				line += "  " + shortHash(e.Commit)
			}
			line += "  " + e.Message
		default:
			line += "  " + e.Message
		}
		p.println(line)
	}
}

// Sessions prints a summary line per journal session.
func (p *Printer) Sessions(sessions []storage.SessionInfo) {
	for _, s := range sessions {
		p.println(fmt.Sprintf("%s  %s  applies=%d validations=%d fixed=%d",
			s.Start.Format("2006-01-02 15:04"), s.ID, s.Applies, s.Validations, s.Fixed))
	}
}

func (p *Printer) field(label, value string) {
	p.println(p.label.Render(label+":") + " " + p.info.Render(value))
}

func (p *Printer) statusStyle(s models.Status) lipgloss.Style {
	switch s {
	case models.StatusSuccess:
		return p.good
	case models.StatusDegraded:
		return p.warn
	default:
		return p.bad
	}
}

// severityStyle returns the badge style for a severity level.
func severityStyle(r *lipgloss.Renderer, severity string) lipgloss.Style {
	base := r.NewStyle().Bold(true).Padding(0, 1)
	switch strings.ToLower(severity) {
	case models.SeverityCritical:
		return base.Background(lipgloss.Color("197")).Foreground(lipgloss.Color("15"))
	case models.SeverityHigh:
		return base.Background(lipgloss.Color("208")).Foreground(lipgloss.Color("15"))
	case models.SeverityMedium:
		return base.Background(lipgloss.Color("214")).Foreground(lipgloss.Color("15"))
	case models.SeverityLow:
		return base.Background(lipgloss.Color("148")).Foreground(lipgloss.Color("15"))
	case models.SeverityInfo:
		return base.Background(lipgloss.Color("86")).Foreground(lipgloss.Color("15"))
	default:
		return base.Background(lipgloss.Color("240")).Foreground(lipgloss.Color("15"))
	}
}

func orUnknown(severity string) string {
	if severity == "" {
		return models.SeverityUnknown
	}
	return severity
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
