package normalize

import (
	"fmt"
	"strings"

	"github.com/beevik/etree"

	"github.com/joshsymonds/fixloop/internal/models"
)

// SpotBugs source line roles used to rebuild null-dereference traces.
const (
	roleNullValue = "SOURCE_LINE_NULL_VALUE"
	roleKnownNull = "SOURCE_LINE_KNOWN_NULL"
	roleInvoked   = "SOURCE_LINE_INVOKED"
)

// nullTrace collects the source locations SpotBugs reports for a null bug.
type nullTrace struct {
	assign      int
	propagation int
	deref       int
}

// reportedLine picks the dereference site, falling back to propagation and
// then assignment.
func (t nullTrace) reportedLine(last int) int {
	switch {
	case t.deref > 0:
		return t.deref
	case t.propagation > 0:
		return t.propagation
	case t.assign > 0:
		return t.assign
	default:
		return last
	}
}

func (t nullTrace) describe(base string, line int) string {
	var b strings.Builder
	b.WriteString(base)
	b.WriteString("\n\nRoot Cause Trace:")
	if t.assign > 0 {
		fmt.Fprintf(&b, "\n- Line %d: Variable may be assigned null.", t.assign)
	}
	if t.propagation > 0 {
		fmt.Fprintf(&b, "\n- Line %d: Variable passed without null check.", t.propagation)
	}
	if line > 0 {
		fmt.Fprintf(&b, "\n- Line %d: Variable dereferenced without null check. (Bug here)", line)
	}
	return b.String()
}

func isNullBug(bugType string) bool {
	return strings.HasPrefix(bugType, "NP_")
}

func (n *Normalizer) parseSpotBugs(root *etree.Element) []models.Finding {
	instances := root.SelectElements("BugInstance")
	findings := make([]models.Finding, 0, len(instances))

	for _, bug := range instances {
		bugType := bug.SelectAttrValue("type", "")
		priority := bug.SelectAttrValue("priority", "")

		var longMessage string
		if el := bug.SelectElement("LongMessage"); el != nil {
			longMessage = el.Text()
		}
		base := n.describe(bugType, longMessage)

		var (
			sourcePath string
			trace      nullTrace
			first      int
			last       int
		)
		for _, sl := range bug.SelectElements("SourceLine") {
			if sp := sl.SelectAttrValue("sourcepath", ""); sp != "" {
				sourcePath = sp
			}
			start := atoi(sl.SelectAttrValue("start", ""))
			last = start
			if first == 0 {
				first = start
			}
			if !isNullBug(bugType) {
				continue
			}
			switch sl.SelectAttrValue("role", "") {
			case roleNullValue:
				trace.assign = start
			case roleKnownNull:
				trace.propagation = start
			case roleInvoked:
				trace.deref = start
			}
		}

		line := first
		description := base
		if isNullBug(bugType) {
			line = trace.reportedLine(last)
			description = trace.describe(base, line)
		}

		finding := models.Finding{
			ReportedPath: sourcePath,
			Tool:         models.ToolSpotBugs,
			Line:         line,
			Category:     bug.SelectAttrValue("category", ""),
			Priority:     priority,
			Severity:     models.SeverityFromPriority(models.ToolSpotBugs, priority),
			Type:         bugType,
			Description:  description,
		}
		if sourcePath != "" {
			finding.File, finding.Resolved = n.Resolve(sourcePath)
		}
		if !finding.Resolved {
			n.logger.Debug("Unresolved source path", "tool", models.ToolSpotBugs, "path", sourcePath, "type", bugType)
		}

		findings = append(findings, finding)
	}

	return findings
}
