package normalize

import (
	"strings"

	"github.com/joshsymonds/fixloop/internal/models"
)

// snippetContext is the number of lines kept on each side of a finding.
const snippetContext = 2

// ExtractSnippet returns the lines around line (1-based) in content.
func ExtractSnippet(content string, line int) string {
	if content == "" {
		return ""
	}
	lines := strings.SplitAfter(content, "\n")
	if line < 1 {
		line = 1
	}
	start := max(0, line-1-snippetContext)
	end := min(len(lines), line+snippetContext)
	if start >= end {
		return ""
	}
	return strings.TrimSpace(strings.Join(lines[start:end], ""))
}

// AttachSnippets fills CodeSnippet on findings that lack one, using content
// as the source of the finding's file.
func AttachSnippets(findings []models.Finding, content string) {
	for i := range findings {
		if findings[i].CodeSnippet == "" {
			findings[i].CodeSnippet = ExtractSnippet(content, findings[i].Line)
		}
	}
}
