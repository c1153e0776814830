// Package models contains the data types shared by the fixloop components.
package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/joshsymonds/fixloop/pkg/pathutil"
)

// Tool identifies a static analyzer.
type Tool string

// Supported analyzers.
const (
	ToolSpotBugs Tool = "spotbugs"
	ToolPMD      Tool = "pmd"
)

// ParseTool converts a user supplied name into a Tool.
func ParseTool(name string) (Tool, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "spotbugs", "":
		return ToolSpotBugs, nil
	case "pmd":
		return ToolPMD, nil
	default:
		return "", fmt.Errorf("unknown tool %q", name)
	}
}

// Compiled reports whether the tool analyzes bytecode rather than sources.
func (t Tool) Compiled() bool {
	return t == ToolSpotBugs
}

// DefaultMatchWindow is the line tolerance used when re-identifying a
// finding after an edit. PMD attributes lines more coarsely.
func (t Tool) DefaultMatchWindow() int {
	if t == ToolPMD {
		return 10
	}
	return 5
}

// Finding is one normalized static-analysis result.
type Finding struct {
	File         pathutil.PathKey `json:"file"`
	ReportedPath string           `json:"reported_path,omitempty"`
	Tool         Tool             `json:"tool"`
	Category     string           `json:"category"`
	Severity     string           `json:"severity"`
	Priority     string           `json:"priority,omitempty"`
	Type         string           `json:"type"`
	Description  string           `json:"description"`
	CodeSnippet  string           `json:"code_snippet,omitempty"`
	Line         int              `json:"line"`
	Resolved     bool             `json:"resolved"`
}

// FindingKey is the uniqueness tuple of a finding within one report.
type FindingKey struct {
	File        pathutil.PathKey
	Category    string
	Severity    string
	Type        string
	Description string
	Line        int
}

// Key returns the uniqueness tuple for f.
func (f Finding) Key() FindingKey {
	return FindingKey{
		File:        f.File,
		Line:        f.Line,
		Category:    f.Category,
		Severity:    f.Severity,
		Type:        f.Type,
		Description: f.Description,
	}
}

// ID returns a short stable identifier derived from the uniqueness tuple.
func (f Finding) ID() string {
	core := fmt.Sprintf("%s:%s:%d:%s:%s:%s:%s", f.Tool, f.File, f.Line, f.Category, f.Severity, f.Type, f.Description)
	hash := sha256.Sum256([]byte(core))
	return hex.EncodeToString(hash[:8])
}

// Dedupe drops findings whose uniqueness tuple was already seen, keeping the
// first occurrence and the original order.
func Dedupe(findings []Finding) []Finding {
	seen := make(map[FindingKey]struct{}, len(findings))
	out := make([]Finding, 0, len(findings))
	for _, f := range findings {
		k := f.Key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, f)
	}
	return out
}

// ForFile returns the resolved findings attributed to file.
// Unresolved findings never match a per-file query.
func ForFile(findings []Finding, file pathutil.PathKey) []Finding {
	out := make([]Finding, 0)
	for _, f := range findings {
		if f.Resolved && f.File == file {
			out = append(out, f)
		}
	}
	return out
}
