// Package normalize converts SpotBugs and PMD XML reports into canonical
// findings.
package normalize

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"github.com/joshsymonds/fixloop/internal/models"
	"github.com/joshsymonds/fixloop/pkg/logger"
	"github.com/joshsymonds/fixloop/pkg/pathutil"
)

// ReportStatus tells callers why a report produced the findings it did.
type ReportStatus string

// Report statuses.
const (
	ReportAbsent    ReportStatus = "absent"
	ReportEmpty     ReportStatus = "empty"
	ReportParsed    ReportStatus = "parsed"
	ReportMalformed ReportStatus = "malformed"
)

// DefaultDescription is used for bug types missing from the catalogue.
const DefaultDescription = "No description available."

// Report is a parsed report plus its provenance.
type Report struct {
	Status   ReportStatus
	Findings []models.Finding
}

// Normalizer parses tool reports and resolves reported paths against the
// working copy.
type Normalizer struct {
	logger       logger.Logger
	descriptions map[string]string
	repoRoot     string
	sourceRoot   string
}

// NewNormalizer creates a normalizer for the working copy at repoRoot.
// sourceRoot is the conventional source directory relative to repoRoot.
func NewNormalizer(repoRoot, sourceRoot string) *Normalizer {
	return NewNormalizerWithLogger(repoRoot, sourceRoot, logger.GetGlobalLogger())
}

// NewNormalizerWithLogger creates a normalizer with a custom logger.
func NewNormalizerWithLogger(repoRoot, sourceRoot string, log logger.Logger) *Normalizer {
	return &Normalizer{
		repoRoot:     repoRoot,
		sourceRoot:   sourceRoot,
		descriptions: map[string]string{},
		logger:       log,
	}
}

// LoadDescriptions reads a JSON object mapping bug type to description.
func (n *Normalizer) LoadDescriptions(file string) error {
	data, err := os.ReadFile(file) //nolint:gosec // operator supplied catalogue
	if err != nil {
		return fmt.Errorf("reading bug descriptions: %w", err)
	}
	descriptions := map[string]string{}
	if err := json.Unmarshal(data, &descriptions); err != nil {
		return fmt.Errorf("parsing bug descriptions: %w", err)
	}
	n.SetDescriptions(descriptions)
	return nil
}

// SetDescriptions replaces the bug description catalogue.
func (n *Normalizer) SetDescriptions(descriptions map[string]string) {
	n.descriptions = make(map[string]string, len(descriptions))
	for k, v := range descriptions {
		n.descriptions[k] = v
	}
}

// Normalize reads the report at reportPath. An absent or empty report yields
// an empty list and no error; a malformed one yields a parse error.
func (n *Normalizer) Normalize(reportPath string, tool models.Tool) ([]models.Finding, error) {
	report, err := n.ReadReport(reportPath, tool)
	if err != nil {
		return nil, err
	}
	return report.Findings, nil
}

// ReadReport is Normalize with the report provenance preserved.
func (n *Normalizer) ReadReport(reportPath string, tool models.Tool) (Report, error) {
	data, err := os.ReadFile(reportPath) //nolint:gosec // path produced by the analyzer adapter
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			n.logger.Debug("Report absent", "tool", tool, "path", reportPath)
			return Report{Status: ReportAbsent, Findings: []models.Finding{}}, nil
		}
		return Report{Status: ReportMalformed}, models.NewParseError(string(tool), err)
	}
	return n.parse(data, tool)
}

// NormalizeBytes parses an in-memory report.
func (n *Normalizer) NormalizeBytes(data []byte, tool models.Tool) ([]models.Finding, error) {
	report, err := n.parse(data, tool)
	if err != nil {
		return nil, err
	}
	return report.Findings, nil
}

func (n *Normalizer) parse(data []byte, tool models.Tool) (Report, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Report{Status: ReportEmpty, Findings: []models.Finding{}}, nil
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		n.logger.Warn("Malformed report", "tool", tool, "error", err)
		return Report{Status: ReportMalformed}, models.NewParseError(string(tool), err)
	}
	root := doc.Root()
	if root == nil {
		return Report{Status: ReportMalformed}, models.NewToolErrorf(string(tool), models.ErrorTypeParse, "report has no root element")
	}

	var findings []models.Finding
	switch tool {
	case models.ToolSpotBugs:
		if root.Tag != "BugCollection" {
			return Report{Status: ReportMalformed}, models.NewToolErrorf(string(tool), models.ErrorTypeParse, "unexpected root element %q", root.Tag)
		}
		findings = n.parseSpotBugs(root)
	case models.ToolPMD:
		if root.Tag != "pmd" {
			return Report{Status: ReportMalformed}, models.NewToolErrorf(string(tool), models.ErrorTypeParse, "unexpected root element %q", root.Tag)
		}
		findings = n.parsePMD(root)
	default:
		return Report{Status: ReportMalformed}, models.NewToolErrorf(string(tool), models.ErrorTypeConfig, "unsupported tool")
	}

	findings = models.Dedupe(findings)
	n.logger.Debug("Report parsed", "tool", tool, "findings", len(findings))
	return Report{Status: ReportParsed, Findings: findings}, nil
}

// Resolve maps a tool-reported path onto the working copy. Candidates are
// tried in order: as given, under the source root, bare file name.
func (n *Normalizer) Resolve(reported string) (pathutil.PathKey, bool) {
	// absolute paths (PMD) become relative to the working copy when inside it
	key := pathutil.NewPathKey(reported, n.repoRoot)
	if key.IsZero() {
		return "", false
	}

	candidates := []string{key.String()}
	if n.sourceRoot != "" {
		candidates = append(candidates, path.Join(n.sourceRoot, key.String()))
	}
	candidates = append(candidates, key.Base())

	found, ok := pathutil.FirstExisting(n.repoRoot, candidates...)
	if !ok {
		return key, false
	}
	return pathutil.NewPathKey(found, n.repoRoot), true
}

func (n *Normalizer) describe(bugType, fallback string) string {
	if d, ok := n.descriptions[bugType]; ok && d != "" {
		return d
	}
	if fallback = strings.TrimSpace(fallback); fallback != "" {
		return fallback
	}
	return DefaultDescription
}

func atoi(s string) int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return v
}
