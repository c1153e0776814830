package llm

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/joshsymonds/fixloop/internal/models"
)

// ErrNoCode is returned when a response carries no usable code.
var ErrNoCode = errors.New("could not extract code from LLM response")

var (
	solutionHeader  = regexp.MustCompile(`^\s*\**\s*Solution\s+(\d+)\s*\(Rating\s+(\d+)\s*/\s*10\)\s*:?\s*\**\s*$`)
	explanationLine = regexp.MustCompile(`^\s*\**Explanation\**\s*:\**\s*(.*)$`)
	fenceMarker     = regexp.MustCompile("```[a-zA-Z]*\\n?")
	codeBlock       = regexp.MustCompile("(?s)```(?:[a-zA-Z]+)?\\s*(.*?)\\s*```")

	// tried in order; each captures (full file, snippet)
	refinementPatterns = []*regexp.Regexp{
		regexp.MustCompile("(?s)FULL_FILE:\\s*```java\\s*(.*?)\\s*```.*?SNIPPET:\\s*```java\\s*(.*?)\\s*```"),
		regexp.MustCompile("(?s)FULL_FILE:\\s*```\\s*(.*?)\\s*```.*?SNIPPET:\\s*```\\s*(.*?)\\s*```"),
		regexp.MustCompile("(?s)```java\\s*(.*?)\\s*```.*?```java\\s*(.*?)\\s*```"),
	}
)

// ParseCandidates reads "Solution N (Rating R/10):" blocks in order of
// appearance. Unparsable text yields no candidates rather than an error. A
// block without code is kept with Error set so its rating stays visible.
func ParseCandidates(text string) []models.FixCandidate {
	var (
		candidates  []models.FixCandidate
		current     *models.FixCandidate
		code        strings.Builder
		explanation strings.Builder
		explaining  bool
	)

	flush := func() {
		if current == nil {
			return
		}
		current.Code = StripCodeFences(code.String())
		current.Explanation = strings.TrimSpace(explanation.String())
		if current.Code == "" {
			current.Error = ErrNoCode.Error()
		}
		candidates = append(candidates, *current)
		code.Reset()
		explanation.Reset()
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")

		if m := solutionHeader.FindStringSubmatch(line); m != nil {
			flush()
			rating, _ := strconv.Atoi(m[2])
			current = &models.FixCandidate{Rating: min(max(rating, 0), 10)}
			explaining = false
			continue
		}
		if current == nil {
			continue
		}
		if m := explanationLine.FindStringSubmatch(line); m != nil {
			explaining = true
			explanation.WriteString(m[1])
			continue
		}
		if explaining {
			if strings.TrimSpace(line) != "" {
				explanation.WriteString(" ")
				explanation.WriteString(strings.TrimSpace(line))
			}
			continue
		}
		code.WriteString(line)
		code.WriteString("\n")
	}
	flush()

	for i := range candidates {
		candidates[i].SolutionID = i + 1
	}
	return candidates
}

// StripCodeFences removes markdown code fence markers and surrounding space.
func StripCodeFences(text string) string {
	return strings.TrimSpace(fenceMarker.ReplaceAllString(text, ""))
}

// ExtractCode returns the first fenced block of text, or the whole text
// with fence markers stripped when there is none.
func ExtractCode(text string) string {
	if m := codeBlock.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return StripCodeFences(text)
}

// Refinement is a revised fix returned for user feedback.
type Refinement struct {
	FullFile string
	Snippet  string
}

// ParseRefinement extracts the FULL_FILE and SNIPPET sections. Models do not
// always follow the layout, so looser patterns are tried before giving up.
func ParseRefinement(text string) (Refinement, error) {
	text = strings.TrimSpace(text)

	for _, re := range refinementPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			r := Refinement{FullFile: strings.TrimSpace(m[1]), Snippet: strings.TrimSpace(m[2])}
			if r.FullFile != "" && r.Snippet != "" {
				return r, nil
			}
		}
	}

	blocks := codeBlock.FindAllStringSubmatch(text, -1)
	switch {
	case len(blocks) >= 2:
		return Refinement{FullFile: strings.TrimSpace(blocks[0][1]), Snippet: strings.TrimSpace(blocks[1][1])}, nil
	case len(blocks) == 1 && strings.TrimSpace(blocks[0][1]) != "":
		code := strings.TrimSpace(blocks[0][1])
		return Refinement{FullFile: code, Snippet: code}, nil
	}
	return Refinement{}, ErrNoCode
}
