package llm

import (
	"fmt"
	"strings"
)

// System prompts.
const (
	generateSystemPrompt = "You are a Java bug-fixing assistant that generates accurate and complete solutions. " +
		"Always consider variable reuse and proper scope when fixing bugs."
	rewriteSystemPrompt = "You are a precise Java code editor that replaces specific code snippets while " +
		"preserving the complete class structure and all closing braces."
	refineSystemPrompt = "You are a precise Java code editor that maintains complete file structure while applying fixes."
	extractSystemPrompt = "You are a Java code analyst. You answer with code only, never with commentary."
)

// FixContext describes the finding a model is asked to fix.
type FixContext struct {
	BugType     string
	Description string
	Snippet     string
	FileContent string
	Line        int
	Candidates  int
}

// buildGeneratePrompt asks for ranked candidate fixes in the
// "Solution N (Rating R/10):" layout ParseCandidates understands.
func buildGeneratePrompt(fc FixContext) string {
	var sb strings.Builder

	sb.WriteString("The following Java file contains a bug:\n\n")
	sb.WriteString("--- FULL JAVA FILE START ---\n")
	sb.WriteString(fc.FileContent)
	sb.WriteString("\n--- FULL JAVA FILE END ---\n\n")

	sb.WriteString("The bug is located in the following part of the code:\n")
	sb.WriteString(fmt.Sprintf("- **Bug Type**: %s\n", fc.BugType))
	sb.WriteString(fmt.Sprintf("- **Description**: %s\n", fc.Description))
	sb.WriteString(fmt.Sprintf("- **Line**: %d\n", fc.Line))
	sb.WriteString("- **Code Snippet**:\n")
	sb.WriteString(fc.Snippet)
	sb.WriteString("\n\n")

	sb.WriteString(fmt.Sprintf("Provide %d solutions to fix this bug. Each solution must contain:\n", max(fc.Candidates, 1)))
	sb.WriteString("1. A corrected code snippet that shows ONLY the fixed part of the code.\n")
	sb.WriteString("2. When handling method return values that could be null (like file paths, optional values, ")
	sb.WriteString("or collection lookups), always assign the return value to a local variable, check that variable ")
	sb.WriteString("for null, and only then use it. Static analyzers such as SpotBugs rely on this pattern.\n")
	sb.WriteString("3. For other potential exceptions or error conditions, include error handling and validation ")
	sb.WriteString("appropriate to the specific bug type.\n")
	sb.WriteString("4. Include ALL lines of code needed for the solution to work, not just the changed line.\n")
	sb.WriteString("5. An explanation of what was changed and why.\n")
	sb.WriteString("6. A rating out of 10. The highest-rated solution must come FIRST.\n\n")

	sb.WriteString("Format your response as follows:\n")
	sb.WriteString("Solution X (Rating X/10):\n")
	sb.WriteString("```java\n// Complete code snippet with full context\n```\n")
	sb.WriteString("Explanation: <detailed explanation of the fix and why it works>\n")

	return sb.String()
}

// buildRewritePrompt asks the model to splice fixed into content in place
// of buggy, tolerating drift between the snippet and the current file.
func buildRewritePrompt(content, buggy, fixed string) string {
	var sb strings.Builder

	sb.WriteString("You are a Java code editor. Replace the buggy code snippet with the fixed version in the following Java code.\n")
	sb.WriteString("If the exact buggy code snippet is not found, use the context provided to identify the code block near ")
	sb.WriteString("the original location that performs a similar function or uses similar variables, and replace that block ")
	sb.WriteString("with the fixed code.\n")
	sb.WriteString("Only replace the buggy code with the fixed version. Do not modify any other part of the code.\n")
	sb.WriteString("Preserve all indentation, formatting and the complete class structure including all closing braces.\n")
	sb.WriteString("Return the ENTIRE file content, not just the changed part.\n\n")

	writeJavaBlock(&sb, "Original Java code:", content)
	writeJavaBlock(&sb, "Buggy code to replace:", buggy)
	writeJavaBlock(&sb, "Fixed code to use:", fixed)

	sb.WriteString("Return the complete updated Java code with the replacement made, including all class declarations, ")
	sb.WriteString("methods and closing braces.\n")

	return sb.String()
}

// buildRefinePrompt asks for a revised fix that honours user feedback.
func buildRefinePrompt(bugType, description, original, current, feedback string) string {
	var sb strings.Builder

	sb.WriteString("You previously generated a solution for a bug, but the user has provided feedback that it needs improvement.\n\n")
	sb.WriteString(fmt.Sprintf("Bug Type: %s\n", bugType))
	sb.WriteString(fmt.Sprintf("Bug Description: %s\n\n", description))

	writeJavaBlock(&sb, "Original File Content:", original)
	writeJavaBlock(&sb, "Previous Solution Snippet:", current)

	sb.WriteString("User Feedback:\n")
	sb.WriteString(feedback)
	sb.WriteString("\n\n")

	sb.WriteString("YOU MUST FORMAT YOUR RESPONSE EXACTLY AS SHOWN BELOW:\n\n")
	sb.WriteString("FULL_FILE:\n```java\n<the complete Java file with the fix applied, including package, imports and all classes>\n```\n\n")
	sb.WriteString("SNIPPET:\n```java\n<only the modified code that replaces the buggy part>\n```\n\n")
	sb.WriteString("IMPORTANT:\n")
	sb.WriteString("1. The FULL_FILE section must contain the complete Java file with your fix applied\n")
	sb.WriteString("2. The SNIPPET section must contain only the modified code that replaces the buggy part\n")
	sb.WriteString("3. Do not include any other text or explanations\n")

	return sb.String()
}

// buildExtractPrompt asks for the exact statement a finding points at.
func buildExtractPrompt(content string, line int, description string) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("A static analyzer reported the following problem at line %d:\n", line))
	sb.WriteString(description)
	sb.WriteString("\n\n")
	writeJavaBlock(&sb, "Java file:", numberLines(content))
	sb.WriteString("Return only the complete Java statement or block responsible for the problem, copied verbatim ")
	sb.WriteString("from the file without line numbers, in a single java code block.\n")

	return sb.String()
}

func writeJavaBlock(sb *strings.Builder, title, code string) {
	sb.WriteString(title)
	sb.WriteString("\n```java\n")
	sb.WriteString(code)
	sb.WriteString("\n```\n\n")
}

func numberLines(content string) string {
	lines := strings.Split(content, "\n")
	var sb strings.Builder
	for i, l := range lines {
		sb.WriteString(fmt.Sprintf("%4d: %s\n", i+1, l))
	}
	return sb.String()
}
