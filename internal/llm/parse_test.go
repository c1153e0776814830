package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const threeSolutions = "Here are the fixes.\n\n" +
	"Solution 1 (Rating 9/10):\n" +
	"```java\n" +
	"String value = lookup(name);\n" +
	"if (value == null) {\n" +
	"    return 0;\n" +
	"}\n" +
	"```\n" +
	"Explanation: Guards the lookup result\n" +
	"before it is dereferenced.\n" +
	"\n" +
	"**Solution 2 (Rating 7/10):**\n" +
	"```java\n" +
	"return Objects.requireNonNullElse(lookup(name), \"\").length();\n" +
	"```\n" +
	"**Explanation:** Uses a default value.\n" +
	"\n" +
	"Solution 3 (Rating 14/10):\n" +
	"```java\n" +
	"```\n" +
	"Explanation: Nothing to see.\n"

func TestParseCandidates(t *testing.T) {
	candidates := ParseCandidates(threeSolutions)
	require.Len(t, candidates, 3, "empty solution is kept")

	first := candidates[0]
	assert.Equal(t, 1, first.SolutionID)
	assert.Equal(t, 9, first.Rating)
	assert.Equal(t, "String value = lookup(name);\nif (value == null) {\n    return 0;\n}", first.Code)
	assert.Equal(t, "Guards the lookup result before it is dereferenced.", first.Explanation)

	second := candidates[1]
	assert.Equal(t, 2, second.SolutionID)
	assert.Equal(t, 7, second.Rating)
	assert.Equal(t, `return Objects.requireNonNullElse(lookup(name), "").length();`, second.Code)
	assert.Equal(t, "Uses a default value.", second.Explanation)
	assert.False(t, second.Failed())

	third := candidates[2]
	assert.Equal(t, 3, third.SolutionID)
	assert.Equal(t, 10, third.Rating)
	assert.Empty(t, third.Code)
	assert.Equal(t, "Nothing to see.", third.Explanation)
	assert.True(t, third.Failed())
	assert.Equal(t, ErrNoCode.Error(), third.Error)
}

func TestParseCandidates_Edges(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		wantCount  int
		wantRating int
		wantErr    bool
	}{
		{name: "empty", text: "", wantCount: 0},
		{name: "prose only", text: "I cannot help with that.", wantCount: 0},
		{name: "rating clamped", text: "Solution 1 (Rating 12/10):\nfoo();\n", wantCount: 1, wantRating: 10},
		{name: "windows line endings", text: "Solution 1 (Rating 5/10):\r\nbar();\r\nExplanation: x\r\n", wantCount: 1, wantRating: 5},
		{name: "unfenced code", text: "Solution 1 (Rating 3/10):\nint x = 1;\n", wantCount: 1, wantRating: 3},
		{name: "header only", text: "Solution 1 (Rating 4/10):\n", wantCount: 1, wantRating: 4, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseCandidates(tt.text)
			require.Len(t, got, tt.wantCount)
			if tt.wantCount > 0 {
				assert.Equal(t, tt.wantRating, got[0].Rating)
				assert.Equal(t, tt.wantErr, got[0].Failed())
				assert.Equal(t, tt.wantErr, got[0].Code == "")
			}
		})
	}
}

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"```java\nint x;\n```", "int x;"},
		{"```\nint x;\n```\n", "int x;"},
		{"  int x;  ", "int x;"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StripCodeFences(tt.in))
	}
}

func TestExtractCode(t *testing.T) {
	assert.Equal(t, "class A {}", ExtractCode("Here you go:\n```java\nclass A {}\n```\nDone."))
	assert.Equal(t, "class B {}", ExtractCode("class B {}"))
}

func TestParseRefinement(t *testing.T) {
	tests := []struct {
		name        string
		text        string
		wantFull    string
		wantSnippet string
		wantErr     bool
	}{
		{
			name:        "labelled java blocks",
			text:        "FULL_FILE:\n```java\nclass A { int f() { return 1; } }\n```\n\nSNIPPET:\n```java\nreturn 1;\n```",
			wantFull:    "class A { int f() { return 1; } }",
			wantSnippet: "return 1;",
		},
		{
			name:        "labelled plain blocks",
			text:        "FULL_FILE:\n```\nclass A {}\n```\nSNIPPET:\n```\nx();\n```",
			wantFull:    "class A {}",
			wantSnippet: "x();",
		},
		{
			name:        "two unlabelled java blocks",
			text:        "Updated file:\n```java\nclass A {}\n```\nChanged part:\n```java\ny();\n```",
			wantFull:    "class A {}",
			wantSnippet: "y();",
		},
		{
			name:        "single block used for both",
			text:        "```java\nclass A {}\n```",
			wantFull:    "class A {}",
			wantSnippet: "class A {}",
		},
		{
			name:    "no code",
			text:    "Sorry, I cannot do that.",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRefinement(tt.text)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNoCode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantFull, got.FullFile)
			assert.Equal(t, tt.wantSnippet, got.Snippet)
		})
	}
}
