package preprocess

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShapeCodeFencedBlock(t *testing.T) {
	assert.Equal(t, "print(1)", Shape("```swift\nprint(1)\n```", KindCode))
}

func TestShapeCodeFencedBlockWithProse(t *testing.T) {
	in := "Here is the function you asked for:\n\n```go\nfunc add(a, b int) int {\n\treturn a + b\n}\n```\n\nLet me know if you need tests."
	assert.Equal(t, "func add(a, b int) int {\n\treturn a + b\n}", Shape(in, KindCode))
}

func TestShapeCodeFirstBlockWins(t *testing.T) {
	in := "```\nfirst()\n```\ntext\n```\nsecond()\n```"
	assert.Equal(t, "first()", Shape(in, KindCode))
}

func TestShapeCodeWiderCloseFence(t *testing.T) {
	in := "````md\n```\ninner\n```\n````"
	assert.Equal(t, "```\ninner\n```", Shape(in, KindCode))
}

func TestShapeCodeClassifier(t *testing.T) {
	code := "const x = () => { return 1; }"
	assert.Equal(t, code, Shape("  "+code+"\n", KindCode))

	assert.Empty(t, Shape("Just a sentence about lettuce and classes.", KindCode))
	assert.Empty(t, Shape("", KindCode))
}

func TestShapeCodeUnclosedFenceFallsBackToClassifier(t *testing.T) {
	in := "```js\nfunction f() { return 1; }"
	assert.Equal(t, "function f() { return 1; }", Shape(in, KindCode))
}

func TestShapeCodeSkipsUnclosedFence(t *testing.T) {
	in := "````\nnotes\n```python\nprint(2)\n```"
	assert.Equal(t, "print(2)", Shape(in, KindCode))

	body, ok := ExtractFencedBlock(in)
	require.True(t, ok)
	assert.Equal(t, "print(2)", body)
}

func TestCodeIndicatorsDistinct(t *testing.T) {
	hits := CodeIndicators(";;;;;;")
	assert.Equal(t, []string{";"}, hits)
	assert.False(t, LooksLikeCode(";;;; ;;;"))
	assert.True(t, LooksLikeCode("def f():\n    return g()"))
}

func TestShapePlainScenario(t *testing.T) {
	in := "Sure, here's your summary: The quarterly revenue grew 10%."
	assert.Equal(t, "The quarterly revenue grew 10%.", Shape(in, KindPlain))
}

func TestShapePlain(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"untouched", "Meeting moved to Thursday.", "Meeting moved to Thursday."},
		{"certainly preamble", "Certainly! The report is attached.", "The report is attached."},
		{"filler straight into here", "Sure here is the draft: Dear team, hello.", "Dear team, hello."},
		{"trailing offer", "The build is green. Let me know if you want the logs.", "The build is green."},
		{"trailing hope", "Done and dusted.\n\nHope this helps!", "Done and dusted."},
		{"fixed phrase", "Here you go: Totals are up.", "Totals are up."},
		{"collapse blanks", "one line\n\n\n\nsecond line", "one line\n\nsecond line"},
		{"crlf", "alpha\r\nbeta", "alpha\nbeta"},
		{"too short", "Sure! Ok.", ""},
		{"ai marker", "As an AI, I think the plan is fine.", ""},
		{"leftover here", "Here's a thought without a colon", ""},
		{"cannot assist", "Sorry, I cannot assist with that request.", ""},
		{"filler word kept without punctuation", "Great Britain exports tea.", "Great Britain exports tea."},
		{"empty", "   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Shape(tt.in, KindPlain))
		})
	}
}

func TestShapeDeterministic(t *testing.T) {
	inputs := []string{
		"Sure, here's your summary: The quarterly revenue grew 10%.",
		"```swift\nprint(1)\n```",
		"| a | b |\n|---|---|\n| 1 | 2 |",
	}
	for _, in := range inputs {
		for _, k := range []Kind{KindPlain, KindCode, KindTabularRow} {
			assert.Equal(t, Shape(in, k), Shape(in, k))
		}
	}
}

func TestShapeTabular(t *testing.T) {
	in := "Sure! Here is the table:\n| Name | Qty |\n|:-----|----:|\n| Apples | 3 |\n| Pears | 5 |"
	assert.Equal(t, "Name\tQty\nApples\t3\nPears\t5", Shape(in, KindTabularRow))
}

func TestTabularRowsPassThrough(t *testing.T) {
	assert.Equal(t, "no pipes here", TabularRows("no pipes here"))
	assert.Equal(t, "a\tb", TabularRows("a | b"))
	assert.Empty(t, TabularRows(""))
}

func TestParseKind(t *testing.T) {
	for in, want := range map[string]Kind{
		"plain": KindPlain, "CODE": KindCode, "tabular": KindTabularRow, "tabular_row": KindTabularRow,
	} {
		got, err := ParseKind(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseKind("binary")
	assert.Error(t, err)

	var k Kind
	require.NoError(t, k.UnmarshalText([]byte("code")))
	assert.Equal(t, KindCode, k)
	b, err := k.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "code", string(b))
}
