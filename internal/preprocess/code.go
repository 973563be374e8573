package preprocess

import (
	"regexp"
	"strings"
)

// MinCodeIndicators is how many distinct indicators LooksLikeCode needs.
const MinCodeIndicators = 3

type indicator struct {
	name string
	re   *regexp.Regexp
}

// Keywords match as whole words so "lettuce" is not "let".
var codeIndicators = []indicator{
	{"{", regexp.MustCompile(`\{`)},
	{"}", regexp.MustCompile(`\}`)},
	{"=>", regexp.MustCompile(`=>`)},
	{"->", regexp.MustCompile(`->`)},
	{"function", regexp.MustCompile(`\bfunction\b`)},
	{"let", regexp.MustCompile(`\blet\s`)},
	{"const", regexp.MustCompile(`\bconst\s`)},
	{"import", regexp.MustCompile(`\bimport\s`)},
	{"return", regexp.MustCompile(`\breturn\b`)},
	{"def", regexp.MustCompile(`\bdef\s`)},
	{"class", regexp.MustCompile(`\bclass\s`)},
	{"func", regexp.MustCompile(`\bfunc\b`)},
	{";", regexp.MustCompile(`;`)},
	{"()", regexp.MustCompile(`\(\)`)},
}

// CodeIndicators returns the distinct indicators present in s.
func CodeIndicators(s string) []string {
	var hits []string
	for _, ind := range codeIndicators {
		if ind.re.MatchString(s) {
			hits = append(hits, ind.name)
		}
	}
	return hits
}

// LooksLikeCode reports whether s carries at least MinCodeIndicators
// distinct code indicators.
func LooksLikeCode(s string) bool {
	return len(CodeIndicators(s)) >= MinCodeIndicators
}

// fenceOpen returns the backtick run length and true if line opens or
// closes a fence.
func fenceOpen(line string) (int, bool) {
	t := strings.TrimLeft(line, " \t")
	n := 0
	for n < len(t) && t[n] == '`' {
		n++
	}
	return n, n >= 3
}

func isFenceClose(line string, width int) bool {
	t := strings.TrimSpace(line)
	if len(t) < width {
		return false
	}
	for i := 0; i < len(t); i++ {
		if t[i] != '`' {
			return false
		}
	}
	return true
}

// ExtractFencedBlock returns the body of the first balanced ``` fence in s.
// The opening line, including any language tag, is dropped. A closing fence
// must be at least as wide as the opening one. An unclosed fence is skipped
// and the scan resumes on the next line.
func ExtractFencedBlock(s string) (string, bool) {
	lines := strings.Split(s, "\n")
	for i := 0; i < len(lines); i++ {
		width, ok := fenceOpen(lines[i])
		if !ok {
			continue
		}
		for j := i + 1; j < len(lines); j++ {
			if isFenceClose(lines[j], width) {
				body := strings.Join(lines[i+1:j], "\n")
				return strings.Trim(body, "\n"), true
			}
		}
	}
	return "", false
}

func stripFenceLines(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, l := range lines {
		if _, ok := fenceOpen(l); ok {
			continue
		}
		out = append(out, l)
	}
	return strings.Join(out, "\n")
}
