package preprocess

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MinPlainLength is the shortest shaped plain text worth delivering, in
// characters.
const MinPlainLength = 5

// Stock assistant phrasing removed anywhere in the payload.
var fixedPhrases = []string{
	"Here's the text:",
	"Here is the text:",
	"Here's the response:",
	"Here is the response:",
	"Here's what I came up with:",
	"Here you go:",
	"I'd be happy to help!",
	"I'd be happy to help.",
	"I hope this helps!",
	"I hope this helps.",
	"Hope this helps!",
	"Let me know if you need anything else.",
	"Let me know if you'd like any changes.",
	"Feel free to ask if you have any questions.",
}

var fixedPhrasePatterns = func() []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(fixedPhrases))
	for i, p := range fixedPhrases {
		out[i] = regexp.MustCompile(`(?i)` + regexp.QuoteMeta(p))
	}
	return out
}()

var (
	leadingFiller  = regexp.MustCompile(`(?i)^\s*(?:sure(?: thing)?|certainly|of course|absolutely|okay|ok|great|alright|no problem)\b[,!.:]+\s*`)
	fillerThenHere = regexp.MustCompile(`(?i)^\s*(?:sure(?: thing)?|certainly|of course|absolutely|okay|ok)\s+(here|below)`)
	leadingHere    = regexp.MustCompile(`(?i)^\s*(?:here(?:'s|’s| is| are)|below is)\b[^:\n]{0,80}:\s*`)
	leadingHelp    = regexp.MustCompile(`(?i)^\s*i(?:'ll|’ll| will|'d|’d| would)(?: be (?:happy|glad) to)? help[^.!\n]*[.!]\s*`)

	trailingClause = regexp.MustCompile(`(?i)(^|[.!?:]\s+|\n\s*)(?:feel free|don't hesitate|don’t hesitate|do not hesitate|let me know if|i hope this helps|hope this helps|if you have any (?:other |more |further )?questions)[^\n]*\s*$`)

	blankRun = regexp.MustCompile(`\n[ \t]*(?:\n[ \t]*)+\n`)

	leftoverMarker = regexp.MustCompile(`(?i)^(?:here's|here’s|here is|i'll help|i’ll help|i will help)\b|\bas an ai\b|\bi'm an ai\b|\bi’m an ai\b|\bi am an ai\b|\bi cannot assist\b`)
)

func shapePlain(payload string) string {
	s := payload
	for _, re := range fixedPhrasePatterns {
		s = re.ReplaceAllString(s, "")
	}

	for i := 0; i < 4; i++ {
		before := s
		s = leadingFiller.ReplaceAllString(s, "")
		s = fillerThenHere.ReplaceAllString(s, "$1")
		s = leadingHere.ReplaceAllString(s, "")
		s = leadingHelp.ReplaceAllString(s, "")
		if s == before {
			break
		}
	}

	s = trailingClause.ReplaceAllString(s, "$1")

	s = blankRun.ReplaceAllString(s, "\n\n")
	s = strings.TrimSpace(s)

	if utf8.RuneCountInString(s) < MinPlainLength {
		return ""
	}
	if leftoverMarker.MatchString(s) {
		return ""
	}
	return s
}
