// Package preprocess shapes AI-generated text before it is delivered.
//
// Shape is pure and deterministic: the same payload and kind always produce
// the same output. An empty result means there is nothing worth delivering.
package preprocess

import (
	"fmt"
	"strings"
)

// Kind selects the shaping rules for a payload.
type Kind int

const (
	KindPlain Kind = iota
	KindCode
	KindTabularRow
)

func (k Kind) String() string {
	switch k {
	case KindCode:
		return "code"
	case KindTabularRow:
		return "tabular"
	default:
		return "plain"
	}
}

// ParseKind accepts "plain", "code" and "tabular" (or "tabular_row").
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "plain", "text":
		return KindPlain, nil
	case "code":
		return KindCode, nil
	case "tabular", "tabular_row", "tabularrow", "table":
		return KindTabularRow, nil
	default:
		return KindPlain, fmt.Errorf("unknown content kind: %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	v, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// Shape applies the rules for kind to payload.
func Shape(payload string, kind Kind) string {
	payload = normalizeNewlines(payload)
	switch kind {
	case KindCode:
		return shapeCode(payload)
	case KindTabularRow:
		return TabularRows(shapePlain(payload))
	default:
		return shapePlain(payload)
	}
}

func normalizeNewlines(s string) string {
	if !strings.Contains(s, "\r") {
		return s
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

func shapeCode(payload string) string {
	if block, ok := ExtractFencedBlock(payload); ok {
		return block
	}
	stripped := strings.TrimSpace(stripFenceLines(payload))
	if LooksLikeCode(stripped) {
		return stripped
	}
	return ""
}

// TabularRows turns Markdown table rows into tab-separated lines. Separator
// rows (|---|:--:|) are dropped; other lines pass through unchanged.
func TabularRows(s string) string {
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !strings.Contains(trimmed, "|") {
			out = append(out, line)
			continue
		}
		if isSeparatorRow(trimmed) {
			continue
		}
		trimmed = strings.TrimPrefix(trimmed, "|")
		trimmed = strings.TrimSuffix(trimmed, "|")
		cells := strings.Split(trimmed, "|")
		for i, c := range cells {
			cells[i] = strings.TrimSpace(c)
		}
		out = append(out, strings.Join(cells, "\t"))
	}
	return strings.Join(out, "\n")
}

func isSeparatorRow(line string) bool {
	var dashes int
	for _, r := range line {
		switch r {
		case '-':
			dashes++
		case '|', ':', ' ', '\t':
		default:
			return false
		}
	}
	return dashes >= 3
}
