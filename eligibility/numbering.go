package eligibility

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxDepth is the deepest hierarchy level the structuring step may emit (a label like 1.2.3 has depth 3).
const MaxDepth = 10

// ErrInvalidNumbering is wrapped by every NumberingError.
var ErrInvalidNumbering = errors.New("invalid numbering")

// NumberingError reports the first line of structured output that breaks the numbering grammar.
type NumberingError struct {
	Line   int // 1-based
	Reason string
}

func (e *NumberingError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}

func (e *NumberingError) Unwrap() error { return ErrInvalidNumbering }

// NumberedLine is one criterion (or title, note) of structured output.
type NumberedLine struct {
	Label string `json:"label" jsonschema:"required,description=Hierarchical number such as 1 or 2.1 or 2.1.3"`
	Text  string `json:"text" jsonschema:"required,description=Original criterion wording on a single line"`
}

// Depth is the number of dot-separated components of the label.
func (l NumberedLine) Depth() int {
	return strings.Count(strings.TrimSuffix(l.Label, "."), ".") + 1
}

// ParseNumbered parses structured output into labelled lines. Every line must carry a numeric label
// (e.g. "1", "1.2.", "1.2.1") followed by whitespace or end of line; blank lines are not allowed.
func ParseNumbered(text string) ([]NumberedLine, error) {
	text = strings.TrimRight(text, "\r\n")
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	raw := strings.Split(text, "\n")
	out := make([]NumberedLine, 0, len(raw))
	for i, line := range raw {
		line = strings.TrimRight(line, "\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			return nil, &NumberingError{Line: i + 1, Reason: "blank line"}
		}

		label, rest, ok := splitLabel(trimmed)
		if !ok {
			return nil, &NumberingError{Line: i + 1, Reason: "missing numeric label"}
		}
		nl := NumberedLine{Label: label, Text: rest}
		if d := nl.Depth(); d > MaxDepth {
			return nil, &NumberingError{Line: i + 1, Reason: fmt.Sprintf("depth %d exceeds %d", d, MaxDepth)}
		}
		out = append(out, nl)
	}
	return out, nil
}

// ValidateNumbered reports whether text follows the numbering grammar.
func ValidateNumbered(text string) error {
	_, err := ParseNumbered(text)
	return err
}

// splitLabel splits "1.2.3 text" into ("1.2.3", "text"). A single trailing dot on the label is kept.
func splitLabel(s string) (string, string, bool) {
	i := 0
	for {
		start := i
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
		}
		if i == start {
			return "", "", false
		}
		if i < len(s) && s[i] == '.' {
			i++
			if i < len(s) && s[i] >= '0' && s[i] <= '9' {
				continue
			}
		}
		break
	}

	label := s[:i]
	rest := s[i:]
	if rest == "" {
		return label, "", true
	}
	r, _ := utf8.DecodeRuneInString(rest)
	if r != ' ' && r != '\t' && r != '\u00a0' {
		return "", "", false
	}
	return label, strings.TrimSpace(rest), true
}

// RenderNumbered writes lines in the structured output format: four spaces of indentation per level
// below the top, then the label and the text folded onto one line.
func RenderNumbered(lines []NumberedLine) string {
	var b strings.Builder
	for i, l := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		depth := l.Depth()
		if depth > 1 {
			b.WriteString(strings.Repeat("    ", depth-1))
		}
		b.WriteString(strings.TrimSpace(l.Label))
		if t := strings.Join(strings.Fields(l.Text), " "); t != "" {
			b.WriteByte(' ')
			b.WriteString(t)
		}
	}
	return b.String()
}

// StripNumbering removes labels, indentation and line breaks, leaving the criteria text joined by
// single spaces.
func StripNumbering(text string) string {
	lines, err := ParseNumbered(text)
	if err != nil {
		return strings.Join(strings.Fields(text), " ")
	}
	parts := make([]string, 0, len(lines))
	for _, l := range lines {
		if l.Text != "" {
			parts = append(parts, l.Text)
		}
	}
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}

// TextLength counts the non-whitespace runes of s.
func TextLength(s string) int {
	n := 0
	for _, r := range s {
		switch r {
		case ' ', '\t', '\n', '\r', '\u00a0':
		default:
			n++
		}
	}
	return n
}

// LengthDrift is the relative difference between the criteria text length of a segment and of its
// structured output (labels excluded). Zero means no text was added or dropped.
func LengthDrift(segment, structured string) float64 {
	in := TextLength(segment)
	out := TextLength(StripNumbering(structured))
	if in == 0 {
		if out == 0 {
			return 0
		}
		return 1
	}
	d := float64(out-in) / float64(in)
	if d < 0 {
		return -d
	}
	return d
}
