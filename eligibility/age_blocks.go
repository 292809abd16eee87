package eligibility

import "strings"

// Standardised age-eligibility questionnaire markers. Both are matched literally and case-sensitively.
const (
	AgeBlockStart = "Are the trial subjects under 18?"
	AgeBlockEnd   = "F.1.3.1 Number of subjects for this age range"
)

// ExtractAgeBlocks removes every age block from text and returns the trimmed remainder along with the
// distinct blocks that were removed, in order of first occurrence.
//
// A block runs from a start marker to the nearest following end marker, both included. Scanning resumes
// right after the matched end marker, so blocks never overlap. A start marker with no end marker after it
// is not a block and stays in the remainder.
func ExtractAgeBlocks(text string) (string, []string) {
	var (
		b      strings.Builder
		blocks []string
		seen   map[string]struct{}
	)

	pos := 0
	for pos < len(text) {
		start := strings.Index(text[pos:], AgeBlockStart)
		if start == -1 {
			break
		}
		start += pos

		end := strings.Index(text[start+len(AgeBlockStart):], AgeBlockEnd)
		if end == -1 {
			break
		}
		end += start + len(AgeBlockStart) + len(AgeBlockEnd)

		b.WriteString(text[pos:start])
		block := text[start:end]
		if seen == nil {
			seen = make(map[string]struct{}, 2)
		}
		if _, ok := seen[block]; !ok {
			seen[block] = struct{}{}
			blocks = append(blocks, block)
		}
		pos = end
	}
	if len(blocks) == 0 {
		return strings.TrimSpace(text), nil
	}
	b.WriteString(text[pos:])
	return strings.TrimSpace(b.String()), blocks
}
