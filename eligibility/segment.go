package eligibility

import "strings"

// SectionSeparator separates alternative renderings of the same criteria set in a raw cell.
const SectionSeparator = "|"

// Preselection describes how a segment was chosen from a raw criteria cell.
type Preselection struct {
	// Segment is the text handed to the structuring step.
	Segment string

	// Sections is the number of "|"-delimited sections in the raw text (1 when there is no separator).
	Sections int

	// SectionIndex is the 0-based index of the section Segment was taken from.
	SectionIndex int

	// Fallback is true when no section had more than one paragraph and section 0 was used.
	Fallback bool

	// AgeBlocks are the distinct age blocks removed from the chosen section.
	AgeBlocks []string
}

// SelectSegment picks the block of a raw criteria cell that is best suited for hierarchical numbering.
// It never fails: empty or malformed input yields a best-effort (possibly empty) segment.
func SelectSegment(text string) string {
	return Preselect(text).Segment
}

// Preselect is SelectSegment with diagnostics.
//
// Without a separator the whole text is used. Otherwise the first section that still has more than one
// paragraph once its age blocks are removed wins, and section 0 is the fallback.
func Preselect(text string) Preselection {
	if !strings.Contains(text, SectionSeparator) {
		segment, blocks := ExtractAgeBlocks(text)
		return Preselection{Segment: segment, Sections: 1, AgeBlocks: blocks}
	}

	sections := SplitSections(text)
	for i, section := range sections {
		segment, blocks := ExtractAgeBlocks(section)
		if CountParagraphs(segment) > 1 {
			return Preselection{Segment: segment, Sections: len(sections), SectionIndex: i, AgeBlocks: blocks}
		}
	}

	segment, blocks := ExtractAgeBlocks(sections[0])
	return Preselection{Segment: segment, Sections: len(sections), Fallback: true, AgeBlocks: blocks}
}

// SplitSections splits text on "|" keeping empty sections between adjacent separators.
func SplitSections(text string) []string {
	return strings.Split(text, SectionSeparator)
}

// CountParagraphs counts newline-delimited parts of the trimmed text. Empty parts count, so "" is one
// paragraph and "a\n\nb" is three.
func CountParagraphs(s string) int {
	return strings.Count(strings.TrimSpace(s), "\n") + 1
}
