package eligibility

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectSegment(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "", want: ""},
		{name: "plain text is trimmed", in: "  - a\n- b \n", want: "- a\n- b"},
		{name: "age block stripped without sections", in: ageBlock + "\nReal text here", want: "Real text here"},
		{name: "first multi-paragraph section wins", in: "A\n\nB|C", want: "A\n\nB"},
		{name: "later multi-paragraph section wins", in: "single|x\ny|p\nq", want: "x\ny"},
		{name: "no multi-paragraph section falls back to first", in: "A|B|C", want: "A"},
		{name: "fallback trims first section", in: "  A  | B\n", want: "A"},
		{name: "leading empty section fallback", in: "|B|C", want: ""},
		{name: "only separators", in: "||", want: ""},
		{name: "adjacent separators keep empty sections", in: "A||x\ny", want: "x\ny"},
		{name: "age block only section is one paragraph", in: ageBlock + "|a\nb", want: "a\nb"},
		{name: "age block removed from fallback section", in: ageBlock + " A|B", want: "A"},
		{name: "age block removed from chosen section", in: "one|" + ageBlock + "\nx\ny", want: "x\ny"},
		{name: "age block hiding newlines decides paragraphs", in: AgeBlockStart + "\n\n" + AgeBlockEnd + "A|B\nC", want: "B\nC"},
		{name: "trailing blank lines are trimmed before counting", in: "a\n   \n|b", want: "a"},
		{name: "inner whitespace-only line counts as a paragraph", in: "a\n   \nb|c", want: "a\n   \nb"},
		{name: "trailing newline is stripped before counting", in: "text\n|other", want: "text"},
		{name: "crlf counts", in: "a\r\nb|c", want: "a\r\nb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, SelectSegment(tt.in))
		})
	}
}

func TestSelectSegment_NoSeparatorNoMarkersIsTrim(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", " ", "x", "\t1. a\n\t2. b\n\n", "≥ 18 years\n"} {
		rest, _ := ExtractAgeBlocks(in)
		assert.Equal(t, rest, SelectSegment(in))
	}
}

func TestPreselect_Diagnostics(t *testing.T) {
	t.Parallel()

	p := Preselect("A|" + ageBlock + "\nB\nC|D")
	require.Equal(t, "B\nC", p.Segment)
	assert.Equal(t, 3, p.Sections)
	assert.Equal(t, 1, p.SectionIndex)
	assert.False(t, p.Fallback)
	assert.Equal(t, []string{ageBlock}, p.AgeBlocks)

	p = Preselect(ageBlock + "A|B")
	assert.Equal(t, "A", p.Segment)
	assert.Equal(t, 2, p.Sections)
	assert.Equal(t, 0, p.SectionIndex)
	assert.True(t, p.Fallback)
	assert.Len(t, p.AgeBlocks, 1)

	p = Preselect("no separators")
	assert.Equal(t, 1, p.Sections)
	assert.False(t, p.Fallback)
	assert.Nil(t, p.AgeBlocks)
}

func TestCountParagraphs(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1, CountParagraphs(""))
	assert.Equal(t, 1, CountParagraphs("a"))
	assert.Equal(t, 1, CountParagraphs("a\n"))
	assert.Equal(t, 2, CountParagraphs("a\nb"))
	assert.Equal(t, 3, CountParagraphs("a\n\nb"))
}

func TestSplitSections(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"a"}, SplitSections("a"))
	assert.Equal(t, []string{"a", "", "b"}, SplitSections("a||b"))
	assert.Equal(t, []string{"", ""}, SplitSections("|"))
}
