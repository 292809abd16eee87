package eligibility

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

const ageBlock = AgeBlockStart + "XYZ" + AgeBlockEnd

func TestExtractAgeBlocks(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		in         string
		wantRest   string
		wantBlocks []string
	}{
		{
			name:     "empty",
			in:       "",
			wantRest: "",
		},
		{
			name:     "no markers trims",
			in:       "  \n- criterion one\n",
			wantRest: "- criterion one",
		},
		{
			name:       "block then text",
			in:         ageBlock + "\nReal text here",
			wantRest:   "Real text here",
			wantBlocks: []string{ageBlock},
		},
		{
			name:       "block in the middle",
			in:         "A\n" + AgeBlockStart + " Yes\nIn utero No " + AgeBlockEnd + " 12\nB",
			wantRest:   "A\n 12\nB",
			wantBlocks: []string{AgeBlockStart + " Yes\nIn utero No " + AgeBlockEnd},
		},
		{
			name:       "duplicates collapse",
			in:         ageBlock + " keep " + ageBlock,
			wantRest:   "keep",
			wantBlocks: []string{ageBlock},
		},
		{
			name:       "distinct blocks keep first-seen order",
			in:         AgeBlockStart + "2" + AgeBlockEnd + "x" + AgeBlockStart + "1" + AgeBlockEnd,
			wantRest:   "x",
			wantBlocks: []string{AgeBlockStart + "2" + AgeBlockEnd, AgeBlockStart + "1" + AgeBlockEnd},
		},
		{
			name:       "nearest end marker wins",
			in:         AgeBlockStart + "a" + AgeBlockEnd + "middle" + AgeBlockEnd,
			wantRest:   "middle" + AgeBlockEnd,
			wantBlocks: []string{AgeBlockStart + "a" + AgeBlockEnd},
		},
		{
			name:       "adjacent markers",
			in:         AgeBlockStart + AgeBlockEnd,
			wantRest:   "",
			wantBlocks: []string{AgeBlockStart + AgeBlockEnd},
		},
		{
			name:     "unterminated start is kept",
			in:       "x " + AgeBlockStart + " dangling",
			wantRest: "x " + AgeBlockStart + " dangling",
		},
		{
			name:       "trailing unterminated start after a block",
			in:         ageBlock + " tail " + AgeBlockStart,
			wantRest:   "tail " + AgeBlockStart,
			wantBlocks: []string{ageBlock},
		},
		{
			name:     "end before start is not a block",
			in:       AgeBlockEnd + " then " + AgeBlockStart,
			wantRest: AgeBlockEnd + " then " + AgeBlockStart,
		},
		{
			name:     "markers are case sensitive",
			in:       strings.ToLower(AgeBlockStart) + "x" + AgeBlockEnd,
			wantRest: strings.ToLower(AgeBlockStart) + "x" + AgeBlockEnd,
		},
		{
			name:       "start marker inside block body",
			in:         AgeBlockStart + " " + AgeBlockStart + " " + AgeBlockEnd + "!",
			wantRest:   "!",
			wantBlocks: []string{AgeBlockStart + " " + AgeBlockStart + " " + AgeBlockEnd},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rest, blocks := ExtractAgeBlocks(tt.in)
			assert.Equal(t, tt.wantRest, rest)
			if diff := cmp.Diff(tt.wantBlocks, blocks); diff != "" {
				t.Fatalf("blocks mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestExtractAgeBlocks_RemainderHasNoBlocks(t *testing.T) {
	t.Parallel()

	inputs := []string{
		ageBlock,
		"a" + ageBlock + "b" + ageBlock + "c",
		AgeBlockStart + AgeBlockStart + "x" + AgeBlockEnd + AgeBlockEnd,
		"plain",
		AgeBlockStart,
	}
	for _, in := range inputs {
		rest, _ := ExtractAgeBlocks(in)
		again, blocks := ExtractAgeBlocks(rest)
		assert.Empty(t, blocks, "input %q", in)
		assert.Equal(t, rest, again, "input %q", in)
	}
}
