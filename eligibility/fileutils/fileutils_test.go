package fileutils

import (
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreview(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "abc", Preview("  abc  ", 10))
	assert.Equal(t, "abc", Preview("abc", 0))
	assert.Equal(t, "ab…", Preview("abcdef", 2))
	assert.Equal(t, `a\nb\nc\nd`, Preview("a\r\nb\rc\nd", 0))

	// "≥" is three bytes; cutting inside it backs off to the rune start.
	assert.Equal(t, "a…", Preview("a≥b", 2))
}

func TestWriteJSONFileAtomic(t *testing.T) {
	t.Parallel()

	p := filepath.Join(t.TempDir(), "nested", "report.json")
	require.NoError(t, WriteJSONFileAtomic(p, map[string]int{"rows": 3}, true))
	require.True(t, FileExists(p))

	b, err := os.ReadFile(p)
	require.NoError(t, err)
	var got map[string]int
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, 3, got["rows"])

	ents, err := os.ReadDir(filepath.Dir(p))
	require.NoError(t, err)
	assert.Len(t, ents, 1, "temp file left behind")
}

func TestWriteFileAtomic_FailureKeepsOriginal(t *testing.T) {
	t.Parallel()

	p := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, os.WriteFile(p, []byte("old"), 0o644))

	boom := errors.New("boom")
	err := WriteFileAtomic(p, 0o644, func(w io.Writer) error {
		_, _ = io.WriteString(w, "partial")
		return boom
	})
	require.ErrorIs(t, err, boom)

	b, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "old", string(b))
}

func TestDecodeModelJSON(t *testing.T) {
	t.Parallel()

	type out struct {
		Lines []string `json:"lines"`
	}

	v, err := DecodeModelJSON[out](`{"lines":["1 a"]}`)
	require.NoError(t, err)
	assert.Equal(t, []string{"1 a"}, v.Lines)

	v, err = DecodeModelJSON[out]("```json\n{\"lines\":[\"1 b\"]}\n```")
	require.NoError(t, err)
	assert.Equal(t, []string{"1 b"}, v.Lines)

	v, err = DecodeModelJSON[out]("Here you go: {\"lines\":[\"1 c\"]} hope that helps")
	require.NoError(t, err)
	assert.Equal(t, []string{"1 c"}, v.Lines)

	_, err = DecodeModelJSON[out]("   ")
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	_, err = DecodeModelJSON[out]("no json here")
	assert.Error(t, err)
}
