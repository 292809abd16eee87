package eligibility

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTable(t *testing.T) {
	t.Parallel()

	in := strings.Join([]string{
		`id,Inclusion Criteria,Round 1`,
		`1,"Group 1` + "\n" + `- consent","1 Group 1` + "\n" + `    1.1 - consent"`,
		`2,"a` + "\n" + `b",`,
		`3,"x` + "\n" + `y","- x` + "\n" + `- y"`,
		`4,"long criterion text` + "\n" + `second line","1 long"`,
		`5,,`,
	}, "\n") + "\n"

	issues, rows, err := ValidateTable(strings.NewReader(in), ValidateOptions{
		Column:       "Inclusion Criteria",
		OutputColumn: "Round 1",
		MaxDrift:     0.1,
	})
	require.NoError(t, err)
	assert.Equal(t, 5, rows)
	require.Len(t, issues, 3)

	assert.Equal(t, 1, issues[0].Row)
	assert.Equal(t, "missing output", issues[0].Reason)

	assert.Equal(t, 2, issues[1].Row)
	assert.Contains(t, issues[1].Reason, "missing numeric label")

	assert.Equal(t, 3, issues[2].Row)
	assert.Equal(t, "text length drift", issues[2].Reason)
	assert.Greater(t, issues[2].Drift, 0.1)
}

func TestValidateTable_MissingColumns(t *testing.T) {
	t.Parallel()

	_, _, err := ValidateTable(strings.NewReader("a,b\n"), ValidateOptions{Column: "a", OutputColumn: "o"})
	require.ErrorIs(t, err, ErrColumnNotFound)

	_, _, err = ValidateTable(strings.NewReader("a,b\n"), ValidateOptions{Column: "a"})
	require.Error(t, err)
}
