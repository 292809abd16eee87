package eligibility

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
)

// ValidateOptions controls ValidateTable.
type ValidateOptions struct {
	// Column holds the raw criteria and OutputColumn the structured result for that row.
	Column       string
	OutputColumn string
	Comma        rune

	// MaxDrift flags rows whose output text length differs from the segment by more than this
	// fraction (0 disables the check).
	MaxDrift float64
}

// RowIssue is one structured cell that breaks the output contract.
type RowIssue struct {
	Row    int     `json:"row"` // 0-based data row
	Reason string  `json:"reason"`
	Drift  float64 `json:"drift,omitempty"`
}

// ValidateTable re-reads a processed table and reports rows whose output is missing, is not numbered
// text, or drifted in length from the segment it was produced from. It returns the number of data rows read.
func ValidateTable(r io.Reader, opts ValidateOptions) ([]RowIssue, int, error) {
	if opts.Column == "" || opts.OutputColumn == "" {
		return nil, 0, errors.New("ValidateTable: column and output column are required")
	}
	if opts.Comma == 0 {
		opts.Comma = ','
	}

	cr := csv.NewReader(r)
	cr.Comma = opts.Comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("ValidateTable: read header: %w", err)
	}
	in := columnIndex(header, opts.Column)
	if in == -1 {
		return nil, 0, fmt.Errorf("ValidateTable: %w: %q", ErrColumnNotFound, opts.Column)
	}
	out := columnIndex(header, opts.OutputColumn)
	if out == -1 {
		return nil, 0, fmt.Errorf("ValidateTable: %w: %q", ErrColumnNotFound, opts.OutputColumn)
	}

	var issues []RowIssue
	rows := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return issues, rows, fmt.Errorf("ValidateTable: read row %d: %w", rows, err)
		}
		row := rows
		rows++

		segment := SelectSegment(field(rec, in))
		structured := field(rec, out)
		switch {
		case segment == "" && structured == "":
			continue
		case structured == "":
			issues = append(issues, RowIssue{Row: row, Reason: "missing output"})
			continue
		}
		if err := ValidateNumbered(structured); err != nil {
			issues = append(issues, RowIssue{Row: row, Reason: err.Error()})
			continue
		}
		if opts.MaxDrift > 0 {
			if d := LengthDrift(segment, structured); d > opts.MaxDrift {
				issues = append(issues, RowIssue{Row: row, Reason: "text length drift", Drift: d})
			}
		}
	}
	return issues, rows, nil
}

func field(rec []string, i int) string {
	if i < len(rec) {
		return rec[i]
	}
	return ""
}
