package eligibility

import (
	"context"
	"errors"
	"fmt"
)

// Structurer turns a selected segment into numbered hierarchical text (see ParseNumbered for the format).
// Implementations call out to a language model; the text segmentation in this package never does.
type Structurer interface {
	Structure(ctx context.Context, segment string) (string, error)
}

// StructurerFunc adapts a function to Structurer.
type StructurerFunc func(ctx context.Context, segment string) (string, error)

func (f StructurerFunc) Structure(ctx context.Context, segment string) (string, error) {
	return f(ctx, segment)
}

// RowResult is the outcome of processing one raw criteria cell.
type RowResult struct {
	Index     int
	Raw       string
	Selection Preselection
	Output    string
	Cached    bool
	Err       error
}

// ProcessRow preselects the segment of raw and hands it to s. An empty segment is not sent anywhere and
// produces an empty output.
func ProcessRow(ctx context.Context, index int, raw string, s Structurer) RowResult {
	res := RowResult{Index: index, Raw: raw, Selection: Preselect(raw)}
	if res.Selection.Segment == "" {
		return res
	}
	if s == nil {
		res.Err = errors.New("ProcessRow: structurer is nil")
		return res
	}

	out, err := s.Structure(withCacheProbe(ctx, &res.Cached), res.Selection.Segment)
	if err != nil {
		res.Err = fmt.Errorf("ProcessRow: structure row %d: %w", index, err)
		return res
	}
	res.Output = out
	return res
}

// SelectOnly is a Structurer that returns the segment unchanged.
var SelectOnly = StructurerFunc(func(_ context.Context, segment string) (string, error) {
	return segment, nil
})
