package eligibility

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/theimaginaryfoundation/criteria-splitter/eligibility/fileutils"
)

// ErrColumnNotFound is returned when the input header lacks the configured column.
var ErrColumnNotFound = errors.New("column not found")

// TableOptions controls how a delimited table is read, processed and written.
type TableOptions struct {
	// Column holds the raw criteria text.
	Column string

	// OutputColumn is appended to the header and receives each row's result.
	OutputColumn string

	// ChunkSize is the number of rows read, processed and written together (defaults to 5).
	ChunkSize int

	// Concurrency bounds in-flight rows within a chunk (defaults to 1).
	Concurrency int

	// InputComma and OutputComma are the field delimiters (default ';' and ',').
	InputComma  rune
	OutputComma rune

	// MaxRows stops after N data rows (0 = all).
	MaxRows int
}

func (o TableOptions) withDefaults() TableOptions {
	if o.ChunkSize == 0 {
		o.ChunkSize = 5
	}
	if o.Concurrency == 0 {
		o.Concurrency = 1
	}
	if o.InputComma == 0 {
		o.InputComma = ';'
	}
	if o.OutputComma == 0 {
		o.OutputComma = ','
	}
	return o
}

func (o TableOptions) Validate() error {
	if o.Column == "" {
		return errors.New("missing input column")
	}
	if o.OutputColumn == "" {
		return errors.New("missing output column")
	}
	if o.ChunkSize < 0 {
		return errors.New("chunk size must be >= 0")
	}
	if o.Concurrency < 0 {
		return errors.New("concurrency must be >= 0")
	}
	if o.MaxRows < 0 {
		return errors.New("max rows must be >= 0")
	}
	return nil
}

// TableStats summarises a ProcessTable run.
type TableStats struct {
	Rows       int           `json:"rows"`
	Chunks     int           `json:"chunks"`
	Structured int           `json:"structured"`
	Empty      int           `json:"empty"`
	Failed     int           `json:"failed"`
	Cached     int           `json:"cached"`
	Elapsed    time.Duration `json:"elapsed_ns"`
}

// ProcessTable streams a delimited table from r to w, structuring Column of each row with s and appending
// the result as OutputColumn. Rows are handled in chunks of opts.ChunkSize; a chunk is fully written and
// flushed before the next one is read. A failing row is logged and gets an empty output cell; it never
// stops the other rows.
func ProcessTable(ctx context.Context, r io.Reader, w io.Writer, opts TableOptions, s Structurer, log *zap.Logger) (TableStats, error) {
	var stats TableStats
	if ctx == nil {
		return stats, errors.New("ProcessTable: ctx is nil")
	}
	if s == nil {
		return stats, errors.New("ProcessTable: structurer is nil")
	}
	if err := opts.Validate(); err != nil {
		return stats, fmt.Errorf("ProcessTable: %w", err)
	}
	opts = opts.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	start := time.Now()

	cr := csv.NewReader(r)
	cr.Comma = opts.InputComma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		return stats, fmt.Errorf("ProcessTable: read header: %w", err)
	}
	col := columnIndex(header, opts.Column)
	if col == -1 {
		return stats, fmt.Errorf("ProcessTable: %w: %q", ErrColumnNotFound, opts.Column)
	}

	cw := csv.NewWriter(w)
	cw.Comma = opts.OutputComma
	if err := cw.Write(append(append([]string(nil), header...), opts.OutputColumn)); err != nil {
		return stats, fmt.Errorf("ProcessTable: write header: %w", err)
	}

	for done := false; !done; {
		if err := ctx.Err(); err != nil {
			cw.Flush()
			stats.Elapsed = time.Since(start)
			if ferr := cw.Error(); ferr != nil {
				return stats, fmt.Errorf("ProcessTable: flush: %w", errors.Join(err, ferr))
			}
			return stats, err
		}

		limit := opts.ChunkSize
		if opts.MaxRows > 0 && opts.MaxRows-stats.Rows < limit {
			limit = opts.MaxRows - stats.Rows
		}
		records, err := readChunk(cr, limit)
		if err != nil {
			return stats, fmt.Errorf("ProcessTable: read chunk %d: %w", stats.Chunks+1, err)
		}
		if len(records) < opts.ChunkSize || (opts.MaxRows > 0 && stats.Rows+len(records) >= opts.MaxRows) {
			done = true
		}
		if len(records) == 0 {
			break
		}

		results := processChunk(ctx, records, col, stats.Rows, opts.Concurrency, s)
		for i, res := range results {
			out := res.Output
			switch {
			case res.Err != nil:
				stats.Failed++
				out = ""
				log.Warn("row failed",
					zap.Int("row", res.Index),
					zap.String("segment", fileutils.Preview(res.Selection.Segment, 120)),
					zap.Error(res.Err))
			case res.Selection.Segment == "":
				stats.Empty++
			default:
				stats.Structured++
				if res.Cached {
					stats.Cached++
				}
				log.Debug("row structured",
					zap.Int("row", res.Index),
					zap.Int("sections", res.Selection.Sections),
					zap.Int("section", res.Selection.SectionIndex),
					zap.Bool("fallback", res.Selection.Fallback),
					zap.Int("age_blocks", len(res.Selection.AgeBlocks)),
					zap.Bool("cached", res.Cached))
			}
			rec, extra := fitRecord(records[i], len(header))
			if extra > 0 {
				log.Warn("row has more fields than the header; extra fields dropped",
					zap.Int("row", res.Index),
					zap.Int("fields", len(records[i])),
					zap.Int("header_fields", len(header)))
			}
			if err := cw.Write(append(rec, out)); err != nil {
				return stats, fmt.Errorf("ProcessTable: write row %d: %w", res.Index, err)
			}
		}
		cw.Flush()
		if err := cw.Error(); err != nil {
			return stats, fmt.Errorf("ProcessTable: flush chunk %d: %w", stats.Chunks+1, err)
		}

		stats.Rows += len(records)
		stats.Chunks++
		log.Info("chunk processed",
			zap.Int("chunk", stats.Chunks),
			zap.Int("rows", stats.Rows),
			zap.Int("failed", stats.Failed),
			zap.Duration("elapsed", time.Since(start).Round(time.Millisecond)))
	}

	stats.Elapsed = time.Since(start)
	return stats, nil
}

// processChunk runs every row of a chunk through s with at most concurrency rows in flight and returns
// the results in input order.
func processChunk(ctx context.Context, records [][]string, col, offset, concurrency int, s Structurer) []RowResult {
	results := make([]RowResult, len(records))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, rec := range records {
		raw := field(rec, col)
		g.Go(func() error {
			results[i] = ProcessRow(gctx, offset+i, raw, s)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// fitRecord pads rec with empty fields or cuts it to width so the appended output lands under the
// output column. It returns the number of fields dropped.
func fitRecord(rec []string, width int) ([]string, int) {
	out := make([]string, width, width+1)
	copy(out, rec)
	if len(rec) > width {
		return out, len(rec) - width
	}
	return out, 0
}

func readChunk(cr *csv.Reader, n int) ([][]string, error) {
	if n <= 0 {
		return nil, nil
	}
	records := make([][]string, 0, n)
	for len(records) < n {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func columnIndex(header []string, name string) int {
	for i, h := range header {
		if i == 0 {
			h = trimBOM(h)
		}
		if h == name {
			return i
		}
	}
	return -1
}

func trimBOM(s string) string {
	return strings.TrimPrefix(s, "\ufeff")
}
