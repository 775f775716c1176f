package ledger

import (
	"encoding/csv"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/osmike/sweeper/internal/domain"
	errs "github.com/osmike/sweeper/internal/error"
)

// Columns names the header fields a table must carry.
type Columns struct {
	// Key is the unique identity column (e.g., "Email").
	Key string

	// Usage is the usage-count column (e.g., "TimesUsed").
	// Leave empty for tables that do not track a cap.
	Usage string

	// LastUsed is the last-used timestamp column (e.g., "LastUsedDate").
	LastUsed string

	// TimeLayout renders timestamps written back to the table.
	// Default is DEFAULT_TIME_LAYOUT if empty.
	TimeLayout string
}

func (c Columns) layout() string {
	if c.TimeLayout == "" {
		return domain.DEFAULT_TIME_LAYOUT
	}
	return c.TimeLayout
}

func (c Columns) required() []string {
	req := []string{c.Key, c.LastUsed}
	if c.Usage != "" {
		req = append(req, c.Usage)
	}
	return req
}

// table is a decoded CSV file: its fixed header and the non-blank rows.
type table struct {
	header []string
	rows   []domain.Record
}

// decode reads a header row followed by data rows.
//
// Blank rows (every field empty) are dropped. Rows whose usage count or timestamp cannot be
// parsed are kept with Record.Malformed set. A row carrying values past the last header column
// is an ErrSchema; short rows are padded with empty values.
func decode(r io.Reader, cols Columns) (*table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, errs.New(errs.ErrSchema, "table has no header row")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	for _, name := range cols.required() {
		if !slices.Contains(header, name) {
			return nil, errs.New(errs.ErrSchema, fmt.Sprintf("missing column %q", name))
		}
	}

	t := &table{header: header}
	for {
		line, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", len(t.rows)+2, err)
		}
		if blank(line) {
			continue
		}
		// A rewrite only keeps header columns; refuse rows that would lose data.
		if len(line) > len(header) && !blank(line[len(header):]) {
			return nil, errs.New(errs.ErrSchema,
				fmt.Sprintf("row %d has %d fields, header has %d", len(t.rows)+2, len(line), len(header)))
		}
		t.rows = append(t.rows, parseRecord(header, line, cols))
	}
	return t, nil
}

func blank(line []string) bool {
	for _, v := range line {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func parseRecord(header, line []string, cols Columns) domain.Record {
	fields := make(map[string]string, len(header))
	for i, name := range header {
		if i < len(line) {
			fields[name] = line[i]
		} else {
			fields[name] = ""
		}
	}

	rec := domain.Record{
		Key:    strings.TrimSpace(fields[cols.Key]),
		Fields: fields,
	}

	if cols.Usage != "" {
		if raw := strings.TrimSpace(fields[cols.Usage]); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				rec.Malformed = fmt.Errorf("usage count %q", raw)
			} else {
				rec.UsageCount = n
			}
		}
	}

	if raw := strings.TrimSpace(fields[cols.LastUsed]); raw != "" {
		ts, err := parseTime(raw, cols.layout())
		if err != nil {
			rec.Malformed = fmt.Errorf("last used %q", raw)
		} else {
			rec.LastUsed = ts
		}
	}
	return rec
}

// parseTime accepts the table layout, RFC3339, then a bare date taken as local midnight.
func parseTime(raw, layout string) (time.Time, error) {
	var firstErr error
	for _, l := range []string{layout, time.RFC3339, domain.DATE_LAYOUT} {
		ts, err := time.ParseInLocation(l, raw, time.Local)
		if err == nil {
			return ts, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

// encode writes the header and every row. Rows touched by MarkUsed get their usage and
// last-used columns re-rendered; all other values are written back as read.
func encode(w io.Writer, t *table, cols Columns) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.header); err != nil {
		return err
	}

	line := make([]string, len(t.header))
	for _, rec := range t.rows {
		for i, name := range t.header {
			line[i] = rec.Fields[name]
		}
		if rec.Dirty() {
			for i, name := range t.header {
				switch {
				case cols.Usage != "" && name == cols.Usage:
					line[i] = strconv.Itoa(rec.UsageCount)
				case name == cols.LastUsed:
					line[i] = rec.LastUsed.Format(cols.layout())
				}
			}
		}
		if err := cw.Write(line); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
