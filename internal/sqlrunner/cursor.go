package sqlrunner

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"strconv"
	"time"
	"unicode/utf8"
)

// Cursor yields rows one at a time. Next returns io.EOF once the source is
// exhausted; a cursor cannot be rewound.
type Cursor interface {
	Next(ctx context.Context) (Row, error)
	Close() error
}

// resultRows is the subset of *sql.Rows the cursors use.
type resultRows interface {
	Columns() ([]string, error)
	Next() bool
	Scan(dest ...any) error
	Err() error
	NextResultSet() bool
	Close() error
}

// extraResultSets is implemented by cursors that skip result sets after the
// first one.
type extraResultSets interface {
	ExtraResultSets() int
}

type rowsCursor struct {
	rows      resultRows
	columns   []string
	done      bool
	extraSets int
}

func newRowsCursor(rows resultRows) (*rowsCursor, error) {
	cols, err := rows.Columns()
	if err != nil {
		_ = rows.Close()
		return nil, &ExecutionError{Err: err}
	}
	return &rowsCursor{rows: rows, columns: cols}, nil
}

func (c *rowsCursor) Next(ctx context.Context) (Row, error) {
	if c.done {
		return Row{}, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return Row{}, err
	}
	if c.rows.Next() {
		return scanRow(c.rows, c.columns)
	}
	if err := c.rows.Err(); err != nil {
		return Row{}, &ExecutionError{Err: err}
	}

	// Only the first result set is streamed; later ones are drained.
	for c.rows.NextResultSet() {
		c.extraSets++
		for c.rows.Next() {
		}
		if err := c.rows.Err(); err != nil {
			return Row{}, &ExecutionError{Err: err}
		}
	}
	c.done = true
	return Row{}, io.EOF
}

func (c *rowsCursor) ExtraResultSets() int { return c.extraSets }

func (c *rowsCursor) Close() error { return c.rows.Close() }

// staticCursor serves rows that are already in memory.
type staticCursor struct {
	rows []Row
}

func (c *staticCursor) Next(context.Context) (Row, error) {
	if len(c.rows) == 0 {
		return Row{}, io.EOF
	}
	row := c.rows[0]
	c.rows = c.rows[1:]
	return row, nil
}

func (c *staticCursor) Close() error { return nil }

func scanRow(rows resultRows, columns []string) (Row, error) {
	raw := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return Row{}, &ExecutionError{Err: err}
	}
	return Row{Columns: columns, Values: raw}, nil
}

const (
	datetimeLayout       = "2006-01-02 15:04:05"
	datetimeMicrosLayout = "2006-01-02 15:04:05.000000"
)

// renderValue formats a driver value as a CSV field.
func renderValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		if utf8.Valid(x) {
			return string(x)
		}
		return base64.StdEncoding.EncodeToString(x)
	case time.Time:
		if x.Nanosecond() == 0 {
			return x.Format(datetimeLayout)
		}
		return x.Format(datetimeMicrosLayout)
	case bool:
		if x {
			return "True"
		}
		return "False"
	case int64:
		return strconv.FormatInt(x, 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	default:
		return fmt.Sprint(x)
	}
}
