package sqlrunner

import (
	"io"
	"time"

	"sql-runner/internal/dsn"
)

type SourceKind int

const (
	// SourceLiveQuery executes SQL against a backend.
	SourceLiveQuery SourceKind = iota + 1
	// SourceSubstitute copies a pre-computed file byte for byte.
	SourceSubstitute
	// SourceInferredColumns writes the SELECT list as a header followed by
	// one row of empty values, without touching any backend.
	SourceInferredColumns
)

func (k SourceKind) String() string {
	switch k {
	case SourceLiveQuery:
		return "live_query"
	case SourceSubstitute:
		return "substitute"
	case SourceInferredColumns:
		return "inferred_columns"
	}
	return "unknown"
}

// Source says where rows come from. Build one with LiveQuery, Substitute or
// InferredColumns.
type Source struct {
	Kind   SourceKind
	SQL    string
	Params dsn.ConnectionParameters
	Path   string
}

func LiveQuery(sqlText string, params dsn.ConnectionParameters) Source {
	return Source{Kind: SourceLiveQuery, SQL: sqlText, Params: params}
}

// Substitute still carries the query text: it is checked by the compliance
// gate even though it never runs.
func Substitute(sqlText, path string) Source {
	return Source{Kind: SourceSubstitute, SQL: sqlText, Path: path}
}

func InferredColumns(sqlText string) Source {
	return Source{Kind: SourceInferredColumns, SQL: sqlText}
}

// Sink is a file path, or Stdout when Path is empty. A path ending in a
// double suffix such as .csv.gz is gzip-compressed.
type Sink struct {
	Path   string
	Stdout io.Writer
}

func (s Sink) String() string {
	if s.Path == "" {
		return "-"
	}
	return s.Path
}

type Options struct {
	// Statistics enables SET STATISTICS TIME/IO collection around the query.
	Statistics bool
}

// Row is one result row; Columns keeps the driver's column order.
type Row struct {
	Columns []string
	Values  []any
}

type State string

const (
	StateNotStarted State = "not_started"
	StateExecuting  State = "executing"
	StateStreaming  State = "streaming"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

type Result struct {
	State State
	Rows  int
	// Skipped is true when a substitute file was already the sink.
	Skipped  bool
	Duration time.Duration
}
