package sqlrunner

import (
	"context"
	"database/sql"

	"github.com/golang-sql/sqlexp"

	"sql-runner/internal/dsn"
	"sql-runner/pkg/db"
)

// queryer is satisfied by *sql.Conn. Statistics mode is a session setting,
// so everything a run executes goes through one pinned connection.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type Repository struct {
	open func(ctx context.Context, p dsn.ConnectionParameters) (*db.Db, error)
	// newQueue returns the query argument that turns on message mode and the
	// queue it feeds.
	newQueue func() (any, messageQueue)
}

func NewRepository() *Repository {
	return &Repository{
		open: db.NewConnection,
		newQueue: func() (any, messageQueue) {
			rm := &sqlexp.ReturnMessage{}
			return rm, rm
		},
	}
}

// Open connects to the backend described by p and pins one connection.
// Closing the returned *db.Db releases both.
func (r *Repository) Open(ctx context.Context, p dsn.ConnectionParameters) (*db.Db, *sql.Conn, error) {
	conn, err := r.open(ctx, p)
	if err != nil {
		return nil, nil, &ExecutionError{Err: err}
	}
	pinned, err := conn.Conn(ctx)
	if err != nil {
		_ = conn.Close()
		return nil, nil, &ExecutionError{Err: err}
	}
	return conn, pinned, nil
}

func (r *Repository) Query(ctx context.Context, q queryer, sqlText string) (Cursor, error) {
	rows, err := q.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, &ExecutionError{Err: err}
	}
	return newRowsCursor(rows)
}

// QueryWithStatistics issues sqlText in message mode so the informational
// notices produced by SET STATISTICS reach session.
func (r *Repository) QueryWithStatistics(ctx context.Context, q queryer, sqlText string, session *statisticsSession) (Cursor, error) {
	arg, queue := r.newQueue()
	rows, err := q.QueryContext(ctx, sqlText, arg)
	if err != nil {
		return nil, &ExecutionError{Err: err}
	}
	return &statisticsCursor{rows: rows, queue: queue, session: session}, nil
}
