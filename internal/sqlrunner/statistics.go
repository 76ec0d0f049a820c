package sqlrunner

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/golang-sql/sqlexp"
)

var (
	statisticsOn  = []string{"SET STATISTICS TIME ON", "SET STATISTICS IO ON"}
	statisticsOff = []string{"SET STATISTICS TIME OFF", "SET STATISTICS IO OFF"}
)

// messageQueue is the receiving side of sqlexp.ReturnMessage.
type messageQueue interface {
	Message(ctx context.Context) sqlexp.RawMessage
}

// statisticsSession holds SQL Server's extended statistics mode on one
// pinned connection for the duration of a single query. End must be called
// on every exit path; Messages only releases what was captured once the
// query has run to completion.
type statisticsSession struct {
	conn    queryer
	notices [][]byte
	clean   bool
}

func beginStatistics(ctx context.Context, conn queryer) (*statisticsSession, error) {
	s := &statisticsSession{conn: conn}
	for _, stmt := range statisticsOn {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			_ = s.End(context.WithoutCancel(ctx))
			return nil, &ExecutionError{Err: fmt.Errorf("%s: %w", stmt, err)}
		}
	}
	return s, nil
}

func (s *statisticsSession) record(text string) {
	s.notices = append(s.notices, []byte(text))
}

func (s *statisticsSession) complete() { s.clean = true }

func (s *statisticsSession) Messages() ([][]byte, bool) {
	if !s.clean {
		return nil, false
	}
	return s.notices, true
}

func (s *statisticsSession) End(ctx context.Context) error {
	var errs []error
	for _, stmt := range statisticsOff {
		if _, err := s.conn.ExecContext(ctx, stmt); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", stmt, err))
		}
	}
	return errors.Join(errs...)
}

// statisticsCursor drives a query issued with a sqlexp.ReturnMessage
// argument. The driver interleaves rows, result set boundaries and
// informational notices on the message queue; notices are handed to the
// session and rows of the first result set are yielded.
type statisticsCursor struct {
	rows    resultRows
	queue   messageQueue
	session *statisticsSession

	columns   []string
	sets      int
	inRows    bool
	done      bool
	extraSets int
}

func (c *statisticsCursor) Next(ctx context.Context) (Row, error) {
	for {
		if c.inRows {
			if c.rows.Next() {
				if c.sets == 1 {
					return scanRow(c.rows, c.columns)
				}
				continue
			}
			if err := c.rows.Err(); err != nil {
				return Row{}, &ExecutionError{Err: err}
			}
			c.inRows = false
		}
		if c.done {
			return Row{}, io.EOF
		}

		switch m := c.queue.Message(ctx).(type) {
		case sqlexp.MsgNotice:
			c.session.record(fmt.Sprint(m.Message))
		case sqlexp.MsgNext:
			c.sets++
			if c.sets == 1 {
				cols, err := c.rows.Columns()
				if err != nil {
					return Row{}, &ExecutionError{Err: err}
				}
				c.columns = cols
			} else {
				c.extraSets++
			}
			c.inRows = true
		case sqlexp.MsgNextResultSet:
			if !c.rows.NextResultSet() {
				c.finish()
			}
		case sqlexp.MsgError:
			return Row{}, &ExecutionError{Err: m.Error}
		case nil:
			if err := ctx.Err(); err != nil {
				return Row{}, err
			}
			c.finish()
		}
	}
}

func (c *statisticsCursor) finish() {
	c.done = true
	c.session.complete()
}

func (c *statisticsCursor) ExtraResultSets() int { return c.extraSets }

func (c *statisticsCursor) Close() error { return c.rows.Close() }
