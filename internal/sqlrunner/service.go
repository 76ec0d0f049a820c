package sqlrunner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"sql-runner/internal/compliance"
	"sql-runner/internal/mssqlstats"
	"sql-runner/internal/telemetry"
)

type Service struct {
	repo     *Repository
	gate     *compliance.Gate
	reporter *telemetry.Reporter
	state    State
}

func NewService(repo *Repository, gate *compliance.Gate, reporter *telemetry.Reporter) *Service {
	if reporter == nil {
		reporter = telemetry.NewReporter(nil, nil)
	}
	return &Service{repo: repo, gate: gate, reporter: reporter, state: StateNotStarted}
}

// State is the state of the current or last run.
func (s *Service) State() State { return s.state }

// Stream checks the query against the compliance gate and then writes src
// to sink. A violation returns before any connection or sink is opened.
func (s *Service) Stream(ctx context.Context, src Source, sink Sink, opts Options) (res Result, err error) {
	s.state = StateNotStarted
	start := time.Now()
	defer func() {
		if err != nil {
			s.state = StateFailed
		}
		res.State = s.state
		res.Duration = time.Since(start)
		s.reporter.RunFinished(ctx, string(s.state), err)
	}()

	if err = s.checkCompliance(ctx, src.SQL); err != nil {
		return res, err
	}

	switch src.Kind {
	case SourceLiveQuery:
		res, err = s.streamLive(ctx, src, sink, opts)
	case SourceSubstitute:
		res, err = s.copySubstitute(ctx, src, sink)
	case SourceInferredColumns:
		res, err = s.streamInferred(ctx, src, sink)
	default:
		err = fmt.Errorf("unknown source kind %d", src.Kind)
	}
	if err == nil {
		s.state = StateDone
	}
	return res, err
}

func (s *Service) checkCompliance(ctx context.Context, sqlText string) error {
	verdict, err := s.gate.Require(sqlText)
	attrs := []any{
		slog.Bool("compliant", verdict.Compliant),
		slog.String("rule", string(verdict.Rule)),
		slog.String("marker", verdict.Marker),
		slog.String("policy", string(s.gate.Policy())),
	}
	logger := s.reporter.Logger()
	switch {
	case err != nil:
		logger.ErrorContext(ctx, "compliance_verdict", attrs...)
	case verdict.Weak():
		logger.WarnContext(ctx, "compliance_verdict", attrs...)
	default:
		logger.InfoContext(ctx, "compliance_verdict", attrs...)
	}
	return err
}

func (s *Service) streamLive(ctx context.Context, src Source, sink Sink, opts Options) (Result, error) {
	logger := s.reporter.Logger()
	s.state = StateExecuting

	conn, pinned, err := s.repo.Open(ctx, src.Params)
	if err != nil {
		return Result{}, err
	}
	defer conn.Close()
	defer pinned.Close()

	statistics := opts.Statistics
	if statistics && !conn.SupportsStatistics() {
		logger.WarnContext(ctx, "statistics_unsupported", slog.String("dialect", conn.Dialect))
		statistics = false
	}

	s.reporter.QueryStarted(ctx, src.SQL, statistics)
	started := time.Now()

	var session *statisticsSession
	if statistics {
		session, err = beginStatistics(ctx, pinned)
		if err != nil {
			s.reporter.ExecutionFinished(ctx, time.Since(started), err)
			return Result{}, err
		}
		defer func() {
			if err := session.End(context.WithoutCancel(ctx)); err != nil {
				logger.WarnContext(ctx, "statistics_reset_failed", slog.String("error", err.Error()))
			}
		}()
	}

	var cur Cursor
	if session != nil {
		cur, err = s.repo.QueryWithStatistics(ctx, pinned, src.SQL, session)
	} else {
		cur, err = s.repo.Query(ctx, pinned, src.SQL)
	}
	if err != nil {
		s.reporter.ExecutionFinished(ctx, time.Since(started), err)
		return Result{}, err
	}
	defer cur.Close()

	rows, err := s.write(ctx, cur, sink)
	elapsed := time.Since(started)
	s.reporter.ExecutionFinished(ctx, elapsed, err)

	if x, ok := cur.(extraResultSets); ok && x.ExtraResultSets() > 0 {
		logger.WarnContext(ctx, "multiple_result_sets", slog.Int("skipped", x.ExtraResultSets()))
	}
	if session != nil {
		if messages, ok := session.Messages(); ok {
			timings, tableIO := mssqlstats.Parse(messages)
			s.reporter.Statistics(ctx, telemetry.Report{
				SQL:      src.SQL,
				Duration: elapsed,
				Timings:  timings,
				TableIO:  tableIO,
			})
		}
	}
	return Result{Rows: rows}, err
}

func (s *Service) streamInferred(ctx context.Context, src Source, sink Sink) (Result, error) {
	cur := &staticCursor{}
	columns, err := InferColumns(src.SQL)
	if err != nil {
		s.reporter.Logger().WarnContext(ctx, "columns_not_inferred", slog.String("error", err.Error()))
	} else {
		cur.rows = []Row{{Columns: columns, Values: make([]any, len(columns))}}
	}

	rows, err := s.write(ctx, cur, sink)
	return Result{Rows: rows}, err
}

func (s *Service) copySubstitute(ctx context.Context, src Source, sink Sink) (Result, error) {
	logger := s.reporter.Logger()
	s.state = StateStreaming

	skipped, n, err := copyFile(src.Path, sink)
	if err != nil {
		return Result{}, err
	}
	if skipped {
		logger.InfoContext(ctx, "dummy_data_same_file", slog.String("dummy_data_file", src.Path))
		return Result{Skipped: true}, nil
	}
	logger.InfoContext(ctx, "dummy_data_copied",
		slog.String("dummy_data_file", src.Path),
		slog.String("output", sink.String()),
		slog.Int64("bytes", n),
	)
	return Result{}, nil
}

func (s *Service) write(ctx context.Context, cur Cursor, sink Sink) (int, error) {
	s.reporter.WriteStarted(ctx, sink.String())
	n, err := writeRows(ctx, cur, sink, func() { s.state = StateStreaming })
	s.reporter.WriteFinished(ctx, sink.String(), n, err)
	return n, err
}
