// Package telemetry reports a run as structured log events, per-run
// Prometheus metrics and optional fan-out to external publishers.
package telemetry

import (
	"context"
	"log/slog"
	"time"

	"sql-runner/internal/mssqlstats"
)

// Report is the parsed execution telemetry of one query.
type Report struct {
	SQL      string
	Duration time.Duration
	Timings  mssqlstats.Timings
	TableIO  *mssqlstats.TableIO
}

// Publisher receives finished reports, e.g. a Redis stream.
type Publisher interface {
	Publish(ctx context.Context, report Report) error
}

type Reporter struct {
	logger     *slog.Logger
	metrics    *Metrics
	publishers []Publisher
}

func NewReporter(logger *slog.Logger, metrics *Metrics, publishers ...Publisher) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{logger: logger, metrics: metrics, publishers: publishers}
}

func (r *Reporter) Logger() *slog.Logger { return r.logger }

func (r *Reporter) QueryStarted(ctx context.Context, sqlText string, statistics bool) {
	r.logger.InfoContext(ctx, "sql_query", slog.String("sql_query", sqlText))
	r.logger.InfoContext(ctx, "execution_start", slog.Bool("statistics", statistics))
}

func (r *Reporter) ExecutionFinished(ctx context.Context, elapsed time.Duration, err error) {
	attrs := []any{slog.Int64("duration_ms", elapsed.Milliseconds())}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	r.logger.InfoContext(ctx, "execution_end", attrs...)
	if r.metrics != nil {
		r.metrics.ObserveQueryDuration(elapsed)
	}
}

// Statistics logs the parsed timing and table I/O stats and forwards the
// report to every publisher. Publisher failures are logged, not returned:
// they never affect the data written to the sink.
func (r *Reporter) Statistics(ctx context.Context, report Report) {
	t := report.Timings
	r.logger.InfoContext(ctx, "timing_stats",
		slog.Int64("duration_ms", report.Duration.Milliseconds()),
		slog.Int64("parse_cpu_ms", t.ParseCPUMs),
		slog.Int64("parse_elapsed_ms", t.ParseElapsedMs),
		slog.Int64("exec_cpu_ms", t.ExecCPUMs),
		slog.Int64("exec_elapsed_ms", t.ExecElapsedMs),
		slog.Float64("exec_cpu_ratio", t.ExecCPURatio),
	)

	tableIO := report.TableIO
	if tableIO == nil {
		tableIO = mssqlstats.NewTableIO()
	}
	r.logger.InfoContext(ctx, "table_io_stats",
		slog.Any("table_io", tableIO),
		slog.String("table", mssqlstats.FormatTableIO(tableIO)),
	)

	if r.metrics != nil {
		r.metrics.ObserveStatistics(t, tableIO)
	}
	for _, p := range r.publishers {
		if err := p.Publish(ctx, report); err != nil {
			r.logger.WarnContext(ctx, "telemetry_publish_failed", slog.String("error", err.Error()))
		}
	}
}

func (r *Reporter) WriteStarted(ctx context.Context, sink string) {
	r.logger.InfoContext(ctx, "write_start", slog.String("output", sink))
}

func (r *Reporter) WriteFinished(ctx context.Context, sink string, rows int, err error) {
	attrs := []any{slog.String("output", sink), slog.Int("rows", rows)}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	r.logger.InfoContext(ctx, "write_end", attrs...)
	if r.metrics != nil {
		r.metrics.AddRowsWritten(rows)
	}
}

// RunFinished records the outcome of a whole run.
func (r *Reporter) RunFinished(ctx context.Context, state string, err error) {
	if r.metrics != nil {
		outcome := "success"
		if err != nil {
			outcome = "failure"
		}
		r.metrics.ObserveRun(outcome)
	}
	if err != nil {
		r.logger.ErrorContext(ctx, "run_end", slog.String("state", state), slog.String("error", err.Error()))
		return
	}
	r.logger.InfoContext(ctx, "run_end", slog.String("state", state))
}
