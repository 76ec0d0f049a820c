package telemetry

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"sql-runner/internal/mssqlstats"
)

// Metrics holds the gauges and counters for a single run. Each run gets its
// own registry so nothing leaks between invocations.
type Metrics struct {
	registry *prometheus.Registry

	runsTotal     *prometheus.CounterVec
	rowsWritten   prometheus.Counter
	queryDuration prometheus.Gauge
	timingsMs     *prometheus.GaugeVec
	tableReads    *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sqlrunner_runs_total",
				Help: "Total number of query runs by outcome.",
			},
			[]string{"outcome"},
		),
		rowsWritten: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sqlrunner_rows_written_total",
				Help: "Total number of result rows written to the output sink.",
			},
		),
		queryDuration: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sqlrunner_query_duration_seconds",
				Help: "Wall-clock duration of the last query execution.",
			},
		),
		timingsMs: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sqlrunner_statistics_time_ms",
				Help: "SQL Server reported CPU and elapsed time in milliseconds.",
			},
			[]string{"phase", "clock"},
		),
		tableReads: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sqlrunner_table_reads",
				Help: "SQL Server reported page reads per table.",
			},
			[]string{"table", "kind"},
		),
	}
	m.registry.MustRegister(m.runsTotal, m.rowsWritten, m.queryDuration, m.timingsMs, m.tableReads)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveRun(outcome string) {
	m.runsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) AddRowsWritten(rows int) {
	if rows > 0 {
		m.rowsWritten.Add(float64(rows))
	}
}

func (m *Metrics) ObserveQueryDuration(elapsed time.Duration) {
	m.queryDuration.Set(elapsed.Seconds())
}

func (m *Metrics) ObserveStatistics(timings mssqlstats.Timings, tableIO *mssqlstats.TableIO) {
	m.timingsMs.WithLabelValues("parse", "cpu").Set(float64(timings.ParseCPUMs))
	m.timingsMs.WithLabelValues("parse", "elapsed").Set(float64(timings.ParseElapsedMs))
	m.timingsMs.WithLabelValues("exec", "cpu").Set(float64(timings.ExecCPUMs))
	m.timingsMs.WithLabelValues("exec", "elapsed").Set(float64(timings.ExecElapsedMs))

	if tableIO == nil {
		return
	}
	for _, table := range tableIO.Tables() {
		stats, _ := tableIO.Get(table)
		m.tableReads.WithLabelValues(table, "logical").Set(float64(stats.Logical))
		m.tableReads.WithLabelValues(table, "physical").Set(float64(stats.Physical))
		m.tableReads.WithLabelValues(table, "read_ahead").Set(float64(stats.ReadAhead))
		m.tableReads.WithLabelValues(table, "lob_logical").Set(float64(stats.LobLogical))
	}
}

// Push sends the run's metrics to a Prometheus Pushgateway.
func (m *Metrics) Push(ctx context.Context, url, job string) error {
	return push.New(url, job).Gatherer(m.registry).PushContext(ctx)
}
