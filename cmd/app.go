package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/viper"

	"sql-runner/configs"
	"sql-runner/internal/compliance"
	"sql-runner/internal/dsn"
	"sql-runner/internal/sqlrunner"
	"sql-runner/internal/telemetry"
	"sql-runner/pkg/logger"
	"sql-runner/pkg/redis"
)

// App runs the query in input once.
func App(ctx context.Context, v *viper.Viper, opts cliOptions, input string, stdout, stderr io.Writer) error {
	conf, err := configs.LoadConfig(v)
	if err != nil {
		return err
	}

	log, closeLog, err := logger.New(conf.Log, stderr)
	if err != nil {
		return err
	}
	defer closeLog()

	sqlText, err := os.ReadFile(input)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	src, err := source(conf.DSN, opts.dummyDataFile, string(sqlText))
	if err != nil {
		return err
	}

	gate, err := compliance.NewGate(conf.Compliance.Marker, conf.Compliance.Policy)
	if err != nil {
		return err
	}

	// repositories
	repo := sqlrunner.NewRepository()

	// telemetry
	metrics := telemetry.NewMetrics()
	var publishers []telemetry.Publisher
	if conf.Redis.Addr != "" {
		rdb, err := redis.NewRedis(ctx, conf)
		if err != nil {
			log.WarnContext(ctx, "redis_unavailable", slog.String("error", err.Error()))
		} else {
			defer rdb.Close()
			publishers = append(publishers, rdb)
		}
	}
	reporter := telemetry.NewReporter(log, metrics, publishers...)

	// services
	service := sqlrunner.NewService(repo, gate, reporter)

	_, err = service.Stream(ctx, src, sqlrunner.Sink{Path: opts.output, Stdout: stdout},
		sqlrunner.Options{Statistics: opts.statistics})

	if conf.Metrics.Pushgateway != "" {
		if perr := metrics.Push(context.WithoutCancel(ctx), conf.Metrics.Pushgateway, conf.Metrics.Job); perr != nil {
			log.WarnContext(ctx, "metrics_push_failed", slog.String("error", perr.Error()))
		}
	}
	return err
}

// source picks what to write: the live query when a DSN is set, else the
// dummy data file, else the inferred column headers.
func source(rawDSN, dummyDataFile, sqlText string) (sqlrunner.Source, error) {
	switch {
	case rawDSN != "":
		params, err := dsn.Parse(rawDSN)
		if err != nil {
			return sqlrunner.Source{}, err
		}
		return sqlrunner.LiveQuery(sqlText, params), nil
	case dummyDataFile != "":
		return sqlrunner.Substitute(sqlText, dummyDataFile), nil
	default:
		return sqlrunner.InferredColumns(sqlText), nil
	}
}
