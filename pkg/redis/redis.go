package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"

	"sql-runner/configs"
	"sql-runner/internal/telemetry"
)

type streamClient interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// Redisdb publishes telemetry reports to a Redis stream.
type Redisdb struct {
	client streamClient
	closer func() error
	stream string
}

func NewRedis(ctx context.Context, conf *configs.Config) (*Redisdb, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     conf.Redis.Addr,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("could not connect to redis at %s: %w", conf.Redis.Addr, err)
	}
	return &Redisdb{client: rdb, closer: rdb.Close, stream: conf.Redis.Stream}, nil
}

func (r *Redisdb) Publish(ctx context.Context, report telemetry.Report) error {
	values, err := reportValues(report)
	if err != nil {
		return err
	}
	if err := r.client.XAdd(ctx, &redis.XAddArgs{Stream: r.stream, Values: values}).Err(); err != nil {
		return fmt.Errorf("publish telemetry to %s: %w", r.stream, err)
	}
	return nil
}

func (r *Redisdb) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer()
}

func reportValues(report telemetry.Report) (map[string]interface{}, error) {
	timings, err := json.Marshal(report.Timings)
	if err != nil {
		return nil, err
	}
	values := map[string]interface{}{
		"sql_query":   report.SQL,
		"duration_ms": report.Duration.Milliseconds(),
		"timings":     string(timings),
		"table_io":    "{}",
	}
	if report.TableIO != nil {
		tableIO, err := json.Marshal(report.TableIO)
		if err != nil {
			return nil, err
		}
		values["table_io"] = string(tableIO)
	}
	return values, nil
}
