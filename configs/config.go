package configs

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"sql-runner/internal/compliance"
)

// Config holds the runner configuration.
type Config struct {
	DSN        string
	Compliance ComplianceConfig
	Log        LogConfig
	Redis      RedisConfig
	Metrics    MetricsConfig
}

type ComplianceConfig struct {
	Marker string
	Policy compliance.Policy
}

type LogConfig struct {
	Level  string
	Format string
	File   string
}

// RedisConfig enables publishing telemetry reports to a Redis stream when
// Addr is set.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
}

// MetricsConfig enables pushing run metrics when Pushgateway is set.
type MetricsConfig struct {
	Pushgateway string
	Job         string
}

const envFile = ".env"

// LoadConfig reads .env (if present) into the environment, then resolves
// every key from v: flags bound by the caller, then environment, then
// defaults.
func LoadConfig(v *viper.Viper) (*Config, error) {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	setDefaults(v)
	v.SetEnvPrefix("SQLRUNNER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("dsn", "DATABASE_URL"); err != nil {
		return nil, err
	}

	policy, err := compliance.ParsePolicy(v.GetString("compliance.policy"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DSN: strings.TrimSpace(v.GetString("dsn")),
		Compliance: ComplianceConfig{
			Marker: v.GetString("compliance.marker"),
			Policy: policy,
		},
		Log: LogConfig{
			Level:  strings.ToLower(v.GetString("log.level")),
			Format: strings.ToLower(v.GetString("log.format")),
			File:   v.GetString("log.file"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			Stream:   v.GetString("redis.stream"),
		},
		Metrics: MetricsConfig{
			Pushgateway: v.GetString("metrics.pushgateway"),
			Job:         v.GetString("metrics.job"),
		},
	}

	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("invalid log.level %q", cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "text", "json":
	default:
		return nil, fmt.Errorf("invalid log.format %q", cfg.Log.Format)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("dsn", "")
	v.SetDefault("compliance.marker", compliance.DefaultMarker)
	v.SetDefault("compliance.policy", string(compliance.PolicyStandard))
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.stream", "sqlrunner:telemetry")
	v.SetDefault("metrics.pushgateway", "")
	v.SetDefault("metrics.job", "sqlrunner")
}
