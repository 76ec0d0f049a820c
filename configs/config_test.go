package configs

import (
	"os"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"sql-runner/internal/compliance"
)

func TestLoadConfig_Defaults(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("DATABASE_URL", "")

	cfg, err := LoadConfig(viper.New())
	require.NoError(t, err)
	require.Empty(t, cfg.DSN)
	require.Equal(t, compliance.DefaultMarker, cfg.Compliance.Marker)
	require.Equal(t, compliance.PolicyStandard, cfg.Compliance.Policy)
	require.Equal(t, "info", cfg.Log.Level)
	require.Equal(t, "text", cfg.Log.Format)
	require.Equal(t, "sqlrunner:telemetry", cfg.Redis.Stream)
	require.Equal(t, "sqlrunner", cfg.Metrics.Job)
}

func TestLoadConfig_Environment(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("DATABASE_URL", "mssql://sa:pw@localhost:1433/test")
	t.Setenv("SQLRUNNER_COMPLIANCE_POLICY", "strict")
	t.Setenv("SQLRUNNER_LOG_LEVEL", "DEBUG")
	t.Setenv("SQLRUNNER_REDIS_ADDR", "localhost:6379")
	t.Setenv("SQLRUNNER_REDIS_DB", "2")

	cfg, err := LoadConfig(viper.New())
	require.NoError(t, err)
	require.Equal(t, "mssql://sa:pw@localhost:1433/test", cfg.DSN)
	require.Equal(t, compliance.PolicyStrict, cfg.Compliance.Policy)
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, "localhost:6379", cfg.Redis.Addr)
	require.Equal(t, 2, cfg.Redis.DB)
}

func TestLoadConfig_DotEnvFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(".env", []byte("SQLRUNNER_METRICS_PUSHGATEWAY=http://push:9091\n"), 0o600))
	t.Setenv("SQLRUNNER_METRICS_PUSHGATEWAY", "")
	// godotenv does not override variables that are already set
	require.NoError(t, os.Unsetenv("SQLRUNNER_METRICS_PUSHGATEWAY"))

	cfg, err := LoadConfig(viper.New())
	require.NoError(t, err)
	require.Equal(t, "http://push:9091", cfg.Metrics.Pushgateway)
}

func TestLoadConfig_ExplicitValuesWin(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("SQLRUNNER_LOG_FILE", "env.json")

	v := viper.New()
	v.Set("log.file", "flag.json")
	cfg, err := LoadConfig(v)
	require.NoError(t, err)
	require.Equal(t, "flag.json", cfg.Log.File)
}

func TestLoadConfig_Invalid(t *testing.T) {
	chdir(t, t.TempDir())

	for key, value := range map[string]string{
		"SQLRUNNER_COMPLIANCE_POLICY": "lenient",
		"SQLRUNNER_LOG_LEVEL":         "verbose",
		"SQLRUNNER_LOG_FORMAT":        "xml",
	} {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := LoadConfig(viper.New())
			require.Error(t, err)
		})
	}
}
