package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/grokking-vietnam/querybench/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := config.LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.Equal(t, config.DefaultConfig(), cfg)
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
connections_dir: /var/lib/querybench/connections
query:
  timeout_seconds: 120
  max_rows: 50
schema:
  cache_ttl: 90s
  demo_mode: true
engines:
  postgresql:
    application_name: querybench
`)
	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "/var/lib/querybench/connections", cfg.ConnectionsDir)
	require.Equal(t, 2*time.Minute, cfg.QueryTimeout())
	require.Equal(t, 50, cfg.Query.MaxRows)
	require.Equal(t, 90*time.Second, cfg.SchemaCacheTTL())
	require.True(t, cfg.Schema.DemoMode)
	require.Equal(t, "querybench", cfg.EngineOptions("postgresql")["application_name"])
}

func TestLoadConfigMalformed(t *testing.T) {
	path := writeConfig(t, "query: [not, a, mapping\n")
	_, err := config.LoadConfig(path)
	require.ErrorContains(t, err, "failed to parse config")
}

func TestNormalizeFillsGaps(t *testing.T) {
	path := writeConfig(t, `
query:
  timeout_seconds: -5
schema:
  cache_ttl: "   "
`)
	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "connections", cfg.ConnectionsDir)
	require.Equal(t, 30*time.Second, cfg.QueryTimeout())
	require.Equal(t, 1000, cfg.Query.MaxRows)
	require.Equal(t, 5*time.Minute, cfg.SchemaCacheTTL())
}

func TestSchemaCacheTTLFallback(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Schema.CacheTTL = "not-a-duration"
	require.Equal(t, 5*time.Minute, cfg.SchemaCacheTTL())

	cfg.Schema.CacheTTL = "-10s"
	require.Equal(t, 5*time.Minute, cfg.SchemaCacheTTL())
}

func TestEngineOptionsNeverNil(t *testing.T) {
	cfg := config.DefaultConfig()
	opts := cfg.EngineOptions("mysql")
	require.NotNil(t, opts)
	require.Empty(t, opts)
}
