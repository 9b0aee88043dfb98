package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/MesaForge/gastrolytics/internal/insights"
)

func TestLoad_MissingFileKeepsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "gastrolytics", cfg.Database.Database)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 5.0, cfg.Insights.Cancellation.MinRate)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9000
database:
  host: db.internal
  pool_size: 25
cache:
  redis_addr: "redis:6379"
insights:
  cancellation:
    min_rate: 8.5
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 25, cfg.Database.PoolSize)
	assert.Equal(t, "redis:6379", cfg.Cache.RedisAddr)
	assert.Equal(t, 8.5, cfg.Insights.Cancellation.MinRate)
	// Untouched knobs keep their defaults.
	assert.Equal(t, 15, cfg.Insights.Cancellation.MinOrders)
	assert.Equal(t, 90, cfg.Insights.ChurnRisk.MinInactiveDays)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("GASTROLYTICS_PORT", "9100")
	t.Setenv("GASTROLYTICS_DB_HOST", "pg.internal")
	t.Setenv("GASTROLYTICS_DB_POOL_SIZE", "30")
	t.Setenv("GASTROLYTICS_REDIS_ADDR", "redis.internal:6379")

	cfg := Default()
	LoadFromEnv(cfg)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "pg.internal", cfg.Database.Host)
	assert.Equal(t, 30, cfg.Database.PoolSize)
	assert.Equal(t, "redis.internal:6379", cfg.Cache.RedisAddr)
}

func TestLoadFromEnv_BadNumberIgnored(t *testing.T) {
	t.Setenv("GASTROLYTICS_PORT", "not-a-port")

	cfg := Default()
	LoadFromEnv(cfg)

	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestWatcher_ReloadsThresholdsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("insights:\n  cancellation:\n    min_rate: 5.0\n"), 0o644))

	updates := make(chan insights.Thresholds, 1)
	w, err := NewWatcher(path, zap.NewNop(), func(th insights.Thresholds) {
		select {
		case updates <- th:
		default:
		}
	})
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(path, []byte("insights:\n  cancellation:\n    min_rate: 9.0\n"), 0o644))

	select {
	case th := <-updates:
		assert.Equal(t, 9.0, th.Cancellation.MinRate)
	case <-time.After(3 * time.Second):
		t.Fatal("no config reload observed")
	}
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 8080\n"), 0o644))

	updates := make(chan insights.Thresholds, 4)
	w, err := NewWatcher(path, zap.NewNop(), func(th insights.Thresholds) {
		updates <- th
	})
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x: 1\n"), 0o644))

	select {
	case <-updates:
		t.Fatal("unrelated file triggered a reload")
	case <-time.After(300 * time.Millisecond):
	}
}
