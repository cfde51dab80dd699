package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mautops/routine-gin/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDefaultConfig 默认配置取值
func TestDefaultConfig(t *testing.T) {
	cfg := config.Default()

	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "routine", cfg.Database.DBName)
	assert.Equal(t, "./attachments", cfg.Storage.AttachmentDir)
	assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
	assert.False(t, cfg.RateLimit.Enabled)
	assert.False(t, config.IsProduction(cfg))
}

// TestLoadConfigFromFile 从 YAML 文件加载配置
func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
env: production
server:
  host: 127.0.0.1
  port: 9090
database:
  host: db.internal
  dbname: routine_prod
storage:
  attachment_dir: /var/lib/routine/attachments
rate_limit:
  enabled: true
  rps: 50
  burst: 100
`)
	require.NoError(t, os.WriteFile(path, content, 0644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Env)
	assert.True(t, config.IsProduction(cfg))
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "routine_prod", cfg.Database.DBName)
	assert.Equal(t, "/var/lib/routine/attachments", cfg.Storage.AttachmentDir)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 50.0, cfg.RateLimit.RPS)
	assert.Equal(t, 100, cfg.RateLimit.Burst)

	// 文件未覆盖的项仍取默认值
	assert.Equal(t, 5432, cfg.Database.Port)
}

// TestLoadConfig_MissingFile 指定的配置文件不存在时报错
func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := config.Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

// TestLoadConfig_EnvOverride 环境变量覆盖配置
func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("APP_SERVER_PORT", "7070")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
}
