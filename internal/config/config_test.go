package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koopa0/neon-pong/internal/config"
)

// TestDefault 測試配置的預設值
func TestDefault(t *testing.T) {
	cfg := config.Default()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "/ws", cfg.Server.WSPath)
	assert.Equal(t, "gorilla", cfg.Transport.Kind)
	assert.Equal(t, 54*time.Second, cfg.Transport.PingInterval)
	assert.Equal(t, 60*time.Second, cfg.Transport.PongWait)
	assert.Equal(t, 9, cfg.Game.ScoreLimit)
	assert.Equal(t, 60, cfg.Game.TickRate)
	assert.Empty(t, cfg.Redis.Addr)
	assert.Empty(t, cfg.NATS.URL)
	assert.True(t, cfg.Metrics.Enabled)

	require.NoError(t, cfg.Validate())
}

// TestLoad 檔案只覆蓋有寫的欄位
func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9000
  static_dir: ./public
transport:
  kind: raw
  ping_interval: 20s
  pong_wait: 30s
game:
  score_limit: 5
log:
  level: debug
  format: json
redis:
  addr: localhost:6379
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "./public", cfg.Server.StaticDir)
	assert.Equal(t, "/ws", cfg.Server.WSPath)
	assert.Equal(t, "raw", cfg.Transport.Kind)
	assert.Equal(t, 20*time.Second, cfg.Transport.PingInterval)
	assert.Equal(t, 30*time.Second, cfg.Transport.PongWait)
	assert.Equal(t, 5, cfg.Game.ScoreLimit)
	assert.Equal(t, 1280.0, cfg.Game.Width)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 2*time.Minute, cfg.Redis.TTL)

	require.NoError(t, cfg.Validate())

	opts := cfg.TransportOptions()
	assert.Equal(t, 20*time.Second, opts.PingInterval)
	assert.Equal(t, 256, opts.SendQueue)
}

// TestLoad_Errors 讀取與解析失敗
func TestLoad_Errors(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [1, 2"), 0o600))
	_, err = config.Load(path)
	assert.Error(t, err)
}

// TestLoad_Env 環境變數覆蓋檔案
func TestLoad_Env(t *testing.T) {
	t.Setenv("PORT", "7070")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("NATS_URL", "nats://nats:4222")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, "nats://nats:4222", cfg.NATS.URL)

	t.Setenv("PORT", "eighty")
	_, err = config.Load("")
	assert.Error(t, err)
}

// TestValidate 無效配置
func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *config.Config)
	}{
		{"port out of range", func(c *config.Config) { c.Server.Port = 70000 }},
		{"ws path", func(c *config.Config) { c.Server.WSPath = "ws" }},
		{"unknown transport", func(c *config.Config) { c.Transport.Kind = "quic" }},
		{"ping after pong wait", func(c *config.Config) { c.Transport.PingInterval = 2 * time.Minute }},
		{"send queue", func(c *config.Config) { c.Transport.SendQueue = 0 }},
		{"score limit", func(c *config.Config) { c.Game.ScoreLimit = 0 }},
		{"redis keepalive", func(c *config.Config) {
			c.Redis.Addr = "localhost:6379"
			c.Redis.Keepalive = 5 * time.Minute
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
