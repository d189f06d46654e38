// Package config 對戰伺服器的配置
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/koopa0/neon-pong/internal/game"
	"github.com/koopa0/neon-pong/internal/transport"
)

// Config 整個應用的配置
type Config struct {
	Server struct {
		Port            int           `yaml:"port"`
		WSPath          string        `yaml:"ws_path"`
		StaticDir       string        `yaml:"static_dir"` // 空白表示不提供靜態檔案
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		IdleTimeout     time.Duration `yaml:"idle_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		Instance        string        `yaml:"instance"` // 多實例時用來區分事件來源與房間碼擁有者
	} `yaml:"server"`

	Transport struct {
		Kind           string        `yaml:"kind"` // gorilla 或 raw
		PingInterval   time.Duration `yaml:"ping_interval"`
		PongWait       time.Duration `yaml:"pong_wait"`
		WriteWait      time.Duration `yaml:"write_wait"`
		SendQueue      int           `yaml:"send_queue"`
		MaxMessageSize int64         `yaml:"max_message_size"`
		AllowedOrigins []string      `yaml:"allowed_origins"`
	} `yaml:"transport"`

	Game game.Params `yaml:"game"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`

	// Redis 房間碼目錄；Addr 空白表示單機模式
	Redis struct {
		Addr      string        `yaml:"addr"`
		Password  string        `yaml:"password"`
		DB        int           `yaml:"db"`
		KeyPrefix string        `yaml:"key_prefix"`
		TTL       time.Duration `yaml:"ttl"`
		Keepalive time.Duration `yaml:"keepalive"`
	} `yaml:"redis"`

	// NATS 生命週期事件；URL 空白表示不發佈
	NATS struct {
		URL           string `yaml:"url"`
		SubjectPrefix string `yaml:"subject_prefix"`
	} `yaml:"nats"`

	Metrics struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"metrics"`
}

// Default 預設配置
func Default() *Config {
	var cfg Config

	cfg.Server.Port = 8080
	cfg.Server.WSPath = "/ws"
	cfg.Server.ReadTimeout = 10 * time.Second
	cfg.Server.IdleTimeout = 120 * time.Second
	cfg.Server.ShutdownTimeout = 30 * time.Second

	opts := transport.DefaultOptions()
	cfg.Transport.Kind = transport.KindGorilla
	cfg.Transport.PingInterval = opts.PingInterval
	cfg.Transport.PongWait = opts.PongWait
	cfg.Transport.WriteWait = opts.WriteWait
	cfg.Transport.SendQueue = opts.SendQueue
	cfg.Transport.MaxMessageSize = opts.MaxMessageSize

	cfg.Game = game.DefaultParams()

	cfg.Log.Level = "info"
	cfg.Log.Format = "text"

	cfg.Redis.KeyPrefix = "neonpong:room:"
	cfg.Redis.TTL = 2 * time.Minute
	cfg.Redis.Keepalive = 30 * time.Second

	cfg.NATS.SubjectPrefix = "pong"

	cfg.Metrics.Enabled = true

	return &cfg
}

// Load 載入配置檔案
//
// path 空白時只使用預設值與環境變數；檔案中沒寫的欄位保留預設值。
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		// #nosec G304 - path 來自命令列參數
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnv 環境變數覆蓋（生產環境常用）
func (c *Config) applyEnv() error {
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		c.NATS.URL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	return nil
}

// Validate 檢查配置
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port 超出範圍: %d", c.Server.Port))
	}
	if c.Server.WSPath == "" || c.Server.WSPath[0] != '/' {
		errs = append(errs, fmt.Errorf("server.ws_path 必須以 / 開頭: %q", c.Server.WSPath))
	}

	switch c.Transport.Kind {
	case transport.KindGorilla, transport.KindRaw:
	default:
		errs = append(errs, fmt.Errorf("transport.kind 必須是 gorilla 或 raw: %q", c.Transport.Kind))
	}
	if c.Transport.PingInterval >= c.Transport.PongWait {
		errs = append(errs, fmt.Errorf("transport.ping_interval (%s) 必須小於 pong_wait (%s)",
			c.Transport.PingInterval, c.Transport.PongWait))
	}
	if c.Transport.SendQueue <= 0 {
		errs = append(errs, errors.New("transport.send_queue 必須大於 0"))
	}

	if err := c.Game.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("game: %w", err))
	}

	if c.Redis.Addr != "" && c.Redis.Keepalive >= c.Redis.TTL {
		errs = append(errs, fmt.Errorf("redis.keepalive (%s) 必須小於 ttl (%s)", c.Redis.Keepalive, c.Redis.TTL))
	}

	return errors.Join(errs...)
}

// TransportOptions 轉成傳輸層參數
func (c *Config) TransportOptions() transport.Options {
	return transport.Options{
		PingInterval:   c.Transport.PingInterval,
		PongWait:       c.Transport.PongWait,
		WriteWait:      c.Transport.WriteWait,
		SendQueue:      c.Transport.SendQueue,
		MaxMessageSize: c.Transport.MaxMessageSize,
		AllowedOrigins: c.Transport.AllowedOrigins,
	}
}
