package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/koopa0/neon-pong/internal/config"
	"github.com/koopa0/neon-pong/internal/directory"
	"github.com/koopa0/neon-pong/internal/events"
	"github.com/koopa0/neon-pong/internal/metrics"
	"github.com/koopa0/neon-pong/internal/room"
	"github.com/koopa0/neon-pong/internal/transport"
	"github.com/koopa0/neon-pong/pkg/logger"
)

type serveFlags struct {
	configPath string
	port       int
	logLevel   string
	logFormat  string
	transport  string
	staticDir  string
}

func serveCmd() *cobra.Command {
	var flags serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "啟動伺服器",
		Long: `啟動 HTTP 與 WebSocket 伺服器。

優先順序：命令列參數 > 環境變數（PORT、REDIS_ADDR、NATS_URL）> 配置檔 > 預設值。

Examples:
  neon-pong serve
  neon-pong serve --config config.yaml
  neon-pong serve --port 9000 --transport raw --static ./public`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}
			flags.apply(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			log := logger.Init(cfg.Log.Level, cfg.Log.Format, os.Stdout)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg, log)
		},
	}

	cmd.Flags().StringVarP(&flags.configPath, "config", "c", "", "配置檔路徑")
	cmd.Flags().IntVarP(&flags.port, "port", "p", 0, "服務器端口")
	cmd.Flags().StringVar(&flags.logLevel, "log-level", "", "日誌級別 (debug, info, warn, error)")
	cmd.Flags().StringVar(&flags.logFormat, "log-format", "", "日誌格式 (text, json)")
	cmd.Flags().StringVar(&flags.transport, "transport", "", "WebSocket 實作 (gorilla, raw)")
	cmd.Flags().StringVar(&flags.staticDir, "static", "", "靜態檔案目錄")

	return cmd
}

// apply 只覆蓋有明確指定的參數
func (f serveFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = f.port
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if cmd.Flags().Changed("log-format") {
		cfg.Log.Format = f.logFormat
	}
	if cmd.Flags().Changed("transport") {
		cfg.Transport.Kind = f.transport
	}
	if cmd.Flags().Changed("static") {
		cfg.Server.StaticDir = f.staticDir
	}
}

// server 組裝好的所有元件
type server struct {
	http      *http.Server
	registry  *room.Registry
	hub       *transport.Hub
	publisher events.Publisher
	redis     *redis.Client
	logger    *slog.Logger
}

// newServer 依配置組裝元件；外部服務連不上時直接回傳錯誤
func newServer(ctx context.Context, cfg *config.Config, log *slog.Logger) (*server, error) {
	instance := cfg.Server.Instance
	if instance == "" {
		instance = uuid.NewString()
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(promReg)

	s := &server{logger: log}

	var dir directory.Directory = directory.Nop{}
	if cfg.Redis.Addr != "" {
		s.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := s.redis.Ping(ctx).Err(); err != nil {
			s.redis.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		dir = directory.NewRedis(s.redis, cfg.Redis.KeyPrefix, instance, cfg.Redis.TTL, log)
		log.Info("房間碼目錄使用 Redis", "addr", cfg.Redis.Addr, "owner", instance)
	}

	s.publisher = events.Nop{}
	if cfg.NATS.URL != "" {
		pub, err := events.Connect(cfg.NATS.URL, cfg.NATS.SubjectPrefix, instance)
		if err != nil {
			s.closeClients()
			return nil, err
		}
		s.publisher = pub
		log.Info("生命週期事件發佈到 NATS", "url", cfg.NATS.URL)
	}

	s.registry = room.NewRegistry(room.Options{
		Params:            cfg.Game,
		KeepaliveInterval: cfg.Redis.Keepalive,
		Logger:            log,
		Metrics:           m,
		Publisher:         s.publisher,
		Directory:         dir,
	})
	s.hub = transport.NewHub(s.registry, m, log, cfg.TransportOptions())

	routerOpts := transport.RouterOptions{
		WSPath:    cfg.Server.WSPath,
		Transport: cfg.Transport.Kind,
		StaticDir: cfg.Server.StaticDir,
		Logger:    log,
	}
	if cfg.Metrics.Enabled {
		routerOpts.Gatherer = promReg
	}

	s.http = &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:     transport.NewRouter(s.hub, s.registry, routerOpts),
		ReadTimeout: cfg.Server.ReadTimeout,
		IdleTimeout: cfg.Server.IdleTimeout,
	}

	return s, nil
}

// run 啟動伺服器，ctx 取消時優雅關閉
func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	s, err := newServer(ctx, cfg, log)
	if err != nil {
		return err
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("starting server",
			"port", cfg.Server.Port,
			"ws_path", cfg.Server.WSPath,
			"transport", cfg.Transport.Kind,
			"tick_rate", cfg.Game.TickRate)
		serverErrors <- s.http.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		s.shutdown(cfg.Server.ShutdownTimeout)
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		log.Info("shutdown signal received")
		s.shutdown(cfg.Server.ShutdownTimeout)
	}

	log.Info("server stopped")
	return nil
}

// shutdown 依序關閉：HTTP → 房間 → 連線 → 外部服務
func (s *server) shutdown(timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.http.Shutdown(ctx); err != nil {
		s.logger.Error("failed to shutdown server", "error", err)
		// 強制關閉伺服器
		if closeErr := s.http.Close(); closeErr != nil {
			s.logger.Error("failed to force close server", "error", closeErr)
		}
	}

	// 劫持後的 WebSocket 不受 http.Server.Shutdown 管理
	s.registry.Stop()
	s.hub.Stop()

	s.closeClients()
}

func (s *server) closeClients() {
	if s.publisher != nil {
		s.publisher.Close()
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("failed to close redis", "error", err)
		}
	}
}
