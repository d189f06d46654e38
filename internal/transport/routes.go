package transport

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/koopa0/neon-pong/internal/frame"
	"github.com/koopa0/neon-pong/internal/room"
)

// RouterOptions HTTP 路由設定
type RouterOptions struct {
	WSPath    string // 預設 /ws
	Transport string // gorilla 或 raw
	StaticDir string // 空白表示不提供靜態檔案

	Gatherer prometheus.Gatherer // nil 表示不提供 /metrics
	Logger   *slog.Logger
}

// Handler HTTP 請求處理器
type Handler struct {
	hub      *Hub
	registry *room.Registry
	logger   *slog.Logger
	started  time.Time
}

// NewRouter 設定路由
//
//	GET {ws_path}  WebSocket 升級
//	GET /healthz   健康檢查
//	GET /stats     房間與連線統計
//	GET /metrics   Prometheus
//	GET /*         靜態檔案（選用）
//
// 其他路徑的升級請求直接關閉 socket。
func NewRouter(hub *Hub, registry *room.Registry, opts RouterOptions) http.Handler {
	if opts.WSPath == "" {
		opts.WSPath = "/ws"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	h := &Handler{
		hub:      hub,
		registry: registry,
		logger:   opts.Logger,
		started:  time.Now(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.loggerMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(h.rejectStrayUpgrades(opts.WSPath))

	r.Get(opts.WSPath, hub.Handler(opts.Transport))
	r.Get("/healthz", h.health)
	r.Get("/stats", h.stats)
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}
	if opts.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(opts.StaticDir)))
	}

	return r
}

// health 健康檢查
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, map[string]any{
		"status": "healthy",
		"uptime": time.Since(h.started).Round(time.Second).String(),
		"time":   time.Now().Unix(),
	}, http.StatusOK)
}

// stats 統計資訊
func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	stats := h.registry.Stats()
	stats["connections"] = h.hub.Count()
	h.jsonResponse(w, stats, http.StatusOK)
}

// rejectStrayUpgrades 不是 ws 路徑的升級請求：劫持後直接關閉
func (h *Handler) rejectStrayUpgrades(wsPath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == wsPath || !frame.IsUpgradeRequest(r) {
				next.ServeHTTP(w, r)
				return
			}

			h.hub.metrics.ProtocolError("path")
			h.logger.Debug("拒絕非 ws 路徑的升級請求", "path", r.URL.Path)

			hj, ok := w.(http.Hijacker)
			if !ok {
				http.Error(w, "not found", http.StatusNotFound)
				return
			}
			conn, _, err := hj.Hijack()
			if err != nil {
				return
			}
			conn.Close()
		})
	}
}

// jsonResponse 返回 JSON 響應
func (h *Handler) jsonResponse(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("編碼 JSON 失敗", "error", err)
	}
}

// loggerMiddleware 日誌中間件
//
// 使用 chi 的 WrapResponseWriter 取得狀態碼，同時保留 Hijacker 讓升級可以進行。
func (h *Handler) loggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		h.logger.Debug("HTTP 請求",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"request_id", middleware.GetReqID(r.Context()),
			"duration", time.Since(start))
	})
}
