// Package metrics 對戰伺服器的 Prometheus 指標
//
// 所有方法在 nil 接收者上都是安全的空操作，
// 測試與不需要指標的元件可以直接傳 nil。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace 指標命名空間
const Namespace = "neon_pong"

// Metrics 伺服器指標
type Metrics struct {
	roomsActive       prometheus.Gauge
	roomsCreated      prometheus.Counter
	connectionsActive *prometheus.GaugeVec
	matchesStarted    prometheus.Counter
	matchesFinished   *prometheus.CounterVec
	pointsScored      *prometheus.CounterVec
	ticks             prometheus.Counter
	tickDuration      prometheus.Histogram
	messagesDropped   prometheus.Counter
	protocolErrors    *prometheus.CounterVec
	appErrors         *prometheus.CounterVec
}

// New 在指定的 registry 上註冊所有指標
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		roomsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "rooms_active",
			Help:      "Number of rooms in the registry",
		}),
		roomsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "rooms_created_total",
			Help:      "Total number of rooms created",
		}),
		connectionsActive: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "connections_active",
			Help:      "Number of open WebSocket connections by transport",
		}, []string{"transport"}),
		matchesStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "matches_started_total",
			Help:      "Total number of matches started, restarts included",
		}),
		matchesFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "matches_finished_total",
			Help:      "Total number of matches that reached the score limit",
		}, []string{"winner"}),
		pointsScored: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "points_scored_total",
			Help:      "Total number of points scored by side",
		}, []string{"side"}),
		ticks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "ticks_total",
			Help:      "Total number of simulation ticks executed",
		}),
		tickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "tick_duration_seconds",
			Help:      "Time spent simulating and broadcasting one tick",
			Buckets:   []float64{0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01},
		}),
		messagesDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "messages_dropped_total",
			Help:      "Outgoing messages dropped because a send queue was full",
		}),
		protocolErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "protocol_errors_total",
			Help:      "Connections torn down because of protocol errors",
		}, []string{"kind"}),
		appErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "app_errors_total",
			Help:      "Application errors returned to clients by code",
		}, []string{"code"}),
	}
}

func (m *Metrics) RoomCreated() {
	if m == nil {
		return
	}
	m.roomsCreated.Inc()
	m.roomsActive.Inc()
}

func (m *Metrics) RoomClosed() {
	if m == nil {
		return
	}
	m.roomsActive.Dec()
}

// ConnectionOpened transport 為 "gorilla" 或 "raw"
func (m *Metrics) ConnectionOpened(transport string) {
	if m == nil {
		return
	}
	m.connectionsActive.WithLabelValues(transport).Inc()
}

func (m *Metrics) ConnectionClosed(transport string) {
	if m == nil {
		return
	}
	m.connectionsActive.WithLabelValues(transport).Dec()
}

func (m *Metrics) MatchStarted() {
	if m == nil {
		return
	}
	m.matchesStarted.Inc()
}

func (m *Metrics) MatchFinished(winner string) {
	if m == nil {
		return
	}
	m.matchesFinished.WithLabelValues(winner).Inc()
}

func (m *Metrics) PointScored(side string) {
	if m == nil {
		return
	}
	m.pointsScored.WithLabelValues(side).Inc()
}

// TickObserved 記錄一次 tick 與其耗時（秒）
func (m *Metrics) TickObserved(seconds float64) {
	if m == nil {
		return
	}
	m.ticks.Inc()
	m.tickDuration.Observe(seconds)
}

func (m *Metrics) MessageDropped() {
	if m == nil {
		return
	}
	m.messagesDropped.Inc()
}

func (m *Metrics) ProtocolError(kind string) {
	if m == nil {
		return
	}
	m.protocolErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) AppError(code string) {
	if m == nil {
		return
	}
	m.appErrors.WithLabelValues(code).Inc()
}
