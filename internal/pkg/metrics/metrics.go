package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics はアプリケーションのメトリクスを管理する
type Metrics struct {
	// HTTPリクエストの総数（method, path, status_code）
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTPリクエストのレイテンシ（method, path）
	HTTPRequestDuration *prometheus.HistogramVec

	// 予約ミューテーションの総数（operation: create/update/cancel/transition, outcome: success/rejected/conflict/error）
	ReservationsTotal *prometheus.CounterVec

	// リソース行ロックの待機時間
	ResourceLockDuration prometheus.Histogram

	// 開館インターバル再計算の総数（outcome: success/error）
	OpeningRecomputeTotal *prometheus.CounterVec

	// 状態別のアクティブな予約数（requested, confirmed, waiting_for_payment）
	ActiveReservations *prometheus.GaugeVec

	// スイーパーが denied に遷移させた支払い待ち予約の総数
	SweptReservationsTotal prometheus.Counter
}

// New は新しいMetricsインスタンスを作成し、デフォルトレジストリに登録する
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry は指定したレジストリにメトリクスを登録する
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		ReservationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reservation_mutations_total",
				Help: "Total number of reservation mutation attempts",
			},
			[]string{"operation", "outcome"},
		),
		ResourceLockDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "resource_lock_wait_seconds",
				Help:    "Time spent waiting for the per-resource row lock",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
		),
		OpeningRecomputeTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opening_interval_recomputes_total",
				Help: "Total number of opening interval recomputations",
			},
			[]string{"outcome"},
		),
		ActiveReservations: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "active_reservations",
				Help: "Current number of non-terminal reservations",
			},
			[]string{"state"},
		),
		SweptReservationsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "swept_payment_reservations_total",
				Help: "Total waiting_for_payment reservations denied by the sweeper",
			},
		),
	}

	// レジストリに登録
	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ReservationsTotal,
		m.ResourceLockDuration,
		m.OpeningRecomputeTotal,
		m.ActiveReservations,
		m.SweptReservationsTotal,
	)

	return m
}

// デフォルトのメトリクスインスタンス
var defaultMetrics *Metrics

// Init はデフォルトのメトリクスインスタンスを初期化する
func Init() *Metrics {
	defaultMetrics = New()
	return defaultMetrics
}

// Get はデフォルトのメトリクスインスタンスを返す
func Get() *Metrics {
	return defaultMetrics
}
