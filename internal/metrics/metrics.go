// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ディスパッチャとワーカーから利用する。
type MetricsCollector interface {
	RecordTaskClaimed(kind string)
	RecordTaskSucceeded(kind string)
	RecordTaskFailed(kind string, code int)
	RecordTaskRetried(kind string)
	RecordTaskDuration(kind string, duration time.Duration)
	SetInflight(n int)
	RecordSubprocess(mode string, duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	taskClaimed    *prometheus.CounterVec
	taskSucceeded  *prometheus.CounterVec
	taskFailed     *prometheus.CounterVec
	taskRetried    *prometheus.CounterVec
	taskDuration   *prometheus.HistogramVec
	inflight       prometheus.Gauge
	subprocessTime *prometheus.HistogramVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		taskClaimed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vodman_task_claimed_total",
			Help: "取得されたタスクの合計数",
		}, []string{"kind"}),
		taskSucceeded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vodman_task_succeeded_total",
			Help: "成功したタスクの合計数",
		}, []string{"kind"}),
		taskFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vodman_task_failed_total",
			Help: "失敗したタスクの合計数（診断コード別）",
		}, []string{"kind", "code"}),
		taskRetried: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vodman_task_retried_total",
			Help: "再試行キューへ戻されたタスクの合計数",
		}, []string{"kind"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vodman_task_duration_seconds",
			Help:    "タスクの取得から終端までの所要時間（秒）",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
		}, []string{"kind"}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vodman_tasks_inflight",
			Help: "実行中のタスク数",
		}),
		subprocessTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vodman_subprocess_duration_seconds",
			Help:    "subprocess呼び出しの所要時間（秒、モード別）",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
		}, []string{"mode"}),
	}

	reg.MustRegister(
		c.taskClaimed,
		c.taskSucceeded,
		c.taskFailed,
		c.taskRetried,
		c.taskDuration,
		c.inflight,
		c.subprocessTime,
	)

	return c
}

// RecordTaskClaimed はタスクの取得を記録する。
func (c *Collector) RecordTaskClaimed(kind string) {
	c.taskClaimed.WithLabelValues(kind).Inc()
}

// RecordTaskSucceeded はタスクの成功を記録する。
func (c *Collector) RecordTaskSucceeded(kind string) {
	c.taskSucceeded.WithLabelValues(kind).Inc()
}

// RecordTaskFailed はタスクの失敗を診断コード付きで記録する。
func (c *Collector) RecordTaskFailed(kind string, code int) {
	c.taskFailed.WithLabelValues(kind, strconv.Itoa(code)).Inc()
}

// RecordTaskRetried はタスクの再試行を記録する。
func (c *Collector) RecordTaskRetried(kind string) {
	c.taskRetried.WithLabelValues(kind).Inc()
}

// RecordTaskDuration はタスクの所要時間を記録する。
func (c *Collector) RecordTaskDuration(kind string, duration time.Duration) {
	c.taskDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// SetInflight は実行中のタスク数を記録する。
func (c *Collector) SetInflight(n int) {
	c.inflight.Set(float64(n))
}

// RecordSubprocess はsubprocess呼び出しの所要時間をモード別に記録する。
func (c *Collector) RecordSubprocess(mode string, duration time.Duration) {
	c.subprocessTime.WithLabelValues(mode).Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
