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
// Graph APIクライアント、セッションコントローラー、ワーカーから利用する。
type MetricsCollector interface {
	RecordAPICall(endpoint, outcome string, duration time.Duration)
	RecordHTTPStatus(statusCode int)
	RecordLogin(success bool)
	RecordEmptyInsights()
	RecordSessionsPurged(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	apiCalls       *prometheus.CounterVec
	apiLatency     *prometheus.HistogramVec
	httpStatus     *prometheus.CounterVec
	logins         *prometheus.CounterVec
	emptyInsights  prometheus.Counter
	sessionsPurged prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		apiCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pageinsights_graph_api_calls_total",
			Help: "Graph API呼び出しの合計数",
		}, []string{"endpoint", "outcome"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pageinsights_graph_api_latency_seconds",
			Help:    "Graph API呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pageinsights_graph_http_status_total",
			Help: "Graph APIのHTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pageinsights_logins_total",
			Help: "ログイン試行の合計数",
		}, []string{"result"}),
		emptyInsights: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pageinsights_empty_insights_total",
			Help: "データが空だったインサイト取得の合計数",
		}),
		sessionsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pageinsights_sessions_purged_total",
			Help: "期限切れで削除されたセッションの合計数",
		}),
	}

	reg.MustRegister(
		c.apiCalls,
		c.apiLatency,
		c.httpStatus,
		c.logins,
		c.emptyInsights,
		c.sessionsPurged,
	)

	return c
}

// RecordAPICall はGraph API呼び出しの結果とレイテンシを記録する。
func (c *Collector) RecordAPICall(endpoint, outcome string, duration time.Duration) {
	c.apiCalls.WithLabelValues(endpoint, outcome).Inc()
	c.apiLatency.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordLogin はログインの成否を記録する。
func (c *Collector) RecordLogin(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	c.logins.WithLabelValues(result).Inc()
}

// RecordEmptyInsights は空のインサイト結果を記録する。
func (c *Collector) RecordEmptyInsights() {
	c.emptyInsights.Inc()
}

// RecordSessionsPurged は削除されたセッション数を記録する。
func (c *Collector) RecordSessionsPurged(count int64) {
	c.sessionsPurged.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
