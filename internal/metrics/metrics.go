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
// 会話ドメインのサービス層とHTTPミドルウェアから利用する。
type MetricsCollector interface {
	RecordChatCreated()
	RecordChatReused()
	RecordResolveConflict()
	RecordMessageSent(duration time.Duration)
	RecordHTTPStatus(statusCode int)
	RecordSessionsPurged(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	chatsCreated     prometheus.Counter
	chatsReused      prometheus.Counter
	resolveConflicts prometheus.Counter
	messagesSent     prometheus.Counter
	sendLatency      prometheus.Histogram
	httpStatus       *prometheus.CounterVec
	sessionsPurged   prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		chatsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatman_chats_created_total",
			Help: "新規作成された会話の合計数",
		}),
		chatsReused: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatman_chats_reused_total",
			Help: "既存会話の再利用の合計数",
		}),
		resolveConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatman_resolve_conflicts_total",
			Help: "会話の同時作成競合（挿入に敗れた解決）の合計数",
		}),
		messagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatman_messages_sent_total",
			Help: "送信されたメッセージの合計数",
		}),
		sendLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chatman_message_send_latency_seconds",
			Help:    "メッセージ送信のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatman_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		sessionsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatman_sessions_purged_total",
			Help: "クリーンアップで削除された期限切れセッションの合計数",
		}),
	}

	reg.MustRegister(
		c.chatsCreated,
		c.chatsReused,
		c.resolveConflicts,
		c.messagesSent,
		c.sendLatency,
		c.httpStatus,
		c.sessionsPurged,
	)

	return c
}

// RecordChatCreated は会話の新規作成を記録する。
func (c *Collector) RecordChatCreated() {
	c.chatsCreated.Inc()
}

// RecordChatReused は既存会話の再利用を記録する。
func (c *Collector) RecordChatReused() {
	c.chatsReused.Inc()
}

// RecordResolveConflict は会話の同時作成競合を記録する。
func (c *Collector) RecordResolveConflict() {
	c.resolveConflicts.Inc()
}

// RecordMessageSent はメッセージ送信とそのレイテンシを記録する。
func (c *Collector) RecordMessageSent(duration time.Duration) {
	c.messagesSent.Inc()
	c.sendLatency.Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordSessionsPurged は削除された期限切れセッション数を記録する。
func (c *Collector) RecordSessionsPurged(count int64) {
	c.sessionsPurged.Add(float64(count))
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
