// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 一覧取得の結果ラベル。
const (
	OutcomeSuccess    = "success"
	OutcomeFailure    = "failure"
	OutcomeSuperseded = "superseded"
)

// MetricsCollector はメトリクス収集のインターフェース。
// Collection Synchronizer・Upload Pipeline・HTTP層から利用する。
type MetricsCollector interface {
	RecordCollectionFetch(scope string, outcome string, duration time.Duration)
	RecordDeleteRollback(scope string)
	RecordUploadSuccess(bytes int64)
	RecordUploadFailure(reason string)
	RecordHTTPStatus(statusCode int)
	RecordPanic()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	collectionFetch   *prometheus.CounterVec
	collectionLatency prometheus.Histogram
	deleteRollback    *prometheus.CounterVec
	uploadSuccess     prometheus.Counter
	uploadFail        *prometheus.CounterVec
	uploadBytes       prometheus.Counter
	httpStatus        *prometheus.CounterVec
	panics            prometheus.Counter
}

var _ MetricsCollector = (*Collector)(nil)

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		collectionFetch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smoothies_collection_fetch_total",
			Help: "一覧取得の合計数（スコープ・結果別）",
		}, []string{"scope", "outcome"}),
		collectionLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "smoothies_collection_fetch_latency_seconds",
			Help:    "一覧取得のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		deleteRollback: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smoothies_delete_rollback_total",
			Help: "楽観的削除の巻き戻し回数",
		}, []string{"scope"}),
		uploadSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smoothies_upload_success_total",
			Help: "画像アップロード成功の合計数",
		}),
		uploadFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smoothies_upload_fail_total",
			Help: "画像アップロード失敗の合計数（理由別）",
		}, []string{"reason"}),
		uploadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smoothies_upload_bytes_total",
			Help: "アップロードされたバイト数の合計",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smoothies_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		panics: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smoothies_http_panics_total",
			Help: "ハンドラーで回復したpanicの合計数",
		}),
	}

	reg.MustRegister(
		c.collectionFetch,
		c.collectionLatency,
		c.deleteRollback,
		c.uploadSuccess,
		c.uploadFail,
		c.uploadBytes,
		c.httpStatus,
		c.panics,
	)

	return c
}

// RecordCollectionFetch は一覧取得の結果とレイテンシを記録する。
func (c *Collector) RecordCollectionFetch(scope string, outcome string, duration time.Duration) {
	c.collectionFetch.WithLabelValues(scope, outcome).Inc()
	c.collectionLatency.Observe(duration.Seconds())
}

// RecordDeleteRollback は楽観的削除の巻き戻しを記録する。
func (c *Collector) RecordDeleteRollback(scope string) {
	c.deleteRollback.WithLabelValues(scope).Inc()
}

// RecordUploadSuccess はアップロード成功と転送バイト数を記録する。
func (c *Collector) RecordUploadSuccess(bytes int64) {
	c.uploadSuccess.Inc()
	c.uploadBytes.Add(float64(bytes))
}

// RecordUploadFailure はアップロード失敗を理由別に記録する。
func (c *Collector) RecordUploadFailure(reason string) {
	c.uploadFail.WithLabelValues(reason).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordPanic はハンドラーで回復したpanicを記録する。
func (c *Collector) RecordPanic() {
	c.panics.Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// NopCollector は何も記録しないMetricsCollector。テストや未設定時に使用する。
type NopCollector struct{}

var _ MetricsCollector = NopCollector{}

func (NopCollector) RecordCollectionFetch(string, string, time.Duration) {}
func (NopCollector) RecordDeleteRollback(string)                         {}
func (NopCollector) RecordUploadSuccess(int64)                           {}
func (NopCollector) RecordUploadFailure(string)                          {}
func (NopCollector) RecordHTTPStatus(int)                                {}
func (NopCollector) RecordPanic()                                        {}
