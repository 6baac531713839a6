// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 取り込み処理やバージョン管理から利用する。
type MetricsCollector interface {
	RecordIngestSuccess()
	RecordIngestFailure(reason string)
	RecordIngestRetry()
	RecordIngestLatency(duration time.Duration)
	RecordBlobWrite(size int64)
	RecordRevisionPublished()
	RecordRevisionDeleted()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	ingestSuccess     prometheus.Counter
	ingestFail        *prometheus.CounterVec
	ingestRetry       prometheus.Counter
	ingestLatency     prometheus.Histogram
	blobWrites        prometheus.Counter
	blobBytes         prometheus.Counter
	revisionPublished prometheus.Counter
	revisionDeleted   prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		ingestSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "articlerepo_ingest_success_total",
			Help: "取り込み成功の合計数",
		}),
		ingestFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "articlerepo_ingest_fail_total",
			Help: "原因別の取り込み失敗数",
		}, []string{"reason"}),
		ingestRetry: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "articlerepo_ingest_retry_total",
			Help: "取り込み番号の競合による再試行の合計数",
		}),
		ingestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "articlerepo_ingest_latency_seconds",
			Help:    "取り込み処理のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		blobWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "articlerepo_blob_writes_total",
			Help: "BlobStoreへの書き込み数",
		}),
		blobBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "articlerepo_blob_write_bytes_total",
			Help: "BlobStoreへ書き込んだバイト数",
		}),
		revisionPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "articlerepo_revisions_published_total",
			Help: "作成されたRevisionの合計数",
		}),
		revisionDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "articlerepo_revisions_deleted_total",
			Help: "削除されたRevisionの合計数",
		}),
	}

	reg.MustRegister(
		c.ingestSuccess,
		c.ingestFail,
		c.ingestRetry,
		c.ingestLatency,
		c.blobWrites,
		c.blobBytes,
		c.revisionPublished,
		c.revisionDeleted,
	)

	return c
}

// RecordIngestSuccess は取り込み成功を記録する。
func (c *Collector) RecordIngestSuccess() {
	c.ingestSuccess.Inc()
}

// RecordIngestFailure は取り込み失敗を原因別に記録する。
func (c *Collector) RecordIngestFailure(reason string) {
	c.ingestFail.WithLabelValues(reason).Inc()
}

// RecordIngestRetry は取り込みの再試行を記録する。
func (c *Collector) RecordIngestRetry() {
	c.ingestRetry.Inc()
}

// RecordIngestLatency は取り込みのレイテンシを記録する。
func (c *Collector) RecordIngestLatency(duration time.Duration) {
	c.ingestLatency.Observe(duration.Seconds())
}

// RecordBlobWrite はBlobStoreへの書き込みを記録する。
func (c *Collector) RecordBlobWrite(size int64) {
	c.blobWrites.Inc()
	c.blobBytes.Add(float64(size))
}

// RecordRevisionPublished はRevisionの作成を記録する。
func (c *Collector) RecordRevisionPublished() {
	c.revisionPublished.Inc()
}

// RecordRevisionDeleted はRevisionの削除を記録する。
func (c *Collector) RecordRevisionDeleted() {
	c.revisionDeleted.Inc()
}

// Nop は何も記録しないMetricsCollector。
type Nop struct{}

func (Nop) RecordIngestSuccess() {}
func (Nop) RecordIngestFailure(string) {}
func (Nop) RecordIngestRetry() {}
func (Nop) RecordIngestLatency(time.Duration) {}
func (Nop) RecordBlobWrite(int64) {}
func (Nop) RecordRevisionPublished() {}
func (Nop) RecordRevisionDeleted() {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
