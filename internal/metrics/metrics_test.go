package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetric は名前が一致するメトリクスファミリーを返す。
func findMetric(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("%s metric not found", name)
	return nil
}

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	if c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordIngestSuccess_IncrementsCounter は取り込み成功カウンタが増加することを検証する。
func TestRecordIngestSuccess_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordIngestSuccess()
	c.RecordIngestSuccess()

	mf := findMetric(t, reg, "articlerepo_ingest_success_total")
	if val := mf.GetMetric()[0].GetCounter().GetValue(); val != 2 {
		t.Errorf("ingest_success_total = %v, want 2", val)
	}
}

// TestRecordIngestFailure_CountsByReason は失敗が原因ラベル別に集計されることを検証する。
func TestRecordIngestFailure_CountsByReason(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordIngestFailure("storage_write")
	c.RecordIngestFailure("storage_write")
	c.RecordIngestFailure("manifest")

	mf := findMetric(t, reg, "articlerepo_ingest_fail_total")
	counts := make(map[string]float64)
	for _, m := range mf.GetMetric() {
		for _, lp := range m.GetLabel() {
			if lp.GetName() == "reason" {
				counts[lp.GetValue()] = m.GetCounter().GetValue()
			}
		}
	}
	if counts["storage_write"] != 2 {
		t.Errorf("storage_write = %v, want 2", counts["storage_write"])
	}
	if counts["manifest"] != 1 {
		t.Errorf("manifest = %v, want 1", counts["manifest"])
	}
}

// TestRecordBlobWrite_CountsWritesAndBytes は書き込み数とバイト数が記録されることを検証する。
func TestRecordBlobWrite_CountsWritesAndBytes(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordBlobWrite(100)
	c.RecordBlobWrite(23)

	writes := findMetric(t, reg, "articlerepo_blob_writes_total")
	if val := writes.GetMetric()[0].GetCounter().GetValue(); val != 2 {
		t.Errorf("blob_writes_total = %v, want 2", val)
	}
	bytes := findMetric(t, reg, "articlerepo_blob_write_bytes_total")
	if val := bytes.GetMetric()[0].GetCounter().GetValue(); val != 123 {
		t.Errorf("blob_write_bytes_total = %v, want 123", val)
	}
}

// TestRecordIngestLatency_ObservesHistogram はレイテンシがヒストグラムに記録されることを検証する。
func TestRecordIngestLatency_ObservesHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordIngestLatency(250 * time.Millisecond)

	mf := findMetric(t, reg, "articlerepo_ingest_latency_seconds")
	h := mf.GetMetric()[0].GetHistogram()
	if h.GetSampleCount() != 1 {
		t.Errorf("sample count = %d, want 1", h.GetSampleCount())
	}
	if h.GetSampleSum() != 0.25 {
		t.Errorf("sample sum = %v, want 0.25", h.GetSampleSum())
	}
}

// TestRecordRevisionCounters はRevisionの作成と削除が別々に数えられることを検証する。
func TestRecordRevisionCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRevisionPublished()
	c.RecordRevisionPublished()
	c.RecordRevisionDeleted()
	c.RecordIngestRetry()

	if val := findMetric(t, reg, "articlerepo_revisions_published_total").GetMetric()[0].GetCounter().GetValue(); val != 2 {
		t.Errorf("revisions_published_total = %v, want 2", val)
	}
	if val := findMetric(t, reg, "articlerepo_revisions_deleted_total").GetMetric()[0].GetCounter().GetValue(); val != 1 {
		t.Errorf("revisions_deleted_total = %v, want 1", val)
	}
	if val := findMetric(t, reg, "articlerepo_ingest_retry_total").GetMetric()[0].GetCounter().GetValue(); val != 1 {
		t.Errorf("ingest_retry_total = %v, want 1", val)
	}
}

// TestMetricsHandler_ReturnsPrometheusFormat はハンドラーがテキスト形式で応答することを検証する。
func TestMetricsHandler_ReturnsPrometheusFormat(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordIngestSuccess()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body, _ := io.ReadAll(w.Result().Body)
	if !strings.Contains(string(body), "articlerepo_ingest_success_total 1") {
		t.Errorf("response should contain ingest counter, got:\n%s", body)
	}
}

// TestMultipleCollectors_IndependentRegistries はレジストリごとに独立して登録できることを検証する。
func TestMultipleCollectors_IndependentRegistries(t *testing.T) {
	reg1 := prometheus.NewRegistry()
	reg2 := prometheus.NewRegistry()

	c1 := NewCollector(reg1)
	_ = NewCollector(reg2)

	c1.RecordIngestSuccess()

	if val := findMetric(t, reg2, "articlerepo_ingest_success_total").GetMetric()[0].GetCounter().GetValue(); val != 0 {
		t.Errorf("second registry counter = %v, want 0", val)
	}
}

func TestNop_ImplementsMetricsCollector(t *testing.T) {
	var c MetricsCollector = Nop{}
	c.RecordIngestSuccess()
	c.RecordBlobWrite(10)
}
