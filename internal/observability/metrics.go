package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects Prometheus metrics across the pipeline. All recording
// methods are nil-safe so components constructed without metrics (tests,
// one-shot CLI invocations) pay nothing.
type Metrics struct {
	// IngestCounter counts ingestion runs.
	// Labels: kind (document|transcript), status (success|error|empty)
	IngestCounter *prometheus.CounterVec

	// ChunkCounter counts per-chunk outcomes on the document path.
	// Labels: stage (embedding|analysis), status (success|error)
	ChunkCounter *prometheus.CounterVec

	// ProviderRequestDuration measures outbound model-API latency.
	// Labels: provider (openai|anthropic), operation (embed|complete)
	ProviderRequestDuration *prometheus.HistogramVec

	// ProviderRequestCounter counts outbound model-API calls.
	// Labels: provider, operation, status (success|error)
	ProviderRequestCounter *prometheus.CounterVec

	// StoreWriteCounter counts memory-store persist outcomes.
	// Labels: status (success|conflict|error)
	StoreWriteCounter *prometheus.CounterVec

	// DuplicatesRemoved counts items dropped by dedup on write.
	DuplicatesRemoved prometheus.Counter

	// RetrievalDuration measures end-to-end query latency in seconds.
	RetrievalDuration prometheus.Histogram
}

// NewMetrics registers all metrics with the default Prometheus registry.
// Call once at startup.
func NewMetrics() *Metrics {
	return newMetrics(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers against a caller-supplied registry.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	return newMetrics(reg)
}

func newMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		IngestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recall_ingest_total",
				Help: "Ingestion runs by kind and status",
			},
			[]string{"kind", "status"},
		),
		ChunkCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recall_chunks_total",
				Help: "Per-chunk embedding and analysis outcomes",
			},
			[]string{"stage", "status"},
		),
		ProviderRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "recall_provider_request_duration_seconds",
				Help:    "Latency of embedding and completion requests",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "operation"},
		),
		ProviderRequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recall_provider_requests_total",
				Help: "Embedding and completion requests by status",
			},
			[]string{"provider", "operation", "status"},
		),
		StoreWriteCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recall_store_writes_total",
				Help: "Memory store persist attempts by outcome",
			},
			[]string{"status"},
		),
		DuplicatesRemoved: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "recall_duplicates_removed_total",
				Help: "Items dropped by literal or semantic dedup on write",
			},
		),
		RetrievalDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "recall_retrieval_duration_seconds",
				Help:    "End-to-end similarity query latency",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
		),
	}
}

// RecordIngest records one ingestion run outcome.
func (m *Metrics) RecordIngest(kind, status string) {
	if m == nil {
		return
	}
	m.IngestCounter.WithLabelValues(kind, status).Inc()
}

// RecordChunk records one per-chunk stage outcome.
func (m *Metrics) RecordChunk(stage, status string) {
	if m == nil {
		return
	}
	m.ChunkCounter.WithLabelValues(stage, status).Inc()
}

// RecordProviderRequest records one outbound model-API call.
func (m *Metrics) RecordProviderRequest(provider, operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.ProviderRequestCounter.WithLabelValues(provider, operation, status).Inc()
	m.ProviderRequestDuration.WithLabelValues(provider, operation).Observe(time.Since(start).Seconds())
}

// RecordStoreWrite records one persist attempt outcome.
func (m *Metrics) RecordStoreWrite(status string) {
	if m == nil {
		return
	}
	m.StoreWriteCounter.WithLabelValues(status).Inc()
}

// RecordDuplicates adds to the dedup counter.
func (m *Metrics) RecordDuplicates(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.DuplicatesRemoved.Add(float64(n))
}

// RecordRetrieval records one query's latency.
func (m *Metrics) RecordRetrieval(start time.Time) {
	if m == nil {
		return
	}
	m.RetrievalDuration.Observe(time.Since(start).Seconds())
}
