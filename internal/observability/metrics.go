package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "lidar_ingest"

// Metrics holds the Prometheus counters, histograms, and gauges for the ingest pipeline.
type Metrics struct {
	FilesIngested   *prometheus.CounterVec // labels: format
	FilesFailed     *prometheus.CounterVec // labels: format
	FilesSkipped    prometheus.Counter
	RecordsAppended *prometheus.CounterVec // labels: dataset
	RowsDropped     *prometheus.CounterVec // labels: format, reason={corrupt,timestamp}
	PipelineRunning prometheus.Gauge

	FileProcessingDuration prometheus.Histogram
	FlushDuration          prometheus.Histogram
}

func newMetrics() *Metrics {
	return &Metrics{
		FilesIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_ingested_total",
			Help:      "Source files appended to a canonical dataset.",
		}, []string{"format"}),
		FilesFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_failed_total",
			Help:      "Source files that could not be ingested.",
		}, []string{"format"}),
		FilesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_skipped_total",
			Help:      "Source files skipped because the ledger already holds them.",
		}),
		RecordsAppended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_appended_total",
			Help:      "Time steps appended, by dataset.",
		}, []string{"dataset"}),
		RowsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_dropped_total",
			Help:      "Source rows dropped during canonicalization.",
		}, []string{"format", "reason"}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while an ingest run is in progress, 0 otherwise.",
		}),
		FileProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "file_processing_duration_seconds",
			Help:      "Duration of reading, canonicalizing and appending one source file.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}),
		FlushDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dataset_flush_duration_seconds",
			Help:      "Duration of persisting one canonical dataset.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
	}
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics that are not registered anywhere, so
// every test can build its own without "already registered" panics.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.FilesIngested,
		m.FilesFailed,
		m.FilesSkipped,
		m.RecordsAppended,
		m.RowsDropped,
		m.PipelineRunning,
		m.FileProcessingDuration,
		m.FlushDuration,
	}
}
