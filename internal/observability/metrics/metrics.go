package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "analytics_"

	resultSuccess = "success"
	resultError   = "error"

	ingestResultProcessed = "processed"
	ingestResultDuplicate = "duplicate"
	ingestResultMalformed = "malformed"
)

var (
	registerOnce sync.Once

	ingestMessages *prometheus.CounterVec
	pollErrors     prometheus.Counter
	pollBatchSize  prometheus.Histogram

	anomaliesTotal  *prometheus.CounterVec
	machinesTracked prometheus.Gauge

	sinkWrites  *prometheus.CounterVec
	sinkLatency *prometheus.HistogramVec

	alertsTotal *prometheus.CounterVec

	reportExportTotal   *prometheus.CounterVec
	reportExportLatency *prometheus.HistogramVec
)

// Init registers the analytics metrics with the default registry.
func Init() {
	registerOnce.Do(func() {
		ingestMessages = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_messages_total",
				Help: "Total ingested messages by result",
			},
			[]string{"result"},
		)
		pollErrors = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "poll_errors_total",
				Help: "Total transport poll failures",
			},
		)
		pollBatchSize = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "poll_batch_size",
				Help:    "Messages returned per poll",
				Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100, 250},
			},
		)

		anomaliesTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "anomalies_total",
				Help: "Total anomalous readings by mode",
			},
			[]string{"mode"},
		)
		machinesTracked = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "machines_tracked",
				Help: "Distinct machines with a rolling window",
			},
		)

		sinkWrites = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "sink_writes_total",
				Help: "Total sink writes by sink and result",
			},
			[]string{"sink", "result"},
		)
		sinkLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "sink_latency_seconds",
				Help:    "Sink write latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"sink"},
		)

		alertsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alerts_total",
				Help: "Total anomaly alerts by channel and result",
			},
			[]string{"channel", "result"},
		)

		reportExportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "report_export_total",
				Help: "Total report exports by format and result",
			},
			[]string{"format", "result"},
		)
		reportExportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "report_export_latency_seconds",
				Help:    "Report export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format"},
		)

		prometheus.MustRegister(
			ingestMessages,
			pollErrors,
			pollBatchSize,
			anomaliesTotal,
			machinesTracked,
			sinkWrites,
			sinkLatency,
			alertsTotal,
			reportExportTotal,
			reportExportLatency,
		)
	})
}

// IncIngest increments the ingest counter for result.
func IncIngest(result string) {
	if result == "" {
		result = "unknown"
	}
	if ingestMessages != nil {
		ingestMessages.WithLabelValues(result).Inc()
	}
}

// IncPollError increments the transport failure counter.
func IncPollError() {
	if pollErrors != nil {
		pollErrors.Inc()
	}
}

// ObservePollBatch records the size of one poll.
func ObservePollBatch(size int) {
	if pollBatchSize != nil {
		pollBatchSize.Observe(float64(size))
	}
}

// IncAnomaly increments the anomaly counter for mode.
func IncAnomaly(mode string) {
	if mode == "" {
		mode = "unknown"
	}
	if anomaliesTotal != nil {
		anomaliesTotal.WithLabelValues(mode).Inc()
	}
}

// SetMachinesTracked sets the number of machines with a window.
func SetMachinesTracked(count int) {
	if machinesTracked != nil {
		machinesTracked.Set(float64(count))
	}
}

// ObserveSinkWrite records sink latency and result.
func ObserveSinkWrite(sink, result string, duration time.Duration) {
	if sink == "" {
		sink = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if sinkWrites != nil {
		sinkWrites.WithLabelValues(sink, result).Inc()
	}
	if sinkLatency != nil {
		sinkLatency.WithLabelValues(sink).Observe(duration.Seconds())
	}
}

// IncAlert increments the alert counter for channel and result.
func IncAlert(channel, result string) {
	if channel == "" {
		channel = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if alertsTotal != nil {
		alertsTotal.WithLabelValues(channel, result).Inc()
	}
}

// ObserveReportExport records export latency and result.
func ObserveReportExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if reportExportTotal != nil {
		reportExportTotal.WithLabelValues(format, result).Inc()
	}
	if reportExportLatency != nil {
		reportExportLatency.WithLabelValues(format).Observe(duration.Seconds())
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError

	IngestProcessed = ingestResultProcessed
	IngestDuplicate = ingestResultDuplicate
	IngestMalformed = ingestResultMalformed
)
