// Package metrics exposes the service's Prometheus instruments.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tinytelemetry/warden/internal/model"
)

const namespace = "warden"

type Handler struct {
	registry *prometheus.Registry

	FetchTotal         *prometheus.CounterVec
	FetchLatency       *prometheus.HistogramVec
	AutoRefreshSkipped prometheus.Counter
	SnapshotRecords    prometheus.Gauge
	IngestRecordsTotal *prometheus.CounterVec
	IngestAnomalies    *prometheus.CounterVec
	StoreFlushedTotal  prometheus.Counter
	HTTPRequests       *prometheus.CounterVec
}

// New registers all instruments on a fresh registry, so several handlers
// can coexist in one process.
func New() *Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Handler{
		registry: reg,
		FetchTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_total",
			Help:      "The total number of snapshot fetches by outcome",
		}, []string{"outcome"}),
		FetchLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_latency_seconds",
			Help:      "The latency of snapshot fetches",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		AutoRefreshSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auto_refresh_skipped_total",
			Help:      "Auto-refresh ticks dropped because the previous load was still running",
		}),
		SnapshotRecords: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_records",
			Help:      "Number of records in the last committed snapshot",
		}),
		IngestRecordsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_records_total",
			Help:      "The total number of records ingested",
		}, []string{"source", "decision"}),
		IngestAnomalies: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_anomalies_total",
			Help:      "Malformed or unrecognized upstream fields, by kind",
		}, []string{"kind"}),
		StoreFlushedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_flushed_records_total",
			Help:      "Records written to the store by the insert buffer",
		}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "The total number of API requests",
		}, []string{"route", "status"}),
	}
}

// ObserveFetch records one fetch outcome and its latency.
func (h *Handler) ObserveFetch(outcome string, elapsed time.Duration) {
	h.FetchTotal.WithLabelValues(outcome).Inc()
	h.FetchLatency.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// SkippedTick counts a dropped auto-refresh tick.
func (h *Handler) SkippedTick() {
	h.AutoRefreshSkipped.Inc()
}

// SnapshotSize records the size of a committed snapshot.
func (h *Handler) SnapshotSize(n int) {
	h.SnapshotRecords.Set(float64(n))
}

// RecordIngested counts a normalized record.
func (h *Handler) RecordIngested(source string, decision model.Decision) {
	if source == "" {
		source = "unknown"
	}
	h.IngestRecordsTotal.WithLabelValues(source, string(decision)).Inc()
}

// Anomaly counts an ingestion anomaly.
func (h *Handler) Anomaly(kind string) {
	h.IngestAnomalies.WithLabelValues(kind).Inc()
}

// Flushed counts records written by the insert buffer.
func (h *Handler) Flushed(n int) {
	h.StoreFlushedTotal.Add(float64(n))
}

// IncHTTPRequest counts an API request.
func (h *Handler) IncHTTPRequest(route string, status int) {
	h.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

// Registry returns the registry the instruments live on.
func (h *Handler) Registry() *prometheus.Registry {
	return h.registry
}

// HTTPHandler serves the registry in the Prometheus exposition format.
func (h *Handler) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{Registry: h.registry})
}
