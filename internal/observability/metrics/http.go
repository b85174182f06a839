package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	extractionsTotal    *prometheus.CounterVec
	extractionDuration  *prometheus.HistogramVec
	extractionWarnings  *prometheus.HistogramVec
	aiFallbackTotal     *prometheus.CounterVec
	cacheLookupsTotal   *prometheus.CounterVec
	batchItemsTotal     *prometheus.CounterVec
	gateRejectionsTotal *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cardscan",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cardscan",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "cardscan",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	extractionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cardscan",
			Subsystem: "extract",
			Name:      "extractions_total",
			Help:      "Total card extractions by source and status.",
		},
		[]string{"service", "source", "status"},
	)
	extractionDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cardscan",
			Subsystem: "extract",
			Name:      "duration_seconds",
			Help:      "Card extraction duration in seconds by source.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "source"},
	)
	extractionWarnings := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cardscan",
			Subsystem: "extract",
			Name:      "field_warnings",
			Help:      "Distribution of dropped fields per extraction.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8},
		},
		[]string{"service"},
	)
	aiFallbackTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cardscan",
			Subsystem: "extract",
			Name:      "ai_fallback_total",
			Help:      "Total AI parse failures routed to the local extractor, by reason.",
		},
		[]string{"service", "reason"},
	)
	cacheLookupsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cardscan",
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Total OCR cache lookups by outcome.",
		},
		[]string{"service", "outcome"},
	)
	batchItemsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cardscan",
			Subsystem: "extract",
			Name:      "batch_items_total",
			Help:      "Total batch extraction items by outcome.",
		},
		[]string{"service", "outcome"},
	)
	gateRejectionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cardscan",
			Subsystem: "gate",
			Name:      "rejections_total",
			Help:      "Total content gate rejections by kind.",
		},
		[]string{"service", "kind"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		extractionsTotal,
		extractionDuration,
		extractionWarnings,
		aiFallbackTotal,
		cacheLookupsTotal,
		batchItemsTotal,
		gateRejectionsTotal,
	)

	return &HTTPServerMetrics{
		registry:            registry,
		requestTotal:        requestTotal,
		requestDuration:     requestDuration,
		requestInFlight:     requestInFlight,
		extractionsTotal:    extractionsTotal,
		extractionDuration:  extractionDuration,
		extractionWarnings:  extractionWarnings,
		aiFallbackTotal:     aiFallbackTotal,
		cacheLookupsTotal:   cacheLookupsTotal,
		batchItemsTotal:     batchItemsTotal,
		gateRejectionsTotal: gateRejectionsTotal,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/scans/") && path != "/v1/scans/stats":
		return "/v1/scans/{scan_id}"
	case strings.HasPrefix(path, "/v1/cards/") && path != "/v1/cards/parse" && path != "/v1/cards/export":
		return "/v1/cards/{card_id}"
	case strings.HasPrefix(path, "/v1/credentials/"):
		return "/v1/credentials/{service}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordExtraction(service, source, status string, warnings int, duration time.Duration) {
	if source == "" {
		source = "unknown"
	}
	m.extractionsTotal.WithLabelValues(service, source, status).Inc()
	m.extractionDuration.WithLabelValues(service, source).Observe(duration.Seconds())
	m.extractionWarnings.WithLabelValues(service).Observe(float64(warnings))
}

func (m *HTTPServerMetrics) RecordAIFallback(service, reason string) {
	if reason == "" {
		reason = "unknown"
	}
	m.aiFallbackTotal.WithLabelValues(service, reason).Inc()
}

func (m *HTTPServerMetrics) RecordCacheLookup(service string, hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.cacheLookupsTotal.WithLabelValues(service, outcome).Inc()
}

func (m *HTTPServerMetrics) RecordBatchItem(service, outcome string) {
	m.batchItemsTotal.WithLabelValues(service, outcome).Inc()
}

func (m *HTTPServerMetrics) RecordGateRejection(service, kind string) {
	if kind == "" {
		kind = "unknown"
	}
	m.gateRejectionsTotal.WithLabelValues(service, kind).Inc()
}

// PipelineRecorder narrows HTTPServerMetrics to the pipeline events the
// usecases emit, with the service label fixed up front.
type PipelineRecorder struct {
	metrics *HTTPServerMetrics
	service string
}

func (m *HTTPServerMetrics) Pipeline(service string) *PipelineRecorder {
	return &PipelineRecorder{metrics: m, service: service}
}

func (r *PipelineRecorder) RecordCacheLookup(hit bool) {
	r.metrics.RecordCacheLookup(r.service, hit)
}

func (r *PipelineRecorder) RecordAIFallback(reason string) {
	r.metrics.RecordAIFallback(r.service, reason)
}

func (r *PipelineRecorder) RecordGateRejection(kind string) {
	r.metrics.RecordGateRejection(r.service, kind)
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
