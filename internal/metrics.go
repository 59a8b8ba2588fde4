package internal

import (
	"net/http"
	"time"

	"device-inventory-api/internal/models"
	"device-inventory-api/internal/registry"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for HTTP requests and device operations
type Metrics struct {
	reqTotal   *prometheus.CounterVec
	reqLatency *prometheus.HistogramVec
	deviceOps  *prometheus.CounterVec
	importRows *prometheus.CounterVec
	registry   *prometheus.Registry
}

// NewMetrics creates a new Metrics instance with a private Prometheus registry
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	reqTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	reqLatency := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	deviceOps := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "device_operations_total",
			Help: "Device create/update/delete calls by outcome code",
		},
		[]string{"operation", "code"},
	)

	importRows := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "device_import_rows_total",
			Help: "Spreadsheet rows processed by the device importer",
		},
		[]string{"result"},
	)

	registry.MustRegister(reqTotal, reqLatency, deviceOps, importRows)

	return &Metrics{
		reqTotal:   reqTotal,
		reqLatency: reqLatency,
		deviceOps:  deviceOps,
		importRows: importRows,
		registry:   registry,
	}
}

var _ registry.Recorder = (*Metrics)(nil)

// ObserveDeviceOperation counts one registry mutation
func (m *Metrics) ObserveDeviceOperation(op models.Operation, code string) {
	m.deviceOps.WithLabelValues(string(op), code).Inc()
}

// ObserveImport counts the rows of one import run
func (m *Metrics) ObserveImport(inserted, skipped, failed int) {
	m.importRows.WithLabelValues("inserted").Add(float64(inserted))
	m.importRows.WithLabelValues("skipped").Add(float64(skipped))
	m.importRows.WithLabelValues("error").Add(float64(failed))
}

// Middleware returns a Chi middleware that collects metrics
func (m *Metrics) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &statusRecorder{ResponseWriter: w, code: http.StatusOK}

			next.ServeHTTP(rw, r)

			// Use Chi's route pattern if available
			path := r.URL.Path
			if chiCtx := chi.RouteContext(r.Context()); chiCtx != nil && len(chiCtx.RoutePatterns) > 0 {
				path = chiCtx.RoutePatterns[len(chiCtx.RoutePatterns)-1]
			}

			status := http.StatusText(rw.code)
			m.reqTotal.WithLabelValues(r.Method, path, status).Inc()
			m.reqLatency.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
		})
	}
}

// Handler returns an http.Handler that serves Prometheus metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// statusRecorder captures the HTTP status code
type statusRecorder struct {
	http.ResponseWriter
	code        int
	wroteHeader bool
}

func (sr *statusRecorder) WriteHeader(code int) {
	if !sr.wroteHeader {
		sr.code = code
		sr.wroteHeader = true
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	sr.wroteHeader = true
	return sr.ResponseWriter.Write(b)
}
