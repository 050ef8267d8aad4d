package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics mengumpulkan metrik Prometheus untuk aplikasi.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	bundles         *prometheus.CounterVec
	bundleDuration  prometheus.Histogram
	importGroups    *prometheus.CounterVec
}

// NewMetrics menginisialisasi registry dan metrik dasar.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "clientdoc_http_requests_total",
		Help: "Jumlah permintaan HTTP berdasarkan route dan status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "clientdoc_http_request_duration_seconds",
		Help:    "Durasi permintaan HTTP per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	bundles := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "clientdoc_bundles_total",
		Help: "Jumlah bundel PDF konfirmasi berdasarkan hasil.",
	}, []string{"outcome"})
	bundleDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "clientdoc_bundle_duration_seconds",
		Help:    "Durasi pembuatan bundel PDF.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})
	groups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "clientdoc_import_groups_total",
		Help: "Jumlah grup faktur dari unggahan massal berdasarkan hasil.",
	}, []string{"outcome"})
	registry.MustRegister(requests, duration, bundles, bundleDuration, groups)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		bundles:         bundles,
		bundleDuration:  bundleDuration,
		importGroups:    groups,
	}
}

// ObserveBundle mencatat hasil dan durasi satu pembuatan bundel.
func (m *Metrics) ObserveBundle(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.bundles.WithLabelValues(outcome).Inc()
	m.bundleDuration.Observe(elapsed.Seconds())
}

// ObserveImportGroup mencatat hasil satu grup impor.
func (m *Metrics) ObserveImportGroup(outcome string) {
	if m == nil {
		return
	}
	m.importGroups.WithLabelValues(outcome).Inc()
}

// Handler mengembalikan http.Handler untuk endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware mencatat metrik untuk setiap permintaan HTTP.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer mengekspos registry untuk pendaftaran metrik khusus.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
