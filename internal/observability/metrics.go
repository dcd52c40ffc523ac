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
	registry          *prometheus.Registry
	handler           http.Handler
	requestsTotal     *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	unresolvedRoles   prometheus.Counter
	directoryDegraded *prometheus.CounterVec
	resolutions       *prometheus.CounterVec
	authentications   *prometheus.CounterVec
}

// NewMetrics menginisialisasi registry dan metrik dasar.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_identity_http_requests_total",
		Help: "Jumlah permintaan HTTP berdasarkan route dan status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "odyssey_identity_http_request_duration_seconds",
		Help:    "Durasi permintaan HTTP per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	unresolved := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "odyssey_identity_unresolved_roles_total",
		Help: "Referensi role yang tidak dikenal direktori saat resolusi snapshot.",
	})
	degraded := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_identity_directory_degraded_total",
		Help: "Lookup direktori yang gagal atau timeout.",
	}, []string{"directory"})
	resolutions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_identity_snapshot_resolutions_total",
		Help: "Resolusi snapshot otorisasi berdasarkan hasil.",
	}, []string{"outcome"})
	authentications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_identity_authentications_total",
		Help: "Percobaan autentikasi berdasarkan hasil.",
	}, []string{"outcome"})
	registry.MustRegister(requests, duration, unresolved, degraded, resolutions, authentications)
	return &Metrics{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:     requests,
		requestDuration:   duration,
		unresolvedRoles:   unresolved,
		directoryDegraded: degraded,
		resolutions:       resolutions,
		authentications:   authentications,
	}
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

// UnresolvedRoles menambah hitungan role yang tidak dikenal.
func (m *Metrics) UnresolvedRoles(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.unresolvedRoles.Add(float64(n))
}

// DirectoryDegraded mencatat lookup direktori yang gagal.
func (m *Metrics) DirectoryDegraded(directory string) {
	if m == nil {
		return
	}
	m.directoryDegraded.WithLabelValues(directory).Inc()
}

// SnapshotResolved mencatat hasil resolusi snapshot.
func (m *Metrics) SnapshotResolved(outcome string) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(outcome).Inc()
}

// Authentication mencatat hasil autentikasi.
func (m *Metrics) Authentication(outcome string) {
	if m == nil {
		return
	}
	m.authentications.WithLabelValues(outcome).Inc()
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
