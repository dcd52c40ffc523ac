package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	return rr.Body.String()
}

func TestMetricsHandlerExposesPrometheusMetrics(t *testing.T) {
	metrics := NewMetrics()
	metrics.DirectoryDegraded("roles")

	body := scrape(t, metrics)
	if !strings.Contains(body, `odyssey_identity_directory_degraded_total{directory="roles"} 1`) {
		t.Fatalf("expected degraded counter, got: %s", body)
	}
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	metricsBody := scrape(t, metrics)
	if !strings.Contains(metricsBody, "odyssey_identity_http_requests_total{code=\"418\",route=\"/test\"} 1") {
		t.Fatalf("expected metrics to record request, got: %s", metricsBody)
	}
	if !strings.Contains(metricsBody, "odyssey_identity_http_request_duration_seconds_bucket{route=\"/test\"") {
		t.Fatalf("expected duration histogram to be present, got: %s", metricsBody)
	}
}

func TestResolutionCounters(t *testing.T) {
	metrics := NewMetrics()
	metrics.UnresolvedRoles(2)
	metrics.UnresolvedRoles(0)
	metrics.SnapshotResolved("partial")
	metrics.Authentication("bad_secret")

	body := scrape(t, metrics)
	for _, want := range []string{
		"odyssey_identity_unresolved_roles_total 2",
		`odyssey_identity_snapshot_resolutions_total{outcome="partial"} 1`,
		`odyssey_identity_authentications_total{outcome="bad_secret"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in: %s", want, body)
		}
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.UnresolvedRoles(1)
	m.DirectoryDegraded("roles")
	m.SnapshotResolved("complete")
	m.Authentication("success")
	if m.Registerer() == nil {
		t.Fatal("expected default registerer")
	}
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}
