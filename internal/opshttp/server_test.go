package opshttp

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/keithlinneman/glue-artifact-store/internal/health"
	"github.com/keithlinneman/glue-artifact-store/internal/metrics"
)

func get(t *testing.T, mux *http.ServeMux, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, http.NoBody))
	return rec
}

func TestHealthEndpoints(t *testing.T) {
	mux := NewMux(Options{
		Health:    health.Fixed(true, ""),
		Readiness: health.Fixed(false, "store unreachable"),
	})

	if rec := get(t, mux, "/-/healthy"); rec.Code != http.StatusOK || rec.Body.String() != "ok\n" {
		t.Fatalf("healthy = %d %q", rec.Code, rec.Body.String())
	}
	rec := get(t, mux, "/-/ready")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("ready status = %d, want 503", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "store unreachable") {
		t.Fatalf("ready body = %q, want reason", rec.Body.String())
	}
}

func TestNilProbesPass(t *testing.T) {
	mux := NewMux(Options{})
	if rec := get(t, mux, "/-/healthy"); rec.Code != http.StatusOK {
		t.Fatalf("healthy with nil probe = %d", rec.Code)
	}
	if rec := get(t, mux, "/-/ready"); rec.Code != http.StatusOK {
		t.Fatalf("ready with nil probe = %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	mux := NewMux(Options{Metrics: m.Handler()})

	rec := get(t, mux, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Fatal("metrics body missing collector output")
	}
}

func TestPprofDisabledReturns404(t *testing.T) {
	mux := NewMux(Options{EnablePprof: false})
	if rec := get(t, mux, "/debug/pprof/"); rec.Code != http.StatusNotFound {
		t.Fatalf("pprof disabled status = %d, want 404", rec.Code)
	}
}

func TestPprofEnabled(t *testing.T) {
	mux := NewMux(Options{EnablePprof: true})
	if rec := get(t, mux, "/debug/pprof/cmdline"); rec.Code != http.StatusOK {
		t.Fatalf("pprof cmdline status = %d, want 200", rec.Code)
	}
}
