package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/paketb0te/fritzbox-exporter/internal/health"
)

func TestHealthHandler(t *testing.T) {
	req := httptest.NewRequest("GET", "/health", nil)
	rr := httptest.NewRecorder()

	http.HandlerFunc(HealthHandler).ServeHTTP(rr, req)

	if status := rr.Code; status != http.StatusOK {
		t.Errorf("Expected status code %d, got %d", http.StatusOK, status)
	}
	if contentType := rr.Header().Get("Content-Type"); contentType != "application/json" {
		t.Errorf("Expected Content-Type application/json, got %s", contentType)
	}

	body := rr.Body.String()
	for _, field := range []string{"status", "version", "build_time", "timestamp", "memory_mb", "goroutines", "uptime_seconds"} {
		if !strings.Contains(body, field) {
			t.Errorf("Expected response to contain field %s", field)
		}
	}
}

func TestSetVersion(t *testing.T) {
	testVersion := "1.2.3"
	testBuildTime := "2026-08-01T00:00:00Z"

	SetVersion(testVersion, testBuildTime)
	t.Cleanup(func() { SetVersion("dev", "unknown") })

	if version != testVersion {
		t.Errorf("Expected version %s, got %s", testVersion, version)
	}
	if buildTime != testBuildTime {
		t.Errorf("Expected buildTime %s, got %s", testBuildTime, buildTime)
	}
}

func TestProbeHandlers(t *testing.T) {
	hc := health.NewChecker()
	hc.RegisterComponent(health.Func{Name: "fritzbox", Check: func(context.Context) error { return nil }})
	SetHealthChecker(hc)
	t.Cleanup(func() { SetHealthChecker(nil) })

	tests := []struct {
		name     string
		path     string
		handler  http.HandlerFunc
		wantCode int
	}{
		{"liveness", "/livez", LivenessHandler, http.StatusOK},
		{"readiness", "/readyz", ReadinessHandler, http.StatusOK},
		{"startup", "/startupz", StartupHandler, http.StatusOK},
		{"detailed", "/healthz", DetailedHealthHandler, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			tt.handler.ServeHTTP(rr, httptest.NewRequest("GET", tt.path, nil))
			if rr.Code != tt.wantCode {
				t.Errorf("%s returned %d, want %d", tt.path, rr.Code, tt.wantCode)
			}
		})
	}
}

func TestReadinessHandlerUnhealthy(t *testing.T) {
	hc := health.NewChecker()
	hc.RegisterComponent(health.Func{Name: "poller", Check: func(context.Context) error {
		return fmt.Errorf("no successful sample for 5m0s")
	}})
	SetHealthChecker(hc)
	t.Cleanup(func() { SetHealthChecker(nil) })

	rr := httptest.NewRecorder()
	http.HandlerFunc(ReadinessHandler).ServeHTTP(rr, httptest.NewRequest("GET", "/readyz", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("readiness returned %d, want %d", rr.Code, http.StatusServiceUnavailable)
	}
	if !strings.Contains(rr.Body.String(), "not ready") {
		t.Errorf("readiness body = %q, want it to report not ready", rr.Body.String())
	}
}

func TestReadinessHandlerErrorBodyIsValidJSON(t *testing.T) {
	hc := health.NewChecker()
	hc.RegisterComponent(health.Func{Name: "fritzbox", Check: func(context.Context) error {
		return fmt.Errorf(`unexpected token "</s:Envelope>" in response`)
	}})
	SetHealthChecker(hc)
	t.Cleanup(func() { SetHealthChecker(nil) })

	rr := httptest.NewRecorder()
	http.HandlerFunc(ReadinessHandler).ServeHTTP(rr, httptest.NewRequest("GET", "/readyz", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readiness returned %d, want %d", rr.Code, http.StatusServiceUnavailable)
	}

	var body struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("readiness body is not valid JSON: %v\n%s", err, rr.Body.String())
	}
	if body.Status != "not ready" {
		t.Errorf("status = %q, want %q", body.Status, "not ready")
	}
	if !strings.Contains(body.Error, `"</s:Envelope>"`) {
		t.Errorf("error = %q, want the quoted token preserved", body.Error)
	}
}

func TestSetupRoutesMetrics(t *testing.T) {
	prom := prometheus.NewRegistry()
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "fritz_uptime_seconds", Help: "test"})
	if err := prom.Register(gauge); err != nil {
		t.Fatal(err)
	}
	gauge.Set(420)

	mux := SetupRoutes(prom)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics returned %d, want %d", rr.Code, http.StatusOK)
	}
	if !strings.Contains(rr.Body.String(), "fritz_uptime_seconds 420") {
		t.Errorf("/metrics body missing exported gauge:\n%s", rr.Body.String())
	}
}
