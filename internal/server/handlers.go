package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/paketb0te/fritzbox-exporter/internal/health"
)

var (
	version       = "dev"
	buildTime     = "unknown"
	startTime     = time.Now()
	healthChecker *health.Checker
)

// SetVersion sets the global version and build time for handlers.
func SetVersion(v string, bt string) {
	version = v
	buildTime = bt
}

// SetHealthChecker sets the global health checker for handlers.
func SetHealthChecker(hc *health.Checker) {
	healthChecker = hc
}

// HealthHandler reports basic process information.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	status := map[string]interface{}{
		"status":         "ok",
		"version":        version,
		"build_time":     buildTime,
		"timestamp":      time.Now().Unix(),
		"memory_mb":      m.Alloc / 1024 / 1024,
		"goroutines":     runtime.NumGoroutine(),
		"uptime_seconds": int64(time.Since(startTime).Seconds()),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		slog.Error("failed to encode health status response", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// LivenessHandler provides the liveness probe endpoint for Kubernetes.
func LivenessHandler(w http.ResponseWriter, r *http.Request) {
	if healthChecker == nil {
		writeProbe(w, http.StatusOK, "ok", "")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := healthChecker.LivenessCheck(ctx); err != nil {
		writeProbe(w, http.StatusServiceUnavailable, "unhealthy", err.Error())
		return
	}
	writeProbe(w, http.StatusOK, "ok", "")
}

func ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	if healthChecker == nil {
		writeProbe(w, http.StatusOK, "not configured", "")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if err := healthChecker.ReadinessCheck(ctx); err != nil {
		writeProbe(w, http.StatusServiceUnavailable, "not ready", err.Error())
		return
	}
	writeProbe(w, http.StatusOK, "ready", "")
}

func StartupHandler(w http.ResponseWriter, r *http.Request) {
	if healthChecker == nil {
		writeProbe(w, http.StatusOK, "ok", "")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	if err := healthChecker.StartupCheck(ctx); err != nil {
		writeProbe(w, http.StatusServiceUnavailable, "not started", err.Error())
		return
	}
	writeProbe(w, http.StatusOK, "started", "")
}

// DetailedHealthHandler reports per-component check results.
func DetailedHealthHandler(w http.ResponseWriter, r *http.Request) {
	if healthChecker == nil {
		writeProbe(w, http.StatusServiceUnavailable, "not configured", "")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	status := healthChecker.GetHealthStatus(ctx)
	health.WriteHealthResponse(w, status, health.DetermineHTTPStatus(status.Overall))
}

// probeResponse is the body of a probe endpoint answer.
type probeResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func writeProbe(w http.ResponseWriter, code int, status, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(probeResponse{Status: status, Error: message}); err != nil {
		slog.Error("failed to write probe response", "error", err)
	}
}
