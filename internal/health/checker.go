// Package health provides health checking for exporter components.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Status represents the health status of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// CheckResult represents the result of a health check for a specific component.
type CheckResult struct {
	Component   string        `json:"component"`
	Status      Status        `json:"status"`
	Message     string        `json:"message,omitempty"`
	Duration    time.Duration `json:"duration"`
	Timestamp   time.Time     `json:"timestamp"`
	LastSuccess *time.Time    `json:"last_success,omitempty"`
}

// HealthStatus represents the overall health status and individual component checks.
type HealthStatus struct {
	Overall Status                 `json:"overall"`
	Checks  map[string]CheckResult `json:"checks"`
}

// ComponentChecker defines the interface for individual component health checks.
type ComponentChecker interface {
	CheckHealth(ctx context.Context) error
	ComponentName() string
}

// Func adapts a plain function into a ComponentChecker.
type Func struct {
	Name  string
	Check func(ctx context.Context) error
}

func (f Func) ComponentName() string                 { return f.Name }
func (f Func) CheckHealth(ctx context.Context) error { return f.Check(ctx) }

// Checker manages health checks for multiple components.
type Checker struct {
	components  map[string]ComponentChecker
	mu          sync.RWMutex
	lastChecks  map[string]CheckResult
	startupTime time.Time
}

// NewChecker creates a new health checker instance.
func NewChecker() *Checker {
	return &Checker{
		components:  make(map[string]ComponentChecker),
		lastChecks:  make(map[string]CheckResult),
		startupTime: time.Now(),
	}
}

func (hc *Checker) RegisterComponent(checker ComponentChecker) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.components[checker.ComponentName()] = checker
}

// LivenessCheck verifies the process is responsive. It consults no
// external dependencies.
func (hc *Checker) LivenessCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// ReadinessCheck verifies every registered component.
func (hc *Checker) ReadinessCheck(ctx context.Context) error {
	hc.mu.RLock()
	components := make(map[string]ComponentChecker, len(hc.components))
	for name, comp := range hc.components {
		components[name] = comp
	}
	hc.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	for name, component := range components {
		if err := component.CheckHealth(ctx); err != nil {
			return fmt.Errorf("component %s not ready: %w", name, err)
		}
	}

	return nil
}

// StartupCheck allows components extra time during initialization: for
// the first 30 seconds only liveness is required.
func (hc *Checker) StartupCheck(ctx context.Context) error {
	if time.Since(hc.startupTime) < 30*time.Second {
		return hc.LivenessCheck(ctx)
	}
	return hc.ReadinessCheck(ctx)
}

// GetHealthStatus runs every component check and reports per-component
// and overall status.
func (hc *Checker) GetHealthStatus(ctx context.Context) HealthStatus {
	hc.mu.RLock()
	components := make(map[string]ComponentChecker, len(hc.components))
	for name, comp := range hc.components {
		components[name] = comp
	}
	hc.mu.RUnlock()

	results := make(map[string]CheckResult)
	overallHealthy := true
	degraded := false

	for name, component := range components {
		start := time.Now()
		err := component.CheckHealth(ctx)
		duration := time.Since(start)

		var status Status
		var message string
		var lastSuccess *time.Time

		if err != nil {
			status = StatusUnhealthy
			message = err.Error()
			overallHealthy = false

			hc.mu.RLock()
			if prev, exists := hc.lastChecks[name]; exists && prev.Status == StatusHealthy {
				lastSuccess = &prev.Timestamp
			}
			hc.mu.RUnlock()
		} else {
			status = StatusHealthy
			now := time.Now()
			lastSuccess = &now
		}

		if duration > 5*time.Second {
			degraded = true
			if status == StatusHealthy {
				status = StatusDegraded
			}
		}

		results[name] = CheckResult{
			Component:   name,
			Status:      status,
			Message:     message,
			Duration:    duration,
			Timestamp:   time.Now(),
			LastSuccess: lastSuccess,
		}
	}

	hc.mu.Lock()
	hc.lastChecks = results
	hc.mu.Unlock()

	var overall Status
	switch {
	case !overallHealthy:
		overall = StatusUnhealthy
	case degraded:
		overall = StatusDegraded
	default:
		overall = StatusHealthy
	}

	return HealthStatus{Overall: overall, Checks: results}
}

// WriteHealthResponse encodes a health status as the JSON body of an
// HTTP response.
func WriteHealthResponse(w http.ResponseWriter, status HealthStatus, httpStatus int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	if err := json.NewEncoder(w).Encode(status); err != nil {
		slog.Error("failed to encode health status response", "error", err)
	}
}

// DetermineHTTPStatus maps a health status onto an HTTP status code.
// Degraded still counts as healthy for Kubernetes probes.
func DetermineHTTPStatus(status Status) int {
	switch status {
	case StatusHealthy, StatusDegraded:
		return http.StatusOK
	case StatusUnhealthy:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
