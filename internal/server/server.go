// Package server provides the HTTP surface of the exporter: the
// Prometheus exposition endpoint and the health probes.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// createHTTPServer creates a configured HTTP server with standard timeouts.
func createHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// SetupRoutes configures the HTTP routes: Prometheus exposition plus
// health and Kubernetes probe endpoints.
func SetupRoutes(gatherer prometheus.Gatherer) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", HealthHandler)

	mux.HandleFunc("/livez", LivenessHandler)
	mux.HandleFunc("/readyz", ReadinessHandler)
	mux.HandleFunc("/startupz", StartupHandler)
	mux.HandleFunc("/healthz", DetailedHealthHandler)

	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func Run(ctx context.Context, addr string, gatherer prometheus.Gatherer) error {
	srv := createHTTPServer(addr, SetupRoutes(gatherer))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	slog.Info("server ready", "bind", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
