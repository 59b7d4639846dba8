package poller

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Exporter self-observability, separate from the configured metrics.
var (
	samplesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fritzbox_exporter_samples_total",
		Help: "Successful samples by metric",
	}, []string{"metric"})

	sampleErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fritzbox_exporter_sample_errors_total",
		Help: "Failed samples by metric and stage",
	}, []string{"metric", "stage"})

	counterWraps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fritzbox_exporter_counter_wraps_total",
		Help: "Device counter wraps compensated with the estimated increment",
	}, []string{"metric"})

	roundDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fritzbox_exporter_round_duration_seconds",
		Help:    "Duration of one full polling round including pauses",
		Buckets: []float64{5, 10, 15, 20, 30, 60, 120},
	})

	lastSampleTime = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fritzbox_exporter_last_sample_timestamp_seconds",
		Help: "Unix timestamp of the last successful sample",
	})
)
