// Package metrics exposes Prometheus collectors for the deploy tool.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	probeResultsTotal   *prometheus.CounterVec
	probeHealthy        prometheus.Gauge
	workerRestartsTotal *prometheus.CounterVec
	workersServing      prometheus.Gauge
	imageBuildsTotal    *prometheus.CounterVec
	imageBuildSeconds   prometheus.Histogram
	releasesTotal       *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		probeResultsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quayside_probe_results_total",
				Help: "Total readiness probes, labeled by result.",
			},
			[]string{"result"},
		)

		probeHealthy = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "quayside_probe_healthy",
				Help: "1 when the readiness prober reports healthy, 0 otherwise.",
			},
		)

		workerRestartsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quayside_worker_restarts_total",
				Help: "Total worker restarts, labeled by worker.",
			},
			[]string{"worker"},
		)

		workersServing = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "quayside_workers_serving",
				Help: "Number of workers currently in the serving state.",
			},
		)

		imageBuildsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quayside_image_builds_total",
				Help: "Total image builds, labeled by variant and status.",
			},
			[]string{"variant", "status"},
		)

		imageBuildSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "quayside_image_build_duration_seconds",
				Help:    "Histogram of image build durations.",
				Buckets: []float64{5, 15, 30, 60, 120, 300, 600},
			},
		)

		releasesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quayside_releases_total",
				Help: "Total release runs, labeled by status.",
			},
			[]string{"status"},
		)
	})
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveProbe records one probe outcome.
func ObserveProbe(success bool) {
	if probeResultsTotal == nil {
		return
	}
	result := "failure"
	if success {
		result = "success"
	}
	probeResultsTotal.WithLabelValues(result).Inc()
}

// SetProbeStatus records the reported readiness.
func SetProbeStatus(healthy bool) {
	if probeHealthy == nil {
		return
	}
	if healthy {
		probeHealthy.Set(1)
		return
	}
	probeHealthy.Set(0)
}

// IncWorkerRestart counts a restart of the named worker.
func IncWorkerRestart(worker string) {
	if workerRestartsTotal == nil {
		return
	}
	workerRestartsTotal.WithLabelValues(worker).Inc()
}

// SetWorkersServing records the current serving worker count.
func SetWorkersServing(n int) {
	if workersServing == nil {
		return
	}
	workersServing.Set(float64(n))
}

// ObserveBuild records one build outcome and its duration.
func ObserveBuild(variant, status string, duration time.Duration) {
	if imageBuildsTotal == nil {
		return
	}
	imageBuildsTotal.WithLabelValues(variant, status).Inc()
	imageBuildSeconds.Observe(duration.Seconds())
}

// IncRelease counts a release run by status.
func IncRelease(status string) {
	if releasesTotal == nil {
		return
	}
	releasesTotal.WithLabelValues(status).Inc()
}
