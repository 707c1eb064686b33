package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInit(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if probeResultsTotal == nil || workerRestartsTotal == nil ||
		imageBuildsTotal == nil || releasesTotal == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}

	ObserveProbe(true)
	if val := testutil.ToFloat64(probeResultsTotal.WithLabelValues("success")); val < 1 {
		t.Errorf("expected at least one success probe, got %f", val)
	}

	SetProbeStatus(true)
	if val := testutil.ToFloat64(probeHealthy); val != 1 {
		t.Errorf("expected probeHealthy to be 1, got %f", val)
	}
	SetProbeStatus(false)
	if val := testutil.ToFloat64(probeHealthy); val != 0 {
		t.Errorf("expected probeHealthy to be 0, got %f", val)
	}
}

func TestHelpersAreNoOpsBeforeInit(t *testing.T) {
	// Helpers tolerate an uninitialized registry: callers in unit tests
	// use the package without wiring Prometheus.
	saved := probeResultsTotal
	probeResultsTotal = nil
	defer func() { probeResultsTotal = saved }()

	ObserveProbe(false) // must not panic
}
