package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func gatheredNames(t *testing.T) map[string]bool {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	return names
}

func TestIngestionAndDerivationMetrics(t *testing.T) {
	EventsSubmitted.WithLabelValues("accepted").Inc()
	DerivationPasses.WithLabelValues("rebuild").Inc()
	DerivationDuration.Observe(0.002)
	ParkedEvents.Set(2)
	Diagnostics.WithLabelValues("inconsistency").Set(1)
	ConfigVersion.Set(3)

	names := gatheredNames(t)
	expected := []string{
		"tutuledger_events_submitted_total",
		"tutuledger_derivation_passes_total",
		"tutuledger_derivation_duration_seconds",
		"tutuledger_parked_events",
		"tutuledger_diagnostics",
		"tutuledger_config_version",
	}
	for _, name := range expected {
		if !names[name] {
			t.Errorf("metric %q not found", name)
		}
	}
}

func TestPeerSyncMetrics(t *testing.T) {
	PeerSyncEvents.WithLabelValues("duplicate").Add(5)
	PeerSyncErrors.WithLabelValues("http://peer:7420").Inc()

	names := gatheredNames(t)
	for _, name := range []string{"tutuledger_peer_sync_events_total", "tutuledger_peer_sync_errors_total"} {
		if !names[name] {
			t.Errorf("metric %q not found", name)
		}
	}
}
