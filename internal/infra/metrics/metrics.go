// Package metrics provides Prometheus metrics for the ledger node:
// ingestion, derivation passes, parked events, config version and peer sync.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tutuledger"

// ─── Ingestion ──────────────────────────────────────────────────────────────

// EventsSubmitted counts submit results (accepted, duplicate, rejected).
var EventsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "events_submitted_total",
	Help:      "Events submitted to the store, by result.",
}, []string{"result"})

// ─── Derivation ─────────────────────────────────────────────────────────────

// DerivationPasses counts derivation passes by mode (rebuild, incremental).
var DerivationPasses = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "derivation_passes_total",
	Help:      "Derivation passes by mode.",
}, []string{"mode"})

// DerivationDuration tracks how long a derivation pass takes.
var DerivationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: namespace,
	Name:      "derivation_duration_seconds",
	Help:      "Duration of derivation passes in seconds.",
	Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
})

// ParkedEvents tracks events waiting for a causal dependency.
var ParkedEvents = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "parked_events",
	Help:      "Events parked in out-of-order buffers.",
})

// Diagnostics tracks recorded derivation diagnostics by kind.
var Diagnostics = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "diagnostics",
	Help:      "Derivation diagnostics by kind (inconsistency, parked, evicted).",
}, []string{"kind"})

// ConfigVersion tracks the active config version.
var ConfigVersion = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "config_version",
	Help:      "Version of the active governable configuration.",
})

// ─── Peer Sync ──────────────────────────────────────────────────────────────

// PeerSyncEvents counts events pulled from peers by submit result.
var PeerSyncEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "peer_sync_events_total",
	Help:      "Events pulled from peers, by submit result.",
}, []string{"result"})

// PeerSyncErrors counts failed pulls per peer.
var PeerSyncErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "peer_sync_errors_total",
	Help:      "Failed peer pulls.",
}, []string{"peer"})
