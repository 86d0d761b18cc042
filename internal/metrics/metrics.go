// Package metrics defines all Prometheus metrics for athena-dhclient.
// All metrics use the "athena_dhclient_" prefix.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "athena_dhclient"

// --- DHCP Packet Metrics ---

var (
	// PacketsReceived counts accepted DHCP packets by message type.
	PacketsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "packets_received_total",
		Help:      "Total DHCP packets received, by message type.",
	}, []string{"msg_type"})

	// PacketsSent counts DHCP packets sent by message type.
	PacketsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "packets_sent_total",
		Help:      "Total DHCP packets sent, by message type.",
	}, []string{"msg_type"})

	// PacketsDropped counts datagrams discarded before reaching the state machine.
	PacketsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "packets_dropped_total",
		Help:      "Total datagrams discarded, by reason.",
	}, []string{"reason"})

	// PacketErrors counts send and encode failures.
	PacketErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "packet_errors_total",
		Help:      "Total packet processing errors, by type.",
	}, []string{"type"})

	// Retransmissions counts DISCOVER and REQUEST retransmissions.
	Retransmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "retransmissions_total",
		Help:      "Total message retransmissions, by state.",
	}, []string{"state"})
)

// --- State Machine Metrics ---

var (
	// StateTransitions counts state machine transitions.
	StateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "state_transitions_total",
		Help:      "Total client state transitions.",
	}, []string{"from", "to"})

	// CurrentState is 1 for the state the client is in and 0 for the rest.
	CurrentState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "state",
		Help:      "Current client state (1 = active).",
	}, []string{"state"})

	// AcquisitionFailures counts acquisition cycles that restarted without a lease.
	AcquisitionFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "acquisition_failures_total",
		Help:      "Total acquisition cycles that ended without reaching BOUND.",
	})
)

// --- Lease Metrics ---

var (
	// LeaseDuration is the length of the current lease.
	LeaseDuration = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "lease_duration_seconds",
		Help:      "Duration of the current lease in seconds.",
	})

	// LeaseExpiry is the expiry of the current lease as a Unix timestamp.
	LeaseExpiry = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "lease_expiry_timestamp_seconds",
		Help:      "Expiry of the current lease as Unix timestamp, 0 when unbound.",
	})

	// LeaseOperations counts lease lifecycle operations.
	LeaseOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "lease_operations_total",
		Help:      "Total lease operations, by type.",
	}, []string{"operation"})
)

// --- Conflict Detection Metrics ---

var (
	// ConflictProbes counts ARP probes by result.
	ConflictProbes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "conflict_probes_total",
		Help:      "Total ARP conflict probes, by result.",
	}, []string{"result"})

	// ConflictProbeDuration tracks ARP probe latency.
	ConflictProbeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "conflict_probe_duration_seconds",
		Help:      "ARP conflict probe duration in seconds.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
	})
)

// --- Event and Hook Metrics ---

var (
	// EventsPublished counts events published to the bus.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_published_total",
		Help:      "Total events published to the event bus.",
	}, []string{"event_type"})

	// EventBufferDrops counts events dropped due to full buffer.
	EventBufferDrops = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "event_buffer_drops_total",
		Help:      "Total events dropped due to full event bus buffer.",
	})

	// HookExecutions counts hook executions by type and result.
	HookExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "hook_executions_total",
		Help:      "Total hook executions.",
	}, []string{"hook_type", "result"})

	// HookDuration tracks hook execution latency.
	HookDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "hook_execution_duration_seconds",
		Help:      "Hook execution duration in seconds.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0, 30.0},
	}, []string{"hook_type"})
)

// --- Process Metrics ---

var (
	// ClientInfo is a constant gauge with client metadata.
	ClientInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "client_info",
		Help:      "Client build and interface info.",
	}, []string{"version", "interface"})

	// ClientStartTime records when the client started.
	ClientStartTime = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "client_start_time_seconds",
		Help:      "Client start time as Unix timestamp.",
	})
)

// States lists every client state label, so CurrentState can zero the
// inactive ones.
var States = []string{"INIT", "INIT-REBOOT", "REBOOTING", "SELECTING", "REQUESTING", "BOUND", "RENEWING", "REBINDING"}

// SetState marks state as the active one.
func SetState(state string) {
	for _, s := range States {
		v := 0.0
		if s == state {
			v = 1
		}
		CurrentState.WithLabelValues(s).Set(v)
	}
}
