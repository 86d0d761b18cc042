package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRegistered(t *testing.T) {
	// promauto registers with the default registry; write a value to each
	// vector so it shows up when gathered.
	PacketsReceived.WithLabelValues("DHCPOFFER").Inc()
	PacketsSent.WithLabelValues("DHCPDISCOVER").Inc()
	PacketsDropped.WithLabelValues("xid_mismatch").Inc()
	PacketErrors.WithLabelValues("send").Inc()
	Retransmissions.WithLabelValues("SELECTING").Inc()
	StateTransitions.WithLabelValues("INIT", "SELECTING").Inc()
	AcquisitionFailures.Inc()
	LeaseDuration.Set(600)
	LeaseExpiry.Set(1700000000)
	LeaseOperations.WithLabelValues("bound").Inc()
	ConflictProbes.WithLabelValues("free").Inc()
	ConflictProbeDuration.Observe(0.2)
	EventsPublished.WithLabelValues("lease.bound").Inc()
	EventBufferDrops.Inc()
	HookExecutions.WithLabelValues("script", "success").Inc()
	HookDuration.WithLabelValues("script").Observe(0.1)
	ClientInfo.WithLabelValues("dev", "eth0").Set(1)
	ClientStartTime.SetToCurrentTime()

	if got := testutil.ToFloat64(LeaseDuration); got != 600 {
		t.Errorf("LeaseDuration = %v, want 600", got)
	}
	if got := testutil.ToFloat64(AcquisitionFailures); got != 1 {
		t.Errorf("AcquisitionFailures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(PacketsDropped.WithLabelValues("xid_mismatch")); got != 1 {
		t.Errorf("PacketsDropped = %v, want 1", got)
	}
}

func TestSetState(t *testing.T) {
	SetState("BOUND")
	for _, s := range States {
		want := 0.0
		if s == "BOUND" {
			want = 1
		}
		if got := testutil.ToFloat64(CurrentState.WithLabelValues(s)); got != want {
			t.Errorf("CurrentState{%s} = %v, want %v", s, got, want)
		}
	}
}

func TestMetricsNamespace(t *testing.T) {
	// All metrics should use the athena_dhclient_ namespace
	mfs, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	for _, mf := range mfs {
		name := mf.GetName()
		// Skip standard go_* and process_* and promhttp_* metrics
		if strings.HasPrefix(name, "go_") ||
			strings.HasPrefix(name, "process_") ||
			strings.HasPrefix(name, "promhttp_") {
			continue
		}
		if !strings.HasPrefix(name, "athena_dhclient_") {
			t.Errorf("metric %q does not have athena_dhclient_ prefix", name)
		}
	}
}
