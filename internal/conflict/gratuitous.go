package conflict

import (
	"context"
	"net"
)

// buildGratuitousARP creates an ARP announcement.
// Sender IP = Target IP = assigned IP, sent to broadcast to update all ARP
// caches on the segment.
func buildGratuitousARP(mac net.HardwareAddr, assignedIP net.IP) ([]byte, error) {
	return serializeARP(mac, assignedIP, assignedIP)
}

// NoopProber is used when conflict detection is disabled. It reports every
// address Free and announces nothing.
type NoopProber struct{}

// Probe always returns Free.
func (NoopProber) Probe(context.Context, net.IP) (Result, error) { return Free, nil }

// Announce does nothing.
func (NoopProber) Announce(net.IP) error { return nil }

// Close does nothing.
func (NoopProber) Close() error { return nil }
