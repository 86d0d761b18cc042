package conflict

import (
	"net"
	"testing"
	"time"
)

func TestDeclinedHold(t *testing.T) {
	d := NewDeclined(time.Minute)
	ip := net.IPv4(192, 168, 1, 100)
	now := time.Unix(1000, 0)

	if d.Contains(ip, now) {
		t.Error("IP should not be declined initially")
	}

	d.Add(ip, now)
	if !d.Contains(ip, now.Add(59*time.Second)) {
		t.Error("IP should be declined within the hold time")
	}
	if d.Contains(net.IPv4(192, 168, 1, 101), now) {
		t.Error("other IP reported declined")
	}
	if d.Contains(ip, now.Add(time.Minute)) {
		t.Error("IP should be forgotten after the hold time")
	}
	if d.Len() != 0 {
		t.Errorf("Len() = %d after expiry lookup, want 0", d.Len())
	}
}

func TestDeclinedCleanup(t *testing.T) {
	d := NewDeclined(10 * time.Second)
	now := time.Unix(1000, 0)

	d.Add(net.IPv4(10, 0, 0, 1), now)
	d.Add(net.IPv4(10, 0, 0, 2), now.Add(8*time.Second))
	d.Cleanup(now.Add(12 * time.Second))

	if d.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", d.Len())
	}
	if !d.Contains(net.IPv4(10, 0, 0, 2), now.Add(12*time.Second)) {
		t.Error("recent entry was cleaned up")
	}
}

func TestDeclinedMatchesAcrossForms(t *testing.T) {
	d := NewDeclined(time.Minute)
	now := time.Unix(0, 0)
	d.Add(net.IPv4(10, 0, 0, 9), now)
	if !d.Contains(net.IPv4(10, 0, 0, 9).To4(), now) {
		t.Error("4-byte form not matched")
	}
}
