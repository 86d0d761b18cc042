package lease

import (
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/athena-dhcpd/athena-dhclient/internal/dhcp"
	"github.com/athena-dhcpd/athena-dhclient/pkg/dhcpv4"
)

func testAck(lease uint32) *dhcp.Message {
	m := &dhcp.Message{
		Op:     dhcpv4.OpCodeBootReply,
		HType:  dhcpv4.HardwareTypeEthernet,
		HLen:   6,
		XID:    1,
		YIAddr: net.IPv4(10, 0, 0, 5),
		CHAddr: net.HardwareAddr{2, 0, 0, 0, 0, 1},
	}
	m.Options.Set(dhcpv4.OptionDHCPMessageType, []byte{byte(dhcpv4.MessageTypeAck)})
	m.Options.SetIP(dhcpv4.OptionServerIdentifier, net.IPv4(10, 0, 0, 1))
	m.Options.SetIP(dhcpv4.OptionSubnetMask, net.IPv4(255, 255, 255, 0))
	m.Options.SetIP(dhcpv4.OptionRouter, net.IPv4(10, 0, 0, 254))
	m.Options.Set(dhcpv4.OptionDomainNameServer, []byte{10, 0, 0, 53, 10, 0, 0, 54})
	if lease > 0 {
		m.Options.SetUint32(dhcpv4.OptionIPLeaseTime, lease)
	}
	m.Options.Add(dhcpv4.OptionCode(224), []byte("opaque"))
	return m
}

func TestFromAck(t *testing.T) {
	obtained := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l, hadLease, err := FromAck(testAck(600), obtained, "eth0")
	if err != nil {
		t.Fatalf("FromAck error: %v", err)
	}
	if !hadLease {
		t.Error("hadLease = false, want true")
	}
	if !l.Address.Equal(net.IPv4(10, 0, 0, 5)) || !l.ServerID.Equal(net.IPv4(10, 0, 0, 1)) {
		t.Errorf("address/server = %s/%s", l.Address, l.ServerID)
	}
	if l.Duration != 600*time.Second || l.T1 != 300*time.Second || l.T2 != 525*time.Second {
		t.Errorf("timers = %v/%v/%v", l.Duration, l.T1, l.T2)
	}
	if got := l.IPNet().String(); got != "10.0.0.5/24" {
		t.Errorf("IPNet = %s", got)
	}
	if !l.Router.Equal(net.IPv4(10, 0, 0, 254)) {
		t.Errorf("Router = %s", l.Router)
	}
	if len(l.DNS) != 2 || !l.DNS[1].Equal(net.IPv4(10, 0, 0, 54)) {
		t.Errorf("DNS = %v", l.DNS)
	}
	if string(l.Options[224]) != "opaque" {
		t.Error("opaque option not kept")
	}
	if !l.Expiry().Equal(obtained.Add(10 * time.Minute)) {
		t.Errorf("Expiry = %v", l.Expiry())
	}
}

func TestFromAckDefaults(t *testing.T) {
	l, hadLease, err := FromAck(testAck(0), time.Now(), "eth0")
	if err != nil {
		t.Fatalf("FromAck error: %v", err)
	}
	if hadLease {
		t.Error("hadLease = true for ACK without option 51")
	}
	if l.Duration != DefaultLeaseTime {
		t.Errorf("Duration = %v, want %v", l.Duration, DefaultLeaseTime)
	}

	ack := testAck(600)
	ack.YIAddr = net.IPv4zero
	if _, _, err := FromAck(ack, time.Now(), "eth0"); err == nil {
		t.Error("expected error for ACK without yiaddr")
	}
}

func TestLeaseExpiry(t *testing.T) {
	l := testLease()
	if l.IsExpired(l.Obtained.Add(time.Hour)) {
		t.Error("lease expired after 1h of 8h")
	}
	if !l.IsExpired(l.Obtained.Add(8 * time.Hour)) {
		t.Error("lease not expired at its expiry")
	}
	if r := l.Remaining(l.Obtained.Add(6 * time.Hour)); r != 2*time.Hour {
		t.Errorf("Remaining = %v, want 2h", r)
	}
	if r := l.Remaining(l.Obtained.Add(9 * time.Hour)); r != 0 {
		t.Errorf("Remaining after expiry = %v, want 0", r)
	}
}

func TestLeaseJSONRoundTrip(t *testing.T) {
	orig := testLease()
	data, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	var got Lease
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if got.String() != orig.String() {
		t.Errorf("round trip = %s, want %s", got.String(), orig.String())
	}
	if len(got.DNS) != 1 || !got.DNS[0].Equal(orig.DNS[0]) {
		t.Errorf("DNS round trip = %v, want %v", got.DNS, orig.DNS)
	}

	if err := json.Unmarshal([]byte(`{"address":"nope","mac":"00:11:22:33:44:55"}`), &got); err == nil {
		t.Error("expected error for invalid address")
	}
}

func TestLeaseClone(t *testing.T) {
	orig := testLease()
	c := orig.Clone()
	c.Address[3] = 99
	c.DNS[0][3] = 99
	c.Options[dhcpv4.OptionDomainName][0] = 'X'

	if orig.Address[3] != 100 {
		t.Error("Clone shares Address")
	}
	if orig.DNS[0][3] != 53 {
		t.Error("Clone shares DNS")
	}
	if string(orig.Options[dhcpv4.OptionDomainName]) != "example.com" {
		t.Error("Clone shares Options")
	}
}
