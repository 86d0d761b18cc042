// Package lease holds the client's view of a DHCP lease, its renewal timers,
// and the on-disk store used to resume after a restart.
package lease

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/athena-dhcpd/athena-dhclient/internal/dhcp"
	"github.com/athena-dhcpd/athena-dhclient/pkg/dhcpv4"
)

// Lease is an address granted by a server, as committed from a DHCPACK.
type Lease struct {
	Address    net.IP
	ServerID   net.IP
	SubnetMask net.IPMask
	Router     net.IP
	DNS        []net.IP
	Duration   time.Duration
	T1         time.Duration
	T2         time.Duration
	Obtained   time.Time
	Interface  string
	MAC        net.HardwareAddr
	// Options holds every option from the ACK, interpreted or not, for hooks.
	Options map[dhcpv4.OptionCode][]byte
}

// FromAck builds a lease from an accepted DHCPACK. obtained is the time the
// REQUEST that produced the ACK was sent (RFC 2131 §4.4.1). The second return
// value is false when the ACK carried no usable lease time and the default
// was applied.
func FromAck(ack *dhcp.Message, obtained time.Time, iface string) (*Lease, bool, error) {
	if dhcpv4.IsZeroIP(ack.YIAddr) {
		return nil, false, errors.New("ACK has no yiaddr")
	}

	leaseTime, ok := ack.LeaseTime()
	hadLease := ok && leaseTime > 0
	t1, _ := ack.RenewalTime()
	t2, _ := ack.RebindingTime()
	timers := ComputeTimers(obtained, leaseTime, t1, t2)

	l := &Lease{
		Address:    dhcpv4.IPToBytes(ack.YIAddr),
		ServerID:   ack.ServerIdentifier(),
		SubnetMask: ack.SubnetMask(),
		Router:     ack.Router(),
		DNS:        ack.DNSServers(),
		Duration:   timers.Lease,
		T1:         timers.T1,
		T2:         timers.T2,
		Obtained:   obtained,
		Interface:  iface,
		MAC:        append(net.HardwareAddr(nil), ack.CHAddr...),
		Options:    ack.Options.Map(),
	}
	return l, hadLease, nil
}

// Timers returns the renewal schedule of the lease.
func (l *Lease) Timers() Timers {
	return Timers{Obtained: l.Obtained, Lease: l.Duration, T1: l.T1, T2: l.T2}
}

// Expiry returns the time the lease runs out.
func (l *Lease) Expiry() time.Time {
	return l.Obtained.Add(l.Duration)
}

// IsExpired returns true if the lease has expired at now.
func (l *Lease) IsExpired(now time.Time) bool {
	return !now.Before(l.Expiry())
}

// Remaining returns the time left on the lease at now.
func (l *Lease) Remaining(now time.Time) time.Duration {
	r := l.Expiry().Sub(now)
	if r < 0 {
		return 0
	}
	return r
}

// IPNet returns the leased address with its prefix. A missing mask falls back
// to the classful default for the address.
func (l *Lease) IPNet() *net.IPNet {
	mask := l.SubnetMask
	if mask == nil {
		mask = l.Address.DefaultMask()
	}
	return &net.IPNet{IP: l.Address, Mask: mask}
}

// String returns a log-friendly summary.
func (l *Lease) String() string {
	return fmt.Sprintf("%s from %s for %s", l.IPNet(), l.ServerID, l.Duration)
}

type leaseJSON struct {
	Address    string           `json:"address"`
	ServerID   string           `json:"server_id,omitempty"`
	SubnetMask string           `json:"subnet_mask,omitempty"`
	Router     string           `json:"router,omitempty"`
	DNS        []string         `json:"dns,omitempty"`
	Duration   int64            `json:"duration_seconds"`
	T1         int64            `json:"t1_seconds"`
	T2         int64            `json:"t2_seconds"`
	Obtained   time.Time        `json:"obtained"`
	Interface  string           `json:"interface"`
	MAC        string           `json:"mac"`
	Options    map[uint8][]byte `json:"options,omitempty"`
}

// MarshalJSON implements custom JSON marshalling.
func (l *Lease) MarshalJSON() ([]byte, error) {
	aux := leaseJSON{
		Address:   l.Address.String(),
		Duration:  int64(l.Duration / time.Second),
		T1:        int64(l.T1 / time.Second),
		T2:        int64(l.T2 / time.Second),
		Obtained:  l.Obtained,
		Interface: l.Interface,
		MAC:       l.MAC.String(),
	}
	if l.ServerID != nil {
		aux.ServerID = l.ServerID.String()
	}
	if l.SubnetMask != nil {
		aux.SubnetMask = net.IP(l.SubnetMask).String()
	}
	if l.Router != nil {
		aux.Router = l.Router.String()
	}
	for _, ip := range l.DNS {
		aux.DNS = append(aux.DNS, ip.String())
	}
	if len(l.Options) > 0 {
		aux.Options = make(map[uint8][]byte, len(l.Options))
		for code, v := range l.Options {
			aux.Options[uint8(code)] = v
		}
	}
	return json.Marshal(aux)
}

// UnmarshalJSON implements custom JSON unmarshalling.
func (l *Lease) UnmarshalJSON(data []byte) error {
	var aux leaseJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	addr := net.ParseIP(aux.Address).To4()
	if addr == nil {
		return fmt.Errorf("invalid lease address %q", aux.Address)
	}
	mac, err := net.ParseMAC(aux.MAC)
	if err != nil {
		return err
	}

	*l = Lease{
		Address:   addr,
		ServerID:  parseIPv4(aux.ServerID),
		Router:    parseIPv4(aux.Router),
		Duration:  time.Duration(aux.Duration) * time.Second,
		T1:        time.Duration(aux.T1) * time.Second,
		T2:        time.Duration(aux.T2) * time.Second,
		Obtained:  aux.Obtained,
		Interface: aux.Interface,
		MAC:       mac,
	}
	for _, s := range aux.DNS {
		if ip := parseIPv4(s); ip != nil {
			l.DNS = append(l.DNS, ip)
		}
	}
	if m := parseIPv4(aux.SubnetMask); m != nil {
		l.SubnetMask = net.IPMask(m)
	}
	if len(aux.Options) > 0 {
		l.Options = make(map[dhcpv4.OptionCode][]byte, len(aux.Options))
		for code, v := range aux.Options {
			l.Options[dhcpv4.OptionCode(code)] = v
		}
	}
	return nil
}

func parseIPv4(s string) net.IP {
	if s == "" {
		return nil
	}
	return net.ParseIP(s).To4()
}

// Clone returns a deep copy of the lease.
func (l *Lease) Clone() *Lease {
	c := *l
	c.Address = cloneBytes(l.Address)
	c.ServerID = cloneBytes(l.ServerID)
	c.SubnetMask = cloneBytes(l.SubnetMask)
	c.Router = cloneBytes(l.Router)
	if l.DNS != nil {
		c.DNS = make([]net.IP, len(l.DNS))
		for i, ip := range l.DNS {
			c.DNS[i] = cloneBytes(ip)
		}
	}
	c.MAC = cloneBytes(l.MAC)
	if l.Options != nil {
		c.Options = make(map[dhcpv4.OptionCode][]byte, len(l.Options))
		for k, v := range l.Options {
			c.Options[k] = append([]byte(nil), v...)
		}
	}
	return &c
}

func cloneBytes[T ~[]byte](b T) T {
	if b == nil {
		return nil
	}
	return append(T(nil), b...)
}
