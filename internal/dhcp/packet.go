// Package dhcp implements the DHCPv4 wire codec, the ordered option set, and
// the client message builders.
package dhcp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/athena-dhcpd/athena-dhclient/pkg/dhcpv4"
)

// Decode errors. Callers match them with errors.Is; the returned errors wrap
// them with offsets and lengths.
var (
	ErrTruncated       = errors.New("dhcp: packet truncated")
	ErrBadMagicCookie  = errors.New("dhcp: bad magic cookie")
	ErrTruncatedOption = errors.New("dhcp: truncated option")
)

// Encode errors, returned only when the caller built an invalid Message.
var (
	ErrHardwareAddrLength = errors.New("dhcp: hardware address length does not match hlen")
	ErrFieldTooLong       = errors.New("dhcp: fixed-width field too long")
	ErrFieldContainsNUL   = errors.New("dhcp: fixed-width field contains NUL")
	ErrInvalidOption      = errors.New("dhcp: invalid option")
)

const (
	chaddrLen = 16
	snameLen  = 64
	fileLen   = 128
)

// Message is a decoded DHCPv4 message (RFC 2131 §2).
type Message struct {
	Op      dhcpv4.OpCode       // 1=BOOTREQUEST, 2=BOOTREPLY
	HType   dhcpv4.HardwareType // Hardware address type (1=Ethernet)
	HLen    byte                // Hardware address length (6 for Ethernet)
	Hops    byte
	XID     uint32
	Secs    uint16 // Seconds since the client began the transaction
	Flags   uint16 // Bit 15 = broadcast
	CIAddr  net.IP
	YIAddr  net.IP
	SIAddr  net.IP
	GIAddr  net.IP
	CHAddr  net.HardwareAddr
	SName   string
	File    string
	Options Options
}

// Decode parses a raw DHCPv4 message. It never panics: every read is bounds
// checked against data.
func Decode(data []byte) (*Message, error) {
	if len(data) < dhcpv4.OptionsOffset {
		return nil, fmt.Errorf("%w: %d bytes (minimum %d)", ErrTruncated, len(data), dhcpv4.OptionsOffset)
	}
	if binary.BigEndian.Uint32(data[236:240]) != dhcpv4.MagicCookieValue {
		return nil, fmt.Errorf("%w: %x", ErrBadMagicCookie, data[236:240])
	}

	m := &Message{
		Op:     dhcpv4.OpCode(data[0]),
		HType:  dhcpv4.HardwareType(data[1]),
		HLen:   data[2],
		Hops:   data[3],
		XID:    binary.BigEndian.Uint32(data[4:8]),
		Secs:   binary.BigEndian.Uint16(data[8:10]),
		Flags:  binary.BigEndian.Uint16(data[10:12]),
		CIAddr: dhcpv4.BytesToIP(data[12:16]),
		YIAddr: dhcpv4.BytesToIP(data[16:20]),
		SIAddr: dhcpv4.BytesToIP(data[20:24]),
		GIAddr: dhcpv4.BytesToIP(data[24:28]),
	}

	// Only HLen bytes of the 16-byte chaddr field are significant.
	hlen := int(m.HLen)
	if hlen > chaddrLen {
		hlen = chaddrLen
	}
	m.CHAddr = make(net.HardwareAddr, hlen)
	copy(m.CHAddr, data[28:28+hlen])

	m.SName = cString(data[44:108])
	m.File = cString(data[108:236])

	opts, err := DecodeOptions(data[dhcpv4.OptionsOffset:])
	if err != nil {
		return nil, err
	}
	m.Options = opts
	return m, nil
}

// checkCString validates a string destined for a NUL-terminated field of
// size n.
func checkCString(name, v string, n int) error {
	if len(v) > n {
		return fmt.Errorf("%w: %s %d bytes (maximum %d)", ErrFieldTooLong, name, len(v), n)
	}
	if i := strings.IndexByte(v, 0); i >= 0 {
		return fmt.Errorf("%w: %s has NUL at offset %d", ErrFieldContainsNUL, name, i)
	}
	return nil
}

// cString returns the bytes of b up to the first NUL.
func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}

// Encode serializes the message: 236-byte header, magic cookie, options in
// their given order, then one end marker. No padding is added beyond the pad
// options present in m.Options. Messages that would not decode back to
// themselves are rejected.
func (m *Message) Encode() ([]byte, error) {
	if len(m.CHAddr) != min(int(m.HLen), chaddrLen) {
		return nil, fmt.Errorf("%w: chaddr %d bytes, hlen %d", ErrHardwareAddrLength, len(m.CHAddr), m.HLen)
	}
	if err := checkCString("sname", m.SName, snameLen); err != nil {
		return nil, err
	}
	if err := checkCString("file", m.File, fileLen); err != nil {
		return nil, err
	}

	optBytes, err := m.Options.Encode()
	if err != nil {
		return nil, err
	}

	buf := make([]byte, dhcpv4.OptionsOffset+len(optBytes))
	buf[0] = byte(m.Op)
	buf[1] = byte(m.HType)
	buf[2] = m.HLen
	buf[3] = m.Hops
	binary.BigEndian.PutUint32(buf[4:8], m.XID)
	binary.BigEndian.PutUint16(buf[8:10], m.Secs)
	binary.BigEndian.PutUint16(buf[10:12], m.Flags)
	copy(buf[12:16], dhcpv4.IPToBytes(m.CIAddr))
	copy(buf[16:20], dhcpv4.IPToBytes(m.YIAddr))
	copy(buf[20:24], dhcpv4.IPToBytes(m.SIAddr))
	copy(buf[24:28], dhcpv4.IPToBytes(m.GIAddr))
	copy(buf[28:44], m.CHAddr)
	copy(buf[44:108], m.SName)
	copy(buf[108:236], m.File)
	copy(buf[236:240], dhcpv4.MagicCookie)
	copy(buf[240:], optBytes)

	return buf, nil
}

// Equal reports whether two messages encode the same header fields and
// option sequence. Addresses compare by value, so 4- and 16-byte forms of the
// same IPv4 address are equal.
func (m *Message) Equal(o *Message) bool {
	if m == nil || o == nil {
		return m == o
	}
	return m.Op == o.Op &&
		m.HType == o.HType &&
		m.HLen == o.HLen &&
		m.Hops == o.Hops &&
		m.XID == o.XID &&
		m.Secs == o.Secs &&
		m.Flags == o.Flags &&
		ipEqual(m.CIAddr, o.CIAddr) &&
		ipEqual(m.YIAddr, o.YIAddr) &&
		ipEqual(m.SIAddr, o.SIAddr) &&
		ipEqual(m.GIAddr, o.GIAddr) &&
		bytes.Equal(m.CHAddr, o.CHAddr) &&
		m.SName == o.SName &&
		m.File == o.File &&
		m.Options.Equal(o.Options)
}

func ipEqual(a, b net.IP) bool {
	return bytes.Equal(dhcpv4.IPToBytes(a), dhcpv4.IPToBytes(b))
}

// MessageType returns the DHCP message type from option 53, or 0 if absent.
func (m *Message) MessageType() dhcpv4.MessageType {
	return m.Options.MessageType()
}

// ServerIdentifier returns option 54.
func (m *Message) ServerIdentifier() net.IP {
	return m.Options.IP(dhcpv4.OptionServerIdentifier)
}

// LeaseTime returns option 51 and whether it was present.
func (m *Message) LeaseTime() (time.Duration, bool) {
	return m.Options.Seconds(dhcpv4.OptionIPLeaseTime)
}

// RenewalTime returns option 58 (T1) and whether it was present.
func (m *Message) RenewalTime() (time.Duration, bool) {
	return m.Options.Seconds(dhcpv4.OptionRenewalTime)
}

// RebindingTime returns option 59 (T2) and whether it was present.
func (m *Message) RebindingTime() (time.Duration, bool) {
	return m.Options.Seconds(dhcpv4.OptionRebindingTime)
}

// SubnetMask returns option 1, or nil if absent or malformed.
func (m *Message) SubnetMask() net.IPMask {
	return m.Options.IPMask(dhcpv4.OptionSubnetMask)
}

// Router returns the first router from option 3.
func (m *Message) Router() net.IP {
	routers := m.Options.IPList(dhcpv4.OptionRouter)
	if len(routers) == 0 {
		return nil
	}
	return routers[0]
}

// DNSServers returns option 6.
func (m *Message) DNSServers() []net.IP {
	return m.Options.IPList(dhcpv4.OptionDomainNameServer)
}

// IsBroadcast returns true if the broadcast flag is set.
func (m *Message) IsBroadcast() bool {
	return m.Flags&dhcpv4.FlagBroadcast != 0
}

// String returns a short summary for logs.
func (m *Message) String() string {
	return fmt.Sprintf("%s xid=0x%08x yiaddr=%s chaddr=%s", m.MessageType(), m.XID, m.YIAddr, m.CHAddr)
}
