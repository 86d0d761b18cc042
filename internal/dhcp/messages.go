package dhcp

import (
	"net"

	"github.com/athena-dhcpd/athena-dhclient/pkg/dhcpv4"
)

// ClientIdentity is what the client says about itself in every message.
type ClientIdentity struct {
	HardwareAddr   net.HardwareAddr
	ClientID       []byte // Option 61; empty means type 1 + hardware address
	Hostname       string // Option 12
	FQDN           string // Option 81
	VendorClass    string // Option 60
	RequestList    []dhcpv4.OptionCode
	MaxMessageSize uint16 // Option 57; 0 omits it
	Broadcast      bool   // Ask servers to broadcast replies until bound
}

// clientID returns option 61. RFC 2132 §9.14: type byte followed by the
// identifier; hardware type 1 plus MAC is the conventional default.
func (id ClientIdentity) clientID() []byte {
	if len(id.ClientID) > 0 {
		return id.ClientID
	}
	b := make([]byte, 0, 1+len(id.HardwareAddr))
	b = append(b, byte(dhcpv4.HardwareTypeEthernet))
	return append(b, id.HardwareAddr...)
}

func (id ClientIdentity) requestList() []byte {
	list := id.RequestList
	if len(list) == 0 {
		list = dhcpv4.DefaultRequestList
	}
	b := make([]byte, len(list))
	for i, c := range list {
		b[i] = byte(c)
	}
	return b
}

// RequestKind selects the RFC 2131 Table 5 column a REQUEST is built for.
type RequestKind int

const (
	RequestSelecting RequestKind = iota
	RequestInitReboot
	RequestRenewing
	RequestRebinding
)

func (k RequestKind) String() string {
	switch k {
	case RequestSelecting:
		return "selecting"
	case RequestInitReboot:
		return "init-reboot"
	case RequestRenewing:
		return "renewing"
	case RequestRebinding:
		return "rebinding"
	default:
		return "unknown"
	}
}

// RequestParams carries the addresses a REQUEST needs. Which ones are used
// depends on Kind.
type RequestParams struct {
	Kind        RequestKind
	RequestedIP net.IP // selecting, init-reboot
	ServerID    net.IP // selecting
	ClientIP    net.IP // renewing, rebinding
}

func newRequestMessage(id ClientIdentity, xid uint32, secs uint16) *Message {
	chaddr := make(net.HardwareAddr, len(id.HardwareAddr))
	copy(chaddr, id.HardwareAddr)
	return &Message{
		Op:     dhcpv4.OpCodeBootRequest,
		HType:  dhcpv4.HardwareTypeEthernet,
		HLen:   byte(len(chaddr)),
		XID:    xid,
		Secs:   secs,
		CIAddr: net.IPv4zero.To4(),
		YIAddr: net.IPv4zero.To4(),
		SIAddr: net.IPv4zero.To4(),
		GIAddr: net.IPv4zero.To4(),
		CHAddr: chaddr,
	}
}

// addIdentity appends the options describing the client to a DISCOVER or
// REQUEST.
func (m *Message) addIdentity(id ClientIdentity) {
	if id.Hostname != "" {
		m.Options.SetString(dhcpv4.OptionHostname, id.Hostname)
	}
	if id.FQDN != "" {
		if v, err := EncodeClientFQDN(id.FQDN); err == nil {
			m.Options.Set(dhcpv4.OptionClientFQDN, v)
		}
	}
	if id.VendorClass != "" {
		m.Options.SetString(dhcpv4.OptionVendorClassID, id.VendorClass)
	}
	if id.MaxMessageSize >= dhcpv4.DefaultPacketSize {
		m.Options.SetUint16(dhcpv4.OptionMaxDHCPMessageSize, id.MaxMessageSize)
	}
	m.Options.Set(dhcpv4.OptionParameterRequestList, id.requestList())
}

// padToMinimum appends pad options so the encoded message reaches the
// 300-byte BOOTP minimum that some relays and servers insist on.
func (m *Message) padToMinimum() {
	for dhcpv4.OptionsOffset+m.Options.EncodedLen() < dhcpv4.MinPacketSize {
		m.Options = append(m.Options, Option{Code: dhcpv4.OptionPad})
	}
}

// NewDiscover builds a DHCPDISCOVER. requested is the optional address hint
// (option 50) from a previous lease.
func NewDiscover(id ClientIdentity, xid uint32, secs uint16, requested net.IP) *Message {
	m := newRequestMessage(id, xid, secs)
	if id.Broadcast {
		m.Flags = dhcpv4.FlagBroadcast
	}
	m.Options.Set(dhcpv4.OptionDHCPMessageType, []byte{byte(dhcpv4.MessageTypeDiscover)})
	m.Options.Set(dhcpv4.OptionClientIdentifier, id.clientID())
	if !dhcpv4.IsZeroIP(requested) {
		m.Options.SetIP(dhcpv4.OptionRequestedIP, requested)
	}
	m.addIdentity(id)
	m.padToMinimum()
	return m
}

// NewRequest builds a DHCPREQUEST following RFC 2131 Table 5:
//
//	selecting:   ciaddr 0,  option 50 MUST, option 54 MUST
//	init-reboot: ciaddr 0,  option 50 MUST, option 54 MUST NOT
//	renewing:    ciaddr IP, option 50 MUST NOT, option 54 MUST NOT
//	rebinding:   ciaddr IP, option 50 MUST NOT, option 54 MUST NOT
func NewRequest(id ClientIdentity, xid uint32, secs uint16, p RequestParams) *Message {
	m := newRequestMessage(id, xid, secs)
	m.Options.Set(dhcpv4.OptionDHCPMessageType, []byte{byte(dhcpv4.MessageTypeRequest)})
	m.Options.Set(dhcpv4.OptionClientIdentifier, id.clientID())

	switch p.Kind {
	case RequestSelecting:
		m.Options.SetIP(dhcpv4.OptionRequestedIP, p.RequestedIP)
		m.Options.SetIP(dhcpv4.OptionServerIdentifier, p.ServerID)
	case RequestInitReboot:
		m.Options.SetIP(dhcpv4.OptionRequestedIP, p.RequestedIP)
	case RequestRenewing, RequestRebinding:
		m.CIAddr = dhcpv4.IPToBytes(p.ClientIP)
	}
	if id.Broadcast && (p.Kind == RequestSelecting || p.Kind == RequestInitReboot) {
		m.Flags = dhcpv4.FlagBroadcast
	}

	m.addIdentity(id)
	m.padToMinimum()
	return m
}

// NewDecline builds a DHCPDECLINE for an address found in use. RFC 2131
// Table 5: ciaddr 0, options 50 and 54 MUST, no parameter request list.
func NewDecline(id ClientIdentity, xid uint32, requested, serverID net.IP, reason string) *Message {
	m := newRequestMessage(id, xid, 0)
	m.Options.Set(dhcpv4.OptionDHCPMessageType, []byte{byte(dhcpv4.MessageTypeDecline)})
	m.Options.Set(dhcpv4.OptionClientIdentifier, id.clientID())
	m.Options.SetIP(dhcpv4.OptionRequestedIP, requested)
	m.Options.SetIP(dhcpv4.OptionServerIdentifier, serverID)
	if reason != "" {
		m.Options.SetString(dhcpv4.OptionMessage, truncate(reason, 255))
	}
	m.padToMinimum()
	return m
}

// NewRelease builds a DHCPRELEASE. RFC 2131 Table 5: ciaddr is the leased
// address, option 54 MUST, option 50 MUST NOT.
func NewRelease(id ClientIdentity, xid uint32, clientIP, serverID net.IP) *Message {
	m := newRequestMessage(id, xid, 0)
	m.CIAddr = dhcpv4.IPToBytes(clientIP)
	m.Options.Set(dhcpv4.OptionDHCPMessageType, []byte{byte(dhcpv4.MessageTypeRelease)})
	m.Options.Set(dhcpv4.OptionClientIdentifier, id.clientID())
	m.Options.SetIP(dhcpv4.OptionServerIdentifier, serverID)
	m.padToMinimum()
	return m
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
