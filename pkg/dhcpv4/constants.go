// Package dhcpv4 provides constants and encoding helpers for DHCPv4 packets.
package dhcpv4

import "net"

// DHCP Message Types (RFC 2131 §9.6)
type MessageType byte

const (
	MessageTypeDiscover MessageType = 1 // DHCPDISCOVER
	MessageTypeOffer    MessageType = 2 // DHCPOFFER
	MessageTypeRequest  MessageType = 3 // DHCPREQUEST
	MessageTypeDecline  MessageType = 4 // DHCPDECLINE
	MessageTypeAck      MessageType = 5 // DHCPACK
	MessageTypeNak      MessageType = 6 // DHCPNAK
	MessageTypeRelease  MessageType = 7 // DHCPRELEASE
	MessageTypeInform   MessageType = 8 // DHCPINFORM
)

func (m MessageType) String() string {
	switch m {
	case MessageTypeDiscover:
		return "DHCPDISCOVER"
	case MessageTypeOffer:
		return "DHCPOFFER"
	case MessageTypeRequest:
		return "DHCPREQUEST"
	case MessageTypeDecline:
		return "DHCPDECLINE"
	case MessageTypeAck:
		return "DHCPACK"
	case MessageTypeNak:
		return "DHCPNAK"
	case MessageTypeRelease:
		return "DHCPRELEASE"
	case MessageTypeInform:
		return "DHCPINFORM"
	default:
		return "UNKNOWN"
	}
}

// Valid reports whether m is one of the eight RFC 2132 §9.6 message types.
func (m MessageType) Valid() bool {
	return m >= MessageTypeDiscover && m <= MessageTypeInform
}

// DHCP Op Codes (RFC 2131 §2)
type OpCode byte

const (
	OpCodeBootRequest OpCode = 1 // BOOTREQUEST
	OpCodeBootReply   OpCode = 2 // BOOTREPLY
)

// Hardware Types (RFC 1700)
type HardwareType byte

const (
	HardwareTypeEthernet HardwareType = 1
)

// DHCP Option Codes (RFC 2132 and extensions). Only the codes the client
// builds or reads are named; every other code is carried opaquely.
type OptionCode byte

const (
	OptionPad                  OptionCode = 0
	OptionSubnetMask           OptionCode = 1
	OptionTimeOffset           OptionCode = 2
	OptionRouter               OptionCode = 3
	OptionDomainNameServer     OptionCode = 6
	OptionHostname             OptionCode = 12
	OptionDomainName           OptionCode = 15
	OptionInterfaceMTU         OptionCode = 26
	OptionBroadcastAddress     OptionCode = 28
	OptionStaticRoute          OptionCode = 33
	OptionNTPServers           OptionCode = 42
	OptionRequestedIP          OptionCode = 50
	OptionIPLeaseTime          OptionCode = 51
	OptionOverload             OptionCode = 52
	OptionDHCPMessageType      OptionCode = 53
	OptionServerIdentifier     OptionCode = 54
	OptionParameterRequestList OptionCode = 55
	OptionMessage              OptionCode = 56
	OptionMaxDHCPMessageSize   OptionCode = 57
	OptionRenewalTime          OptionCode = 58
	OptionRebindingTime        OptionCode = 59
	OptionVendorClassID        OptionCode = 60
	OptionClientIdentifier     OptionCode = 61
	OptionClientFQDN           OptionCode = 81
	OptionClasslessStaticRoute OptionCode = 121
	OptionEnd                  OptionCode = 255
)

// DefaultRequestList is the parameter request list (option 55) sent when the
// configuration does not name one.
var DefaultRequestList = []OptionCode{
	OptionSubnetMask,
	OptionRouter,
	OptionDomainNameServer,
	OptionDomainName,
	OptionInterfaceMTU,
	OptionBroadcastAddress,
	OptionIPLeaseTime,
	OptionServerIdentifier,
	OptionRenewalTime,
	OptionRebindingTime,
	OptionClasslessStaticRoute,
}

// DHCP Packet Size Limits
const (
	HeaderSize        = 236  // Fixed BOOTP header, up to and including the file field
	OptionsOffset     = 240  // Header plus magic cookie
	MinPacketSize     = 300  // Minimum BOOTP message size (RFC 951)
	MaxPacketSize     = 1500 // Maximum DHCP packet size (Ethernet MTU)
	DefaultPacketSize = 576  // Default max packet size (RFC 2131 §2)
)

// DHCP Ports
const (
	ServerPort = 67
	ClientPort = 68
)

// FlagBroadcast is the BOOTP broadcast flag (RFC 2131 §2, leftmost bit of flags).
const FlagBroadcast uint16 = 0x8000

// MagicCookieValue is the magic cookie as a big-endian 32-bit integer (RFC 2131 §3).
const MagicCookieValue uint32 = 0x63825363

// DHCP Magic Cookie (RFC 2131 §3)
var MagicCookie = []byte{99, 130, 83, 99}

// Broadcast MAC and IP
var (
	BroadcastMAC = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
	BroadcastIP  = net.IPv4(255, 255, 255, 255)
	ZeroIP       = net.IPv4(0, 0, 0, 0)
)

// InfiniteLease is the lease time value meaning "never expires" (RFC 2132 §9.2).
const InfiniteLease uint32 = 0xffffffff
