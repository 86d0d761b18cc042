package dhcpv4

import (
	"encoding/binary"
	"testing"
)

func TestMessageTypeString(t *testing.T) {
	tests := []struct {
		mt   MessageType
		want string
	}{
		{MessageTypeDiscover, "DHCPDISCOVER"},
		{MessageTypeOffer, "DHCPOFFER"},
		{MessageTypeRequest, "DHCPREQUEST"},
		{MessageTypeDecline, "DHCPDECLINE"},
		{MessageTypeAck, "DHCPACK"},
		{MessageTypeNak, "DHCPNAK"},
		{MessageTypeRelease, "DHCPRELEASE"},
		{MessageTypeInform, "DHCPINFORM"},
		{MessageType(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.mt.String(); got != tt.want {
			t.Errorf("MessageType(%d).String() = %q, want %q", tt.mt, got, tt.want)
		}
	}
}

func TestMessageTypeValid(t *testing.T) {
	for mt := MessageType(0); mt < 12; mt++ {
		want := mt >= 1 && mt <= 8
		if got := mt.Valid(); got != want {
			t.Errorf("MessageType(%d).Valid() = %v, want %v", mt, got, want)
		}
	}
}

func TestOptionCodeValues(t *testing.T) {
	// Verify key option codes match RFC 2132 values
	tests := []struct {
		code OptionCode
		want byte
	}{
		{OptionPad, 0},
		{OptionSubnetMask, 1},
		{OptionRouter, 3},
		{OptionDomainNameServer, 6},
		{OptionHostname, 12},
		{OptionRequestedIP, 50},
		{OptionIPLeaseTime, 51},
		{OptionDHCPMessageType, 53},
		{OptionServerIdentifier, 54},
		{OptionParameterRequestList, 55},
		{OptionRenewalTime, 58},
		{OptionRebindingTime, 59},
		{OptionClientIdentifier, 61},
		{OptionClientFQDN, 81},
		{OptionEnd, 255},
	}
	for _, tt := range tests {
		if byte(tt.code) != tt.want {
			t.Errorf("OptionCode %d: got %d, want %d", tt.code, byte(tt.code), tt.want)
		}
	}
}

func TestMagicCookieConsistent(t *testing.T) {
	if got := binary.BigEndian.Uint32(MagicCookie); got != MagicCookieValue {
		t.Errorf("MagicCookie = 0x%08x, want 0x%08x", got, MagicCookieValue)
	}
	if OptionsOffset != HeaderSize+len(MagicCookie) {
		t.Errorf("OptionsOffset = %d, want %d", OptionsOffset, HeaderSize+len(MagicCookie))
	}
}

func TestPorts(t *testing.T) {
	if ServerPort != 67 || ClientPort != 68 {
		t.Errorf("ports = %d/%d, want 67/68", ServerPort, ClientPort)
	}
}
