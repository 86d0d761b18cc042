package dhcpv4

import (
	"encoding/binary"
	"fmt"
	"math/bits"
	"net"
)

// IPToBytes converts a net.IP to a 4-byte slice. Non-IPv4 input yields 0.0.0.0.
func IPToBytes(ip net.IP) []byte {
	ip4 := ip.To4()
	if ip4 == nil {
		return []byte{0, 0, 0, 0}
	}
	b := make([]byte, 4)
	copy(b, ip4)
	return b
}

// BytesToIP converts a 4-byte slice to a 4-byte net.IP.
func BytesToIP(b []byte) net.IP {
	if len(b) != 4 {
		return nil
	}
	ip := make(net.IP, 4)
	copy(ip, b)
	return ip
}

// BytesToIPList converts bytes to a slice of net.IP (N*4).
func BytesToIPList(b []byte) ([]net.IP, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid IP list length %d: must be multiple of 4", len(b))
	}
	ips := make([]net.IP, 0, len(b)/4)
	for i := 0; i < len(b); i += 4 {
		ips = append(ips, BytesToIP(b[i:i+4]))
	}
	return ips, nil
}

// Uint16ToBytes converts a uint16 to 2 bytes (big-endian).
func Uint16ToBytes(v uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return b
}

// Uint32ToBytes converts a uint32 to 4 bytes (big-endian).
func Uint32ToBytes(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

// BytesToUint32 converts 4 bytes to uint32 (big-endian).
func BytesToUint32(b []byte) (uint32, error) {
	if len(b) != 4 {
		return 0, fmt.Errorf("invalid uint32 length %d: expected 4", len(b))
	}
	return binary.BigEndian.Uint32(b), nil
}

// IsZeroIP reports whether ip is nil, unspecified, or not IPv4.
func IsZeroIP(ip net.IP) bool {
	ip4 := ip.To4()
	return ip4 == nil || ip4.Equal(net.IPv4zero)
}

// MaskFromBytes converts option 1 data to a net.IPMask. Non-contiguous masks
// are rejected (RFC 950 requires contiguous ones).
func MaskFromBytes(b []byte) (net.IPMask, error) {
	if len(b) != 4 {
		return nil, fmt.Errorf("invalid subnet mask length %d: expected 4", len(b))
	}
	v := binary.BigEndian.Uint32(b)
	ones := bits.LeadingZeros32(^v)
	if bits.TrailingZeros32(v) != 32-ones && v != 0 {
		return nil, fmt.Errorf("non-contiguous subnet mask %s", net.IP(b))
	}
	return net.CIDRMask(ones, 32), nil
}
