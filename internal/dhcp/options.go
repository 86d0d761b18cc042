package dhcp

import (
	"bytes"
	"fmt"
	"net"
	"time"

	"github.com/athena-dhcpd/athena-dhclient/pkg/dhcpv4"
)

// Option is a single TLV. A pad option (code 0) has no value and encodes as
// one byte.
type Option struct {
	Code  dhcpv4.OptionCode
	Value []byte
}

// Options is the ordered option sequence of a message. Order is preserved
// on decode and encode, including pad options between TLVs.
type Options []Option

// DecodeOptions parses the options section of a DHCP packet.
// RFC 2132: options are TLV (type-length-value) encoded. Parsing stops at
// the end option or when the buffer is exhausted.
func DecodeOptions(data []byte) (Options, error) {
	var opts Options
	i := 0
	for i < len(data) {
		code := dhcpv4.OptionCode(data[i])
		i++

		// Pad option (RFC 2132 §3.1)
		if code == dhcpv4.OptionPad {
			opts = append(opts, Option{Code: dhcpv4.OptionPad})
			continue
		}

		// End option (RFC 2132 §3.2)
		if code == dhcpv4.OptionEnd {
			break
		}

		if i >= len(data) {
			return nil, fmt.Errorf("%w: option %d at offset %d has no length byte", ErrTruncatedOption, code, i-1)
		}

		length := int(data[i])
		i++

		if i+length > len(data) {
			return nil, fmt.Errorf("%w: option %d needs %d bytes, have %d", ErrTruncatedOption, code, length, len(data)-i)
		}

		value := make([]byte, length)
		copy(value, data[i:i+length])
		opts = append(opts, Option{Code: code, Value: value})
		i += length
	}

	return opts, nil
}

// Encode serializes options in order followed by a single end marker.
func (opts Options) Encode() ([]byte, error) {
	size := 1
	for _, o := range opts {
		size += 2 + len(o.Value)
	}

	buf := make([]byte, 0, size)
	for _, o := range opts {
		switch {
		case o.Code == dhcpv4.OptionEnd:
			return nil, fmt.Errorf("%w: explicit end option", ErrInvalidOption)
		case o.Code == dhcpv4.OptionPad:
			if len(o.Value) != 0 {
				return nil, fmt.Errorf("%w: pad option with %d-byte value", ErrInvalidOption, len(o.Value))
			}
			buf = append(buf, byte(dhcpv4.OptionPad))
			continue
		case len(o.Value) > 255:
			return nil, fmt.Errorf("%w: option %d value is %d bytes (maximum 255)", ErrInvalidOption, o.Code, len(o.Value))
		}
		buf = append(buf, byte(o.Code), byte(len(o.Value)))
		buf = append(buf, o.Value...)
	}

	buf = append(buf, byte(dhcpv4.OptionEnd))
	return buf, nil
}

// EncodedLen returns the size of the encoded options including the end marker.
func (opts Options) EncodedLen() int {
	n := 1
	for _, o := range opts {
		if o.Code == dhcpv4.OptionPad {
			n++
			continue
		}
		n += 2 + len(o.Value)
	}
	return n
}

// Len returns the number of entries, pads included.
func (opts Options) Len() int {
	return len(opts)
}

// Get returns the value of the first option with the given code.
func (opts Options) Get(code dhcpv4.OptionCode) ([]byte, bool) {
	for _, o := range opts {
		if o.Code == code {
			return o.Value, true
		}
	}
	return nil, false
}

// Has returns true if the option is present.
func (opts Options) Has(code dhcpv4.OptionCode) bool {
	_, ok := opts.Get(code)
	return ok
}

// Set replaces the value of the first option with the given code, or appends
// the option if absent.
func (opts *Options) Set(code dhcpv4.OptionCode, value []byte) {
	for i := range *opts {
		if (*opts)[i].Code == code {
			(*opts)[i].Value = value
			return
		}
	}
	opts.Add(code, value)
}

// Add appends an option without checking for duplicates.
func (opts *Options) Add(code dhcpv4.OptionCode, value []byte) {
	*opts = append(*opts, Option{Code: code, Value: value})
}

// Delete removes every option with the given code.
func (opts *Options) Delete(code dhcpv4.OptionCode) {
	out := (*opts)[:0]
	for _, o := range *opts {
		if o.Code != code {
			out = append(out, o)
		}
	}
	*opts = out
}

// Clone returns a deep copy.
func (opts Options) Clone() Options {
	if opts == nil {
		return nil
	}
	out := make(Options, len(opts))
	for i, o := range opts {
		out[i] = Option{Code: o.Code}
		if o.Value != nil {
			out[i].Value = append([]byte(nil), o.Value...)
		}
	}
	return out
}

// Equal compares two option sequences entry by entry.
func (opts Options) Equal(other Options) bool {
	if len(opts) != len(other) {
		return false
	}
	for i := range opts {
		if opts[i].Code != other[i].Code || !bytes.Equal(opts[i].Value, other[i].Value) {
			return false
		}
	}
	return true
}

// Map returns the last value per code, skipping pads. Used for exporting
// opaque options.
func (opts Options) Map() map[dhcpv4.OptionCode][]byte {
	m := make(map[dhcpv4.OptionCode][]byte, len(opts))
	for _, o := range opts {
		if o.Code == dhcpv4.OptionPad {
			continue
		}
		m[o.Code] = append([]byte(nil), o.Value...)
	}
	return m
}

// MessageType returns the DHCP message type from option 53, or 0 if absent
// or malformed.
func (opts Options) MessageType() dhcpv4.MessageType {
	v, ok := opts.Get(dhcpv4.OptionDHCPMessageType)
	if !ok || len(v) != 1 {
		return 0
	}
	return dhcpv4.MessageType(v[0])
}

// IP returns an IPv4 address option, or nil if absent or not 4 bytes.
func (opts Options) IP(code dhcpv4.OptionCode) net.IP {
	v, ok := opts.Get(code)
	if !ok {
		return nil
	}
	return dhcpv4.BytesToIP(v)
}

// IPMask returns a subnet mask option, or nil if absent or not contiguous.
func (opts Options) IPMask(code dhcpv4.OptionCode) net.IPMask {
	v, ok := opts.Get(code)
	if !ok {
		return nil
	}
	mask, err := dhcpv4.MaskFromBytes(v)
	if err != nil {
		return nil
	}
	return mask
}

// Uint32 returns a 4-byte big-endian option value.
func (opts Options) Uint32(code dhcpv4.OptionCode) (uint32, bool) {
	v, ok := opts.Get(code)
	if !ok {
		return 0, false
	}
	n, err := dhcpv4.BytesToUint32(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// IPList returns a list-of-addresses option such as routers or DNS servers,
// or nil if absent or not a multiple of 4 bytes.
func (opts Options) IPList(code dhcpv4.OptionCode) []net.IP {
	v, ok := opts.Get(code)
	if !ok {
		return nil
	}
	ips, err := dhcpv4.BytesToIPList(v)
	if err != nil {
		return nil
	}
	return ips
}

// Seconds returns a 4-byte seconds option as a duration. The infinite value
// 0xffffffff is returned as-is in seconds; callers clamp it.
func (opts Options) Seconds(code dhcpv4.OptionCode) (time.Duration, bool) {
	v, ok := opts.Uint32(code)
	if !ok {
		return 0, false
	}
	return time.Duration(v) * time.Second, true
}

// SetIP sets an IPv4 address option.
func (opts *Options) SetIP(code dhcpv4.OptionCode, ip net.IP) {
	opts.Set(code, dhcpv4.IPToBytes(ip))
}

// SetUint32 sets a 4-byte big-endian option.
func (opts *Options) SetUint32(code dhcpv4.OptionCode, v uint32) {
	opts.Set(code, dhcpv4.Uint32ToBytes(v))
}

// SetUint16 sets a 2-byte big-endian option.
func (opts *Options) SetUint16(code dhcpv4.OptionCode, v uint16) {
	opts.Set(code, dhcpv4.Uint16ToBytes(v))
}

// SetString sets a string option.
func (opts *Options) SetString(code dhcpv4.OptionCode, s string) {
	opts.Set(code, []byte(s))
}
