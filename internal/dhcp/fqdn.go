package dhcp

import (
	"errors"
	"fmt"

	"github.com/miekg/dns"
)

// Client FQDN option flags (RFC 4702 §2.1).
const (
	FQDNFlagS byte = 0x01 // Server should perform the A RR update
	FQDNFlagO byte = 0x02 // Server overrode the client's S bit
	FQDNFlagE byte = 0x04 // Domain name is in canonical wire format
	FQDNFlagN byte = 0x08 // Server should perform no DNS updates
)

// EncodeClientFQDN builds an option 81 value asking the server to update both
// the A and PTR records for name. The name is packed in canonical wire format.
func EncodeClientFQDN(name string) ([]byte, error) {
	if _, ok := dns.IsDomainName(name); !ok {
		return nil, fmt.Errorf("invalid FQDN %q", name)
	}
	buf := make([]byte, 255)
	n, err := dns.PackDomainName(dns.Fqdn(name), buf, 0, nil, false)
	if err != nil {
		return nil, fmt.Errorf("packing FQDN %q: %w", name, err)
	}
	// flags, RCODE1, RCODE2 (both deprecated, sent as 0)
	v := make([]byte, 0, 3+n)
	v = append(v, FQDNFlagS|FQDNFlagE, 0, 0)
	return append(v, buf[:n]...), nil
}

// ParseClientFQDN decodes an option 81 value into its flags and domain name.
func ParseClientFQDN(v []byte) (byte, string, error) {
	if len(v) < 3 {
		return 0, "", errors.New("client FQDN option shorter than 3 bytes")
	}
	flags := v[0]
	if flags&FQDNFlagE == 0 {
		// Deprecated ASCII encoding.
		return flags, string(v[3:]), nil
	}
	name, _, err := dns.UnpackDomainName(v, 3)
	if err != nil {
		return 0, "", fmt.Errorf("unpacking FQDN: %w", err)
	}
	return flags, name, nil
}
