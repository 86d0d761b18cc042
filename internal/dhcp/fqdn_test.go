package dhcp

import (
	"bytes"
	"testing"
)

func TestEncodeClientFQDN(t *testing.T) {
	v, err := EncodeClientFQDN("host.example.com")
	if err != nil {
		t.Fatalf("EncodeClientFQDN error: %v", err)
	}

	want := []byte{
		FQDNFlagS | FQDNFlagE, 0, 0,
		4, 'h', 'o', 's', 't',
		7, 'e', 'x', 'a', 'm', 'p', 'l', 'e',
		3, 'c', 'o', 'm',
		0,
	}
	if !bytes.Equal(v, want) {
		t.Errorf("EncodeClientFQDN = %v, want %v", v, want)
	}

	flags, name, err := ParseClientFQDN(v)
	if err != nil {
		t.Fatalf("ParseClientFQDN error: %v", err)
	}
	if flags != FQDNFlagS|FQDNFlagE || name != "host.example.com." {
		t.Errorf("ParseClientFQDN = %#x %q", flags, name)
	}
}

func TestEncodeClientFQDNInvalid(t *testing.T) {
	if _, err := EncodeClientFQDN("bad..name"); err == nil {
		t.Error("expected error for empty label")
	}
}

func TestParseClientFQDNASCII(t *testing.T) {
	_, name, err := ParseClientFQDN([]byte{0, 0, 0, 'h', 'o', 's', 't'})
	if err != nil {
		t.Fatalf("ParseClientFQDN error: %v", err)
	}
	if name != "host" {
		t.Errorf("name = %q, want host", name)
	}
	if _, _, err := ParseClientFQDN([]byte{0, 0}); err == nil {
		t.Error("expected error for short option")
	}
}
