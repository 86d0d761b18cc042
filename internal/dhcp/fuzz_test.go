package dhcp

import (
	"net"
	"testing"
)

func FuzzDecode(f *testing.F) {
	f.Add(buildTestOffer(net.HardwareAddr{1, 2, 3, 4, 5, 6}, 42, net.IPv4(10, 0, 0, 5)))
	f.Add(make([]byte, 240))
	f.Add([]byte{})
	if data, err := testMessage().Encode(); err == nil {
		f.Add(data)
		f.Add(data[:len(data)-3])
	}

	f.Fuzz(func(t *testing.T, data []byte) {
		m, err := Decode(data)
		if err != nil {
			return
		}
		// Anything we decode must re-encode and decode to the same message.
		enc, err := m.Encode()
		if err != nil {
			t.Fatalf("re-encode of decoded message failed: %v", err)
		}
		again, err := Decode(enc)
		if err != nil {
			t.Fatalf("decode of re-encoded message failed: %v", err)
		}
		if !again.Equal(m) {
			t.Fatal("decode/encode/decode not stable")
		}
	})
}
