package lease

import (
	"bytes"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/athena-dhcpd/athena-dhclient/pkg/dhcpv4"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")
	store, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore error: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testLease() *Lease {
	mac, _ := net.ParseMAC("00:11:22:33:44:55")
	return &Lease{
		Address:    net.IPv4(192, 168, 1, 100).To4(),
		ServerID:   net.IPv4(192, 168, 1, 1).To4(),
		SubnetMask: net.CIDRMask(24, 32),
		Router:     net.IPv4(192, 168, 1, 1).To4(),
		DNS:        []net.IP{net.IPv4(192, 168, 1, 53).To4()},
		Duration:   8 * time.Hour,
		T1:         4 * time.Hour,
		T2:         7 * time.Hour,
		Obtained:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Interface:  "eth0",
		MAC:        mac,
		Options: map[dhcpv4.OptionCode][]byte{
			dhcpv4.OptionDomainName: []byte("example.com"),
		},
	}
}

func TestStoreLoadMissing(t *testing.T) {
	store := newTestStore(t)
	mac, _ := net.ParseMAC("00:11:22:33:44:55")

	l, err := store.Load(mac)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if l != nil {
		t.Errorf("Load returned %v, want nil", l)
	}
}

func TestStoreSaveAndLoad(t *testing.T) {
	store := newTestStore(t)
	want := testLease()

	if err := store.Save(want); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	got, err := store.Load(want.MAC)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if got == nil {
		t.Fatal("Load returned nil after Save")
	}
	if !got.Address.Equal(want.Address) || !got.ServerID.Equal(want.ServerID) || !got.Router.Equal(want.Router) {
		t.Errorf("addresses = %s/%s/%s", got.Address, got.ServerID, got.Router)
	}
	if got.SubnetMask.String() != want.SubnetMask.String() {
		t.Errorf("mask = %s, want %s", got.SubnetMask, want.SubnetMask)
	}
	if got.Duration != want.Duration || got.T1 != want.T1 || got.T2 != want.T2 {
		t.Errorf("durations = %v/%v/%v", got.Duration, got.T1, got.T2)
	}
	if !got.Obtained.Equal(want.Obtained) {
		t.Errorf("Obtained = %v, want %v", got.Obtained, want.Obtained)
	}
	if got.Interface != "eth0" || got.MAC.String() != want.MAC.String() {
		t.Errorf("interface/mac = %s/%s", got.Interface, got.MAC)
	}
	if !bytes.Equal(got.Options[dhcpv4.OptionDomainName], []byte("example.com")) {
		t.Errorf("options = %v", got.Options)
	}
}

func TestStoreSaveReplaces(t *testing.T) {
	store := newTestStore(t)
	l := testLease()
	if err := store.Save(l); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	l.Address = net.IPv4(192, 168, 1, 150).To4()
	if err := store.Save(l); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	got, _ := store.Load(l.MAC)
	if !got.Address.Equal(net.IPv4(192, 168, 1, 150)) {
		t.Errorf("Address = %s, want replaced 192.168.1.150", got.Address)
	}
}

func TestStoreDelete(t *testing.T) {
	store := newTestStore(t)
	l := testLease()
	if err := store.Save(l); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	if err := store.Delete(l.MAC); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if got, _ := store.Load(l.MAC); got != nil {
		t.Error("lease still present after Delete")
	}
	if err := store.Delete(l.MAC); err != nil {
		t.Errorf("Delete of missing lease returned %v", err)
	}
}

func TestStoreReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leases.db")
	store, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore error: %v", err)
	}
	l := testLease()
	if err := store.Save(l); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	store.Close()

	store, err = NewStore(path)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer store.Close()

	got, err := store.Load(l.MAC)
	if err != nil || got == nil {
		t.Fatalf("Load after reopen = %v, %v", got, err)
	}
	if !got.Address.Equal(l.Address) {
		t.Errorf("Address = %s, want %s", got.Address, l.Address)
	}
}
