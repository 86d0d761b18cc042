//go:build linux

package conflict

import (
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// packetConn is an AF_PACKET socket bound to one interface, receiving only
// ARP frames. The fd is non-blocking and wrapped in an *os.File so reads
// honour deadlines through the runtime poller.
type packetConn struct {
	f *os.File
}

func htons(v uint16) uint16 {
	return v<<8 | v>>8
}

func openFrameConn(ifi *net.Interface) (frameConn, error) {
	proto := htons(unix.ETH_P_ARP)
	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW|unix.SOCK_CLOEXEC|unix.SOCK_NONBLOCK, int(proto))
	if err != nil {
		return nil, fmt.Errorf("opening AF_PACKET socket: %w", err)
	}

	sa := &unix.SockaddrLinklayer{Protocol: proto, Ifindex: ifi.Index}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("binding AF_PACKET socket to %s: %w", ifi.Name, err)
	}

	return &packetConn{f: os.NewFile(uintptr(fd), "arp:"+ifi.Name)}, nil
}

func (c *packetConn) WriteFrame(b []byte) error {
	_, err := c.f.Write(b)
	return err
}

func (c *packetConn) ReadFrame(b []byte, deadline time.Time) (int, error) {
	if err := c.f.SetReadDeadline(deadline); err != nil {
		return 0, err
	}
	return c.f.Read(b)
}

func (c *packetConn) Close() error {
	return c.f.Close()
}
