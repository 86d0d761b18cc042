//go:build linux

package transport

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

// control sets SO_REUSEADDR and SO_BROADCAST before bind, plus
// SO_BINDTODEVICE when iface is named. A device-bound socket sends broadcasts
// out of that link even when it has no address or route yet.
func control(iface string) func(network, address string, c syscall.RawConn) error {
	return func(network, address string, c syscall.RawConn) error {
		var sockErr error
		err := c.Control(func(fd uintptr) {
			if sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); sockErr != nil {
				sockErr = fmt.Errorf("SO_REUSEADDR: %w", sockErr)
				return
			}
			if sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1); sockErr != nil {
				sockErr = fmt.Errorf("SO_BROADCAST: %w", sockErr)
				return
			}
			if iface != "" {
				if sockErr = unix.BindToDevice(int(fd), iface); sockErr != nil {
					sockErr = fmt.Errorf("SO_BINDTODEVICE %s: %w", iface, sockErr)
				}
			}
		})
		if err != nil {
			return err
		}
		return sockErr
	}
}
