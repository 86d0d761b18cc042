//go:build !linux

package transport

import "syscall"

// control is a no-op off Linux: there is no SO_BINDTODEVICE, and the
// interface filter in Receive keeps foreign datagrams out.
func control(string) func(network, address string, c syscall.RawConn) error {
	return nil
}
