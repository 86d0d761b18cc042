//go:build !linux

package conflict

import (
	"errors"
	"net"
)

func openFrameConn(*net.Interface) (frameConn, error) {
	return nil, errors.New("raw ARP sockets are only supported on Linux")
}
