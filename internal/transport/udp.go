// Package transport provides the UDP socket the client exchanges DHCP
// messages over.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/athena-dhcpd/athena-dhclient/internal/metrics"
	"github.com/athena-dhcpd/athena-dhclient/pkg/dhcpv4"
)

// ErrTimeout is returned by Receive when no datagram arrived in time.
var ErrTimeout = errors.New("transport: receive timed out")

// ErrClosed is returned after Close.
var ErrClosed = errors.New("transport: closed")

// Config selects where the socket listens.
type Config struct {
	// Interface binds the socket to one link. Empty listens on all links.
	Interface string
	// Addr is the local address, default ":68".
	Addr string
}

// UDP is a DHCP client socket. Send may be called concurrently with
// Receive; Receive itself is not safe for concurrent use.
type UDP struct {
	conn    *net.UDPConn
	pc      *ipv4.PacketConn
	ifIndex int
	logger  *slog.Logger
	buf     []byte

	closeOnce sync.Once
	closed    chan struct{}
}

// Listen opens the client socket. On Linux the socket is bound to the
// interface with SO_BINDTODEVICE; everywhere, datagrams whose receiving
// interface is not ours are dropped using IP_PKTINFO control messages.
func Listen(ctx context.Context, cfg Config, logger *slog.Logger) (*UDP, error) {
	addr := cfg.Addr
	if addr == "" {
		addr = fmt.Sprintf(":%d", dhcpv4.ClientPort)
	}

	var ifIndex int
	if cfg.Interface != "" {
		ifi, err := net.InterfaceByName(cfg.Interface)
		if err != nil {
			return nil, fmt.Errorf("looking up interface %s: %w", cfg.Interface, err)
		}
		ifIndex = ifi.Index
	}

	lc := net.ListenConfig{Control: control(cfg.Interface)}
	pconn, err := lc.ListenPacket(ctx, "udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}
	conn := pconn.(*net.UDPConn)

	pc := ipv4.NewPacketConn(conn)
	if ifIndex != 0 {
		if err := pc.SetControlMessage(ipv4.FlagInterface, true); err != nil {
			// Not fatal: SO_BINDTODEVICE already restricts the socket on Linux.
			logger.Warn("interface control messages unavailable",
				"interface", cfg.Interface, "error", err)
		}
	}

	logger.Info("DHCP client socket open",
		"address", conn.LocalAddr().String(),
		"interface", cfg.Interface)

	return &UDP{
		conn:    conn,
		pc:      pc,
		ifIndex: ifIndex,
		logger:  logger,
		buf:     make([]byte, dhcpv4.MaxPacketSize),
		closed:  make(chan struct{}),
	}, nil
}

// LocalAddr returns the bound address.
func (u *UDP) LocalAddr() *net.UDPAddr {
	return u.conn.LocalAddr().(*net.UDPAddr)
}

// Send writes one datagram to ip:port.
func (u *UDP) Send(b []byte, ip net.IP, port int) error {
	select {
	case <-u.closed:
		return ErrClosed
	default:
	}
	if _, err := u.pc.WriteTo(b, nil, &net.UDPAddr{IP: ip, Port: port}); err != nil {
		return fmt.Errorf("sending to %s:%d: %w", ip, port, err)
	}
	return nil
}

// Receive waits up to timeout for one datagram from our interface. It returns
// ErrTimeout when the wait elapses and ctx.Err() when ctx is cancelled first.
func (u *UDP) Receive(ctx context.Context, timeout time.Duration) ([]byte, error) {
	select {
	case <-u.closed:
		return nil, ErrClosed
	default:
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := u.pc.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, fmt.Errorf("setting read deadline: %w", err)
	}
	// Cancellation unblocks the read by moving the deadline into the past.
	stop := context.AfterFunc(ctx, func() {
		u.pc.SetReadDeadline(time.Unix(1, 0))
	})
	defer stop()

	for {
		n, cm, src, err := u.pc.ReadFrom(u.buf)
		if err != nil {
			select {
			case <-u.closed:
				return nil, ErrClosed
			default:
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if errors.Is(err, os.ErrDeadlineExceeded) {
				return nil, ErrTimeout
			}
			return nil, fmt.Errorf("reading datagram: %w", err)
		}

		if u.ifIndex != 0 && cm != nil && cm.IfIndex != 0 && cm.IfIndex != u.ifIndex {
			metrics.PacketsDropped.WithLabelValues("interface").Inc()
			u.logger.Debug("dropping datagram from other interface",
				"src", src.String(), "ifindex", cm.IfIndex)
			continue
		}

		out := make([]byte, n)
		copy(out, u.buf[:n])
		return out, nil
	}
}

// Close closes the socket. Safe to call more than once.
func (u *UDP) Close() error {
	var err error
	u.closeOnce.Do(func() {
		close(u.closed)
		err = u.conn.Close()
	})
	return err
}
