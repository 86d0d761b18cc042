// Package conflict checks an offered address for a conflicting holder before
// the client binds it, and announces the address once bound (RFC 5227).
package conflict

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Result is the outcome of an address probe.
type Result int

const (
	Free Result = iota
	InUse
)

func (r Result) String() string {
	if r == InUse {
		return "in_use"
	}
	return "free"
}

// defaultProbeWait bounds a probe whose context has no deadline.
const defaultProbeWait = time.Second

// readSlice is how long one blocking read may last before the context is
// checked again.
const readSlice = 100 * time.Millisecond

// frameConn sends and receives raw Ethernet frames on one interface.
type frameConn interface {
	WriteFrame(b []byte) error
	ReadFrame(b []byte, deadline time.Time) (int, error)
	Close() error
}

// ARPProber sends RFC 5227 ARP probes and listens for conflicting replies.
// The raw socket is opened once at startup and shared across probes.
type ARPProber struct {
	iface     *net.Interface
	mac       net.HardwareAddr
	logger    *slog.Logger
	conn      frameConn // nil if CAP_NET_RAW unavailable
	available bool
	mu        sync.Mutex
}

// NewARPProber creates an ARP prober bound to the given interface.
// If raw socket creation fails (missing CAP_NET_RAW), logs a LOUD warning
// and returns a prober that always reports Free (reduced safety).
func NewARPProber(ifaceName string, logger *slog.Logger) (*ARPProber, error) {
	iface, err := net.InterfaceByName(ifaceName)
	if err != nil {
		return nil, fmt.Errorf("looking up interface %s: %w", ifaceName, err)
	}
	if len(iface.HardwareAddr) != 6 {
		return nil, fmt.Errorf("interface %s has no Ethernet hardware address", ifaceName)
	}

	conn, err := openFrameConn(iface)
	if err != nil {
		logger.Error("FAILED TO OPEN RAW ARP SOCKET, address conflict detection is DISABLED",
			"interface", ifaceName,
			"error", err,
			"hint", "Grant CAP_NET_RAW capability or run as root")
		return &ARPProber{iface: iface, mac: iface.HardwareAddr, logger: logger}, nil
	}

	logger.Info("ARP prober initialized",
		"interface", ifaceName,
		"src_mac", iface.HardwareAddr.String())

	return newARPProber(iface, iface.HardwareAddr, conn, logger), nil
}

func newARPProber(iface *net.Interface, mac net.HardwareAddr, conn frameConn, logger *slog.Logger) *ARPProber {
	return &ARPProber{
		iface:     iface,
		mac:       mac,
		logger:    logger,
		conn:      conn,
		available: conn != nil,
	}
}

// Available returns true if the ARP prober has a working raw socket.
func (p *ARPProber) Available() bool {
	return p.available
}

// Close closes the raw socket.
func (p *ARPProber) Close() error {
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// Probe sends an ARP probe for ip and waits until ctx's deadline for a reply
// or a competing probe. In degraded mode it reports Free without probing.
// An error is returned with Free when the socket fails mid-probe or ctx is
// cancelled before its deadline.
func (p *ARPProber) Probe(ctx context.Context, ip net.IP) (Result, error) {
	if !p.available {
		return Free, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	start := time.Now()
	defer func() {
		p.logger.Debug("ARP probe completed",
			"target_ip", ip.String(),
			"duration", time.Since(start).String())
	}()

	frame, err := buildARPProbe(p.mac, ip)
	if err != nil {
		return Free, err
	}
	if err := p.conn.WriteFrame(frame); err != nil {
		return Free, fmt.Errorf("sending ARP probe for %s: %w", ip, err)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = start.Add(defaultProbeWait)
	}

	buf := make([]byte, 1514)
	for {
		if err := ctx.Err(); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return Free, nil
			}
			return Free, err
		}
		if !time.Now().Before(deadline) {
			return Free, nil
		}
		slice := time.Now().Add(readSlice)
		if slice.After(deadline) {
			slice = deadline
		}

		n, err := p.conn.ReadFrame(buf, slice)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			return Free, fmt.Errorf("reading ARP frames: %w", err)
		}

		if holder, conflict := classifyFrame(buf[:n], ip, p.mac); conflict {
			p.logger.Warn("address conflict detected",
				"ip", ip.String(),
				"holder_mac", holder.String())
			return InUse, nil
		}
	}
}

// Announce sends a gratuitous ARP for ip after binding so neighbours update
// their caches (RFC 5227 §2.3).
func (p *ARPProber) Announce(ip net.IP) error {
	if !p.available {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	frame, err := buildGratuitousARP(p.mac, ip)
	if err != nil {
		return err
	}

	p.logger.Debug("sending gratuitous ARP",
		"mac", p.mac.String(),
		"ip", ip.String())

	if err := p.conn.WriteFrame(frame); err != nil {
		return fmt.Errorf("sending gratuitous ARP for %s: %w", ip, err)
	}
	return nil
}

// buildARPProbe builds an RFC 5227 probe: an ARP request for target with a
// sender protocol address of 0.0.0.0.
func buildARPProbe(srcMAC net.HardwareAddr, target net.IP) ([]byte, error) {
	return serializeARP(srcMAC, net.IPv4zero.To4(), target)
}

// serializeARP builds a broadcast Ethernet frame carrying an ARP request.
func serializeARP(srcMAC net.HardwareAddr, senderIP, targetIP net.IP) ([]byte, error) {
	target := targetIP.To4()
	if target == nil {
		return nil, fmt.Errorf("ARP target %s is not IPv4", targetIP)
	}

	eth := &layers.Ethernet{
		SrcMAC:       srcMAC,
		DstMAC:       layers.EthernetBroadcast,
		EthernetType: layers.EthernetTypeARP,
	}
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   []byte(srcMAC),
		SourceProtAddress: []byte(senderIP.To4()),
		DstHwAddress:      make([]byte, 6),
		DstProtAddress:    []byte(target),
	}

	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{}, eth, arp); err != nil {
		return nil, fmt.Errorf("serializing ARP frame: %w", err)
	}
	return buf.Bytes(), nil
}

// classifyFrame reports whether frame shows another host using ip: either
// any ARP packet whose sender address is ip, or a competing probe for ip.
// Frames sent from ourMAC are ignored.
func classifyFrame(frame []byte, ip net.IP, ourMAC net.HardwareAddr) (net.HardwareAddr, bool) {
	packet := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.NoCopy)
	arpLayer := packet.Layer(layers.LayerTypeARP)
	if arpLayer == nil {
		return nil, false
	}
	arp := arpLayer.(*layers.ARP)
	if arp.AddrType != layers.LinkTypeEthernet || arp.Protocol != layers.EthernetTypeIPv4 {
		return nil, false
	}

	sender := net.HardwareAddr(arp.SourceHwAddress)
	if bytes.Equal(sender, ourMAC) {
		return nil, false
	}

	target := ip.To4()
	senderIP := net.IP(arp.SourceProtAddress)
	if senderIP.Equal(target) {
		return sender, true
	}
	if arp.Operation == layers.ARPRequest && senderIP.Equal(net.IPv4zero) && net.IP(arp.DstProtAddress).Equal(target) {
		return sender, true
	}
	return nil, false
}
