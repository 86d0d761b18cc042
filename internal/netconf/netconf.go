// Package netconf installs and removes the leased address on the interface.
package netconf

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/vishvananda/netlink"

	"github.com/athena-dhcpd/athena-dhclient/internal/lease"
)

// rtprotDHCP marks routes installed by a DHCP client (RTPROT_DHCP).
const rtprotDHCP netlink.RouteProtocol = 16

// Netlink configures the interface through rtnetlink.
type Netlink struct {
	iface           string
	setDefaultRoute bool
	logger          *slog.Logger
}

// NewNetlink creates a configurator for iface. With setDefaultRoute the
// lease's router becomes the default gateway.
func NewNetlink(iface string, setDefaultRoute bool, logger *slog.Logger) *Netlink {
	return &Netlink{iface: iface, setDefaultRoute: setDefaultRoute, logger: logger}
}

// Apply installs or refreshes the leased address. Address lifetimes track the
// lease so the kernel drops the address if the client dies.
func (n *Netlink) Apply(l *lease.Lease) error {
	link, err := netlink.LinkByName(n.iface)
	if err != nil {
		return fmt.Errorf("interface %s not found: %w", n.iface, err)
	}

	addr := addrFor(l)
	if err := netlink.AddrReplace(link, addr); err != nil {
		return fmt.Errorf("replacing address %s on %s: %w", addr.IPNet, n.iface, err)
	}
	n.logger.Info("address configured",
		"interface", n.iface,
		"address", addr.IPNet.String(),
		"valid_lft", addr.ValidLft)

	if n.setDefaultRoute && l.Router != nil {
		route := defaultRoute(l, link.Attrs().Index)
		if err := netlink.RouteReplace(route); err != nil {
			return fmt.Errorf("replacing default route via %s: %w", l.Router, err)
		}
		n.logger.Info("default route configured",
			"interface", n.iface,
			"gateway", l.Router.String())
	}
	return nil
}

// Remove deletes the address and any default route installed for l.
func (n *Netlink) Remove(l *lease.Lease) error {
	link, err := netlink.LinkByName(n.iface)
	if err != nil {
		return fmt.Errorf("interface %s not found: %w", n.iface, err)
	}

	if n.setDefaultRoute && l.Router != nil {
		if err := netlink.RouteDel(defaultRoute(l, link.Attrs().Index)); err != nil {
			n.logger.Warn("failed to delete default route",
				"gateway", l.Router.String(), "error", err)
		}
	}

	addr := addrFor(l)
	if err := netlink.AddrDel(link, addr); err != nil {
		return fmt.Errorf("deleting address %s from %s: %w", addr.IPNet, n.iface, err)
	}
	n.logger.Info("address removed",
		"interface", n.iface,
		"address", addr.IPNet.String())
	return nil
}

// addrFor builds the netlink address for a lease. Lifetimes of 0 mean
// forever, used for infinite leases.
func addrFor(l *lease.Lease) *netlink.Addr {
	addr := &netlink.Addr{IPNet: l.IPNet()}
	secs := l.Duration / time.Second
	if secs > 0 && secs < math.MaxUint32 {
		addr.ValidLft = int(secs)
		addr.PreferedLft = int(secs)
	}
	return addr
}

func defaultRoute(l *lease.Lease, linkIndex int) *netlink.Route {
	return &netlink.Route{
		LinkIndex: linkIndex,
		Gw:        l.Router,
		Protocol:  rtprotDHCP,
	}
}

// Noop is used when address configuration is disabled.
type Noop struct{}

// Apply does nothing.
func (Noop) Apply(*lease.Lease) error { return nil }

// Remove does nothing.
func (Noop) Remove(*lease.Lease) error { return nil }
