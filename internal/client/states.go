package client

import (
	"context"
	"net"
	"time"

	"github.com/athena-dhcpd/athena-dhclient/internal/conflict"
	"github.com/athena-dhcpd/athena-dhclient/internal/dhcp"
	"github.com/athena-dhcpd/athena-dhclient/internal/events"
	"github.com/athena-dhcpd/athena-dhclient/internal/lease"
	"github.com/athena-dhcpd/athena-dhclient/internal/metrics"
	"github.com/athena-dhcpd/athena-dhclient/pkg/dhcpv4"
)

// --- INIT / SELECTING ---

// beginDiscover starts a new acquisition cycle with a fresh xid.
func (c *Client) beginDiscover(now time.Time) error {
	c.s.xid = c.newXID()
	c.s.started = now
	c.s.attempt = 0
	c.s.offers = nil
	c.s.candidate = nil
	c.declined.Cleanup(now)
	c.setState(StateSelecting)
	c.logger.Info("discovering", "xid", xidString(c.s.xid))
	return c.transmitDiscover(now)
}

func (c *Client) transmitDiscover(now time.Time) error {
	msg := dhcp.NewDiscover(c.cfg.Identity, c.s.xid, c.secs(now), c.s.hint)
	c.s.deadline = now.Add(c.cfg.Backoff.Timeout(c.s.attempt, c.rng))
	return c.send(msg, dhcpv4.BroadcastIP)
}

func (c *Client) recordOffer(now time.Time, msg *dhcp.Message) {
	sid := msg.ServerIdentifier()
	if dhcpv4.IsZeroIP(msg.YIAddr) || sid == nil {
		c.drop("invalid_offer", "yiaddr", msg.YIAddr.String())
		return
	}
	if c.declined.Contains(msg.YIAddr, now) {
		c.drop("declined", "ip", msg.YIAddr.String(), "server", sid.String())
		return
	}
	for _, o := range c.s.offers {
		if o.ServerID.Equal(sid) {
			c.drop("duplicate_offer", "server", sid.String())
			return
		}
	}

	leaseTime, _ := msg.LeaseTime()
	c.s.offers = append(c.s.offers, Offer{
		Message:   msg,
		Address:   dhcpv4.IPToBytes(msg.YIAddr),
		ServerID:  sid,
		LeaseTime: leaseTime,
		Received:  now,
	})
	c.logger.Debug("offer recorded",
		"ip", msg.YIAddr.String(),
		"server", sid.String(),
		"lease_time", leaseTime.String(),
		"offers", len(c.s.offers))

	if len(c.s.offers) == 1 {
		if end := now.Add(c.cfg.OfferWindow); end.Before(c.s.deadline) {
			c.s.deadline = end
		}
	}
}

func (c *Client) selectingTimeout(now time.Time) error {
	if len(c.s.offers) > 0 {
		return c.requestOffer(now)
	}
	c.s.attempt++
	if c.cfg.Backoff.Exhausted(c.s.attempt) {
		c.restart(now, "no offers received", 0)
		return nil
	}
	metrics.Retransmissions.WithLabelValues(StateSelecting.String()).Inc()
	c.logger.Debug("retransmitting DISCOVER", "xid", xidString(c.s.xid), "attempt", c.s.attempt+1)
	return c.transmitDiscover(now)
}

// --- REQUESTING ---

// requestOffer takes the selected offer out of the collected set and
// requests it.
func (c *Client) requestOffer(now time.Time) error {
	i := c.selector.Select(c.s.offers)
	if i < 0 || i >= len(c.s.offers) {
		i = 0
	}
	o := c.s.offers[i]
	c.s.offers = append(c.s.offers[:i:i], c.s.offers[i+1:]...)
	c.s.candidate = &o
	c.s.attempt = 0
	c.s.requestSent = now
	c.setState(StateRequesting)
	c.logger.Info("requesting offered address",
		"ip", o.Address.String(),
		"server", o.ServerID.String(),
		"lease_time", o.LeaseTime.String(),
		"xid", xidString(c.s.xid))
	return c.transmitRequest(now)
}

func (c *Client) transmitRequest(now time.Time) error {
	o := c.s.candidate
	msg := dhcp.NewRequest(c.cfg.Identity, c.s.xid, c.secs(now), dhcp.RequestParams{
		Kind:        dhcp.RequestSelecting,
		RequestedIP: o.Address,
		ServerID:    o.ServerID,
	})
	c.s.deadline = now.Add(c.cfg.Backoff.Timeout(c.s.attempt, c.rng))
	return c.send(msg, dhcpv4.BroadcastIP)
}

func (c *Client) requestingTimeout(now time.Time) error {
	c.s.attempt++
	if c.cfg.Backoff.Exhausted(c.s.attempt) {
		c.logger.Info("no reply to REQUEST, discarding offer",
			"ip", c.s.candidate.Address.String(),
			"server", c.s.candidate.ServerID.String())
		c.s.candidate = nil
		return c.nextOfferOrRestart(now, "no reply to REQUEST", 0)
	}
	metrics.Retransmissions.WithLabelValues(StateRequesting.String()).Inc()
	return c.transmitRequest(now)
}

// nextOfferOrRestart requests the next collected offer, or restarts when
// none is left.
func (c *Client) nextOfferOrRestart(now time.Time, reason string, minDelay time.Duration) error {
	remaining := c.s.offers[:0]
	for _, o := range c.s.offers {
		if !c.declined.Contains(o.Address, now) {
			remaining = append(remaining, o)
		}
	}
	c.s.offers = remaining

	if len(c.s.offers) == 0 {
		c.restart(now, reason, minDelay)
		return nil
	}
	c.setState(StateSelecting)
	return c.requestOffer(now)
}

func (c *Client) fromCandidate(msg *dhcp.Message) bool {
	sid := msg.ServerIdentifier()
	return sid == nil || sid.Equal(c.s.candidate.ServerID)
}

func (c *Client) requestingAck(ctx context.Context, msg *dhcp.Message) error {
	if !c.fromCandidate(msg) {
		c.drop("server_mismatch", "server", msg.ServerIdentifier().String())
		return nil
	}
	if dhcpv4.IsZeroIP(msg.YIAddr) {
		c.drop("invalid_ack")
		return nil
	}
	res := c.probe(ctx, msg.YIAddr)
	if ctx.Err() != nil {
		// Shutting down mid-check. Run stops on its next pass.
		c.logger.Info("address check interrupted, not binding",
			"ip", msg.YIAddr.String(),
			"server", c.s.candidate.ServerID.String())
		return nil
	}
	if res == conflict.InUse {
		return c.decline(c.clock.Now(), msg)
	}
	return c.commit(c.clock.Now(), msg)
}

// probe checks ip on the link, bounded by the probe timeout. Prober
// failures count as Free. Callers check ctx for cancellation.
func (c *Client) probe(ctx context.Context, ip net.IP) conflict.Result {
	if c.prober == nil {
		return conflict.Free
	}
	pctx, cancel := context.WithTimeout(ctx, c.cfg.ProbeTimeout)
	defer cancel()

	start := time.Now()
	res, err := c.prober.Probe(pctx, ip)
	metrics.ConflictProbeDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		if ctx.Err() != nil {
			return conflict.Free
		}
		c.logger.Error("ARP probe failed, treating address as free",
			"ip", ip.String(), "error", err)
		res = conflict.Free
	}
	metrics.ConflictProbes.WithLabelValues(res.String()).Inc()
	return res
}

func (c *Client) decline(now time.Time, ack *dhcp.Message) error {
	ip := net.IP(dhcpv4.IPToBytes(ack.YIAddr))
	sid := c.s.candidate.ServerID

	c.logger.Warn("offered address in use, declining",
		"ip", ip.String(),
		"server", sid.String(),
		"xid", xidString(c.s.xid))
	msg := dhcp.NewDecline(c.cfg.Identity, c.s.xid, ip, sid, "address in use")
	if err := c.send(msg, dhcpv4.BroadcastIP); err != nil {
		return err
	}
	c.declined.Add(ip, now)
	metrics.LeaseOperations.WithLabelValues("declined").Inc()
	c.publish(now, events.EventConflictDecline, func(e *events.Event) {
		e.Conflict = &events.ConflictData{IP: ip, ServerID: sid, DetectionMethod: "arp_probe"}
		e.Reason = "address in use"
	})

	c.s.candidate = nil
	return c.nextOfferOrRestart(now, "offered address in use", declineRestartDelay)
}

func (c *Client) requestingNak(msg *dhcp.Message) error {
	if !c.fromCandidate(msg) {
		c.drop("server_mismatch", "server", msg.ServerIdentifier().String())
		return nil
	}
	now := c.clock.Now()
	reason := nakReason(msg)
	c.logger.Warn("REQUEST refused",
		"ip", c.s.candidate.Address.String(),
		"server", c.s.candidate.ServerID.String(),
		"reason", reason)
	metrics.LeaseOperations.WithLabelValues("nak").Inc()
	c.publish(now, events.EventLeaseNak, func(e *events.Event) { e.Reason = reason })
	c.s.candidate = nil
	c.restart(now, "NAK received", 0)
	return nil
}

func nakReason(msg *dhcp.Message) string {
	if v, ok := msg.Options.Get(dhcpv4.OptionMessage); ok {
		return string(v)
	}
	return ""
}

// --- BOUND ---

// commit turns an accepted ACK into the current lease and enters BOUND.
func (c *Client) commit(now time.Time, ack *dhcp.Message) error {
	l, hadLease, err := lease.FromAck(ack, c.s.requestSent, c.cfg.Interface)
	if err != nil {
		c.drop("invalid_ack", "error", err)
		return nil
	}
	if !hadLease {
		c.logger.Warn("ACK carried no lease time, using default",
			"ip", l.Address.String(),
			"lease_time", l.Duration.String())
	}

	from := c.s.state
	old := c.s.lease
	if l.ServerID == nil {
		switch {
		case c.s.candidate != nil:
			l.ServerID = c.s.candidate.ServerID
		case old != nil:
			l.ServerID = old.ServerID
		}
	}

	changed := old == nil || !old.Address.Equal(l.Address) || !from.hasLease()
	if old != nil && from.hasLease() && !old.Address.Equal(l.Address) && c.netconf != nil {
		if err := c.netconf.Remove(old); err != nil {
			c.logger.Warn("removing previous address", "ip", old.Address.String(), "error", err)
		}
	}
	if c.netconf != nil {
		if err := c.netconf.Apply(l); err != nil {
			c.logger.Error("configuring leased address", "ip", l.Address.String(), "error", err)
		}
	}
	if changed && c.cfg.Announce && c.prober != nil {
		if err := c.prober.Announce(l.Address); err != nil {
			c.logger.Warn("sending gratuitous ARP", "ip", l.Address.String(), "error", err)
		}
	}
	if c.store != nil {
		if err := c.store.Save(l); err != nil {
			c.logger.Warn("saving lease", "ip", l.Address.String(), "error", err)
		}
	}

	c.s.lease = l
	c.s.candidate = nil
	c.s.offers = nil
	c.s.attempt = 0
	c.s.failures = 0
	c.s.hint = nil
	c.setState(StateBound)
	c.s.deadline = l.Timers().Deadline(lease.DeadlineRenew)

	metrics.LeaseDuration.Set(l.Duration.Seconds())
	metrics.LeaseExpiry.Set(float64(l.Expiry().Unix()))

	evt, op := events.EventLeaseBound, "bound"
	switch from {
	case StateRenewing:
		evt, op = events.EventLeaseRenew, "renewed"
	case StateRebinding:
		evt, op = events.EventLeaseRebind, "rebound"
	}
	metrics.LeaseOperations.WithLabelValues(op).Inc()
	c.publish(now, evt, func(e *events.Event) {
		e.Lease = events.NewLeaseData(l)
		if old != nil && !old.Address.Equal(l.Address) {
			e.Lease.OldIP = old.Address
		}
	})

	c.logger.Info("lease "+op,
		"ip", l.IPNet().String(),
		"server", l.ServerID.String(),
		"router", l.Router.String(),
		"lease_time", l.Duration.String(),
		"t1", l.T1.String(),
		"t2", l.T2.String())
	c.logFQDN(ack)
	return nil
}

// logFQDN reports the server's answer to our option 81 request, if any.
func (c *Client) logFQDN(ack *dhcp.Message) {
	v, ok := ack.Options.Get(dhcpv4.OptionClientFQDN)
	if !ok {
		return
	}
	flags, name, err := dhcp.ParseClientFQDN(v)
	if err != nil {
		c.logger.Warn("ignoring malformed client FQDN in ACK", "error", err)
		return
	}
	c.logger.Info("server DNS update",
		"fqdn", name,
		"server_updates_a", flags&dhcp.FQDNFlagS != 0,
		"overridden", flags&dhcp.FQDNFlagO != 0,
		"no_updates", flags&dhcp.FQDNFlagN != 0)
}

// --- INIT-REBOOT / REBOOTING ---

func (c *Client) beginReboot(now time.Time) error {
	c.s.xid = c.newXID()
	c.s.started = now
	c.s.attempt = 0
	c.s.requestSent = now
	c.setState(StateRebooting)
	c.logger.Info("verifying stored lease",
		"ip", c.s.lease.Address.String(),
		"xid", xidString(c.s.xid))
	return c.transmitReboot(now)
}

func (c *Client) transmitReboot(now time.Time) error {
	msg := dhcp.NewRequest(c.cfg.Identity, c.s.xid, c.secs(now), dhcp.RequestParams{
		Kind:        dhcp.RequestInitReboot,
		RequestedIP: c.s.lease.Address,
	})
	c.s.deadline = now.Add(c.cfg.Backoff.Timeout(c.s.attempt, c.rng))
	return c.send(msg, dhcpv4.BroadcastIP)
}

func (c *Client) rebootingTimeout(now time.Time) error {
	c.s.attempt++
	if !c.cfg.Backoff.Exhausted(c.s.attempt) && !c.s.lease.IsExpired(now) {
		metrics.Retransmissions.WithLabelValues(StateRebooting.String()).Inc()
		return c.transmitReboot(now)
	}
	c.logger.Info("no reply to INIT-REBOOT, discarding stored lease",
		"ip", c.s.lease.Address.String())
	c.s.hint = c.s.lease.Address
	c.discardLease()
	c.enterInit(now, 0)
	return nil
}

func (c *Client) rebootingNak(msg *dhcp.Message) error {
	now := c.clock.Now()
	reason := nakReason(msg)
	c.logger.Warn("stored lease refused",
		"ip", c.s.lease.Address.String(),
		"server", msg.ServerIdentifier().String(),
		"reason", reason)
	metrics.LeaseOperations.WithLabelValues("nak").Inc()
	c.publish(now, events.EventLeaseNak, func(e *events.Event) {
		e.Lease = events.NewLeaseData(c.s.lease)
		e.Reason = reason
	})
	c.discardLease()
	c.enterInit(now, 0)
	return nil
}

// --- RENEWING / REBINDING ---

// leaseTimeout acts on the latest lease deadline reached, so a client that
// slept past T2 or expiry goes straight to the matching state.
func (c *Client) leaseTimeout(now time.Time) error {
	l := c.s.lease
	timers := l.Timers()
	next, left := timers.Next(now)

	switch timers.Due(now) {
	case lease.DeadlineExpire:
		return c.expire(now)
	case lease.DeadlineRebind:
		if c.s.state != StateRebinding {
			c.s.started = now
			c.s.attempt = 0
			c.s.requestSent = now
			c.setState(StateRebinding)
			c.logger.Info("rebinding lease", "ip", l.Address.String())
		} else {
			c.s.attempt++
			metrics.Retransmissions.WithLabelValues(StateRebinding.String()).Inc()
		}
		c.s.deadline = now.Add(renewWait(left))
		return c.sendRenewal(now, dhcp.RequestRebinding, dhcpv4.BroadcastIP)
	case lease.DeadlineRenew:
		if c.s.state != StateRenewing {
			c.s.started = now
			c.s.attempt = 0
			c.s.requestSent = now
			c.setState(StateRenewing)
			c.logger.Info("renewing lease", "ip", l.Address.String(), "server", l.ServerID.String())
		} else {
			c.s.attempt++
			metrics.Retransmissions.WithLabelValues(StateRenewing.String()).Inc()
		}
		c.s.deadline = now.Add(renewWait(left))
		return c.sendRenewal(now, dhcp.RequestRenewing, unicastOrBroadcast(l.ServerID))
	default:
		c.s.deadline = now.Add(left)
		c.logger.Debug("waiting for lease deadline", "deadline", next.String(), "in", left.String())
		return nil
	}
}

func (c *Client) sendRenewal(now time.Time, kind dhcp.RequestKind, dst net.IP) error {
	msg := dhcp.NewRequest(c.cfg.Identity, c.s.xid, c.secs(now), dhcp.RequestParams{
		Kind:     kind,
		ClientIP: c.s.lease.Address,
	})
	return c.send(msg, dst)
}

func (c *Client) leaseNak(msg *dhcp.Message) error {
	now := c.clock.Now()
	l := c.s.lease
	reason := nakReason(msg)
	c.logger.Warn("lease refused, stopping use of address",
		"ip", l.Address.String(),
		"server", msg.ServerIdentifier().String(),
		"state", c.s.state.String(),
		"reason", reason)
	metrics.LeaseOperations.WithLabelValues("nak").Inc()
	c.publish(now, events.EventLeaseNak, func(e *events.Event) {
		e.Lease = events.NewLeaseData(l)
		e.Reason = reason
	})
	c.discardLease()
	c.enterInit(now, 0)
	return nil
}

func (c *Client) expire(now time.Time) error {
	l := c.s.lease
	c.logger.Warn("lease expired, stopping use of address",
		"ip", l.Address.String(),
		"expired", l.Expiry())
	metrics.LeaseOperations.WithLabelValues("expired").Inc()
	c.publish(now, events.EventLeaseExpire, func(e *events.Event) {
		e.Lease = events.NewLeaseData(l)
	})
	c.s.hint = l.Address
	c.discardLease()
	c.enterInit(now, 0)
	return nil
}

// discardLease removes the current lease from the interface and the store.
func (c *Client) discardLease() {
	l := c.s.lease
	if l == nil {
		return
	}
	if c.netconf != nil {
		if err := c.netconf.Remove(l); err != nil {
			c.logger.Warn("removing leased address", "ip", l.Address.String(), "error", err)
		}
	}
	c.deleteStored()
	c.s.lease = nil
	metrics.LeaseDuration.Set(0)
	metrics.LeaseExpiry.Set(0)
}

func (c *Client) deleteStored() {
	if c.store == nil {
		return
	}
	if err := c.store.Delete(c.cfg.Identity.HardwareAddr); err != nil {
		c.logger.Warn("deleting stored lease", "error", err)
	}
}

func unicastOrBroadcast(ip net.IP) net.IP {
	if dhcpv4.IsZeroIP(ip) {
		return dhcpv4.BroadcastIP
	}
	return ip
}
