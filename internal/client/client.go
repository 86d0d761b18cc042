// Package client implements the DHCPv4 client state machine (RFC 2131 §4.4).
// A Client owns one interface and runs a single loop: wait for a datagram or
// the next deadline, then act on whichever came first.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"time"

	"github.com/athena-dhcpd/athena-dhclient/internal/conflict"
	"github.com/athena-dhcpd/athena-dhclient/internal/dhcp"
	"github.com/athena-dhcpd/athena-dhclient/internal/events"
	"github.com/athena-dhcpd/athena-dhclient/internal/lease"
	"github.com/athena-dhcpd/athena-dhclient/internal/metrics"
	"github.com/athena-dhcpd/athena-dhclient/internal/transport"
	"github.com/athena-dhcpd/athena-dhclient/pkg/dhcpv4"
)

// Transport sends and receives DHCP datagrams on the client's interface.
// Receive returns transport.ErrTimeout when timeout elapses without a
// datagram and ctx.Err() when ctx is cancelled.
type Transport interface {
	Send(b []byte, ip net.IP, port int) error
	Receive(ctx context.Context, timeout time.Duration) ([]byte, error)
	Close() error
}

// Prober checks an offered address for another holder before binding and
// announces it afterwards.
type Prober interface {
	Probe(ctx context.Context, ip net.IP) (conflict.Result, error)
	Announce(ip net.IP) error
}

// Configurator installs the bound address on the interface.
type Configurator interface {
	Apply(l *lease.Lease) error
	Remove(l *lease.Lease) error
}

// LeaseStore persists the current lease so a restart can resume it.
type LeaseStore interface {
	Save(l *lease.Lease) error
	Load(mac net.HardwareAddr) (*lease.Lease, error)
	Delete(mac net.HardwareAddr) error
}

// Clock supplies the time the state machine schedules against.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// declineRestartDelay is the minimum wait before restarting after a
// DECLINE (RFC 2131 §3.1.5).
const declineRestartDelay = 10 * time.Second

// Config holds the client's policy.
type Config struct {
	Interface     string
	Identity      dhcp.ClientIdentity
	InitDelayMin  time.Duration
	InitDelayMax  time.Duration
	OfferWindow   time.Duration
	Backoff       Backoff
	EscalateAfter int
	ProbeTimeout  time.Duration
	DeclineHold   time.Duration
	Announce      bool // gratuitous ARP after binding a new address
	ReleaseOnExit bool
}

func (cfg Config) withDefaults() Config {
	if cfg.OfferWindow <= 0 {
		cfg.OfferWindow = 3 * time.Second
	}
	if cfg.Backoff.Base <= 0 {
		cfg.Backoff.Base = DefaultBackoff.Base
	}
	if cfg.Backoff.Max < cfg.Backoff.Base {
		cfg.Backoff.Max = max(DefaultBackoff.Max, cfg.Backoff.Base)
	}
	if cfg.Backoff.Jitter < 0 {
		cfg.Backoff.Jitter = 0
	}
	if cfg.Backoff.MaxAttempts <= 0 {
		cfg.Backoff.MaxAttempts = DefaultBackoff.MaxAttempts
	}
	if cfg.EscalateAfter <= 0 {
		cfg.EscalateAfter = 3
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = time.Second
	}
	if cfg.DeclineHold <= 0 {
		cfg.DeclineHold = 5 * time.Minute
	}
	if cfg.InitDelayMax < cfg.InitDelayMin {
		cfg.InitDelayMax = cfg.InitDelayMin
	}
	return cfg
}

// session is the mutable protocol state. Only the Run loop touches it.
type session struct {
	state       State
	xid         uint32
	started     time.Time // transaction start, for secs
	deadline    time.Time // next timer of the current state
	attempt     int       // sends so far in this exchange, minus one
	offers      []Offer
	candidate   *Offer
	requestSent time.Time // first REQUEST of the exchange; becomes Lease.Obtained
	lease       *lease.Lease
	hint        net.IP // previous address, suggested in DISCOVER
	failures    int    // consecutive acquisition cycles without reaching BOUND
}

// Client is a DHCPv4 client for one interface.
type Client struct {
	cfg       Config
	transport Transport
	prober    Prober
	netconf   Configurator
	store     LeaseStore
	events    events.Publisher
	selector  OfferSelector
	clock     Clock
	rng       *rand.Rand
	declined  *conflict.Declined
	logger    *slog.Logger

	s session
}

// New creates a client that talks through t. The prober, configurator,
// store and event publisher are optional and set with their setters.
func New(cfg Config, t Transport, logger *slog.Logger) (*Client, error) {
	if t == nil {
		return nil, errors.New("client: nil transport")
	}
	if len(cfg.Identity.HardwareAddr) == 0 || len(cfg.Identity.HardwareAddr) > 16 {
		return nil, fmt.Errorf("client: hardware address %q unusable", cfg.Identity.HardwareAddr)
	}
	cfg = cfg.withDefaults()
	return &Client{
		cfg:       cfg,
		transport: t,
		selector:  LongestLease{},
		clock:     systemClock{},
		rng:       rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		declined:  conflict.NewDeclined(cfg.DeclineHold),
		logger:    logger.With("interface", cfg.Interface),
	}, nil
}

// SetProber sets the address conflict prober.
func (c *Client) SetProber(p Prober) { c.prober = p }

// SetConfigurator sets what installs the lease on the interface.
func (c *Client) SetConfigurator(n Configurator) { c.netconf = n }

// SetStore sets the lease store used to resume after a restart.
func (c *Client) SetStore(s LeaseStore) { c.store = s }

// SetPublisher sets where lease events go.
func (c *Client) SetPublisher(p events.Publisher) { c.events = p }

// SetSelector replaces the LongestLease offer policy.
func (c *Client) SetSelector(s OfferSelector) { c.selector = s }

// SetClock replaces the system clock.
func (c *Client) SetClock(clk Clock) { c.clock = clk }

// SetRand replaces the source of xids and jitter.
func (c *Client) SetRand(r *rand.Rand) { c.rng = r }

// Run drives the state machine until ctx is cancelled or the transport
// fails. The transport is closed on return. Cancellation is not an error.
func (c *Client) Run(ctx context.Context) (err error) {
	defer func() {
		if cerr := c.transport.Close(); cerr != nil {
			c.logger.Warn("closing transport", "error", cerr)
		}
	}()

	c.start(c.clock.Now())

	for {
		if ctx.Err() != nil {
			c.shutdown()
			return nil
		}

		now := c.clock.Now()
		wait := c.s.deadline.Sub(now)
		if wait <= 0 {
			if err := c.handleTimeout(ctx, now); err != nil {
				return err
			}
			continue
		}

		b, err := c.transport.Receive(ctx, wait)
		switch {
		case err == nil:
			if err := c.handlePacket(ctx, b); err != nil {
				return err
			}
		case errors.Is(err, transport.ErrTimeout):
			// The deadline is re-evaluated on the next pass.
		case ctx.Err() != nil:
			c.shutdown()
			return nil
		default:
			return fmt.Errorf("receiving on %s: %w", c.cfg.Interface, err)
		}
	}
}

// start resumes a stored unexpired lease through INIT-REBOOT, or begins in INIT.
func (c *Client) start(now time.Time) {
	c.s = session{}
	metrics.SetState(StateInit.String())

	if c.store != nil {
		l, err := c.store.Load(c.cfg.Identity.HardwareAddr)
		switch {
		case err != nil:
			c.logger.Warn("loading stored lease", "error", err)
		case l == nil:
		case l.IsExpired(now):
			c.logger.Info("stored lease expired", "ip", l.Address.String(), "expired", l.Expiry())
			c.s.hint = l.Address
			c.deleteStored()
		default:
			c.logger.Info("resuming stored lease",
				"ip", l.Address.String(),
				"server", l.ServerID.String(),
				"expires", l.Expiry())
			c.s.lease = l
			c.setState(StateInitReboot)
			c.s.deadline = now
			return
		}
	}
	c.enterInit(now, 0)
}

func (c *Client) setState(next State) {
	prev := c.s.state
	c.s.state = next
	if prev != next {
		metrics.StateTransitions.WithLabelValues(prev.String(), next.String()).Inc()
		c.logger.Debug("state transition", "from", prev.String(), "to", next.String())
	}
	metrics.SetState(next.String())
}

func (c *Client) handleTimeout(ctx context.Context, now time.Time) error {
	switch c.s.state {
	case StateInit:
		return c.beginDiscover(now)
	case StateInitReboot:
		return c.beginReboot(now)
	case StateSelecting:
		return c.selectingTimeout(now)
	case StateRequesting:
		return c.requestingTimeout(now)
	case StateRebooting:
		return c.rebootingTimeout(now)
	case StateBound, StateRenewing, StateRebinding:
		return c.leaseTimeout(now)
	default:
		return fmt.Errorf("client in unknown state %d", c.s.state)
	}
}

func (c *Client) handlePacket(ctx context.Context, b []byte) error {
	msg, err := dhcp.Decode(b)
	if err != nil {
		metrics.PacketErrors.WithLabelValues("decode").Inc()
		c.drop("decode", "error", err, "size", len(b))
		return nil
	}
	if msg.Op != dhcpv4.OpCodeBootReply {
		c.drop("not_reply", "xid", xidString(msg.XID))
		return nil
	}
	if c.s.state == StateInit || c.s.state == StateInitReboot {
		c.drop("no_transaction", "xid", xidString(msg.XID))
		return nil
	}
	if msg.XID != c.s.xid {
		c.drop("xid_mismatch", "xid", xidString(msg.XID), "want", xidString(c.s.xid))
		return nil
	}
	if !bytes.Equal(msg.CHAddr, c.cfg.Identity.HardwareAddr) {
		c.drop("chaddr_mismatch", "chaddr", msg.CHAddr.String())
		return nil
	}

	mt := msg.MessageType()
	metrics.PacketsReceived.WithLabelValues(mt.String()).Inc()
	c.logger.Debug("received DHCP packet",
		"msg_type", mt.String(),
		"xid", xidString(msg.XID),
		"yiaddr", msg.YIAddr.String(),
		"server", msg.ServerIdentifier().String(),
		"state", c.s.state.String())

	switch {
	case c.s.state == StateSelecting && mt == dhcpv4.MessageTypeOffer:
		c.recordOffer(c.clock.Now(), msg)
		return nil
	case c.s.state == StateRequesting && mt == dhcpv4.MessageTypeAck:
		return c.requestingAck(ctx, msg)
	case c.s.state == StateRequesting && mt == dhcpv4.MessageTypeNak:
		return c.requestingNak(msg)
	case c.s.state == StateRebooting && mt == dhcpv4.MessageTypeAck:
		return c.commit(c.clock.Now(), msg)
	case c.s.state == StateRebooting && mt == dhcpv4.MessageTypeNak:
		return c.rebootingNak(msg)
	case (c.s.state == StateRenewing || c.s.state == StateRebinding) && mt == dhcpv4.MessageTypeAck:
		if dhcpv4.IsZeroIP(msg.YIAddr) {
			c.drop("invalid_ack")
			return nil
		}
		return c.commit(c.clock.Now(), msg)
	case (c.s.state == StateRenewing || c.s.state == StateRebinding) && mt == dhcpv4.MessageTypeNak:
		return c.leaseNak(msg)
	}

	c.drop("unexpected_type", "msg_type", mt.String(), "state", c.s.state.String())
	return nil
}

func (c *Client) drop(reason string, args ...any) {
	metrics.PacketsDropped.WithLabelValues(reason).Inc()
	c.logger.Debug("dropping datagram", append([]any{"reason", reason}, args...)...)
}

// enterInit discards the transaction and schedules a DISCOVER after the
// random INIT delay, or minDelay if that is longer.
func (c *Client) enterInit(now time.Time, minDelay time.Duration) {
	c.s.offers = nil
	c.s.candidate = nil
	c.s.attempt = 0
	c.setState(StateInit)

	delay := c.cfg.InitDelayMin
	if spread := c.cfg.InitDelayMax - c.cfg.InitDelayMin; spread > 0 {
		delay += time.Duration(c.rng.Int64N(int64(spread) + 1))
	}
	delay = max(delay, minDelay)
	c.s.deadline = now.Add(delay)
	c.logger.Debug("scheduled DISCOVER", "delay", delay.String())
}

// restart abandons an acquisition cycle and counts it toward escalation.
func (c *Client) restart(now time.Time, reason string, minDelay time.Duration) {
	c.s.failures++
	metrics.AcquisitionFailures.Inc()
	if c.s.failures >= c.cfg.EscalateAfter {
		c.logger.Warn("DHCP acquisition failing",
			"reason", reason,
			"failed_cycles", c.s.failures,
			"threshold", c.cfg.EscalateAfter)
		c.publish(now, events.EventAcquisitionFailing, func(e *events.Event) {
			e.Reason = reason
			e.Failure = &events.FailureData{Cycles: c.s.failures, Threshold: c.cfg.EscalateAfter}
		})
	} else {
		c.logger.Info("restarting acquisition", "reason", reason, "failed_cycles", c.s.failures)
	}
	c.enterInit(now, minDelay)
}

func (c *Client) newXID() uint32 {
	for {
		x := c.rng.Uint32()
		if x != c.s.xid {
			return x
		}
	}
}

func (c *Client) secs(now time.Time) uint16 {
	d := now.Sub(c.s.started) / time.Second
	switch {
	case d < 0:
		return 0
	case d > 0xffff:
		return 0xffff
	}
	return uint16(d)
}

// send encodes and transmits msg. A transport failure is returned and ends
// Run; an encode failure is logged and left to retransmission.
func (c *Client) send(msg *dhcp.Message, dst net.IP) error {
	mt := msg.MessageType().String()
	b, err := msg.Encode()
	if err != nil {
		metrics.PacketErrors.WithLabelValues("encode").Inc()
		c.logger.Error("encoding DHCP packet", "msg_type", mt, "error", err)
		return nil
	}
	if err := c.transport.Send(b, dst, dhcpv4.ServerPort); err != nil {
		metrics.PacketErrors.WithLabelValues("send").Inc()
		return fmt.Errorf("sending %s to %s on %s: %w", mt, dst, c.cfg.Interface, err)
	}
	metrics.PacketsSent.WithLabelValues(mt).Inc()
	c.logger.Debug("sent DHCP packet",
		"msg_type", mt,
		"xid", xidString(msg.XID),
		"dst", dst.String(),
		"secs", msg.Secs)
	return nil
}

func (c *Client) publish(now time.Time, typ events.EventType, fill func(*events.Event)) {
	if c.events == nil {
		return
	}
	evt := events.Event{
		Type:      typ,
		Timestamp: now,
		Interface: c.cfg.Interface,
		State:     c.s.state.String(),
	}
	if fill != nil {
		fill(&evt)
	}
	c.events.Publish(evt)
}

// shutdown releases the lease if configured to. Otherwise the address and
// stored lease are left for the next start to resume.
func (c *Client) shutdown() {
	l := c.s.lease
	if l == nil || !c.s.state.hasLease() {
		c.logger.Info("client stopped", "state", c.s.state.String())
		return
	}
	if !c.cfg.ReleaseOnExit {
		c.logger.Info("client stopped with lease held",
			"ip", l.Address.String(),
			"expires", l.Expiry(),
			"remaining", l.Remaining(c.clock.Now()))
		return
	}

	msg := dhcp.NewRelease(c.cfg.Identity, c.newXID(), l.Address, l.ServerID)
	if err := c.send(msg, unicastOrBroadcast(l.ServerID)); err != nil {
		c.logger.Warn("sending RELEASE", "error", err)
	}
	metrics.LeaseOperations.WithLabelValues("released").Inc()
	now := c.clock.Now()
	c.publish(now, events.EventLeaseRelease, func(e *events.Event) {
		e.Lease = events.NewLeaseData(l)
	})
	c.discardLease()
	c.logger.Info("lease released", "ip", l.Address.String(), "server", l.ServerID.String())
}

func xidString(x uint32) string {
	return fmt.Sprintf("%08x", x)
}
