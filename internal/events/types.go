// Package events provides the event bus and hook dispatcher for athena-dhclient.
package events

import (
	"encoding/hex"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/athena-dhcpd/athena-dhclient/internal/lease"
)

// EventType represents a lease lifecycle or client event.
type EventType string

const (
	EventLeaseBound         EventType = "lease.bound"
	EventLeaseRenew         EventType = "lease.renew"
	EventLeaseRebind        EventType = "lease.rebind"
	EventLeaseNak           EventType = "lease.nak"
	EventLeaseExpire        EventType = "lease.expire"
	EventLeaseRelease       EventType = "lease.release"
	EventConflictDecline    EventType = "conflict.decline"
	EventAcquisitionFailing EventType = "acquisition.failing"
)

// Event is the core event payload passed through the event bus.
type Event struct {
	Type      EventType     `json:"type"`
	Timestamp time.Time     `json:"timestamp"`
	Interface string        `json:"interface"`
	State     string        `json:"state"`
	Lease     *LeaseData    `json:"lease,omitempty"`
	Conflict  *ConflictData `json:"conflict,omitempty"`
	Failure   *FailureData  `json:"failure,omitempty"`
	Reason    string        `json:"reason,omitempty"`
}

// LeaseData carries lease information in events.
type LeaseData struct {
	IP         net.IP           `json:"ip"`
	MAC        net.HardwareAddr `json:"mac"`
	Subnet     string           `json:"subnet"`
	SubnetMask string           `json:"subnet_mask,omitempty"`
	Router     net.IP           `json:"router,omitempty"`
	DNS        []net.IP         `json:"dns,omitempty"`
	ServerID   net.IP           `json:"server_id,omitempty"`
	Start      int64            `json:"start"`
	Expiry     int64            `json:"expiry"`
	T1         int64            `json:"t1"`
	T2         int64            `json:"t2"`
	OldIP      net.IP           `json:"old_ip,omitempty"`
	// Options maps option code (decimal) to its raw value in hex.
	Options map[string]string `json:"options,omitempty"`
}

// ConflictData carries conflict information in events.
type ConflictData struct {
	IP              net.IP `json:"ip"`
	ServerID        net.IP `json:"server_id,omitempty"`
	DetectionMethod string `json:"detection_method"`
}

// FailureData describes repeated acquisition failures.
type FailureData struct {
	Cycles    int `json:"cycles"`
	Threshold int `json:"threshold"`
}

// NewLeaseData copies the fields hooks see out of a lease.
func NewLeaseData(l *lease.Lease) *LeaseData {
	ipnet := l.IPNet()
	network := &net.IPNet{IP: ipnet.IP.Mask(ipnet.Mask), Mask: ipnet.Mask}
	d := &LeaseData{
		IP:       l.Address,
		MAC:      l.MAC,
		Subnet:   network.String(),
		Router:   l.Router,
		DNS:      l.DNS,
		ServerID: l.ServerID,
		Start:    l.Obtained.Unix(),
		Expiry:   l.Expiry().Unix(),
		T1:       int64(l.T1 / time.Second),
		T2:       int64(l.T2 / time.Second),
	}
	if l.SubnetMask != nil {
		d.SubnetMask = net.IP(l.SubnetMask).String()
	}
	if len(l.Options) > 0 {
		d.Options = make(map[string]string, len(l.Options))
		for code, v := range l.Options {
			d.Options[strconv.Itoa(int(code))] = hex.EncodeToString(v)
		}
	}
	return d
}

// ToEnvVars converts an event to environment variables for script hooks.
func (e *Event) ToEnvVars() map[string]string {
	env := map[string]string{
		"ATHENA_EVENT": string(e.Type),
	}
	if e.Interface != "" {
		env["ATHENA_INTERFACE"] = e.Interface
	}
	if e.State != "" {
		env["ATHENA_STATE"] = e.State
	}
	if e.Reason != "" {
		env["ATHENA_REASON"] = e.Reason
	}

	if e.Lease != nil {
		l := e.Lease
		if l.IP != nil {
			env["ATHENA_IP"] = l.IP.String()
		}
		if l.MAC != nil {
			env["ATHENA_MAC"] = l.MAC.String()
		}
		env["ATHENA_SUBNET"] = l.Subnet
		if l.SubnetMask != "" {
			env["ATHENA_SUBNET_MASK"] = l.SubnetMask
		}
		if l.Router != nil {
			env["ATHENA_ROUTER"] = l.Router.String()
		}
		if len(l.DNS) > 0 {
			dns := make([]string, len(l.DNS))
			for i, ip := range l.DNS {
				dns[i] = ip.String()
			}
			env["ATHENA_DNS"] = strings.Join(dns, " ")
		}
		if l.ServerID != nil {
			env["ATHENA_SERVER_ID"] = l.ServerID.String()
		}
		if l.Start != 0 {
			env["ATHENA_LEASE_START"] = fmt.Sprintf("%d", l.Start)
		}
		if l.Expiry != 0 {
			env["ATHENA_LEASE_EXPIRY"] = fmt.Sprintf("%d", l.Expiry)
		}
		if l.Start != 0 && l.Expiry != 0 {
			env["ATHENA_LEASE_DURATION"] = fmt.Sprintf("%d", l.Expiry-l.Start)
		}
		if l.T1 != 0 {
			env["ATHENA_T1"] = fmt.Sprintf("%d", l.T1)
		}
		if l.T2 != 0 {
			env["ATHENA_T2"] = fmt.Sprintf("%d", l.T2)
		}
		if l.OldIP != nil {
			env["ATHENA_OLD_IP"] = l.OldIP.String()
		}
		codes := make([]string, 0, len(l.Options))
		for code, v := range l.Options {
			env["ATHENA_OPTION_"+code] = v
			codes = append(codes, code)
		}
		if len(codes) > 0 {
			sort.Slice(codes, func(i, j int) bool {
				a, _ := strconv.Atoi(codes[i])
				b, _ := strconv.Atoi(codes[j])
				return a < b
			})
			env["ATHENA_OPTIONS"] = fmt.Sprint(codes)
		}
	}

	if e.Conflict != nil {
		c := e.Conflict
		if c.IP != nil {
			env["ATHENA_IP"] = c.IP.String()
		}
		if c.ServerID != nil {
			env["ATHENA_SERVER_ID"] = c.ServerID.String()
		}
		env["ATHENA_CONFLICT_METHOD"] = c.DetectionMethod
	}

	if e.Failure != nil {
		env["ATHENA_FAILED_CYCLES"] = fmt.Sprintf("%d", e.Failure.Cycles)
		env["ATHENA_FAILURE_THRESHOLD"] = fmt.Sprintf("%d", e.Failure.Threshold)
	}

	return env
}
