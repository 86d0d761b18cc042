package client

import (
	"net"
	"time"

	"github.com/athena-dhcpd/athena-dhclient/internal/dhcp"
)

// Offer is a DHCPOFFER collected while SELECTING.
type Offer struct {
	Message   *dhcp.Message
	Address   net.IP
	ServerID  net.IP
	LeaseTime time.Duration // 0 if the offer carried none
	Received  time.Time
}

// OfferSelector picks the offer to request. offers are in arrival order and
// never empty; the returned index must be valid.
type OfferSelector interface {
	Select(offers []Offer) int
}

// LongestLease selects the offer with the longest lease, ties going to the
// earliest arrival.
type LongestLease struct{}

// Select implements OfferSelector.
func (LongestLease) Select(offers []Offer) int {
	best := 0
	for i := 1; i < len(offers); i++ {
		if offers[i].LeaseTime > offers[best].LeaseTime {
			best = i
		}
	}
	return best
}

// FirstOffer selects the earliest offer, as many simple clients do.
type FirstOffer struct{}

// Select implements OfferSelector.
func (FirstOffer) Select([]Offer) int { return 0 }

// SelectorByName maps a configured policy name to a selector. Unknown names
// get LongestLease.
func SelectorByName(name string) OfferSelector {
	if name == "first" {
		return FirstOffer{}
	}
	return LongestLease{}
}
