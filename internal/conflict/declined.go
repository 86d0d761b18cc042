package conflict

import (
	"net"
	"sync"
	"time"
)

// Declined remembers addresses the client declined so that re-offers of
// them are skipped for a hold time. Times come from the caller's clock.
type Declined struct {
	entries sync.Map // IP string → time declined
	hold    time.Duration
}

// NewDeclined creates a decline list that forgets entries after hold.
func NewDeclined(hold time.Duration) *Declined {
	return &Declined{hold: hold}
}

// Add records that ip was declined at now.
func (d *Declined) Add(ip net.IP, now time.Time) {
	d.entries.Store(ip.String(), now)
}

// Contains reports whether ip was declined within the hold time.
func (d *Declined) Contains(ip net.IP, now time.Time) bool {
	v, ok := d.entries.Load(ip.String())
	if !ok {
		return false
	}
	if now.Sub(v.(time.Time)) >= d.hold {
		d.entries.Delete(ip.String())
		return false
	}
	return true
}

// Cleanup removes expired entries.
func (d *Declined) Cleanup(now time.Time) {
	d.entries.Range(func(key, value any) bool {
		if now.Sub(value.(time.Time)) >= d.hold {
			d.entries.Delete(key)
		}
		return true
	})
}

// Len returns the number of entries, expired ones included.
func (d *Declined) Len() int {
	n := 0
	d.entries.Range(func(any, any) bool {
		n++
		return true
	})
	return n
}
