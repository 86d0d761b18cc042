package lease

import (
	"time"
)

// DefaultLeaseTime is used when an ACK carries no lease time (option 51).
const DefaultLeaseTime = 12 * time.Hour

// minLeaseTime is the wire resolution of option 51.
const minLeaseTime = time.Second

// DeadlineKind names a lease deadline.
type DeadlineKind int

const (
	DeadlineNone DeadlineKind = iota
	DeadlineRenew
	DeadlineRebind
	DeadlineExpire
)

func (k DeadlineKind) String() string {
	switch k {
	case DeadlineNone:
		return "none"
	case DeadlineRenew:
		return "renew"
	case DeadlineRebind:
		return "rebind"
	case DeadlineExpire:
		return "expire"
	default:
		return "unknown"
	}
}

// Timers is the renewal schedule of a lease, relative to Obtained.
// 0 < T1 < T2 < Lease always holds for values built by ComputeTimers.
type Timers struct {
	Obtained time.Time
	Lease    time.Duration
	T1       time.Duration
	T2       time.Duration
}

// ComputeTimers derives T1 and T2 for a lease of length leaseTime.
// Server-supplied t1/t2 are used when they satisfy 0 < t1 < t2 < lease;
// otherwise RFC 2131 §4.4.5 defaults (T1 = L/2, T2 = 7L/8) replace whichever
// value breaks the ordering. A zero lease time falls back to
// DefaultLeaseTime.
func ComputeTimers(obtained time.Time, leaseTime, t1, t2 time.Duration) Timers {
	if leaseTime <= 0 {
		leaseTime = DefaultLeaseTime
	}
	if leaseTime < minLeaseTime {
		leaseTime = minLeaseTime
	}

	defT1 := leaseTime / 2
	defT2 := leaseTime - leaseTime/8

	valid := func(d time.Duration) bool { return d > 0 && d < leaseTime }

	candT1, candT2 := defT1, defT2
	if valid(t1) {
		candT1 = t1
	}
	if valid(t2) {
		candT2 = t2
	}

	switch {
	case candT1 < candT2:
	case defT1 < candT2:
		candT1 = defT1
	case candT1 < defT2:
		candT2 = defT2
	default:
		candT1, candT2 = defT1, defT2
	}

	return Timers{Obtained: obtained, Lease: leaseTime, T1: candT1, T2: candT2}
}

// Deadline returns the absolute time of a deadline. DeadlineNone yields the
// zero time.
func (t Timers) Deadline(kind DeadlineKind) time.Time {
	switch kind {
	case DeadlineRenew:
		return t.Obtained.Add(t.T1)
	case DeadlineRebind:
		return t.Obtained.Add(t.T2)
	case DeadlineExpire:
		return t.Obtained.Add(t.Lease)
	default:
		return time.Time{}
	}
}

// Due returns the latest deadline reached at now.
func (t Timers) Due(now time.Time) DeadlineKind {
	for _, k := range []DeadlineKind{DeadlineExpire, DeadlineRebind, DeadlineRenew} {
		if !now.Before(t.Deadline(k)) {
			return k
		}
	}
	return DeadlineNone
}

// Next returns the first deadline not yet reached at now and the time until
// it. After expiry it returns DeadlineNone and 0.
func (t Timers) Next(now time.Time) (DeadlineKind, time.Duration) {
	var next DeadlineKind
	switch t.Due(now) {
	case DeadlineNone:
		next = DeadlineRenew
	case DeadlineRenew:
		next = DeadlineRebind
	case DeadlineRebind:
		next = DeadlineExpire
	default:
		return DeadlineNone, 0
	}
	return next, t.Deadline(next).Sub(now)
}
