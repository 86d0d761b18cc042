package lease

import (
	"testing"
	"time"
)

func TestComputeTimers(t *testing.T) {
	obtained := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := time.Second

	tests := []struct {
		name          string
		lease, t1, t2 time.Duration
		wantL, w1, w2 time.Duration
	}{
		{"defaults", 600 * s, 0, 0, 600 * s, 300 * s, 525 * s},
		{"server values", 3600 * s, 1000 * s, 2000 * s, 3600 * s, 1000 * s, 2000 * s},
		{"t1 only", 3600 * s, 1000 * s, 0, 3600 * s, 1000 * s, 3150 * s},
		{"t2 only", 3600 * s, 0, 3000 * s, 3600 * s, 1800 * s, 3000 * s},
		{"t1 beyond lease", 3600 * s, 4000 * s, 0, 3600 * s, 1800 * s, 3150 * s},
		{"t2 beyond lease", 3600 * s, 1000 * s, 3600 * s, 3600 * s, 1000 * s, 3150 * s},
		{"t1 after t2", 3600 * s, 3000 * s, 2000 * s, 3600 * s, 1800 * s, 2000 * s},
		{"no ordered mix", 3600 * s, 3400 * s, 1000 * s, 3600 * s, 1800 * s, 3150 * s},
		{"zero lease", 0, 0, 0, DefaultLeaseTime, 6 * time.Hour, 10*time.Hour + 30*time.Minute},
		{"sub-second lease", time.Millisecond, 0, 0, s, 500 * time.Millisecond, 875 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeTimers(obtained, tt.lease, tt.t1, tt.t2)
			if got.Lease != tt.wantL || got.T1 != tt.w1 || got.T2 != tt.w2 {
				t.Errorf("ComputeTimers = L%v T1 %v T2 %v, want L%v T1 %v T2 %v",
					got.Lease, got.T1, got.T2, tt.wantL, tt.w1, tt.w2)
			}
		})
	}
}

func TestComputeTimersOrdering(t *testing.T) {
	obtained := time.Now()
	for _, secs := range []int64{1, 2, 3, 7, 59, 60, 61, 600, 86400, 0xffffffff} {
		for _, t1 := range []int64{0, 1, secs / 3, secs - 1, secs, secs + 1} {
			for _, t2 := range []int64{0, 1, secs / 2, secs - 1, secs, secs * 2} {
				tm := ComputeTimers(obtained, time.Duration(secs)*time.Second,
					time.Duration(t1)*time.Second, time.Duration(t2)*time.Second)
				if !(0 < tm.T1 && tm.T1 < tm.T2 && tm.T2 < tm.Lease) {
					t.Fatalf("L=%d t1=%d t2=%d: got T1=%v T2=%v L=%v", secs, t1, t2, tm.T1, tm.T2, tm.Lease)
				}
			}
		}
	}
}

func TestTimersDueAndNext(t *testing.T) {
	obtained := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tm := ComputeTimers(obtained, 600*time.Second, 0, 0)

	tests := []struct {
		offset   time.Duration
		due      DeadlineKind
		next     DeadlineKind
		nextWait time.Duration
	}{
		{0, DeadlineNone, DeadlineRenew, 300 * time.Second},
		{299 * time.Second, DeadlineNone, DeadlineRenew, time.Second},
		{300 * time.Second, DeadlineRenew, DeadlineRebind, 225 * time.Second},
		{525 * time.Second, DeadlineRebind, DeadlineExpire, 75 * time.Second},
		{600 * time.Second, DeadlineExpire, DeadlineNone, 0},
		{time.Hour, DeadlineExpire, DeadlineNone, 0},
	}
	for _, tt := range tests {
		now := obtained.Add(tt.offset)
		if got := tm.Due(now); got != tt.due {
			t.Errorf("Due(+%v) = %s, want %s", tt.offset, got, tt.due)
		}
		kind, wait := tm.Next(now)
		if kind != tt.next || wait != tt.nextWait {
			t.Errorf("Next(+%v) = %s/%v, want %s/%v", tt.offset, kind, wait, tt.next, tt.nextWait)
		}
	}

	if !tm.Deadline(DeadlineNone).IsZero() {
		t.Error("Deadline(None) not zero")
	}
	if got := tm.Deadline(DeadlineExpire); !got.Equal(obtained.Add(600 * time.Second)) {
		t.Errorf("Deadline(Expire) = %v", got)
	}
}
