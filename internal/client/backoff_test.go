package client

import (
	"math/rand/v2"
	"testing"
	"time"
)

func TestBackoffNominal(t *testing.T) {
	b := DefaultBackoff
	want := []time.Duration{4, 8, 16, 32, 64, 64, 64}
	for i, w := range want {
		if got := b.Nominal(i); got != w*time.Second {
			t.Errorf("Nominal(%d) = %s, want %s", i, got, w*time.Second)
		}
	}
}

func TestBackoffJitterBounds(t *testing.T) {
	b := DefaultBackoff
	rng := rand.New(rand.NewPCG(7, 7))
	for attempt := 0; attempt < 6; attempt++ {
		nominal := b.Nominal(attempt)
		for i := 0; i < 200; i++ {
			got := b.Timeout(attempt, rng)
			if got < nominal-b.Jitter || got > nominal+b.Jitter {
				t.Fatalf("Timeout(%d) = %s, outside %s±%s", attempt, got, nominal, b.Jitter)
			}
		}
	}
}

func TestBackoffFloor(t *testing.T) {
	b := Backoff{Base: 500 * time.Millisecond, Max: time.Second, Jitter: 2 * time.Second, MaxAttempts: 3}
	rng := rand.New(rand.NewPCG(1, 1))
	for i := 0; i < 100; i++ {
		if got := b.Timeout(0, rng); got < time.Second {
			t.Fatalf("Timeout = %s, want at least 1s", got)
		}
	}
}

func TestBackoffExhausted(t *testing.T) {
	b := DefaultBackoff
	if b.Exhausted(4) {
		t.Error("4 sends should not exhaust a budget of 5")
	}
	if !b.Exhausted(5) {
		t.Error("5 sends should exhaust a budget of 5")
	}
}

func TestRenewWait(t *testing.T) {
	tests := []struct {
		name string
		left time.Duration
		want time.Duration
	}{
		{"half of remaining", 400 * time.Second, 200 * time.Second},
		{"at least 60s", 100 * time.Second, 60 * time.Second},
		{"never past limit", 30 * time.Second, 30 * time.Second},
		{"limit passed", -time.Second, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := renewWait(tt.left); got != tt.want {
				t.Errorf("renewWait = %s, want %s", got, tt.want)
			}
		})
	}
}
