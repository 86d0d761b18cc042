package client

import (
	"testing"
	"time"
)

func offersWithLeases(secs ...int) []Offer {
	out := make([]Offer, len(secs))
	for i, s := range secs {
		out[i] = Offer{LeaseTime: time.Duration(s) * time.Second}
	}
	return out
}

func TestLongestLease(t *testing.T) {
	tests := []struct {
		name   string
		leases []int
		want   int
	}{
		{"single", []int{600}, 0},
		{"longest wins", []int{300, 600, 120}, 1},
		{"tie goes to earliest", []int{300, 600, 600}, 1},
		{"missing lease time loses", []int{0, 60}, 1},
		{"all equal", []int{60, 60, 60}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := (LongestLease{}).Select(offersWithLeases(tt.leases...)); got != tt.want {
				t.Errorf("Select(%v) = %d, want %d", tt.leases, got, tt.want)
			}
		})
	}
}

func TestFirstOffer(t *testing.T) {
	if got := (FirstOffer{}).Select(offersWithLeases(60, 600)); got != 0 {
		t.Errorf("Select = %d, want 0", got)
	}
}

func TestSelectorByName(t *testing.T) {
	if _, ok := SelectorByName("first").(FirstOffer); !ok {
		t.Error(`SelectorByName("first") is not FirstOffer`)
	}
	if _, ok := SelectorByName("longest_lease").(LongestLease); !ok {
		t.Error(`SelectorByName("longest_lease") is not LongestLease`)
	}
	if _, ok := SelectorByName("").(LongestLease); !ok {
		t.Error("empty name should default to LongestLease")
	}
}
