package hostname

import (
	"strings"
	"testing"

	"github.com/miekg/dns"
)

func TestSanitise(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"clean", "myhost", "myhost"},
		{"uppercase", "MyHost", "myhost"},
		{"fqdn keeps first label", "web01.corp.example.com", "web01"},
		{"spaces", "my host", "myhost"},
		{"special chars", "my@host!name", "myhostname"},
		{"control chars", "host\x00\x07name", "hostname"},
		{"unicode", "hôst-nàme", "hst-nme"},
		{"repeated hyphens", "a---b", "a-b"},
		{"edge hyphens", "--router--", "router"},
		{"localhost", "localhost", ""},
		{"localhost domain", "localhost.localdomain", ""},
		{"placeholder case", "UNKNOWN", ""},
		{"none in parens", "(none)", ""},
		{"placeholder after cleanup", "local-host", "local-host"},
		{"long", strings.Repeat("a", 70), strings.Repeat("a", 63)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sanitise(tt.in); got != tt.want {
				t.Errorf("Sanitise(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitiseProducesDNSLabel(t *testing.T) {
	for _, in := range []string{"Büro-PC #3", "host_name", "a.b.c", "x--y", "Z"} {
		got := Sanitise(in)
		if got == "" {
			continue
		}
		if labels, ok := dns.IsDomainName(got); !ok || labels != 1 {
			t.Errorf("Sanitise(%q) = %q is not a single DNS label", in, got)
		}
	}
}

func TestCollapseRepeated(t *testing.T) {
	tests := []struct{ in, want string }{
		{"a--b", "a-b"},
		{"a-b", "a-b"},
		{"----", "-"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := collapseRepeated(tt.in); got != tt.want {
			t.Errorf("collapseRepeated(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLocal(t *testing.T) {
	got := Local()
	if got != Sanitise(got) {
		t.Errorf("Local() = %q is not stable under Sanitise", got)
	}
}
