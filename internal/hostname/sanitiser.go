// Package hostname derives the option 12 hostname a client sends when none
// is configured. The OS hostname is cleaned to a single DNS label and
// rejected when it is a well-known placeholder.
package hostname

import (
	"os"
	"regexp"
	"strings"
)

// maxLabel is the DNS label limit.
const maxLabel = 63

// placeholders are hostnames that identify nothing and are not worth sending.
var placeholders = compile(
	`^localhost$`,
	`^localhost\.localdomain$`,
	`^host$`,
	`^dhcp$`,
	`^unknown$`,
	`^none$`,
	`^null$`,
	`^default$`,
	`^changeme$`,
	`^\(none\)$`,
)

func compile(patterns ...string) []*regexp.Regexp {
	res := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		res[i] = regexp.MustCompile("(?i)" + p)
	}
	return res
}

// Sanitise reduces name to a lowercase DNS label. It returns "" when
// nothing usable remains or the name is a placeholder.
func Sanitise(name string) string {
	if isPlaceholder(strings.TrimSpace(name)) {
		return ""
	}

	// Keep the first label only; option 12 carries a short name.
	if i := strings.IndexByte(name, '.'); i >= 0 {
		name = name[:i]
	}

	name = stripControlChars(name)
	name = stripInvalidDNS(name)
	name = strings.ToLower(name)
	name = collapseRepeated(name)
	name = strings.Trim(name, "-")

	if len(name) > maxLabel {
		name = strings.TrimRight(name[:maxLabel], "-")
	}
	if isPlaceholder(name) {
		return ""
	}
	return name
}

// Local returns the sanitised OS hostname, or "" if it has none worth sending.
func Local() string {
	name, err := os.Hostname()
	if err != nil {
		return ""
	}
	return Sanitise(name)
}

func isPlaceholder(name string) bool {
	for _, re := range placeholders {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

// stripControlChars removes ASCII control characters and non-printable runes.
func stripControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= 32 && r != 127 {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// stripInvalidDNS removes characters not valid in a DNS label (RFC 952/1123).
// Valid: a-z, A-Z, 0-9, hyphen.
func stripInvalidDNS(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, c := range []byte(s) {
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
			(c >= '0' && c <= '9') || c == '-' {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// collapseRepeated collapses runs of hyphens into one.
func collapseRepeated(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	var prev byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '-' && c == prev {
			continue
		}
		b.WriteByte(c)
		prev = c
	}
	return b.String()
}
