// Package allowlist restricts webhook deliveries to known source addresses.
package allowlist

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// Allowlist defines allowed IP ranges. The zero value allows everything.
type Allowlist struct {
	entries []netip.Prefix
}

// Parse builds an allowlist from a comma-separated list of IPs or CIDRs.
// An empty list allows every address.
func Parse(value string) (Allowlist, error) {
	var entries []netip.Prefix
	for _, part := range strings.Split(value, ",") {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		if strings.Contains(trimmed, "/") {
			prefix, err := netip.ParsePrefix(trimmed)
			if err != nil {
				return Allowlist{}, fmt.Errorf("parse allowlist entry %q: %w", trimmed, err)
			}
			entries = append(entries, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(trimmed)
		if err != nil {
			return Allowlist{}, fmt.Errorf("parse allowlist entry %q: %w", trimmed, err)
		}
		addr = addr.Unmap()
		entries = append(entries, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return Allowlist{entries: entries}, nil
}

// AllowAll reports whether the list is unrestricted.
func (a Allowlist) AllowAll() bool {
	return len(a.entries) == 0
}

// Allows returns true if the address is within the allowlist.
func (a Allowlist) Allows(addr netip.Addr) bool {
	if a.AllowAll() {
		return true
	}
	if !addr.IsValid() {
		return false
	}
	addr = addr.Unmap()
	for _, entry := range a.entries {
		if entry.Contains(addr) {
			return true
		}
	}
	return false
}

// AllowsRequest checks the peer address of r. Forwarding headers are not
// trusted.
func (a Allowlist) AllowsRequest(r *http.Request) bool {
	if a.AllowAll() {
		return true
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	return a.Allows(addr)
}
