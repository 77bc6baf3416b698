// Package accesscontrol implements the remote-address allow-list that is
// the only authentication this server performs. Routing, headers, and
// middleware wiring are external; this package is the pure
// is-this-peer-allowed predicate.
package accesscontrol

import "net/netip"

// privateV4 lists the private/loopback/link-local IPv4 ranges treated as
// always-allowed.
var privateV4 = []netip.Prefix{
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"),
}

// IsPrivate reports whether addr is loopback, private, or link-local:
// IPv4 10/8, 172.16/12, 192.168/16, 127/8, 169.254/16; IPv6 loopback,
// link-local (fe80::/10), unique-local (fc00::/7), and IPv4-mapped forms of
// the IPv4 ranges. Unix-domain peers have no netip.Addr
// representation and are handled separately by IsAllowed.
func IsPrivate(addr netip.Addr) bool {
	if !addr.IsValid() {
		return false
	}

	if addr.Is4In6() {
		addr = addr.Unmap()
	}

	if addr.Is4() {
		for _, p := range privateV4 {
			if p.Contains(addr) {
				return true
			}
		}
		return false
	}

	// IPv6: loopback (::1), link-local and unique-local (fc00::/7) are
	// private; an IPv4-mapped
	// address was already unwrapped above and checked against privateV4.
	return addr.IsLoopback() || addr.IsLinkLocalUnicast() || addr.IsPrivate()
}

// IsAllowed reports whether a peer may access the server. unixSocket is
// true when the connection arrived over a Unix-domain socket, which is
// always allowed regardless of addr (addr is meaningless in that case).
func IsAllowed(addr netip.Addr, unixSocket bool) bool {
	if unixSocket {
		return true
	}
	return IsPrivate(addr)
}
