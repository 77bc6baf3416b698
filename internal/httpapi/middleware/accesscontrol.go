package middleware

import (
	"net"
	"net/http"
	"net/netip"

	"github.com/sanshiro-tv/tunerd/internal/accesscontrol"
)

// AccessControl rejects requests from peers that fail
// accesscontrol.IsAllowed, returning 403. A RemoteAddr that fails to parse
// as host:port (e.g. a Unix-domain socket's synthetic address) is treated
// as a Unix-domain peer and always allowed, matching net/http's own
// convention for unix listeners.
func AccessControl() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			addr, err := netip.ParseAddr(host)
			if err != nil || !accesscontrol.IsAllowed(addr, false) {
				http.Error(w, "access denied", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
