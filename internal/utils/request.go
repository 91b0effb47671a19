package utils

import (
	"net"
	"net/http"
)

// ClientIP returns the caller address without the port. It expects
// chi's RealIP middleware to have rewritten RemoteAddr when behind a proxy.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
