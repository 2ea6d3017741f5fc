package middleware

import (
	"net"
	"net/http"

	"github.com/mentorscore/session-api/internal/httputil"
)

func writeError(w http.ResponseWriter, err error) {
	httputil.WriteError(w, err)
}

// clientIP returns the remote host without its port. chi's RealIP runs
// earlier in the chain, so RemoteAddr already reflects forwarding headers.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
