package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/MrEthical07/authcache"
)

// ClientIPOptions controls where the origin is read from.
type ClientIPOptions struct {
	// TrustForwardedFor takes the left-most X-Forwarded-For entry. Only
	// enable it behind a proxy that overwrites the header.
	TrustForwardedFor bool
}

// ClientIP attaches the request origin to the context with
// [authcache.WithClientIP].
func ClientIP(opts ClientIPOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := requestIP(r, opts)
			if ip == "" {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(authcache.WithClientIP(r.Context(), ip)))
		})
	}
}

func requestIP(r *http.Request, opts ClientIPOptions) string {
	if opts.TrustForwardedFor {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
				return ip.String()
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.String()
	}
	return ""
}
