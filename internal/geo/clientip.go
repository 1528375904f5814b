package geo

import (
	"net/http"
	"strings"

	"github.com/tomasen/realip"
)

// ClientIP returns the originating client address. The first X-Forwarded-For
// entry wins, then the CDN connection headers, then whatever realip derives
// from the request.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	for _, header := range []string{"X-Nf-Client-Connection-Ip", "Client-Ip"} {
		if ip := strings.TrimSpace(r.Header.Get(header)); ip != "" {
			return ip
		}
	}

	return realip.FromRequest(r)
}
